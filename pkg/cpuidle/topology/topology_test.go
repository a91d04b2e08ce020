package topology

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/cpumask"
)

const x86CpuInfo = `processor	: 0
vendor_id	: GenuineIntel
model name	: Intel(R) Xeon(R) Platinum
physical id	: 0
core id		: 0

processor	: 1
model name	: Intel(R) Xeon(R) Platinum
physical id	: 0
core id		: 1

processor	: 2
model name	: Intel(R) Xeon(R) Platinum
physical id	: 1
core id		: 0

processor	: 3
model name	: Intel(R) Xeon(R) Platinum
physical id	: 1
core id		: 1
`

const armCpuInfo = `processor	: 0
BogoMIPS	: 50.00
CPU implementer	: 0x41

processor	: 1
BogoMIPS	: 50.00
CPU implementer	: 0x41
`

func writeFile(t *testing.T, dir, name, content string) string {
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseCpuInfoX86(t *testing.T) {
	g := NewGomegaWithT(t)
	path := writeFile(t, t.TempDir(), "cpuinfo", x86CpuInfo)
	items, err := ParseCpuInfo(path)
	g.Expect(err).Should(BeNil())
	g.Expect(items).Should(HaveLen(4))
	g.Expect(items[2].PhysicalId).Should(Equal(1))
	g.Expect(items[3].CoreId).Should(Equal(1))
	g.Expect(items[0].ModelName).Should(Equal("Intel(R) Xeon(R) Platinum"))

	topo := NewTopology(items)
	g.Expect(topo.Processors()).Should(Equal(cpumask.New(0, 1, 2, 3)))
	packages := topo.Packages()
	g.Expect(packages).Should(HaveLen(2))
	g.Expect(packages[1]).Should(Equal(cpumask.New(2, 3)))
	pkg, ok := topo.PackageOf(3)
	g.Expect(ok).Should(BeTrue())
	g.Expect(pkg).Should(Equal(1))
	_, ok = topo.PackageOf(9)
	g.Expect(ok).Should(BeFalse())
}

func TestParseCpuInfoReadsSysfsIds(t *testing.T) {
	g := NewGomegaWithT(t)
	dir := t.TempDir()
	oldPhysical, oldCore := CpuPhysicalIdFilepathFormat, CpuCoreIdFilepathFormat
	defer func() {
		CpuPhysicalIdFilepathFormat, CpuCoreIdFilepathFormat = oldPhysical, oldCore
	}()
	CpuPhysicalIdFilepathFormat = filepath.Join(dir, "cpu%d", "physical_package_id")
	CpuCoreIdFilepathFormat = filepath.Join(dir, "cpu%d", "core_id")
	writeFile(t, dir, "cpu0/physical_package_id", "0\n")
	writeFile(t, dir, "cpu1/physical_package_id", "1\n")
	writeFile(t, dir, "cpu1/core_id", "4\n")

	path := writeFile(t, dir, "cpuinfo", armCpuInfo)
	items, err := ParseCpuInfo(path)
	g.Expect(err).Should(BeNil())
	g.Expect(items).Should(HaveLen(2))
	g.Expect(items[0].ModelName).Should(Equal("unknown"))
	g.Expect(items[1].PhysicalId).Should(Equal(1))
	g.Expect(items[1].CoreId).Should(Equal(4))
	// missing sysfs file falls back to 0
	g.Expect(items[0].CoreId).Should(Equal(0))

	id, err := PhysicalPackageID(1)
	g.Expect(err).Should(BeNil())
	g.Expect(id).Should(Equal(1))
}

func TestParseCpuInfoErrors(t *testing.T) {
	g := NewGomegaWithT(t)
	_, err := ParseCpuInfo(filepath.Join(t.TempDir(), "missing"))
	g.Expect(err).ShouldNot(BeNil())

	path := writeFile(t, t.TempDir(), "cpuinfo", "processor : x\n")
	_, err = ParseCpuInfo(path)
	g.Expect(err).ShouldNot(BeNil())
}

func TestPossible(t *testing.T) {
	g := NewGomegaWithT(t)
	old := PossibleCpuFilepath
	defer func() { PossibleCpuFilepath = old }()

	PossibleCpuFilepath = writeFile(t, t.TempDir(), "possible", "0-7\n")
	mask, err := Possible()
	g.Expect(err).Should(BeNil())
	g.Expect(mask).Should(Equal(cpumask.Range(0, 8)))

	PossibleCpuFilepath = filepath.Join(t.TempDir(), "missing")
	mask, err = Possible()
	g.Expect(err).Should(BeNil())
	g.Expect(mask.Len()).Should(BeNumerically(">", 0))
	g.Expect(mask[0]).Should(Equal(0))
}
