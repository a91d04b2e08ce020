package cpumask

import (
	"testing"

	. "github.com/onsi/gomega"
)

type cpusetFormatParamWrap struct {
	formatString string
	cpuSetInt    []int
}

func TestMaskString(t *testing.T) {
	g := NewGomegaWithT(t)
	params := []*cpusetFormatParamWrap{
		{formatString: "1-5", cpuSetInt: []int{1, 2, 3, 4, 5}},
		{formatString: "1-5", cpuSetInt: []int{1, 4, 5, 2, 3}},
		{formatString: "1,5,7", cpuSetInt: []int{1, 5, 7}},
		{formatString: "1-5,7", cpuSetInt: []int{1, 5, 7, 2, 3, 4}},
		{formatString: "0-1,3-5,7", cpuSetInt: []int{1, 5, 7, 3, 4, 0, 0}},
	}
	for _, val := range params {
		g.Expect(New(val.cpuSetInt...).String()).Should(BeEquivalentTo(val.formatString))
	}
	g.Expect(Mask(nil).String()).Should(BeEquivalentTo(AllCpuSet))
	g.Expect(New().String()).Should(BeEquivalentTo(""))
}

func TestParse(t *testing.T) {
	g := NewGomegaWithT(t)
	result, err := Parse("1-3,5,7-10")
	g.Expect(err).Should(BeNil())
	g.Expect(result).Should(BeEquivalentTo(Mask{1, 2, 3, 5, 7, 8, 9, 10}))
	result, _ = Parse("11")
	g.Expect(result).Should(BeEquivalentTo(Mask{11}))
	result, _ = Parse("0,9\n")
	g.Expect(result).Should(BeEquivalentTo(Mask{0, 9}))
	result, _ = Parse("3,1-2,2")
	g.Expect(result).Should(BeEquivalentTo(Mask{1, 2, 3}))

	result, err = Parse(AllCpuSet)
	g.Expect(err).Should(BeNil())
	g.Expect(result).Should(BeNil())

	_, err = Parse("a-3")
	g.Expect(err).ShouldNot(BeNil())
	_, err = Parse("5-3")
	g.Expect(err).ShouldNot(BeNil())
	_, err = Parse("x")
	g.Expect(err).ShouldNot(BeNil())
}

func TestSetOperations(t *testing.T) {
	g := NewGomegaWithT(t)
	a := New(0, 1)
	b := New(1, 2)
	c := New(3)
	g.Expect(a.Intersects(b)).Should(BeTrue())
	g.Expect(a.Intersects(c)).Should(BeFalse())
	g.Expect(a.Intersection(b)).Should(BeEquivalentTo(Mask{1}))
	g.Expect(a.Union(b)).Should(BeEquivalentTo(Mask{0, 1, 2}))
	g.Expect(b.Difference(a)).Should(BeEquivalentTo(Mask{2}))
	g.Expect(a.SubsetOf(Range(0, 4))).Should(BeTrue())
	g.Expect(b.SubsetOf(a)).Should(BeFalse())
	g.Expect(a.Contains(1)).Should(BeTrue())
	g.Expect(a.Contains(2)).Should(BeFalse())
	g.Expect(Range(0, 4).Max()).Should(Equal(3))
	g.Expect(New().Max()).Should(Equal(-1))
	g.Expect(Range(2, 2).Empty()).Should(BeTrue())
	g.Expect(a.Equal(New(1, 0))).Should(BeTrue())
	g.Expect(Mask(nil).Equal(New())).Should(BeFalse())

	clone := a.Clone()
	clone[0] = 9
	g.Expect(a[0]).Should(Equal(0))
}
