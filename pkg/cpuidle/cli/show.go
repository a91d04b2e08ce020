/*
Copyright 2023 Alibaba Group Holding Limited.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/


package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/config"
	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/cpumask"
	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/topology"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the host topology and the configured drivers.",
	Args:  cobra.NoArgs,
	Run:   wrap(runShow),
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	possible, err := c.Registry.PossibleMask()
	if err != nil {
		return err
	}
	if possible == nil {
		if possible, err = topology.Possible(); err != nil {
			return err
		}
	}

	// cpuinfo is optional, a configured possible range may not match the host.
	topo, err := topology.Load()
	if err != nil {
		newLogger().V(1).Info("no topology", "error", err.Error())
	}
	return printShow(cmd.OutOrStdout(), c, possible, topo)
}

func printShow(out io.Writer, c *config.Config, possible cpumask.Mask, topo *topology.Topology) error {
	_, _ = fmt.Fprintf(out, "possible: %s\n", possible)
	_, _ = fmt.Fprintf(out, "multiple drivers: %t\n", c.Registry.MultipleDrivers)
	if topo != nil {
		packages := topo.Packages()
		ids := maps.Keys(packages)
		slices.Sort(ids)
		_, _ = fmt.Fprintln(out, "packages:")
		for _, id := range ids {
			_, _ = fmt.Fprintf(out, "  %d: %s\n", id, packages[id])
		}
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DRIVER\tCPUS\tSTATES")
	for i := range c.Drivers {
		d := &c.Drivers[i]
		mask, err := d.Mask()
		if err != nil {
			return err
		}
		if mask == nil {
			mask = possible
		}
		names := make([]string, 0, len(d.States))
		for _, s := range d.States {
			names = append(names, s.Name)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, mask, strings.Join(names, ","))
	}
	return w.Flush()
}
