// Command josctl is the CLI harness for the kernel module: it builds
// a Machine, spawns environments, and drives its scheduler loop for
// inspection or benchmarking. Grounded on google-gvisor's
// runsc/cmd/wait.go for the subcommands.Command shape (Name/Synopsis/
// Usage/SetFlags/Execute).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/mcorley/jos/defs"
	"github.com/mcorley/jos/klog"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&runCmd{}, "")
	subcommands.Register(&benchCmd{}, "")

	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()
	klog.SetLevel(*verbose)

	os.Exit(int(subcommands.Execute(context.Background())))
}

type runCmd struct {
	pages int
	steps int
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "boot a machine and step its scheduler" }
func (*runCmd) Usage() string {
	return "run [-pages N] [-steps N]\n  boots a machine with N physical pages and runs N scheduling quanta.\n"
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.pages, "pages", 4096, "physical page count")
	f.IntVar(&c.steps, "steps", 100, "scheduling quanta to run")
}

func (c *runCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	m := newIdleMachine(c.pages)
	ran := 0
	for i := 0; i < c.steps; i++ {
		if _, ok := m.Step(); !ok {
			break
		}
		ran++
	}
	fmt.Printf("ran %d/%d quanta, %d free pages of %d\n", ran, c.steps, m.Pm.NFree(), m.Pm.NPages())
	return subcommands.ExitSuccess
}

type benchCmd struct {
	pages int
	envs  int
}

func (*benchCmd) Name() string     { return "bench" }
func (*benchCmd) Synopsis() string { return "allocate and tear down many environments" }
func (*benchCmd) Usage() string {
	return "bench [-pages N] [-envs N]\n  allocates N idle environments, then destroys them, reporting leaked pages.\n"
}

func (c *benchCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.pages, "pages", 4096, "physical page count")
	f.IntVar(&c.envs, "envs", 100, "environments to allocate")
}

func (c *benchCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	m := newIdleMachine(c.pages)
	before := m.Pm.NFree()

	ids := make([]defs.Id, 0, c.envs)
	for i := 0; i < c.envs; i++ {
		id, err := m.Spawn(0, 0)
		if err != 0 {
			fmt.Printf("spawn %d failed: %v\n", i, err)
			return subcommands.ExitFailure
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		m.Envs.Destroy(id)
	}

	after := m.Pm.NFree()
	if before != after {
		klog.Warnf("leaked %d pages across %d env lifecycles", before-after, c.envs)
	}
	fmt.Printf("allocated and destroyed %d environments, %d pages leaked\n", c.envs, before-after)
	return subcommands.ExitSuccess
}
