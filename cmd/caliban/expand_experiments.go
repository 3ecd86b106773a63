package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/caliban-dev/caliban/pkg/command"
	"github.com/caliban-dev/caliban/pkg/experiment"
)

// expandExperimentsModule implements the `expand-experiments` verb
// (SPEC_FULL.md §6): prints the ordered argument tuples an experiment
// config expands to, one per line, touching neither the registry nor any
// backend — useful for dry-inspecting a sweep before submitting it.
type expandExperimentsModule struct{}

func newExpandExperimentsModule() *expandExperimentsModule { return &expandExperimentsModule{} }

func (m *expandExperimentsModule) Name() string { return "expand-experiments" }
func (m *expandExperimentsModule) ShortDescription() string {
	return "Print the argument tuples an experiment config expands to"
}
func (m *expandExperimentsModule) LongDescription() string {
	return "expand-experiments parses an experiment-config document and prints one line per expanded argument tuple, without creating any registry rows or contacting a backend."
}
func (m *expandExperimentsModule) ConfigureCommand(cmd *cobra.Command) {
	addExperimentFlags(cmd)
}
func (m *expandExperimentsModule) FxModules() []fx.Option { return nil }

func (m *expandExperimentsModule) Run(_ context.Context, cmd *cobra.Command, _ command.Deps, args []string) error {
	doc, err := readExperimentDoc(cmd)
	if err != nil {
		return err
	}
	tuples, err := experiment.Expand(doc)
	if err != nil {
		return err
	}
	prefix := trailingArgv(cmd, args)
	for _, t := range tuples {
		fmt.Println(strings.Join(append(append([]string{}, prefix...), t.Argv()...), " "))
	}
	return nil
}
