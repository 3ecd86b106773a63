package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/caliban-dev/caliban/pkg/command"
	"github.com/caliban-dev/caliban/pkg/status"
)

// statusModule implements the `status` verb: read-only reporting over
// the registry (spec.md §4.6's recent(n)/group(name, max_per_experiment)).
type statusModule struct{}

func newStatusModule() *statusModule { return &statusModule{} }

func (m *statusModule) Name() string            { return "status" }
func (m *statusModule) ShortDescription() string { return "Show recent jobs, or a group's jobs grouped by experiment" }
func (m *statusModule) LongDescription() string {
	return "status prints the n most recently created jobs, or every job in --group nested by experiment."
}
func (m *statusModule) ConfigureCommand(cmd *cobra.Command) {
	cmd.Flags().String("group", "", "report this group's jobs instead of the n most recent across all groups")
	cmd.Flags().Int("recent", 20, "number of recent jobs to show when --group is unset")
	cmd.Flags().Int("max-per-experiment", 0, "cap jobs shown per experiment within --group (0 = unlimited)")
}
func (m *statusModule) FxModules() []fx.Option { return nil }

func (m *statusModule) Run(ctx context.Context, cmd *cobra.Command, deps command.Deps, _ []string) error {
	svc := status.New(deps.Store, nil, deps.Log)
	group, _ := cmd.Flags().GetString("group")

	if group == "" {
		n, _ := cmd.Flags().GetInt("recent")
		recs, err := svc.Recent(ctx, n)
		if err != nil {
			return err
		}
		for _, r := range recs {
			fmt.Printf("%d\t%s\t%s\t%s\t%v\n", r.JobID, r.Backend, r.Status, r.ImageRef, r.Args)
		}
		return nil
	}

	maxPerExperiment, _ := cmd.Flags().GetInt("max-per-experiment")
	grouped, err := svc.Group(ctx, group, maxPerExperiment)
	if err != nil {
		return err
	}
	for _, g := range grouped {
		fmt.Printf("experiment %d\t%s\t%v\n", g.ExperimentID, g.ImageRef, g.Args)
		for _, j := range g.Jobs {
			fmt.Printf("  job %d\t%s\t%s\n", j.JobID, j.Backend, j.Status)
		}
	}
	return nil
}
