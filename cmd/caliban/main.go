// Command caliban is the CLI surface of the core (spec.md §6): ten verbs
// over a shared registry, build planner, experiment expander and the
// three backend adapters, wired the way cmd/ome-agent/main.go registers
// each agent's CreateAgentCommand onto one rootCmd.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caliban-dev/caliban/pkg/calerr"
	"github.com/caliban-dev/caliban/pkg/command"
	"github.com/caliban-dev/caliban/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:     "caliban",
	Short:   "Run machine-learning experiments in containers, locally and in the cloud",
	Long:    "Caliban packages a project directory into a container and dispatches it to a local runtime, a managed cloud training service, or a Kubernetes cluster, tracking every submission in a local registry.",
	Version: fmt.Sprintf("%s (%s)", version.GitVersion, version.GitCommit),
}

func main() {
	command.Main(rootCmd, calerr.ExitCode)
}

func init() {
	rootCmd.AddCommand(command.NewCommand(newBuildModule()))
	rootCmd.AddCommand(command.NewCommand(newRunModule()))
	rootCmd.AddCommand(command.NewCommand(newSubmitCloudModule()))
	rootCmd.AddCommand(command.NewCommand(newSubmitClusterModule()))
	rootCmd.AddCommand(command.NewCommand(newShellModule()))
	rootCmd.AddCommand(command.NewCommand(newNotebookModule()))
	rootCmd.AddCommand(command.NewCommand(newStatusModule()))
	rootCmd.AddCommand(command.NewCommand(newStopModule()))
	rootCmd.AddCommand(command.NewCommand(newResubmitModule()))
	rootCmd.AddCommand(command.NewCommand(newExpandExperimentsModule()))
}
