package main

import (
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/caliban-dev/caliban/pkg/buildplan"
	"github.com/caliban-dev/caliban/pkg/calerr"
	"github.com/caliban-dev/caliban/pkg/experiment"
)

// addBuildFlags registers the project-directory/build flags spec.md §6
// lists as part of every verb's invocation descriptor (project directory,
// mode, extras).
func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().String("project", ".", "project directory to build")
	cmd.Flags().String("module", "", "entrypoint module, script, or shell command")
	cmd.Flags().String("mode", "cpu", "hardware target: cpu, gpu, or tpu-host")
	cmd.Flags().StringSlice("extras", nil, "additional pip extras beyond the mode's default")
	cmd.Flags().StringSlice("extra-dir", nil, "additional directory to copy into the build context")
	cmd.Flags().StringSlice("apt", nil, "additional apt package to install")
	cmd.Flags().String("base-image", "", "base image override (may contain a {} mode placeholder)")
	cmd.Flags().String("image", "", "skip BuildPlanner entirely and submit this already-built image")
	cmd.Flags().String("credentials-key", "", "host path to a service-account key to bake into the image")
	cmd.Flags().Bool("use-adc", false, "bake in application-default-credentials instead of/alongside a key file")
}

// addExperimentFlags registers the experiment-config and group flags
// common to every verb that dispatches a sweep.
func addExperimentFlags(cmd *cobra.Command) {
	cmd.Flags().String("experiment-config", "", "path to an experiment-config document, or \"-\"/unset to read standard input")
	cmd.Flags().String("group", "", "experiment group name (defaults to a generated name)")
}

// resolvedGroupName returns group unchanged when the user supplied one,
// otherwise synthesizes spec.md §3's default ExperimentGroup name from the
// current user and a UTC timestamp, so unnamed invocations land in distinct
// groups instead of silently collapsing into one "" row.
func resolvedGroupName(group string) string {
	if group != "" {
		return group
	}
	return fmt.Sprintf("%s-xgroup-%s", currentUsername(), time.Now().UTC().Format("2006-01-02-15-04-05"))
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "caliban"
}

func modeFromFlag(cmd *cobra.Command) (buildplan.Mode, error) {
	raw, _ := cmd.Flags().GetString("mode")
	switch raw {
	case "cpu", "":
		return buildplan.ModeCPU, nil
	case "gpu":
		return buildplan.ModeGPU, nil
	case "tpu-host":
		return buildplan.ModeTPUHost, nil
	default:
		return "", calerr.New(calerr.ConfigInvalid, "main.modeFromFlag", "unrecognized --mode "+raw, nil)
	}
}

// buildInvocationFromFlags assembles a *buildplan.Invocation from the
// common build flags, or nil when --image makes BuildPlanner unnecessary.
func buildInvocationFromFlags(cmd *cobra.Command) (*buildplan.Invocation, error) {
	image, _ := cmd.Flags().GetString("image")
	if image != "" {
		return nil, nil
	}

	mode, err := modeFromFlag(cmd)
	if err != nil {
		return nil, err
	}
	project, _ := cmd.Flags().GetString("project")
	module, _ := cmd.Flags().GetString("module")
	extras, _ := cmd.Flags().GetStringSlice("extras")
	extraDirs, _ := cmd.Flags().GetStringSlice("extra-dir")
	apt, _ := cmd.Flags().GetStringSlice("apt")
	baseImage, _ := cmd.Flags().GetString("base-image")
	credentialsKey, _ := cmd.Flags().GetString("credentials-key")
	useADC, _ := cmd.Flags().GetBool("use-adc")

	inv := buildplan.Invocation{
		ProjectDir:        project,
		Mode:              mode,
		Extras:            extras,
		ModuleSpec:        module,
		ExtraDirs:         extraDirs,
		BaseImageOverride: baseImage,
		AptPackages:       buildplan.AptPackages{Flat: apt},
		CredentialKeyPath: credentialsKey,
		UseADC:            useADC,
	}

	cfg, err := buildplan.LoadProjectConfig(afero.NewOsFs(), project)
	if err != nil {
		return nil, err
	}
	inv = buildplan.ApplyProjectConfig(inv, cfg)

	return &inv, nil
}

// readExperimentDoc reads the experiment-config document named by
// --experiment-config, falling back to standard input when the flag is
// empty or "-" (spec.md §6: "experiment-config path or 'read from
// standard input'").
func readExperimentDoc(cmd *cobra.Command) (experiment.Document, error) {
	path, _ := cmd.Flags().GetString("experiment-config")
	if path == "" || path == "-" {
		return experiment.Parse(os.Stdin)
	}
	return experiment.ParseFile(path)
}

// trailingArgv returns the arguments following a literal "--" separator,
// passed through verbatim ahead of every expanded tuple's own argv
// (spec.md §6: "a trailing argv to pass through").
func trailingArgv(cmd *cobra.Command, args []string) []string {
	dash := cmd.ArgsLenAtDash()
	if dash < 0 {
		return nil
	}
	return args[dash:]
}

