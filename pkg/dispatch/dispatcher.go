// Package dispatch implements the Dispatcher component (spec.md §4.5): the
// per-invocation orchestration that turns a project directory (or an
// already-built image) plus an experiment-config document into a sequence
// of registered, submitted Jobs.
package dispatch

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/caliban-dev/caliban/pkg/backend"
	"github.com/caliban-dev/caliban/pkg/buildplan"
	"github.com/caliban-dev/caliban/pkg/calerr"
	"github.com/caliban-dev/caliban/pkg/experiment"
	"github.com/caliban-dev/caliban/pkg/logging"
	"github.com/caliban-dev/caliban/pkg/registry"
)

// Builder is the external image builder Dispatcher hands a BuildRecipe to;
// Caliban's core does not implement a container builder itself (spec.md
// §1's explicit non-goal), it only consumes the resulting image reference.
type Builder interface {
	Build(ctx context.Context, recipe *buildplan.BuildRecipe) (imageRef string, err error)
}

// Invocation is the resolved set of parameters for one Dispatcher run
// (spec.md §9's "explicit Invocation value threaded through Dispatcher; no
// process-wide mutable state").
type Invocation struct {
	GroupName string // used verbatim; "" is stored as a group named "" (the CLI generates a name first)

	// Build is the project-directory build request; nil when ImageOverride
	// is set and BuildPlanner should be skipped entirely (spec.md §4.5
	// step 2).
	Build         *buildplan.Invocation
	ImageOverride string

	ExperimentDoc experiment.Document
	PrefixArgs    []string // prepended verbatim to every expanded tuple

	BackendKind backend.Kind
	JobTemplate backend.JobSpec // common fields; ImageRef/Argv are filled in per tuple

	DryRun bool
}

// TupleOutcome reports what happened for one expanded argument tuple.
type TupleOutcome struct {
	Index  int
	Argv   []string
	JobID  int64
	Handle string
	Err    error
}

// Result is Dispatcher's summary of one invocation.
type Result struct {
	GroupID     int64
	ContainerID int64
	ImageRef    string
	Outcomes    []TupleOutcome
}

// Succeeded reports whether every attempted tuple in r succeeded (spec.md
// §4.5: "The overall exit status is success iff every attempted submission
// succeeded").
func (r Result) Succeeded() bool {
	for _, o := range r.Outcomes {
		if o.Err != nil {
			return false
		}
	}
	return true
}

// Progress is reported after each attempted tuple (spec.md §7: "A progress
// indicator during sweeps reports successes, failures, and remaining
// count").
type Progress struct {
	Index, Total        int
	Succeeded, Failed    int
	Outcome              TupleOutcome
}

// ProgressFunc is invoked once per attempted tuple; nil is a valid no-op.
type ProgressFunc func(Progress)

// Dispatcher orchestrates one invocation end to end (spec.md §4.5).
type Dispatcher struct {
	fs       afero.Fs
	store    *registry.Store
	builder  Builder
	adapters map[backend.Kind]backend.Adapter
	log      logging.Interface
}

// New builds a Dispatcher. adapters should carry one entry per backend the
// deployment supports; fs is injected so BuildPlanner can run against an
// in-memory filesystem in tests.
func New(fs afero.Fs, store *registry.Store, builder Builder, adapters map[backend.Kind]backend.Adapter, log logging.Interface) *Dispatcher {
	if log == nil {
		log = logging.Discard()
	}
	return &Dispatcher{fs: fs, store: store, builder: builder, adapters: adapters, log: log}
}

// Dispatch runs inv to completion: resolve/build the image, register the
// container, expand the experiment config, and submit each tuple in
// enumeration order (spec.md §4.5, §5's ordering guarantees).
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation, progress ProgressFunc) (Result, error) {
	adapter, ok := d.adapters[inv.BackendKind]
	if !ok {
		return Result{}, calerr.New(calerr.ConfigInvalid, "dispatch.Dispatch",
			fmt.Sprintf("no adapter registered for backend %q", inv.BackendKind), nil)
	}

	tuples, err := experiment.Expand(inv.ExperimentDoc)
	if err != nil {
		return Result{}, err
	}

	if inv.DryRun {
		return d.dryRun(ctx, inv, adapter, tuples, progress), nil
	}

	groupID, err := d.store.GetOrCreateGroup(ctx, inv.GroupName)
	if err != nil {
		return Result{}, err
	}

	imageRef, recipeHash, err := d.resolveImage(ctx, inv)
	if err != nil {
		return Result{}, err
	}

	mode, buildContextPath, extraDirs := containerMetadata(inv)
	containerID, _, err := d.store.GetOrCreateContainer(ctx, groupID, imageRef, mode, buildContextPath, extraDirs, recipeHash)
	if err != nil {
		return Result{}, err
	}

	result := Result{GroupID: groupID, ContainerID: containerID, ImageRef: imageRef}

	moduleSpec := ""
	if inv.Build != nil {
		moduleSpec = inv.Build.ModuleSpec
	}

	for i, tuple := range tuples {
		select {
		case <-ctx.Done():
			return result, calerr.Wrap(calerr.Cancelled, "dispatch.Dispatch", ctx.Err())
		default:
		}

		argv := append(append([]string{}, inv.PrefixArgs...), tuple.Argv()...)
		outcome := TupleOutcome{Index: i, Argv: argv}

		expID, err := d.store.GetOrCreateExperiment(ctx, groupID, containerID, moduleSpec, argv, i)
		if err != nil {
			// RegistryError is the one failure class that aborts the sweep
			// outright (spec.md §4.5, §7).
			return result, err
		}

		spec := inv.JobTemplate
		spec.ImageRef = imageRef
		spec.Argv = argv
		spec.Index = i

		if err := adapter.Validate(ctx, spec); err != nil {
			outcome.Err = err
			result.Outcomes = append(result.Outcomes, outcome)
			d.report(progress, i, len(tuples), result, outcome)
			continue
		}

		submitResult, err := adapter.Submit(ctx, spec)
		if err != nil {
			outcome.Err = err
			result.Outcomes = append(result.Outcomes, outcome)
			d.report(progress, i, len(tuples), result, outcome)
			continue
		}

		jobID, err := d.store.CreateJob(ctx, expID, string(inv.BackendKind), submitResult.BackendHandle, registry.StatusSubmitted)
		if err != nil {
			return result, err
		}

		outcome.JobID = jobID
		outcome.Handle = submitResult.BackendHandle
		result.Outcomes = append(result.Outcomes, outcome)
		d.report(progress, i, len(tuples), result, outcome)
	}

	return result, nil
}

// dryRun validates every tuple's JobSpec without touching the registry
// (spec.md §4.5 step 6, §8: "Dry-run submissions create no registry rows
// and return success iff every tuple would pass validation").
func (d *Dispatcher) dryRun(ctx context.Context, inv Invocation, adapter backend.Adapter, tuples []experiment.Tuple, progress ProgressFunc) Result {
	result := Result{ImageRef: inv.ImageOverride}
	for i, tuple := range tuples {
		argv := append(append([]string{}, inv.PrefixArgs...), tuple.Argv()...)
		outcome := TupleOutcome{Index: i, Argv: argv}

		spec := inv.JobTemplate
		spec.ImageRef = inv.ImageOverride
		spec.Argv = argv
		spec.Index = i

		if err := adapter.Validate(ctx, spec); err != nil {
			outcome.Err = err
		}
		result.Outcomes = append(result.Outcomes, outcome)
		d.report(progress, i, len(tuples), result, outcome)
	}
	return result
}

// resolveImage returns the image reference Dispatcher should register,
// skipping BuildPlanner entirely when inv.ImageOverride is set (spec.md
// §4.5 step 2).
func (d *Dispatcher) resolveImage(ctx context.Context, inv Invocation) (imageRef, recipeHash string, err error) {
	if inv.ImageOverride != "" {
		return inv.ImageOverride, "override:" + inv.ImageOverride, nil
	}
	if inv.Build == nil {
		return "", "", calerr.New(calerr.ConfigInvalid, "dispatch.resolveImage",
			"invocation carries neither an image override nor a build invocation", nil)
	}

	recipe, err := buildplan.Plan(d.fs, *inv.Build)
	if err != nil {
		return "", "", err
	}
	hash, err := recipe.Hash()
	if err != nil {
		return "", "", calerr.Wrap(calerr.RecipeInvalid, "dispatch.resolveImage", err)
	}
	ref, err := d.builder.Build(ctx, recipe)
	if err != nil {
		return "", "", calerr.Wrap(calerr.BackendError, "dispatch.resolveImage", err)
	}
	return ref, hash, nil
}

// containerMetadata returns the mode/build-context-path/extra-dirs fields
// the Container entity carries (spec.md §3), using the image override's
// path as a stand-in build-context path when BuildPlanner was skipped.
func containerMetadata(inv Invocation) (mode, buildContextPath string, extraDirs []string) {
	if inv.Build == nil {
		return "", inv.ImageOverride, nil
	}
	return string(inv.Build.Mode), inv.Build.ProjectDir, inv.Build.ExtraDirs
}

func (d *Dispatcher) report(progress ProgressFunc, index, total int, result Result, outcome TupleOutcome) {
	if progress == nil {
		return
	}
	succeeded, failed := 0, 0
	for _, o := range result.Outcomes {
		if o.Err != nil {
			failed++
		} else {
			succeeded++
		}
	}
	progress(Progress{Index: index, Total: total, Succeeded: succeeded, Failed: failed, Outcome: outcome})
}
