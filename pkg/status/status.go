// Package status implements the StatusService component (spec.md §4.6):
// read-only reporting over the registry, plus the stop and resubmit
// operations that consult live backend state before mutating registry rows.
package status

import (
	"context"

	"github.com/caliban-dev/caliban/pkg/backend"
	"github.com/caliban-dev/caliban/pkg/calerr"
	"github.com/caliban-dev/caliban/pkg/dispatch"
	"github.com/caliban-dev/caliban/pkg/experiment"
	"github.com/caliban-dev/caliban/pkg/logging"
	"github.com/caliban-dev/caliban/pkg/registry"
)

// emptyTupleDoc expands to exactly one empty tuple, so that a Resubmit's
// previously-materialized argv (carried as PrefixArgs) is replayed
// verbatim with nothing appended by ExperimentExpander.
var emptyTupleDoc = experiment.Document{Mappings: []experiment.Mapping{{}}}

// GroupedRecord nests registry.JobRecord rows the way the CLI renders
// them: one record per experiment, carrying that experiment's container
// id and image reference (spec.md §4.6's "group(name,
// max_per_experiment) — jobs in a group, grouped by experiment").
type GroupedRecord struct {
	ContainerID  int64
	ImageRef     string
	ExperimentID int64
	Args         []string
	Jobs         []registry.JobRecord
}

// Service implements StatusService.
type Service struct {
	store    *registry.Store
	adapters map[backend.Kind]backend.Adapter
	log      logging.Interface
}

func New(store *registry.Store, adapters map[backend.Kind]backend.Adapter, log logging.Interface) *Service {
	if log == nil {
		log = logging.Discard()
	}
	return &Service{store: store, adapters: adapters, log: log}
}

// Recent returns the n most recently created jobs across all groups
// (spec.md §4.6's "recent(n)").
func (s *Service) Recent(ctx context.Context, n int) ([]registry.JobRecord, error) {
	return s.store.ListRecent(ctx, n)
}

// Group returns the jobs in groupName, nested by experiment (spec.md
// §4.6's "group(name, max_per_experiment)").
func (s *Service) Group(ctx context.Context, groupName string, maxPerExperiment int) ([]GroupedRecord, error) {
	recs, err := s.store.ListGroup(ctx, groupName, maxPerExperiment)
	if err != nil {
		return nil, err
	}
	return groupByExperiment(recs), nil
}

func groupByExperiment(recs []registry.JobRecord) []GroupedRecord {
	order := make([]int64, 0)
	byExperiment := make(map[int64]*GroupedRecord)
	for _, rec := range recs {
		g, ok := byExperiment[rec.ExperimentID]
		if !ok {
			g = &GroupedRecord{
				ContainerID:  rec.ContainerID,
				ImageRef:     rec.ImageRef,
				ExperimentID: rec.ExperimentID,
				Args:         rec.Args,
			}
			byExperiment[rec.ExperimentID] = g
			order = append(order, rec.ExperimentID)
		}
		g.Jobs = append(g.Jobs, rec)
	}
	out := make([]GroupedRecord, 0, len(order))
	for _, id := range order {
		out = append(out, *byExperiment[id])
	}
	return out
}

// StopOutcome reports what happened for one job Stop attempted to cancel.
type StopOutcome struct {
	JobID   int64
	Message string
	Err     error
}

// Stop enumerates every job in groupName whose current status is SUBMITTED
// or RUNNING and asks the owning backend adapter to cancel it (spec.md
// §4.6's "stop(group, dry_run)"). dryRun reports what would be stopped
// without invoking any adapter or mutating the registry.
func (s *Service) Stop(ctx context.Context, groupName string, dryRun bool) ([]StopOutcome, error) {
	recs, err := s.store.ListGroup(ctx, groupName, 0)
	if err != nil {
		return nil, err
	}

	var outcomes []StopOutcome
	for _, rec := range recs {
		if rec.Status != registry.StatusSubmitted && rec.Status != registry.StatusRunning {
			continue
		}
		if dryRun {
			outcomes = append(outcomes, StopOutcome{JobID: rec.JobID, Message: "would stop"})
			continue
		}

		adapter, ok := s.adapters[backend.Kind(rec.Backend)]
		if !ok {
			outcomes = append(outcomes, StopOutcome{JobID: rec.JobID,
				Err: calerr.New(calerr.ConfigInvalid, "status.Stop", "no adapter for backend "+rec.Backend, nil)})
			continue
		}

		ack, err := adapter.Stop(ctx, rec.BackendJobID)
		if err != nil {
			outcomes = append(outcomes, StopOutcome{JobID: rec.JobID, Err: err})
			continue
		}

		// The observable state change may be asynchronous (spec.md §4.4),
		// so the registry only records UNKNOWN pending the next query,
		// rather than assuming STOPPED has already taken effect.
		if err := s.store.UpdateJobStatus(ctx, rec.JobID, registry.StatusUnknown, "stop requested: "+ack.Message); err != nil {
			outcomes = append(outcomes, StopOutcome{JobID: rec.JobID, Err: err})
			continue
		}
		outcomes = append(outcomes, StopOutcome{JobID: rec.JobID, Message: ack.Message})
	}
	return outcomes, nil
}

// ResubmitSelection decides which experiments Resubmit re-enters the
// Dispatcher with (spec.md §4.6's "resubmit(group, dry_run, all_jobs)"):
// by default only experiments whose latest job is FAILED or STOPPED;
// allJobs widens that to every experiment in the group regardless of its
// latest job's status.
func ResubmitSelection(grouped []GroupedRecord, allJobs bool) []GroupedRecord {
	var out []GroupedRecord
	for _, g := range grouped {
		if len(g.Jobs) == 0 {
			continue
		}
		latest := latestJob(g.Jobs)
		if allJobs || latest.Status == registry.StatusFailed || latest.Status == registry.StatusStopped {
			out = append(out, g)
		}
	}
	return out
}

// latestJob returns the job with the greatest JobID in jobs — ListGroup
// orders by (experiment id ASC, job id DESC), so jobs[0] is already the
// latest, but this stays correct regardless of caller ordering.
func latestJob(jobs []registry.JobRecord) registry.JobRecord {
	latest := jobs[0]
	for _, j := range jobs[1:] {
		if j.JobID > latest.JobID {
			latest = j
		}
	}
	return latest
}

// Resubmit selects experiments per ResubmitSelection and re-enters inv's
// Dispatcher once per selected experiment's argv tuple, optionally
// rebuilding the container so code changes are captured (spec.md §4.6:
// "re-enter Dispatcher with those experiments (rebuilding the container
// where appropriate so code changes are captured)").
func Resubmit(ctx context.Context, d *dispatch.Dispatcher, groupName string, selected []GroupedRecord, base dispatch.Invocation, progress dispatch.ProgressFunc) ([]dispatch.Result, error) {
	var results []dispatch.Result
	for _, g := range selected {
		inv := base
		inv.GroupName = groupName
		inv.PrefixArgs = g.Args
		inv.ExperimentDoc = emptyTupleDoc

		result, err := d.Dispatch(ctx, inv, progress)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}
