package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/caliban-dev/caliban/pkg/calerr"
	"github.com/caliban-dev/caliban/pkg/logging"
)

// Store is the RegistryStore component (spec.md §4.2): a relational,
// insertion-ordered, single-file record of experiment groups, containers,
// experiments, and jobs, guarded against concurrent cross-process writers
// by an advisory file lock held for the duration of every mutating call.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	log  logging.Interface
}

// Open creates (if absent) and migrates the sqlite file at path, and
// prepares the companion ".lock" file used to serialize writers across
// processes.
func Open(path string, log logging.Interface) (*Store, error) {
	lockPath := path + ".lock"
	if err := ensureParentDir(lockPath); err != nil {
		return nil, calerr.Wrap(calerr.RegistryError, "registry.Open", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, calerr.Wrap(calerr.RegistryError, "registry.Open", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, calerr.Wrap(calerr.RegistryError, "registry.Open", err)
	}

	if log == nil {
		log = logging.Discard()
	}

	return &Store{db: db, lock: flock.New(lockPath), log: log}, nil
}

func ensureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// withLock acquires the cross-process exclusive lock for the duration of
// fn, the way every mutating registry operation must (spec.md §5).
func (s *Store) withLock(ctx context.Context, fn func(tx *sql.Tx) error) error {
	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return calerr.Wrap(calerr.RegistryError, "registry.withLock", err)
	}
	if !locked {
		return calerr.New(calerr.RegistryError, "registry.withLock", "timed out waiting for registry lock", nil)
	}
	defer s.lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return calerr.Wrap(calerr.RegistryError, "registry.withLock", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return calerr.Wrap(calerr.RegistryError, "registry.withLock", err)
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// GetOrCreateGroup returns the id of the experiment group named name,
// creating it if it does not already exist (spec.md §3's name-identity
// invariant for ExperimentGroup).
func (s *Store) GetOrCreateGroup(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.withLock(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT id FROM experiment_group WHERE name = ?`, name)
		if err := row.Scan(&id); err == nil {
			return nil
		} else if err != sql.ErrNoRows {
			return err
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO experiment_group(name, created_at) VALUES (?, ?)`, name, now())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, wrapRegistryErr("registry.GetOrCreateGroup", err)
	}
	return id, nil
}

// GetOrCreateContainer returns the id of the container row for imageRef,
// creating it if absent. Identity is imageRef alone (spec.md §3: "Two
// invocations that produce the same image reference reuse the existing
// Container row"), so the same image built under two different groups is
// recognized as one Container rather than duplicated; groupID is recorded
// only as the group that first created the row.
func (s *Store) GetOrCreateContainer(ctx context.Context, groupID int64, imageRef, mode, buildContextPath string, extraDirs []string, recipeHash string) (int64, bool, error) {
	extraDirsJSON, err := json.Marshal(extraDirs)
	if err != nil {
		return 0, false, calerr.Wrap(calerr.RegistryError, "registry.GetOrCreateContainer", err)
	}

	var id int64
	created := false
	txErr := s.withLock(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT id FROM container WHERE image_ref = ?`, imageRef)
		if err := row.Scan(&id); err == nil {
			return nil
		} else if err != sql.ErrNoRows {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO container(group_id, image_ref, mode, build_context_path, extra_dirs_json, recipe_hash, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			groupID, imageRef, mode, buildContextPath, string(extraDirsJSON), recipeHash, now())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		created = true
		return err
	})
	if txErr != nil {
		return 0, false, wrapRegistryErr("registry.GetOrCreateContainer", txErr)
	}
	return id, created, nil
}

// GetOrCreateExperiment returns the id of the experiment row identified by
// (groupID, containerID, moduleSpec, args) — spec.md §3's Experiment
// identity invariant — inserting a new row with position ordinal when no
// matching row exists yet. Re-submitting an identical tuple under the same
// group and container reuses the existing row rather than creating a
// sibling, matching the "Submitting the same experiment twice creates two
// Jobs referencing one Experiment" round-trip law in spec.md §8.
func (s *Store) GetOrCreateExperiment(ctx context.Context, groupID, containerID int64, moduleSpec string, args []string, ordinal int) (int64, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return 0, calerr.Wrap(calerr.RegistryError, "registry.GetOrCreateExperiment", err)
	}

	var id int64
	txErr := s.withLock(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT id FROM experiment WHERE group_id = ? AND container_id = ? AND module_spec = ? AND args_json = ?`,
			groupID, containerID, moduleSpec, string(argsJSON))
		if err := row.Scan(&id); err == nil {
			return nil
		} else if err != sql.ErrNoRows {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO experiment(group_id, container_id, module_spec, args_json, ordinal, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			groupID, containerID, moduleSpec, string(argsJSON), ordinal, now())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if txErr != nil {
		return 0, wrapRegistryErr("registry.GetOrCreateExperiment", txErr)
	}
	return id, nil
}

// CreateJob inserts a new job row for experimentID against backend,
// recording the backend's own job identifier and an initial status, which
// must be SUBMITTED in ordinary operation.
func (s *Store) CreateJob(ctx context.Context, experimentID int64, backend, backendJobID string, status JobStatus) (int64, error) {
	var id int64
	err := s.withLock(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO job(experiment_id, backend, backend_job_id, status, created_at) VALUES (?, ?, ?, ?, ?)`,
			experimentID, backend, backendJobID, string(status), now())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO job_status_history(job_id, status, detail, occurred_at) VALUES (?, ?, ?, ?)`,
			id, string(status), "job created", now())
		return err
	})
	if err != nil {
		return 0, wrapRegistryErr("registry.CreateJob", err)
	}
	return id, nil
}

// UpdateJobStatus appends a new entry to jobID's status history and
// updates its current status column, rejecting any transition that
// CanTransition disallows (spec.md §3's status-history invariant).
func (s *Store) UpdateJobStatus(ctx context.Context, jobID int64, to JobStatus, detail string) error {
	err := s.withLock(ctx, func(tx *sql.Tx) error {
		var from JobStatus
		row := tx.QueryRowContext(ctx, `SELECT status FROM job WHERE id = ?`, jobID)
		if err := row.Scan(&from); err != nil {
			return err
		}
		if !CanTransition(from, to) {
			return calerr.New(calerr.RegistryError, "registry.UpdateJobStatus",
				fmt.Sprintf("illegal transition %s -> %s for job %d", from, to, jobID), nil)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE job SET status = ? WHERE id = ?`, string(to), jobID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO job_status_history(job_id, status, detail, occurred_at) VALUES (?, ?, ?, ?)`,
			jobID, string(to), detail, now())
		return err
	})
	if err != nil {
		return wrapRegistryErr("registry.UpdateJobStatus", err)
	}
	return nil
}

// JobRecord is a denormalized, read-only projection of a job joined with
// its owning experiment, container, and group — the shape StatusService
// reports to the CLI layer.
type JobRecord struct {
	JobID         int64
	GroupName     string
	ContainerID   int64
	ImageRef      string
	ExperimentID  int64
	Args          []string
	Ordinal       int
	Backend       string
	BackendJobID  string
	Status        JobStatus
	CreatedAt     string
}

const jobRecordSelect = `
SELECT j.id, g.name, c.id, c.image_ref, e.id, e.args_json, e.ordinal, j.backend, j.backend_job_id, j.status, j.created_at
FROM job j
JOIN experiment e ON e.id = j.experiment_id
JOIN container c ON c.id = e.container_id
JOIN experiment_group g ON g.id = e.group_id
`

func scanJobRecord(rows *sql.Rows) (JobRecord, error) {
	var rec JobRecord
	var argsJSON string
	if err := rows.Scan(&rec.JobID, &rec.GroupName, &rec.ContainerID, &rec.ImageRef, &rec.ExperimentID,
		&argsJSON, &rec.Ordinal, &rec.Backend, &rec.BackendJobID, &rec.Status, &rec.CreatedAt); err != nil {
		return JobRecord{}, err
	}
	if err := json.Unmarshal([]byte(argsJSON), &rec.Args); err != nil {
		return JobRecord{}, err
	}
	return rec, nil
}

// ListRecent returns the n most recently created jobs across all groups,
// most recent first.
func (s *Store) ListRecent(ctx context.Context, n int) ([]JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, jobRecordSelect+` ORDER BY j.id DESC LIMIT ?`, n)
	if err != nil {
		return nil, calerr.Wrap(calerr.RegistryError, "registry.ListRecent", err)
	}
	defer rows.Close()
	return scanJobRecords(rows)
}

// ListGroup returns every job belonging to group name, ordered by
// experiment id and, within each experiment, most recent job first,
// capped at maxPerExperiment per distinct experiment when maxPerExperiment
// is positive (spec.md §6's "group(name, max_per_experiment)" operation).
func (s *Store) ListGroup(ctx context.Context, name string, maxPerExperiment int) ([]JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, jobRecordSelect+` WHERE g.name = ? ORDER BY e.id ASC, j.id DESC`, name)
	if err != nil {
		return nil, calerr.Wrap(calerr.RegistryError, "registry.ListGroup", err)
	}
	defer rows.Close()

	all, err := scanJobRecords(rows)
	if err != nil {
		return nil, calerr.Wrap(calerr.RegistryError, "registry.ListGroup", err)
	}
	if maxPerExperiment <= 0 {
		return all, nil
	}

	perExperiment := map[int64]int{}
	out := make([]JobRecord, 0, len(all))
	for _, rec := range all {
		if perExperiment[rec.ExperimentID] >= maxPerExperiment {
			continue
		}
		perExperiment[rec.ExperimentID]++
		out = append(out, rec)
	}
	return out, nil
}

func scanJobRecords(rows *sql.Rows) ([]JobRecord, error) {
	var out []JobRecord
	for rows.Next() {
		rec, err := scanJobRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func wrapRegistryErr(op string, err error) error {
	if _, ok := calerr.KindOf(err); ok {
		return err
	}
	return calerr.Wrap(calerr.RegistryError, op, err)
}
