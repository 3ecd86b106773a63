// Package registry persists the relational record of experiment groups,
// containers, experiments, and jobs spec.md §3 describes, in a single
// sqlite file guarded by a cross-process advisory lock so that concurrent
// invocations of the CLI never interleave writes (spec.md §5).
package registry

const schemaSQL = `
CREATE TABLE IF NOT EXISTS experiment_group (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS container (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id           INTEGER NOT NULL REFERENCES experiment_group(id),
	image_ref          TEXT NOT NULL UNIQUE,
	mode               TEXT NOT NULL DEFAULT '',
	build_context_path TEXT NOT NULL DEFAULT '',
	extra_dirs_json    TEXT NOT NULL DEFAULT '[]',
	recipe_hash        TEXT NOT NULL,
	created_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS experiment (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id     INTEGER NOT NULL REFERENCES experiment_group(id),
	container_id INTEGER NOT NULL REFERENCES container(id),
	module_spec  TEXT NOT NULL DEFAULT '',
	args_json    TEXT NOT NULL,
	ordinal      INTEGER NOT NULL,
	created_at   TEXT NOT NULL,
	UNIQUE(group_id, container_id, module_spec, args_json)
);

CREATE TABLE IF NOT EXISTS job (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	experiment_id INTEGER NOT NULL REFERENCES experiment(id),
	backend       TEXT NOT NULL,
	backend_job_id TEXT NOT NULL,
	status        TEXT NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS job_status_history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id     INTEGER NOT NULL REFERENCES job(id),
	status     TEXT NOT NULL,
	detail     TEXT NOT NULL,
	occurred_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_container_group ON container(group_id);
CREATE INDEX IF NOT EXISTS idx_experiment_group ON experiment(group_id);
CREATE INDEX IF NOT EXISTS idx_experiment_container ON experiment(container_id);
CREATE INDEX IF NOT EXISTS idx_job_experiment ON job(experiment_id);
CREATE INDEX IF NOT EXISTS idx_job_status_history_job ON job_status_history(job_id);
`
