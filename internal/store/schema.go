package store

// createSchema is executed against every freshly opened database handle;
// CREATE TABLE/INDEX IF NOT EXISTS make it safe to run on an existing file.
const createSchema = `
CREATE TABLE IF NOT EXISTS studies (
	study_id             TEXT PRIMARY KEY,
	study_name           TEXT UNIQUE NOT NULL,
	strategy_id          TEXT NOT NULL,
	strategy_version     TEXT,
	optimization_mode    TEXT NOT NULL,

	objectives_json      TEXT,
	directions_json      TEXT,
	primary_objective    TEXT,
	constraints_json     TEXT,

	sampler_type         TEXT,
	budget_mode          TEXT,

	total_trials         INTEGER DEFAULT 0,
	completed_trials     INTEGER DEFAULT 0,
	pruned_trials        INTEGER DEFAULT 0,
	pareto_front_size    INTEGER,
	best_objectives_json TEXT,

	score_config_json    TEXT,
	config_json          TEXT,

	csv_file_path        TEXT,
	csv_file_name        TEXT,
	dataset_start_date   TEXT,
	dataset_end_date     TEXT,
	warmup_bars          INTEGER,

	post_process_json    TEXT,

	stitched_net_profit_pct   REAL,
	stitched_max_drawdown_pct REAL,
	stitched_total_trades     INTEGER,
	oos_win_rate              REAL,
	wfe                       REAL,

	status               TEXT NOT NULL DEFAULT 'running',
	created_at           TEXT DEFAULT (datetime('now')),
	completed_at         TEXT
);

CREATE INDEX IF NOT EXISTS idx_studies_strategy ON studies(strategy_id);
CREATE INDEX IF NOT EXISTS idx_studies_created ON studies(created_at DESC);

CREATE TABLE IF NOT EXISTS trials (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	study_id               TEXT NOT NULL,
	trial_number           INTEGER NOT NULL,

	params_json            TEXT NOT NULL,
	objective_values_json  TEXT,
	constraint_values_json TEXT,
	constraints_satisfied  INTEGER DEFAULT 1,
	is_pareto_optimal      INTEGER DEFAULT 0,
	dominance_rank         INTEGER,
	failed                 INTEGER DEFAULT 0,
	failure_reason         TEXT,
	score                  REAL,

	net_profit_pct         REAL,
	max_drawdown_pct       REAL,
	total_trades           INTEGER,
	win_rate               REAL,
	sharpe_ratio           REAL,
	sortino_ratio          REAL,
	profit_factor          REAL,
	profit_factor_inf      INTEGER DEFAULT 0,
	romad                  REAL,
	ulcer_index            REAL,
	sqn                    REAL,
	consistency_score      REAL,
	recovery_factor        REAL,

	ft_net_profit_pct      REAL,
	ft_max_drawdown_pct    REAL,
	ft_total_trades        INTEGER,
	profit_degradation     REAL,
	ft_rank                INTEGER,

	dsr_probability        REAL,
	dsr_rank               INTEGER,

	st_status              TEXT,
	st_failure_rate        REAL,

	oos_status             TEXT,

	created_at             TEXT DEFAULT (datetime('now')),

	UNIQUE(study_id, trial_number),
	FOREIGN KEY (study_id) REFERENCES studies(study_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_trials_study ON trials(study_id);
CREATE INDEX IF NOT EXISTS idx_trials_pareto ON trials(study_id, is_pareto_optimal);
CREATE INDEX IF NOT EXISTS idx_trials_constraints ON trials(study_id, constraints_satisfied);

CREATE TABLE IF NOT EXISTS wfa_windows (
	window_id            TEXT PRIMARY KEY,
	study_id             TEXT NOT NULL,
	window_number        INTEGER NOT NULL,

	best_params_json     TEXT NOT NULL,
	best_param_id        TEXT,
	best_params_source    TEXT,
	selection_chain_json  TEXT,

	is_start             INTEGER,
	is_end               INTEGER,
	oos_start            INTEGER,
	oos_end              INTEGER,

	is_net_profit_pct    REAL,
	is_max_drawdown_pct  REAL,
	is_total_trades      INTEGER,
	oos_net_profit_pct   REAL,
	oos_max_drawdown_pct REAL,
	oos_total_trades     INTEGER,
	oos_equity_curve_json TEXT,
	oos_timestamps_json   TEXT,
	window_wfe           REAL,

	adaptive_trigger      TEXT,
	adaptive_cusum_final  REAL,
	adaptive_actual_oos_days REAL,

	module_status_json   TEXT,

	created_at           TEXT DEFAULT (datetime('now')),

	UNIQUE(study_id, window_number),
	FOREIGN KEY (study_id) REFERENCES studies(study_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_wfa_windows_study ON wfa_windows(study_id);
CREATE INDEX IF NOT EXISTS idx_wfa_windows_number ON wfa_windows(study_id, window_number);

CREATE TABLE IF NOT EXISTS wfa_window_trials (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	study_id              TEXT NOT NULL,
	window_number         INTEGER NOT NULL,
	module                TEXT NOT NULL,
	trial_number          INTEGER NOT NULL,
	params_json           TEXT NOT NULL,
	objective_values_json TEXT,
	score                 REAL,

	FOREIGN KEY (study_id) REFERENCES studies(study_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_wfa_window_trials_window ON wfa_window_trials(study_id, window_number, module);

CREATE TABLE IF NOT EXISTS manual_tests (
	id               TEXT PRIMARY KEY,
	study_id         TEXT NOT NULL,
	created_at       TEXT DEFAULT (datetime('now')),

	test_name        TEXT,
	csv_path         TEXT,
	start_date       TEXT NOT NULL,
	end_date         TEXT NOT NULL,

	trials_count     INTEGER NOT NULL,
	results_json     TEXT NOT NULL,

	FOREIGN KEY (study_id) REFERENCES studies(study_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_manual_tests_study ON manual_tests(study_id);
CREATE INDEX IF NOT EXISTS idx_manual_tests_created ON manual_tests(created_at DESC);

CREATE TABLE IF NOT EXISTS study_sets (
	set_id       TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	study_ids_json TEXT NOT NULL,
	sort_order   INTEGER DEFAULT 0,
	created_at   TEXT DEFAULT (datetime('now')),
	updated_at   TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_study_sets_order ON study_sets(sort_order);
`

// additiveColumns lists every column added to the schema after its owning
// table's initial release. ensureColumns (migrate.go) gates each one behind
// a PRAGMA table_info check so opening an old database file is idempotent
// and forward-only, never destructive.
var additiveColumns = []columnDef{
	{table: "studies", column: "wfe", definition: "REAL"},
	{table: "studies", column: "oos_win_rate", definition: "REAL"},
	{table: "trials", column: "recovery_factor", definition: "REAL"},
	{table: "trials", column: "st_status", definition: "TEXT"},
	{table: "trials", column: "oos_status", definition: "TEXT"},
}
