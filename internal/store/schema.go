package store

// Schema v1 - build history
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per pipeline build
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL,
  media TEXT NOT NULL,
  policy TEXT NOT NULL DEFAULT 'default',
  sort_by TEXT NOT NULL,
  currency TEXT,
  started_at DATETIME NOT NULL,
  finished_at DATETIME NOT NULL,
  state TEXT NOT NULL,
  message TEXT,
  scanned INTEGER DEFAULT 0,
  accepted INTEGER DEFAULT 0,
  excluded INTEGER DEFAULT 0,
  malformed INTEGER DEFAULT 0,
  prices_fetched INTEGER DEFAULT 0,
  prices_cached INTEGER DEFAULT 0,
  prices_skipped INTEGER DEFAULT 0,
  price_error TEXT,
  event_log TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_username ON runs(username);

-- Shelf rows of a run, in display order
CREATE TABLE IF NOT EXISTS run_rows (
  run_id TEXT REFERENCES runs(id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  release_id INTEGER,
  artist TEXT NOT NULL,
  title TEXT NOT NULL,
  year INTEGER,
  label TEXT,
  catno TEXT,
  country TEXT,
  format TEXT,
  url TEXT,
  notes TEXT,
  sort_artist TEXT,
  sort_title TEXT,
  lowest_price REAL,
  num_for_sale INTEGER,
  currency TEXT,
  PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_run_rows_release_id ON run_rows(release_id);

-- Releases rejected by the format classifier
CREATE TABLE IF NOT EXISTS exclusions (
  run_id TEXT REFERENCES runs(id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  release_id INTEGER,
  artist TEXT,
  title TEXT,
  year INTEGER,
  format TEXT,
  reason TEXT NOT NULL,
  PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_exclusions_reason ON exclusions(run_id, reason);
`
