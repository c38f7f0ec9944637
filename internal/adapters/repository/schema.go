package repository

// Times are stored as unix milliseconds so range predicates compare integers.
const schema = `
CREATE TABLE IF NOT EXISTS listings (
    id             TEXT PRIMARY KEY,
    title          TEXT NOT NULL DEFAULT '',
    tagline        TEXT NOT NULL DEFAULT '',
    verified       INTEGER NOT NULL DEFAULT 0,
    sale_stage     TEXT NOT NULL DEFAULT 'NONE',
    created_at_ms  INTEGER NOT NULL,
    launch_date_ms INTEGER
);

CREATE TABLE IF NOT EXISTS engagement_events (
    id            TEXT PRIMARY KEY,
    item_id       TEXT NOT NULL,
    user_id       TEXT NOT NULL DEFAULT '',
    kind          TEXT NOT NULL,
    outcome       TEXT NOT NULL DEFAULT '',
    created_at_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_created ON engagement_events(created_at_ms);
CREATE INDEX IF NOT EXISTS idx_events_item_created ON engagement_events(item_id, created_at_ms);

CREATE TABLE IF NOT EXISTS trending_snapshots (
    item_id              TEXT NOT NULL,
    period               TEXT NOT NULL,
    score                REAL NOT NULL,
    upvote_score         REAL NOT NULL,
    comment_score        REAL NOT NULL,
    guess_score          REAL NOT NULL,
    intro_request_score  REAL NOT NULL,
    intro_accepted_bonus REAL NOT NULL,
    status_multiplier    REAL NOT NULL,
    calculated_at_ms     INTEGER NOT NULL,
    PRIMARY KEY (item_id, period)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_period_score ON trending_snapshots(period, score DESC);

CREATE TABLE IF NOT EXISTS recalculation_locks (
    name          TEXT PRIMARY KEY,
    owner         TEXT NOT NULL,
    expires_at_ms INTEGER NOT NULL
);
`
