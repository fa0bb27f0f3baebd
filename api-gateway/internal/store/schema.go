package store

const postgresSchema = `
CREATE TABLE IF NOT EXISTS items (
	item_id             VARCHAR(5) PRIMARY KEY,
	owner_id            BIGINT NOT NULL,
	owner_username      TEXT NOT NULL DEFAULT '',
	owner_name          TEXT NOT NULL DEFAULT '',
	kind                VARCHAR(16) NOT NULL,
	display_name        TEXT NOT NULL DEFAULT '',
	payload             TEXT NOT NULL DEFAULT '',
	base_price          BIGINT NOT NULL CHECK (base_price > 0),
	status              VARCHAR(16) NOT NULL DEFAULT 'pending',
	submission_time     TIMESTAMPTZ NOT NULL,
	approval_time       TIMESTAMPTZ,
	highest_bid         BIGINT,
	highest_bidder_id   BIGINT,
	highest_bidder_name TEXT NOT NULL DEFAULT '',
	admin_message_id    BIGINT,
	channel_message_id  BIGINT,
	bidding_message_id  BIGINT
);

CREATE TABLE IF NOT EXISTS bids (
	bid_id          VARCHAR(26) PRIMARY KEY,
	item_id         VARCHAR(5) NOT NULL,
	user_id         BIGINT NOT NULL,
	username        TEXT NOT NULL DEFAULT '',
	first_name      TEXT NOT NULL DEFAULT '',
	amount          BIGINT NOT NULL,
	bid_time        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	user_id           BIGINT PRIMARY KEY,
	username          TEXT NOT NULL DEFAULT '',
	first_name        TEXT NOT NULL DEFAULT '',
	last_seen         TIMESTAMPTZ NOT NULL,
	is_banned         BOOLEAN NOT NULL DEFAULT FALSE,
	ban_reason        TEXT NOT NULL DEFAULT '',
	submissions_count INTEGER NOT NULL DEFAULT 0,
	approved_count    INTEGER NOT NULL DEFAULT 0,
	rejected_count    INTEGER NOT NULL DEFAULT 0,
	bids_count        INTEGER NOT NULL DEFAULT 0,
	wins_count        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS auction_phase (
	id               INTEGER PRIMARY KEY CHECK (id = 1),
	submissions_open BOOLEAN NOT NULL DEFAULT FALSE,
	bidding_open     BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);
CREATE INDEX IF NOT EXISTS idx_items_owner ON items(owner_id);
CREATE INDEX IF NOT EXISTS idx_bids_item_id ON bids(item_id);
CREATE INDEX IF NOT EXISTS idx_bids_user_id ON bids(user_id);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS items (
	item_id             TEXT PRIMARY KEY,
	owner_id            INTEGER NOT NULL,
	owner_username      TEXT NOT NULL DEFAULT '',
	owner_name          TEXT NOT NULL DEFAULT '',
	kind                TEXT NOT NULL,
	display_name        TEXT NOT NULL DEFAULT '',
	payload             TEXT NOT NULL DEFAULT '',
	base_price          INTEGER NOT NULL CHECK (base_price > 0),
	status              TEXT NOT NULL DEFAULT 'pending',
	submission_time     DATETIME NOT NULL,
	approval_time       DATETIME,
	highest_bid         INTEGER,
	highest_bidder_id   INTEGER,
	highest_bidder_name TEXT NOT NULL DEFAULT '',
	admin_message_id    INTEGER,
	channel_message_id  INTEGER,
	bidding_message_id  INTEGER
);

CREATE TABLE IF NOT EXISTS bids (
	bid_id     TEXT PRIMARY KEY,
	item_id    TEXT NOT NULL,
	user_id    INTEGER NOT NULL,
	username   TEXT NOT NULL DEFAULT '',
	first_name TEXT NOT NULL DEFAULT '',
	amount     INTEGER NOT NULL,
	bid_time   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	user_id           INTEGER PRIMARY KEY,
	username          TEXT NOT NULL DEFAULT '',
	first_name        TEXT NOT NULL DEFAULT '',
	last_seen         DATETIME NOT NULL,
	is_banned         BOOLEAN NOT NULL DEFAULT 0,
	ban_reason        TEXT NOT NULL DEFAULT '',
	submissions_count INTEGER NOT NULL DEFAULT 0,
	approved_count    INTEGER NOT NULL DEFAULT 0,
	rejected_count    INTEGER NOT NULL DEFAULT 0,
	bids_count        INTEGER NOT NULL DEFAULT 0,
	wins_count        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS auction_phase (
	id               INTEGER PRIMARY KEY CHECK (id = 1),
	submissions_open BOOLEAN NOT NULL DEFAULT 0,
	bidding_open     BOOLEAN NOT NULL DEFAULT 0,
	updated_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);
CREATE INDEX IF NOT EXISTS idx_items_owner ON items(owner_id);
CREATE INDEX IF NOT EXISTS idx_bids_item_id ON bids(item_id);
CREATE INDEX IF NOT EXISTS idx_bids_user_id ON bids(user_id);
`
