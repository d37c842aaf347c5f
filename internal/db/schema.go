package db

// Schema creates the sqlite tables. Vectors are little-endian float64 BLOBs
// compared with vec_cosine_distance; the integer primary key doubles as
// insertion order for tie-breaks.
var Schema string = `
CREATE TABLE IF NOT EXISTS fragments
(
    id   INTEGER PRIMARY KEY,
    uid  TEXT NOT NULL UNIQUE,

    source_id TEXT,
    content   TEXT NOT NULL CHECK (content <> ''),

    embedding_model  TEXT NOT NULL,
    embedding_vector BLOB NOT NULL,

    created_at INTEGER DEFAULT (strftime('%s', 'now'))
);

CREATE INDEX IF NOT EXISTS fragments_source_id ON fragments (source_id);

CREATE TABLE IF NOT EXISTS response_cache
(
    id   INTEGER PRIMARY KEY,
    uid  TEXT NOT NULL UNIQUE,

    query    TEXT NOT NULL,
    response TEXT NOT NULL,
    context  TEXT,

    embedding_model  TEXT NOT NULL,
    embedding_vector BLOB NOT NULL,

    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS response_cache_created_at ON response_cache (created_at);
`
