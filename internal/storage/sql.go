package storage

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    start_time    TIMESTAMP NOT NULL,
    sensor_source TEXT NOT NULL,
    config        TEXT
);

CREATE TABLE IF NOT EXISTS samples (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id    INTEGER NOT NULL REFERENCES sessions (id),
    timestamp     TIMESTAMP NOT NULL,
    actual_angle  REAL NOT NULL,
    target_angle  REAL NOT NULL,
    pid_error     REAL NOT NULL,
    p_term        REAL NOT NULL,
    i_term        REAL NOT NULL,
    d_term        REAL NOT NULL,
    pid_output    REAL NOT NULL,
    motor_percent REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_session ON samples (session_id, timestamp);
`

const (
	insertSessionSQL = `
INSERT INTO sessions (start_time, sensor_source, config)
VALUES (CURRENT_TIMESTAMP, ?, ?)`

	insertSampleSQL = `
INSERT INTO samples (session_id,
                     timestamp,
                     actual_angle,
                     target_angle,
                     pid_error,
                     p_term,
                     i_term,
                     d_term,
                     pid_output,
                     motor_percent)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectSamplesSQL = `
SELECT timestamp,
       actual_angle,
       target_angle,
       pid_error,
       p_term,
       i_term,
       d_term,
       pid_output,
       motor_percent
FROM samples
WHERE session_id = ?
ORDER BY id`
)
