// Package persistence provides SQLite storage for the town journal and
// agent memories, and a Firestore vector index for memories.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"

	"github.com/talgya/mini-town/internal/agents"
	"github.com/talgya/mini-town/internal/engine"
)

// ErrNoMeta is returned by GetMeta for a missing key.
var ErrNoMeta = errors.New("meta key not found")

// DB wraps a SQLite connection for town persistence.
type DB struct {
	conn *sqlx.DB
}

var _ engine.Journal = (*DB)(nil)

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open db", goerr.V("path", path))
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, goerr.Wrap(err, "failed to migrate db", goerr.V("path", path))
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		home TEXT NOT NULL,
		location TEXT NOT NULL,
		phase TEXT NOT NULL,
		action TEXT NOT NULL,
		state_json TEXT NOT NULL,
		relationships_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sim_time TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS memories (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB,
		metadata_json TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_events_agent ON events(agent_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type agentRow struct {
	ID                string `db:"id"`
	Name              string `db:"name"`
	Home              string `db:"home"`
	Location          string `db:"location"`
	Phase             string `db:"phase"`
	Action            string `db:"action"`
	StateJSON         string `db:"state_json"`
	RelationshipsJSON string `db:"relationships_json"`
}

// SaveAgents writes all agent snapshots (full replace).
func (db *DB) SaveAgents(ctx context.Context, views []agents.View) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM agents"); err != nil {
		return goerr.Wrap(err, "failed to clear agents")
	}

	for _, v := range views {
		stateJSON, err := json.Marshal(v.State)
		if err != nil {
			return goerr.Wrap(err, "failed to encode state", goerr.V("id", v.ID))
		}
		relJSON, err := json.Marshal(v.Relationships)
		if err != nil {
			return goerr.Wrap(err, "failed to encode relationships", goerr.V("id", v.ID))
		}
		row := agentRow{
			ID:                v.ID,
			Name:              v.Name,
			Home:              v.Home,
			Location:          v.Location,
			Phase:             v.Phase,
			Action:            v.Action,
			StateJSON:         string(stateJSON),
			RelationshipsJSON: string(relJSON),
		}
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO agents
			(id, name, home, location, phase, action, state_json, relationships_json)
			VALUES (:id, :name, :home, :location, :phase, :action, :state_json, :relationships_json)`, row); err != nil {
			return goerr.Wrap(err, "failed to insert agent", goerr.V("id", v.ID))
		}
	}

	return tx.Commit()
}

// LoadAgents returns the saved agent snapshots ordered by id. Actions in
// progress are not restored.
func (db *DB) LoadAgents(ctx context.Context) ([]agents.View, error) {
	var rows []agentRow
	if err := db.conn.SelectContext(ctx, &rows, "SELECT * FROM agents ORDER BY id"); err != nil {
		return nil, goerr.Wrap(err, "failed to load agents")
	}
	views := make([]agents.View, 0, len(rows))
	for _, r := range rows {
		v := agents.View{ID: r.ID, Name: r.Name, Home: r.Home, Location: r.Location, Phase: r.Phase}
		if err := json.Unmarshal([]byte(r.StateJSON), &v.State); err != nil {
			slog.Warn("skipping agent with unreadable state", "id", r.ID, "error", err)
			continue
		}
		if err := json.Unmarshal([]byte(r.RelationshipsJSON), &v.Relationships); err != nil {
			slog.Warn("skipping agent with unreadable relationships", "id", r.ID, "error", err)
			continue
		}
		views = append(views, v)
	}
	return views, nil
}

type eventRow struct {
	SimTime     string `db:"sim_time"`
	AgentID     string `db:"agent_id"`
	Category    string `db:"category"`
	Description string `db:"description"`
}

// SaveEvents appends events to the journal.
func (db *DB) SaveEvents(ctx context.Context, events []engine.Entry) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin tx")
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO events (sim_time, agent_id, category, description) VALUES (?, ?, ?, ?)",
			e.Time.UTC().Format(time.RFC3339), e.AgentID, e.Category, e.Description,
		)
		if err != nil {
			return goerr.Wrap(err, "failed to insert event", goerr.V("category", e.Category))
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent limit events, newest first. An empty
// agentID matches every agent.
func (db *DB) RecentEvents(ctx context.Context, agentID string, limit int) ([]engine.Entry, error) {
	var rows []eventRow
	q := "SELECT sim_time, agent_id, category, description FROM events"
	args := []any{}
	if agentID != "" {
		q += " WHERE agent_id = ?"
		args = append(args, agentID)
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	if err := db.conn.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, goerr.Wrap(err, "failed to query events")
	}
	out := make([]engine.Entry, 0, len(rows))
	for _, r := range rows {
		ts, err := time.Parse(time.RFC3339, r.SimTime)
		if err != nil {
			slog.Warn("skipping event with bad time", "time", r.SimTime, "error", err)
			continue
		}
		out = append(out, engine.Entry{Time: ts, AgentID: r.AgentID, Category: r.Category, Description: r.Description})
	}
	return out, nil
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	if err != nil {
		return goerr.Wrap(err, "failed to save meta", goerr.V("key", key))
	}
	return nil
}

// GetMeta retrieves a metadata value. A missing key returns ErrNoMeta.
func (db *DB) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.GetContext(ctx, &value, "SELECT value FROM world_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", goerr.Wrap(ErrNoMeta, "no such meta key", goerr.V("key", key))
	}
	if err != nil {
		return "", goerr.Wrap(err, "failed to get meta", goerr.V("key", key))
	}
	return value, nil
}

// SavedTime returns the simulated time of the last save, if any.
func (db *DB) SavedTime(ctx context.Context) (time.Time, bool, error) {
	v, err := db.GetMeta(ctx, engine.MetaSimTime)
	if errors.Is(err, ErrNoMeta) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, goerr.Wrap(err, "saved time is malformed", goerr.V("value", v))
	}
	return t, true, nil
}
