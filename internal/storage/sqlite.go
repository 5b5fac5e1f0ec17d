package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"planbot/internal/schedule"
	logx "planbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

func openSQLite(cfg Config, log logx.Logger) (*Stores, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Debug("sqlite storage opened", logx.String("path", cfg.Path))
	return &Stores{
		Conversations: &sqliteConversations{db: db},
		Events:        &sqliteEvents{db: db},
		Groups:        &sqliteGroups{db: db},
		Settings:      &sqliteSettings{db: db, def: cfg.DefaultOffsetMinutes},
		closer:        db.Close,
	}, nil
}

func migrate(db *sql.DB) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}

// ---- conversations ----

type sqliteConversations struct{ db *sql.DB }

func (s *sqliteConversations) Get(ctx context.Context, userID int64, scenarioID string) (*ConversationState, error) {
	var (
		blockID string
		state   sql.NullString
		shared  sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT block_id, block_state, shared FROM conversations WHERE user_id = ? AND scenario_id = ?`,
		userID, scenarioID,
	).Scan(&blockID, &state, &shared)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	st := &ConversationState{UserID: userID, ScenarioID: scenarioID, BlockID: blockID}
	if state.Valid && state.String != "" {
		st.BlockState = json.RawMessage(state.String)
	}
	if shared.Valid && shared.String != "" {
		if err := json.Unmarshal([]byte(shared.String), &st.Shared); err != nil {
			return nil, fmt.Errorf("decode shared context: %w", err)
		}
	}
	return st, nil
}

func (s *sqliteConversations) Put(ctx context.Context, st *ConversationState) error {
	sharedJSON := "{}"
	if len(st.Shared) > 0 {
		b, err := json.Marshal(st.Shared)
		if err != nil {
			return err
		}
		sharedJSON = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations(user_id, scenario_id, block_id, block_state, shared) VALUES(?,?,?,?,?)
		 ON CONFLICT(user_id, scenario_id) DO UPDATE SET
		   block_id=excluded.block_id, block_state=excluded.block_state, shared=excluded.shared`,
		st.UserID, st.ScenarioID, st.BlockID, string(st.BlockState), sharedJSON,
	)
	return err
}

func (s *sqliteConversations) Delete(ctx context.Context, userID int64, scenarioID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE user_id = ? AND scenario_id = ?`, userID, scenarioID)
	return err
}

// ---- events ----

type sqliteEvents struct{ db *sql.DB }

func decodeEvent(id int64, raw string) (*schedule.EventDefinition, error) {
	var def schedule.EventDefinition
	if err := json.Unmarshal([]byte(raw), &def); err != nil {
		return nil, fmt.Errorf("decode event %d: %w", id, err)
	}
	def.ID = id
	return &def, nil
}

func (s *sqliteEvents) list(ctx context.Context, query string, args ...any) ([]*schedule.EventDefinition, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*schedule.EventDefinition
	for rows.Next() {
		var (
			id  int64
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		def, err := decodeEvent(id, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

func (s *sqliteEvents) ListAll(ctx context.Context) ([]*schedule.EventDefinition, error) {
	return s.list(ctx, `SELECT id, def FROM events ORDER BY id`)
}

func (s *sqliteEvents) ListByGroup(ctx context.Context, groupKey string) ([]*schedule.EventDefinition, error) {
	return s.list(ctx, `SELECT id, def FROM events WHERE group_key = ? ORDER BY id`, groupKey)
}

func (s *sqliteEvents) Get(ctx context.Context, id int64) (*schedule.EventDefinition, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT def FROM events WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeEvent(id, raw)
}

func (s *sqliteEvents) Create(ctx context.Context, def *schedule.EventDefinition) (*schedule.EventDefinition, error) {
	b, err := json.Marshal(def)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events(group_key, def) VALUES(?,?)`, def.GroupKey, string(b))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	def.ID = id
	// Re-store with the assigned id embedded so the blob is self-contained.
	if _, err := s.Update(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

func (s *sqliteEvents) Update(ctx context.Context, def *schedule.EventDefinition) (bool, error) {
	b, err := json.Marshal(def)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET group_key = ?, def = ? WHERE id = ?`, def.GroupKey, string(b), def.ID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteEvents) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ---- groups ----

type sqliteGroups struct{ db *sql.DB }

func newGroupKey() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func scanGroup(key, name string, creatorID int64, membersJSON string) (*schedule.Group, error) {
	g := &schedule.Group{Key: key, Name: name, CreatorID: creatorID}
	if err := json.Unmarshal([]byte(membersJSON), &g.Members); err != nil {
		return nil, fmt.Errorf("decode group %s members: %w", key, err)
	}
	return g, nil
}

func (s *sqliteGroups) ByKey(ctx context.Context, key string) (*schedule.Group, error) {
	var (
		name      string
		creatorID int64
		members   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, creator_id, members FROM groups WHERE key = ?`, key,
	).Scan(&name, &creatorID, &members)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return scanGroup(key, name, creatorID, members)
}

func (s *sqliteGroups) listAll(ctx context.Context) ([]*schedule.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, name, creator_id, members FROM groups ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*schedule.Group
	for rows.Next() {
		var (
			key, name, members string
			creatorID          int64
		)
		if err := rows.Scan(&key, &name, &creatorID, &members); err != nil {
			return nil, err
		}
		g, err := scanGroup(key, name, creatorID, members)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Membership lives inside a JSON column, so member queries scan all groups.
// Group counts are small; revisit if that stops being true.
func (s *sqliteGroups) ByMember(ctx context.Context, userID int64) ([]*schedule.Group, error) {
	all, err := s.listAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*schedule.Group
	for _, g := range all {
		if g.HasMember(userID) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *sqliteGroups) CreatedBy(ctx context.Context, userID int64) ([]*schedule.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, name, creator_id, members FROM groups WHERE creator_id = ? ORDER BY key`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*schedule.Group
	for rows.Next() {
		var (
			key, name, members string
			creatorID          int64
		)
		if err := rows.Scan(&key, &name, &creatorID, &members); err != nil {
			return nil, err
		}
		g, err := scanGroup(key, name, creatorID, members)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *sqliteGroups) Create(ctx context.Context, name string, creatorID int64) (*schedule.Group, error) {
	g := &schedule.Group{Key: newGroupKey(), Name: name, CreatorID: creatorID, Members: []int64{creatorID}}
	members, err := json.Marshal(g.Members)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO groups(key, name, creator_id, members) VALUES(?,?,?,?)`,
		g.Key, g.Name, g.CreatorID, string(members))
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *sqliteGroups) Join(ctx context.Context, userID int64, key string) (*schedule.Group, error) {
	g, err := s.ByKey(ctx, key)
	if err != nil || g == nil {
		return g, err
	}
	if g.HasMember(userID) {
		return g, nil
	}
	g.Members = append(g.Members, userID)
	members, err := json.Marshal(g.Members)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE groups SET members = ? WHERE key = ?`, string(members), key)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *sqliteGroups) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE key = ?`, key)
	if err != nil {
		return false, err
	}
	// Users pointing at the deleted group fall back to "no group selected".
	_, _ = s.db.ExecContext(ctx, `DELETE FROM current_groups WHERE group_key = ?`, key)
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteGroups) CurrentGroup(ctx context.Context, userID int64) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx,
		`SELECT group_key FROM current_groups WHERE user_id = ?`, userID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return key, err
}

func (s *sqliteGroups) SetCurrentGroup(ctx context.Context, userID int64, key string) error {
	if key == "" {
		_, err := s.db.ExecContext(ctx, `DELETE FROM current_groups WHERE user_id = ?`, userID)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO current_groups(user_id, group_key) VALUES(?,?)
		 ON CONFLICT(user_id) DO UPDATE SET group_key=excluded.group_key`,
		userID, key)
	return err
}

// ---- settings ----

type sqliteSettings struct {
	db  *sql.DB
	def int
}

func (s *sqliteSettings) OffsetFor(ctx context.Context, userID int64) (int, error) {
	var minutes int
	err := s.db.QueryRowContext(ctx,
		`SELECT minutes FROM offsets WHERE user_id = ?`, userID).Scan(&minutes)
	if errors.Is(err, sql.ErrNoRows) {
		return s.def, nil
	}
	return minutes, err
}

func (s *sqliteSettings) SetOffset(ctx context.Context, userID int64, minutes int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO offsets(user_id, minutes) VALUES(?,?)
		 ON CONFLICT(user_id) DO UPDATE SET minutes=excluded.minutes`,
		userID, minutes)
	return err
}
