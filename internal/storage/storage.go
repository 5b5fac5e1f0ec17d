// Package storage provides the persistence layer: conversation state rows,
// event definitions, groups, and per-user notification settings.
//
// Backends:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process maps, used by tests
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"planbot/internal/schedule"
	logx "planbot/pkg/logx"
)

var ErrUnknownDriver = errors.New("unknown storage driver")

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// DefaultOffsetMinutes applies when a user never configured a reminder
	// offset. Reference default: 10 minutes.
	DefaultOffsetMinutes int
}

// ConversationState is one persisted dialog position, keyed by
// (UserID, ScenarioID). BlockState and Shared are opaque JSON owned by the
// block that produced them; the engine never interprets their contents.
type ConversationState struct {
	UserID     int64
	ScenarioID string
	BlockID    string
	BlockState json.RawMessage
	Shared     map[string]string
}

// ConversationStore persists dialog positions.
// Get returns (nil, nil) when no conversation is active.
type ConversationStore interface {
	Get(ctx context.Context, userID int64, scenarioID string) (*ConversationState, error)
	Put(ctx context.Context, st *ConversationState) error
	Delete(ctx context.Context, userID int64, scenarioID string) error
}

// EventStore persists event definitions, including their reminder ledgers.
// Get returns (nil, nil) when the id is unknown.
type EventStore interface {
	ListAll(ctx context.Context) ([]*schedule.EventDefinition, error)
	ListByGroup(ctx context.Context, groupKey string) ([]*schedule.EventDefinition, error)
	Get(ctx context.Context, id int64) (*schedule.EventDefinition, error)
	Create(ctx context.Context, def *schedule.EventDefinition) (*schedule.EventDefinition, error)
	Update(ctx context.Context, def *schedule.EventDefinition) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// GroupStore persists groups and each user's currently selected group.
// ByKey and Join return (nil, nil) when the key is unknown.
type GroupStore interface {
	ByKey(ctx context.Context, key string) (*schedule.Group, error)
	ByMember(ctx context.Context, userID int64) ([]*schedule.Group, error)
	CreatedBy(ctx context.Context, userID int64) ([]*schedule.Group, error)
	Create(ctx context.Context, name string, creatorID int64) (*schedule.Group, error)
	Join(ctx context.Context, userID int64, key string) (*schedule.Group, error)
	Delete(ctx context.Context, key string) (bool, error)

	CurrentGroup(ctx context.Context, userID int64) (string, error)
	SetCurrentGroup(ctx context.Context, userID int64, key string) error
}

// SettingsStore persists per-user reminder offsets (minutes before start).
type SettingsStore interface {
	OffsetFor(ctx context.Context, userID int64) (int, error)
	SetOffset(ctx context.Context, userID int64, minutes int) error
}

// Stores bundles all backends opened from one config.
type Stores struct {
	Conversations ConversationStore
	Events        EventStore
	Groups        GroupStore
	Settings      SettingsStore

	closer func() error
}

func (s *Stores) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer()
}

// Open initializes the configured backend.
func Open(cfg Config, log logx.Logger) (*Stores, error) {
	if cfg.DefaultOffsetMinutes <= 0 {
		cfg.DefaultOffsetMinutes = 10
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return OpenMemory(cfg.DefaultOffsetMinutes), nil
	default:
		return nil, ErrUnknownDriver
	}
}
