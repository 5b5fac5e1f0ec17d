package storage

import (
	"context"
	"encoding/json"
	"sync"

	"planbot/internal/schedule"
)

// OpenMemory returns fully in-process stores. Used by tests and usable as a
// throwaway backend; nothing survives a restart.
func OpenMemory(defaultOffsetMinutes int) *Stores {
	if defaultOffsetMinutes <= 0 {
		defaultOffsetMinutes = 10
	}
	return &Stores{
		Conversations: &memConversations{m: map[convKey]*ConversationState{}},
		Events:        &memEvents{m: map[int64]*schedule.EventDefinition{}, nextID: 1},
		Groups:        &memGroups{m: map[string]*schedule.Group{}, current: map[int64]string{}},
		Settings:      &memSettings{m: map[int64]int{}, def: defaultOffsetMinutes},
	}
}

type convKey struct {
	userID     int64
	scenarioID string
}

type memConversations struct {
	mu sync.Mutex
	m  map[convKey]*ConversationState
}

func copyConv(st *ConversationState) *ConversationState {
	cp := *st
	cp.BlockState = append(json.RawMessage(nil), st.BlockState...)
	if st.Shared != nil {
		cp.Shared = make(map[string]string, len(st.Shared))
		for k, v := range st.Shared {
			cp.Shared[k] = v
		}
	}
	return &cp
}

func (s *memConversations) Get(_ context.Context, userID int64, scenarioID string) (*ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.m[convKey{userID, scenarioID}]
	if st == nil {
		return nil, nil
	}
	return copyConv(st), nil
}

func (s *memConversations) Put(_ context.Context, st *ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[convKey{st.UserID, st.ScenarioID}] = copyConv(st)
	return nil
}

func (s *memConversations) Delete(_ context.Context, userID int64, scenarioID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, convKey{userID, scenarioID})
	return nil
}

type memEvents struct {
	mu     sync.Mutex
	m      map[int64]*schedule.EventDefinition
	nextID int64
}

// copyDef isolates callers from the stored value the same way a real
// serialize/deserialize round trip would.
func copyDef(def *schedule.EventDefinition) *schedule.EventDefinition {
	b, _ := json.Marshal(def)
	var cp schedule.EventDefinition
	_ = json.Unmarshal(b, &cp)
	return &cp
}

func (s *memEvents) ListAll(_ context.Context) ([]*schedule.EventDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*schedule.EventDefinition, 0, len(s.m))
	for id := int64(1); id < s.nextID; id++ {
		if def, ok := s.m[id]; ok {
			out = append(out, copyDef(def))
		}
	}
	return out, nil
}

func (s *memEvents) ListByGroup(ctx context.Context, groupKey string) ([]*schedule.EventDefinition, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*schedule.EventDefinition
	for _, def := range all {
		if def.GroupKey == groupKey {
			out = append(out, def)
		}
	}
	return out, nil
}

func (s *memEvents) Get(_ context.Context, id int64) (*schedule.EventDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def := s.m[id]
	if def == nil {
		return nil, nil
	}
	return copyDef(def), nil
}

func (s *memEvents) Create(_ context.Context, def *schedule.EventDefinition) (*schedule.EventDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def.ID = s.nextID
	s.nextID++
	s.m[def.ID] = copyDef(def)
	return copyDef(def), nil
}

func (s *memEvents) Update(_ context.Context, def *schedule.EventDefinition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[def.ID]; !ok {
		return false, nil
	}
	s.m[def.ID] = copyDef(def)
	return true, nil
}

func (s *memEvents) Delete(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[id]; !ok {
		return false, nil
	}
	delete(s.m, id)
	return true, nil
}

type memGroups struct {
	mu      sync.Mutex
	m       map[string]*schedule.Group
	current map[int64]string
}

func copyGroup(g *schedule.Group) *schedule.Group {
	cp := *g
	cp.Members = append([]int64(nil), g.Members...)
	return &cp
}

func (s *memGroups) ByKey(_ context.Context, key string) (*schedule.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.m[key]
	if g == nil {
		return nil, nil
	}
	return copyGroup(g), nil
}

func (s *memGroups) ByMember(_ context.Context, userID int64) ([]*schedule.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*schedule.Group
	for _, g := range s.m {
		if g.HasMember(userID) {
			out = append(out, copyGroup(g))
		}
	}
	return out, nil
}

func (s *memGroups) CreatedBy(_ context.Context, userID int64) ([]*schedule.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*schedule.Group
	for _, g := range s.m {
		if g.CreatorID == userID {
			out = append(out, copyGroup(g))
		}
	}
	return out, nil
}

func (s *memGroups) Create(_ context.Context, name string, creatorID int64) (*schedule.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := &schedule.Group{Key: newGroupKey(), Name: name, CreatorID: creatorID, Members: []int64{creatorID}}
	s.m[g.Key] = g
	return copyGroup(g), nil
}

func (s *memGroups) Join(_ context.Context, userID int64, key string) (*schedule.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.m[key]
	if g == nil {
		return nil, nil
	}
	if !g.HasMember(userID) {
		g.Members = append(g.Members, userID)
	}
	return copyGroup(g), nil
}

func (s *memGroups) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; !ok {
		return false, nil
	}
	delete(s.m, key)
	for uid, k := range s.current {
		if k == key {
			delete(s.current, uid)
		}
	}
	return true, nil
}

func (s *memGroups) CurrentGroup(_ context.Context, userID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current[userID], nil
}

func (s *memGroups) SetCurrentGroup(_ context.Context, userID int64, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == "" {
		delete(s.current, userID)
		return nil
	}
	s.current[userID] = key
	return nil
}

type memSettings struct {
	mu  sync.Mutex
	m   map[int64]int
	def int
}

func (s *memSettings) OffsetFor(_ context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.m[userID]; ok {
		return v, nil
	}
	return s.def, nil
}

func (s *memSettings) SetOffset(_ context.Context, userID int64, minutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[userID] = minutes
	return nil
}
