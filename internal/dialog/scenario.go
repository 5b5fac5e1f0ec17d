package dialog

import (
	"errors"
	"fmt"
)

var (
	ErrBlockNotFound  = errors.New("block not registered")
	ErrDuplicateBlock = errors.New("block id already registered")
	ErrNoInitialBlock = errors.New("scenario has no initial block")
)

// Scenario is a registry of block prototypes reachable within one
// conversation flow, plus its designated initial block. Registration happens
// at composition time; lookups return fresh clones.
type Scenario struct {
	id      string
	initial Block
	blocks  map[string]Block
}

func NewScenario(id string) *Scenario {
	return &Scenario{id: id, blocks: map[string]Block{}}
}

func (s *Scenario) ID() string { return s.id }

// RegisterInitial registers b and marks it as the scenario entry point.
func (s *Scenario) RegisterInitial(b Block) error {
	if err := s.Register(b); err != nil {
		return err
	}
	s.initial = b
	return nil
}

func (s *Scenario) Register(b Block) error {
	id := b.ID()
	if _, exists := s.blocks[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateBlock, id)
	}
	s.blocks[id] = b
	return nil
}

// Block returns a fresh clone of the prototype registered under id.
func (s *Scenario) Block(id string) (Block, error) {
	b, ok := s.blocks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	return b.Clone(), nil
}

// Initial returns a fresh clone of the entry block.
func (s *Scenario) Initial() (Block, error) {
	if s.initial == nil {
		return nil, ErrNoInitialBlock
	}
	return s.initial.Clone(), nil
}

// Selector maps users to scenarios. Rules are evaluated in registration
// order; the default applies when none match.
type Selector struct {
	rules []selectorRule
	def   *Scenario
}

type selectorRule struct {
	scenario *Scenario
	cond     func(userID int64) bool
}

func NewSelector() *Selector { return &Selector{} }

func (s *Selector) Register(sc *Scenario, cond func(userID int64) bool) {
	s.rules = append(s.rules, selectorRule{scenario: sc, cond: cond})
}

func (s *Selector) SetDefault(sc *Scenario) { s.def = sc }

func (s *Selector) ScenarioFor(userID int64) *Scenario {
	for _, r := range s.rules {
		if r.cond(userID) {
			return r.scenario
		}
	}
	return s.def
}
