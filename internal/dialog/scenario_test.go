package dialog

import (
	"errors"
	"testing"
)

func TestScenarioRegistry(t *testing.T) {
	t.Parallel()
	sc := NewScenario("default")

	a := &scriptBlock{id: "a"}
	if err := sc.RegisterInitial(a); err != nil {
		t.Fatalf("RegisterInitial: %v", err)
	}
	if err := sc.Register(&scriptBlock{id: "b"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := sc.Register(&scriptBlock{id: "a"}); !errors.Is(err, ErrDuplicateBlock) {
		t.Fatalf("duplicate registration error = %v, want ErrDuplicateBlock", err)
	}

	if _, err := sc.Block("missing"); !errors.Is(err, ErrBlockNotFound) {
		t.Fatalf("unknown lookup error = %v, want ErrBlockNotFound", err)
	}

	got, err := sc.Block("a")
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	if got == Block(a) {
		t.Fatal("Block must return a clone, not the prototype")
	}

	// Mutating the clone must not leak into the prototype.
	got.(*scriptBlock).state.Turns = 99
	fresh, _ := sc.Block("a")
	if fresh.(*scriptBlock).state.Turns != 0 {
		t.Fatal("prototype was mutated through a clone")
	}
}

func TestSelectorRulesAndDefault(t *testing.T) {
	t.Parallel()
	vip := NewScenario("vip")
	def := NewScenario("default")

	sel := NewSelector()
	sel.Register(vip, func(userID int64) bool { return userID == 7 })
	sel.SetDefault(def)

	if got := sel.ScenarioFor(7); got != vip {
		t.Fatalf("ScenarioFor(7) = %v, want vip", got.ID())
	}
	if got := sel.ScenarioFor(8); got != def {
		t.Fatalf("ScenarioFor(8) = %v, want default", got.ID())
	}
}
