package dialog

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"planbot/internal/storage"
	"planbot/internal/transport"
	logx "planbot/pkg/logx"
)

// fakeAdapter records outbound traffic.
type fakeAdapter struct {
	mu       sync.Mutex
	sent     []string
	edited   []string
	answered []string
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, _ transport.MessageRef, text string, _ *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited = append(f.edited, text)
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, callbackID string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, callbackID)
	return nil
}

// scriptBlock is a test block whose handlers return a scripted result and
// whose state is a turn counter.
type scriptBlock struct {
	id     string
	result Result

	state struct {
		Turns int `json:"turns"`
	}
	entered bool
	ended   bool
}

func (b *scriptBlock) ID() string { return b.id }

func (b *scriptBlock) Enter(ctx context.Context, ec *ExecContext) error {
	b.entered = true
	return ec.Send(ctx, "enter "+b.id, nil)
}

func (b *scriptBlock) HandleMessage(ctx context.Context, _ *transport.Message, _ *ExecContext) (Result, error) {
	b.state.Turns++
	return b.result, nil
}

func (b *scriptBlock) HandleCallback(ctx context.Context, _ *transport.Callback, _ *ExecContext) (Result, error) {
	b.state.Turns++
	return b.result, nil
}

func (b *scriptBlock) CaptureState() ([]byte, error) { return json.Marshal(b.state) }

func (b *scriptBlock) ApplyState(blob []byte) error {
	if len(blob) == 0 {
		return nil
	}
	return json.Unmarshal(blob, &b.state)
}

func (b *scriptBlock) OnEnd() { b.ended = true }

func (b *scriptBlock) Clone() Block {
	cp := &scriptBlock{id: b.id, result: b.result}
	return cp
}

func newTestEngine(t *testing.T, blocks ...*scriptBlock) (*Engine, *fakeAdapter, storage.ConversationStore, *Scenario) {
	t.Helper()
	sc := NewScenario("default")
	for i, b := range blocks {
		var err error
		if i == 0 {
			err = sc.RegisterInitial(b)
		} else {
			err = sc.Register(b)
		}
		if err != nil {
			t.Fatalf("register %s: %v", b.id, err)
		}
	}
	sel := NewSelector()
	sel.SetDefault(sc)

	stores := storage.OpenMemory(10)
	ad := &fakeAdapter{}
	eng := NewEngine(sel, stores.Conversations, ad, logx.Nop())
	return eng, ad, stores.Conversations, sc
}

func msgUpdate(userID int64, text string) transport.Update {
	return transport.Update{
		Kind:    transport.UpdateMessage,
		Message: &transport.Message{FromID: userID, ChatID: userID, Text: text},
	}
}

func cbUpdate(userID int64, data string) transport.Update {
	return transport.Update{
		Kind:     transport.UpdateCallback,
		Callback: &transport.Callback{ID: "cb-1", FromID: userID, ChatID: userID, MessageID: 5, Data: data},
	}
}

func getState(t *testing.T, conv storage.ConversationStore, userID int64) *storage.ConversationState {
	t.Helper()
	st, err := conv.Get(context.Background(), userID, "default")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	return st
}

func TestEngineFreshConversationEntersInitialBlock(t *testing.T) {
	t.Parallel()
	initial := &scriptBlock{id: "menu"}
	eng, ad, conv, _ := newTestEngine(t, initial)

	if err := eng.HandleUpdate(context.Background(), msgUpdate(1, "hi")); err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}

	st := getState(t, conv, 1)
	if st == nil || st.BlockID != "menu" {
		t.Fatalf("state = %+v, want current block menu", st)
	}
	if len(ad.sent) != 1 || ad.sent[0] != "enter menu" {
		t.Fatalf("sent = %v, want the enter screen only", ad.sent)
	}
	// The triggering message is NOT routed on the entering turn.
	var blob struct {
		Turns int `json:"turns"`
	}
	_ = json.Unmarshal(st.BlockState, &blob)
	if blob.Turns != 0 {
		t.Fatalf("turns = %d, want 0 (no routing on enter)", blob.Turns)
	}
}

func TestEngineContinuePersistsBlockState(t *testing.T) {
	t.Parallel()
	initial := &scriptBlock{id: "menu", result: Continue()}
	eng, _, conv, _ := newTestEngine(t, initial)
	ctx := context.Background()

	_ = eng.HandleUpdate(ctx, msgUpdate(1, "start")) // enter
	_ = eng.HandleUpdate(ctx, msgUpdate(1, "a"))
	_ = eng.HandleUpdate(ctx, msgUpdate(1, "b"))

	st := getState(t, conv, 1)
	if st.BlockID != "menu" {
		t.Fatalf("block = %s, want menu", st.BlockID)
	}
	var blob struct {
		Turns int `json:"turns"`
	}
	_ = json.Unmarshal(st.BlockState, &blob)
	if blob.Turns != 2 {
		t.Fatalf("turns = %d, want 2 (state replayed across turns)", blob.Turns)
	}
}

func TestEngineErrorResultLeavesStateUntouched(t *testing.T) {
	t.Parallel()
	initial := &scriptBlock{id: "menu", result: Fail("nope")}
	eng, ad, conv, _ := newTestEngine(t, initial)
	ctx := context.Background()

	_ = eng.HandleUpdate(ctx, msgUpdate(1, "start"))
	before := getState(t, conv, 1)

	_ = eng.HandleUpdate(ctx, msgUpdate(1, "boom"))
	after := getState(t, conv, 1)

	if string(before.BlockState) != string(after.BlockState) {
		t.Fatalf("state mutated on error result: %s -> %s", before.BlockState, after.BlockState)
	}
	last := ad.sent[len(ad.sent)-1]
	if last != "Error: nope" {
		t.Fatalf("last sent = %q, want the surfaced error", last)
	}
}

func TestEngineEndHandsOffToNextBlock(t *testing.T) {
	t.Parallel()
	next := &scriptBlock{id: "create"}
	initial := &scriptBlock{id: "menu", result: End("create", map[string]string{"kind": "one_time"})}
	eng, ad, conv, _ := newTestEngine(t, initial, next)
	ctx := context.Background()

	_ = eng.HandleUpdate(ctx, msgUpdate(1, "start"))
	_ = eng.HandleUpdate(ctx, msgUpdate(1, "go"))

	st := getState(t, conv, 1)
	if st == nil || st.BlockID != "create" {
		t.Fatalf("state = %+v, want handoff to create", st)
	}
	if st.Shared["kind"] != "one_time" {
		t.Fatalf("shared = %v, want forwarded payload", st.Shared)
	}
	found := false
	for _, s := range ad.sent {
		if s == "enter create" {
			found = true
		}
	}
	if !found {
		t.Fatalf("next block was not entered; sent = %v", ad.sent)
	}
}

func TestEngineEndWithoutNextClearsConversation(t *testing.T) {
	t.Parallel()
	initial := &scriptBlock{id: "menu", result: End("", nil)}
	eng, _, conv, _ := newTestEngine(t, initial)
	ctx := context.Background()

	_ = eng.HandleUpdate(ctx, msgUpdate(1, "start"))
	_ = eng.HandleUpdate(ctx, msgUpdate(1, "bye"))

	if st := getState(t, conv, 1); st != nil {
		t.Fatalf("state = %+v, want none after End", st)
	}
}

func TestEngineAcksCallbacksAlways(t *testing.T) {
	t.Parallel()
	initial := &scriptBlock{id: "menu", result: Fail("bad")}
	eng, ad, _, _ := newTestEngine(t, initial)
	ctx := context.Background()

	_ = eng.HandleUpdate(ctx, msgUpdate(1, "start"))
	_ = eng.HandleUpdate(ctx, cbUpdate(1, "anything"))

	if len(ad.answered) != 1 || ad.answered[0] != "cb-1" {
		t.Fatalf("answered = %v, want the callback acked despite the error", ad.answered)
	}
}

func TestEngineUnknownStoredBlockFailsTheTurn(t *testing.T) {
	t.Parallel()
	initial := &scriptBlock{id: "menu"}
	eng, ad, conv, _ := newTestEngine(t, initial)
	ctx := context.Background()

	_ = conv.Put(ctx, &storage.ConversationState{UserID: 1, ScenarioID: "default", BlockID: "ghost"})

	if err := eng.HandleUpdate(ctx, msgUpdate(1, "hello")); err == nil {
		t.Fatal("expected error for unknown stored block id")
	}
	if len(ad.sent) == 0 {
		t.Fatal("user should see a failure message")
	}
}

func TestEngineDiscardsEmptyUpdates(t *testing.T) {
	t.Parallel()
	initial := &scriptBlock{id: "menu"}
	eng, ad, _, _ := newTestEngine(t, initial)

	if err := eng.HandleUpdate(context.Background(), transport.Update{Kind: transport.UpdateMessage}); err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}
	if len(ad.sent) != 0 {
		t.Fatalf("nothing should be sent for an empty update, got %v", ad.sent)
	}
}

func TestBlockStateRoundTripLaw(t *testing.T) {
	t.Parallel()
	b := &scriptBlock{id: "menu"}
	b.state.Turns = 3

	blob, err := b.CaptureState()
	if err != nil {
		t.Fatalf("CaptureState: %v", err)
	}
	clone := b.Clone()
	if err := clone.ApplyState(blob); err != nil {
		t.Fatalf("ApplyState: %v", err)
	}
	got, _ := clone.CaptureState()
	if string(got) != string(blob) {
		t.Fatalf("round trip mismatch: %s vs %s", got, blob)
	}
}
