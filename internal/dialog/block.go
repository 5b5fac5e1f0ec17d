// Package dialog implements the conversation state machine: polymorphic
// handler blocks, the scenario registry, and the engine that resolves a
// user's current block, replays its state, and advances it on each inbound
// update.
package dialog

import (
	"context"

	"planbot/internal/transport"
	logx "planbot/pkg/logx"
)

// Block is one step of a multi-turn conversation. Instances are ephemeral:
// the engine clones a registered prototype per inbound update, applies the
// persisted state blob, routes the update, and persists the captured state.
//
// CaptureState/ApplyState round-trip the block's internal state as JSON.
// The engine never interprets the blob; only the block type that produced it
// can decode it.
type Block interface {
	ID() string

	// Enter renders the block's opening screen. Called when the block becomes
	// the user's current block (fresh conversation or End handoff).
	Enter(ctx context.Context, ec *ExecContext) error

	HandleMessage(ctx context.Context, msg *transport.Message, ec *ExecContext) (Result, error)
	HandleCallback(ctx context.Context, cb *transport.Callback, ec *ExecContext) (Result, error)

	CaptureState() ([]byte, error)
	ApplyState(blob []byte) error

	// OnEnd runs when the block finishes (End result), before its state row
	// is deleted.
	OnEnd()

	// Clone returns a value-independent copy with default internal state, so
	// registry prototypes are never mutated by use.
	Clone() Block
}

type resultKind int

const (
	resultContinue resultKind = iota
	resultEnd
	resultError
)

// Result is what a handler returns to the engine. The zero value is Continue,
// so a forgotten return can never stall a conversation.
type Result struct {
	kind        resultKind
	errMsg      string
	nextBlockID string
	forwarded   map[string]string
}

// Continue keeps the user in the current block; its captured state is persisted.
func Continue() Result { return Result{kind: resultContinue} }

// End leaves the current block. When nextBlockID is non-empty the engine
// enters that block fresh, seeding its shared context with forwarded.
func End(nextBlockID string, forwarded map[string]string) Result {
	return Result{kind: resultEnd, nextBlockID: nextBlockID, forwarded: forwarded}
}

// Fail shows msg to the user and leaves the conversation state untouched.
func Fail(msg string) Result { return Result{kind: resultError, errMsg: msg} }

// ExecContext is the per-turn execution context handed to a block: the user,
// the shared cross-block payload, and a send path that edits the triggering
// message in place on callback turns.
type ExecContext struct {
	UserID int64

	// Shared is the cross-block context payload. Persisted with the
	// conversation on Continue; replaced by End's forwarded data on handoff.
	Shared map[string]string

	adapter     transport.Adapter
	callbackRef *transport.MessageRef
	log         logx.Logger
}

func NewExecContext(userID int64, adapter transport.Adapter, log logx.Logger) *ExecContext {
	return &ExecContext{
		UserID:  userID,
		Shared:  map[string]string{},
		adapter: adapter,
		log:     log,
	}
}

// SetCallbackRef marks this turn as callback-originated; subsequent Send
// calls edit that message instead of sending new ones.
func (ec *ExecContext) SetCallbackRef(ref transport.MessageRef) {
	ec.callbackRef = &ref
}

func (ec *ExecContext) Log() logx.Logger { return ec.log }

// Send delivers text to the user. On callback turns the previously shown
// message is edited in place; otherwise a new message is sent.
func (ec *ExecContext) Send(ctx context.Context, text string, opt *transport.SendOptions) error {
	if ec.callbackRef != nil {
		err := ec.adapter.EditText(ctx, *ec.callbackRef, text, opt)
		if err == nil {
			return nil
		}
		// Editing can fail when the message is too old or unchanged; fall
		// back to a fresh message rather than losing the turn.
		ec.log.Debug("edit failed, sending new message", logx.Err(err))
		ec.callbackRef = nil
	}
	ref, err := ec.adapter.SendText(ctx, transport.ChatTarget{ChatID: ec.UserID}, text, opt)
	if err != nil {
		return err
	}
	_ = ref
	return nil
}
