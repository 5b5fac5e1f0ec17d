package dialog

import (
	"context"
	"errors"
	"sync"

	"planbot/internal/storage"
	"planbot/internal/transport"
	logx "planbot/pkg/logx"
)

const genericFailureText = "Something went wrong, please try again."

// Engine is the top-level dialog controller. Each inbound update resolves
// the user's scenario and current block, replays the block's persisted state,
// routes the update, and persists the outcome.
//
// Processing is serialized per user: conversation rows are read-modify-write
// and the transport may deliver a user's updates concurrently.
type Engine struct {
	selector *Selector
	conv     storage.ConversationStore
	adapter  transport.Adapter
	log      logx.Logger

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

func NewEngine(selector *Selector, conv storage.ConversationStore, adapter transport.Adapter, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		selector: selector,
		conv:     conv,
		adapter:  adapter,
		log:      log,
		locks:    map[int64]*sync.Mutex{},
	}
}

func (e *Engine) userLock(userID int64) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	mu := e.locks[userID]
	if mu == nil {
		mu = &sync.Mutex{}
		e.locks[userID] = mu
	}
	return mu
}

// HandleUpdate processes one inbound update to completion. Errors are also
// logged internally; the return value exists for tests and callers that want
// to count failures.
func (e *Engine) HandleUpdate(ctx context.Context, up transport.Update) error {
	var (
		userID     int64
		callbackID string
	)
	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message == nil {
			return nil
		}
		userID = up.Message.FromID
	case transport.UpdateCallback:
		if up.Callback == nil {
			return nil
		}
		userID = up.Callback.FromID
		callbackID = up.Callback.ID
	default:
		return nil
	}

	// Stop the "processing" indicator regardless of how the turn went.
	if callbackID != "" {
		defer func() {
			if err := e.adapter.AnswerCallback(ctx, callbackID, ""); err != nil {
				e.log.Debug("answer callback failed", logx.Err(err))
			}
		}()
	}

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	scenario := e.selector.ScenarioFor(userID)
	if scenario == nil {
		e.log.Warn("no scenario for user", logx.Int64("user", userID))
		return nil
	}

	log := e.log.With(logx.Int64("user", userID), logx.String("scenario", scenario.ID()))

	ec := NewExecContext(userID, e.adapter, log)
	if up.Kind == transport.UpdateCallback {
		ec.SetCallbackRef(transport.MessageRef{ChatID: up.Callback.ChatID, MessageID: up.Callback.MessageID})
	}

	state, err := e.conv.Get(ctx, userID, scenario.ID())
	if err != nil {
		log.Error("load conversation state failed", logx.Err(err))
		_ = ec.Send(ctx, genericFailureText, nil)
		return err
	}

	if state == nil {
		return e.enterBlock(ctx, scenario, "", ec, log)
	}

	block, err := scenario.Block(state.BlockID)
	if err != nil {
		// A stored block id the registry does not know is a wiring defect,
		// not a user mistake.
		log.Error("unknown block id in conversation state", logx.String("block", state.BlockID), logx.Err(err))
		_ = ec.Send(ctx, genericFailureText, nil)
		return err
	}
	if err := block.ApplyState(state.BlockState); err != nil {
		log.Error("apply block state failed", logx.String("block", state.BlockID), logx.Err(err))
		_ = ec.Send(ctx, genericFailureText, nil)
		return err
	}
	if state.Shared != nil {
		ec.Shared = state.Shared
	}

	var result Result
	switch up.Kind {
	case transport.UpdateMessage:
		result, err = block.HandleMessage(ctx, up.Message, ec)
	case transport.UpdateCallback:
		result, err = block.HandleCallback(ctx, up.Callback, ec)
	}
	if err != nil {
		log.Error("block handler failed", logx.String("block", block.ID()), logx.Err(err))
		_ = ec.Send(ctx, genericFailureText, nil)
		return err
	}

	switch result.kind {
	case resultError:
		// Surface the message; conversation state stays as it was.
		log.Warn("block returned error", logx.String("block", block.ID()), logx.String("msg", result.errMsg))
		return ec.Send(ctx, "Error: "+result.errMsg, nil)

	case resultContinue:
		blob, err := block.CaptureState()
		if err != nil {
			log.Error("capture block state failed", logx.String("block", block.ID()), logx.Err(err))
			return err
		}
		st := &storage.ConversationState{
			UserID:     userID,
			ScenarioID: scenario.ID(),
			BlockID:    block.ID(),
			BlockState: blob,
			Shared:     ec.Shared,
		}
		if err := e.conv.Put(ctx, st); err != nil {
			log.Error("persist conversation state failed", logx.Err(err))
			_ = ec.Send(ctx, genericFailureText, nil)
			return err
		}
		return nil

	case resultEnd:
		block.OnEnd()
		if err := e.conv.Delete(ctx, userID, scenario.ID()); err != nil {
			log.Error("delete conversation state failed", logx.Err(err))
			_ = ec.Send(ctx, genericFailureText, nil)
			return err
		}
		if result.nextBlockID == "" {
			return nil
		}
		return e.enterBlock(ctx, scenario, result.nextBlockID, ec, log, result.forwarded)
	}
	return nil
}

// enterBlock instantiates a block fresh (the scenario's initial block when id
// is empty), runs Enter, and persists a brand-new conversation row for it.
func (e *Engine) enterBlock(ctx context.Context, scenario *Scenario, id string, ec *ExecContext, log logx.Logger, forwarded ...map[string]string) error {
	var (
		block Block
		err   error
	)
	if id == "" {
		block, err = scenario.Initial()
	} else {
		block, err = scenario.Block(id)
	}
	if err != nil {
		log.Error("resolve block failed", logx.String("block", id), logx.Err(err))
		_ = ec.Send(ctx, genericFailureText, nil)
		return err
	}

	shared := map[string]string{}
	if len(forwarded) > 0 && forwarded[0] != nil {
		shared = forwarded[0]
	}
	ec.Shared = shared

	if err := block.Enter(ctx, ec); err != nil {
		log.Error("block enter failed", logx.String("block", block.ID()), logx.Err(err))
		_ = ec.Send(ctx, genericFailureText, nil)
		return err
	}

	blob, err := block.CaptureState()
	if err != nil {
		log.Error("capture block state failed", logx.String("block", block.ID()), logx.Err(err))
		return err
	}
	st := &storage.ConversationState{
		UserID:     ec.UserID,
		ScenarioID: scenario.ID(),
		BlockID:    block.ID(),
		BlockState: blob,
		Shared:     ec.Shared,
	}
	if err := e.conv.Put(ctx, st); err != nil {
		log.Error("persist conversation state failed", logx.Err(err))
		_ = ec.Send(ctx, genericFailureText, nil)
		return err
	}
	return nil
}

// IsNotFound reports whether err is a missing-block registry error.
func IsNotFound(err error) bool { return errors.Is(err, ErrBlockNotFound) }
