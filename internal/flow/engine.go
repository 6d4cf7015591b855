package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vbtlab/trainpipe/internal/ingest"
	"github.com/vbtlab/trainpipe/internal/messaging"
	"github.com/vbtlab/trainpipe/internal/models"
	"github.com/vbtlab/trainpipe/internal/store"
)

// handler processes one event for a user in a given state and reports the
// requested transition. Handlers never touch the persisted state tag.
type handler func(ctx context.Context, user *models.User, evt Event) (models.TransitionSignal, error)

// Engine routes events to state handlers and owns state persistence.
type Engine struct {
	store    store.Store
	sender   messaging.Sender
	media    messaging.MediaFetcher
	importer *ingest.Importer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates the engine. media may be nil when the configured sender
// backend cannot retrieve Cloud API media; document imports then fail with
// the regular error policy instead of crashing.
func NewEngine(st store.Store, sender messaging.Sender, media messaging.MediaFetcher) *Engine {
	return &Engine{
		store:    st,
		sender:   sender,
		media:    media,
		importer: ingest.NewImporter(st),
		locks:    make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex serializing events for one phone number. The
// map holds one entry per phone number ever seen and is never pruned; it
// grows with the registered user base, not with traffic.
func (e *Engine) userLock(phone string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[phone]
	if !ok {
		l = &sync.Mutex{}
		e.locks[phone] = l
	}
	return l
}

// HandleEvent processes one inbound event end to end: resolve or create the
// user, dispatch to the handler for their persisted state, apply the
// transition table, write the new state. Handler failures are absorbed by
// the error policy; only infrastructure faults (store access, unknown state)
// escape to the caller.
func (e *Engine) HandleEvent(ctx context.Context, evt Event) error {
	if evt.From == "" {
		return fmt.Errorf("event has no sender")
	}
	lock := e.userLock(evt.From)
	lock.Lock()
	defer lock.Unlock()

	user, err := e.store.GetUserByPhone(ctx, evt.From)
	if err != nil {
		return fmt.Errorf("failed to load user %s: %w", evt.From, err)
	}
	if user == nil {
		user = &models.User{
			PhoneNumber: evt.From,
			Name:        evt.ProfileName,
			State:       models.StateIdle,
		}
		if err := e.store.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("failed to create user %s: %w", evt.From, err)
		}
		slog.Info("Engine.HandleEvent: new user registered", "user_id", user.ID, "phone", evt.From)
	}

	h, err := e.handlerFor(user.State)
	if err != nil {
		slog.Error("Engine.HandleEvent: unresolvable state", "user_id", user.ID, "state", user.State, "error", err)
		return err
	}

	signal, handleErr := h(ctx, user, evt)
	if handleErr != nil {
		return e.recoverFromHandlerError(ctx, user, handleErr)
	}

	next := nextState(user.State, signal)
	if next != user.State {
		if err := e.store.UpdateUserState(ctx, user.ID, next); err != nil {
			return fmt.Errorf("failed to persist state transition for user %d: %w", user.ID, err)
		}
		slog.Info("Engine.HandleEvent: state transition",
			"user_id", user.ID, "from", user.State, "to", next, "signal", signal.String())
		user.State = next
	}
	return nil
}

// handlerFor resolves the handler for a state. The switch is exhaustive over
// the live states; everything else, the reserved StateEstimateOneRM
// included, is an UnknownStateError.
func (e *Engine) handlerFor(state models.StateType) (handler, error) {
	switch state {
	case models.StateIdle:
		return e.handleIdle, nil
	case models.StateTrainingManagement:
		return e.handleTrainingManagement, nil
	case models.StateAddTraining:
		return e.handleAddTraining, nil
	default:
		return nil, &UnknownStateError{State: state}
	}
}

// recoverFromHandlerError applies the per-state error policy. In Idle the
// error is swallowed behind a retry prompt and the state stays put; in live
// session states the user gets an error reply and is forced back to Idle so
// they never strand mid-session.
func (e *Engine) recoverFromHandlerError(ctx context.Context, user *models.User, handleErr error) error {
	slog.Error("Engine.recoverFromHandlerError: handler failed",
		"user_id", user.ID, "state", user.State, "error", handleErr)

	switch user.State {
	case models.StateIdle:
		if err := e.sender.SendText(ctx, user.PhoneNumber, msgIdleError); err != nil {
			slog.Error("Engine.recoverFromHandlerError: failed to send retry prompt", "user_id", user.ID, "error", err)
		}
		return nil
	case models.StateTrainingManagement, models.StateAddTraining:
		reply := msgTrainingError
		if user.State == models.StateAddTraining {
			reply = msgAddError
		}
		if err := e.sender.SendText(ctx, user.PhoneNumber, reply); err != nil {
			slog.Error("Engine.recoverFromHandlerError: failed to send error reply", "user_id", user.ID, "error", err)
		}
		if err := e.store.UpdateUserState(ctx, user.ID, models.StateIdle); err != nil {
			return fmt.Errorf("failed to force user %d back to idle: %w", user.ID, err)
		}
		user.State = models.StateIdle
		return nil
	default:
		return handleErr
	}
}
