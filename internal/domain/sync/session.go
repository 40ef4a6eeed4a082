package sync

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

// State of a sync session
type State string

const (
	StateIdle              State = "idle"
	StateCollecting        State = "collecting"
	StateSending           State = "sending"
	StateAwaitingPeerMerge State = "awaiting_peer_merge"
	StateMergingResponse   State = "merging_response"
	StateCommitted         State = "committed"
	StateAborted           State = "aborted"
)

// Инициатор: Idle → Collecting → Sending → MergingResponse → Committed.
// Отвечающий: Idle → AwaitingPeerMerge → Committed. Aborted достижим из любого незавершенного состояния.
var transitions = map[State][]State{
	StateIdle:              {StateCollecting, StateAwaitingPeerMerge},
	StateCollecting:        {StateSending},
	StateSending:           {StateMergingResponse},
	StateAwaitingPeerMerge: {StateCommitted},
	StateMergingResponse:   {StateCommitted},
}

func (s State) Terminal() bool {
	return s == StateCommitted || s == StateAborted
}

func (s State) canMoveTo(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateAborted {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// session один раунд синхронизации на одном узле
type session struct {
	id      string
	role    Role
	state   State
	log     *slog.Logger
	summary Summary
}

func newSession(role Role, now time.Time, log *slog.Logger) *session {
	id := uuid.NewString()
	return &session{
		id:      id,
		role:    role,
		state:   StateIdle,
		log: log.With(
			slog.String("session_id", id),
			slog.String("role", string(role)),
		),
		summary: Summary{
			SessionID: id,
			Role:      role,
			State:     StateIdle,
			StartedAt: now,
		},
	}
}

func (s *session) moveTo(next State) error {
	if !s.state.canMoveTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, next)
	}
	s.log.Debug("Sync session state changed",
		slog.String("from", string(s.state)),
		slog.String("to", string(next)))
	s.state = next
	s.summary.State = next
	return nil
}

// abort moves the session to Aborted and records the cause.
func (s *session) abort(cause error) {
	if s.state.Terminal() {
		return
	}
	s.log.Error("Sync session aborted",
		slog.String("state", string(s.state)),
		slog.String("error", cause.Error()))
	s.state = StateAborted
	s.summary.State = StateAborted
	s.summary.Error = cause.Error()
}

func (s *session) finish(now time.Time) Summary {
	s.summary.FinishedAt = now
	return s.summary
}
