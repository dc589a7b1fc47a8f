// Package session implements the PvP match session: a single-goroutine
// state machine that consumes transport events and local user intents in
// one ordered stream, validates intents against the current state, and
// emits render decisions and notices. All correctness and scoring is
// decided by the server; the session only stores what it is told.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/playperu/taskduel/internal/auth"
	"github.com/playperu/taskduel/internal/notify"
	"github.com/playperu/taskduel/internal/protocol"
	"github.com/playperu/taskduel/internal/transport"
)

const sendTimeout = 5 * time.Second

// State is the session's lifecycle position.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnectedIdle
	StateQueued
	StateRoundActive
	StateRoundLocked
	StateMatchEnded
	StateMatchCanceled
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnectedIdle:
		return "connected_idle"
	case StateQueued:
		return "queued"
	case StateRoundActive:
		return "round_active"
	case StateRoundLocked:
		return "round_locked"
	case StateMatchEnded:
		return "match_ended"
	case StateMatchCanceled:
		return "match_canceled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Match is the client's view of the current paired contest. Scores are
// authoritative-only: they hold the last values reported in a round_end
// and are never derived locally.
type Match struct {
	ID             string
	OpponentUserID int64
	TargetScore    int
	Round          int
	Task           protocol.Task
	RoundActive    bool
	Player1Score   int
	Player2Score   int
}

// View receives the session's render decisions. Rendering itself lives
// outside the core; the session only says what to show.
type View interface {
	SetStatus(status string)
	ShowMatch(matchID string, opponentUserID int64)
	ShowTask(round int, task protocol.Task)
	SetScore(player1, player2 int)
	SetAnswerEnabled(enabled bool)
}

type event interface{ isEvent() }

type joinQueue struct{}

type leaveQueue struct{}

type submitAnswer struct{ answer string }

// dialResult is posted back into the inbox by the dial goroutine so the
// outcome of connecting is processed in order with everything else.
type dialResult struct {
	stream transport.Stream
	err    error
}

func (joinQueue) isEvent()    {}
func (leaveQueue) isEvent()   {}
func (submitAnswer) isEvent() {}
func (dialResult) isEvent()   {}

type Session struct {
	inbox    chan event
	dialer   transport.Dialer
	creds    auth.Store
	view     View
	notifier notify.Notifier
	logger   *slog.Logger

	// Loop-owned; never touched outside Run's goroutine.
	state  State
	stream transport.Stream
	match  *Match
}

func New(dialer transport.Dialer, creds auth.Store, view View, notifier notify.Notifier, logger *slog.Logger) *Session {
	return &Session{
		inbox:    make(chan event, 16),
		dialer:   dialer,
		creds:    creds,
		view:     view,
		notifier: notifier,
		logger:   logger,
		state:    StateDisconnected,
	}
}

// JoinQueue asks to enter the matchmaking queue, connecting first if
// there is no open stream.
func (s *Session) JoinQueue() { s.inbox <- joinQueue{} }

// LeaveQueue asks to leave the matchmaking queue.
func (s *Session) LeaveQueue() { s.inbox <- leaveQueue{} }

// SubmitAnswer submits an answer for the current round.
func (s *Session) SubmitAnswer(answer string) { s.inbox <- submitAnswer{answer: answer} }

// Run processes events until ctx is canceled. One event is handled to
// completion before the next is considered; there is no other
// synchronization around session state.
func (s *Session) Run(ctx context.Context) error {
	defer func() {
		if s.stream != nil {
			s.stream.Close()
			s.stream = nil
		}
	}()

	for {
		var events <-chan transport.Event
		if s.stream != nil {
			events = s.stream.Events()
		}

		select {
		case <-ctx.Done():
			return nil

		case ev := <-s.inbox:
			s.handleIntent(ctx, ev)

		case tev, ok := <-events:
			if !ok {
				s.stream = nil
				continue
			}
			s.handleTransport(tev)
		}
	}
}

func (s *Session) handleIntent(ctx context.Context, ev event) {
	switch e := ev.(type) {
	case joinQueue:
		s.handleJoin(ctx)
	case leaveQueue:
		s.handleLeave(ctx)
	case submitAnswer:
		s.handleSubmit(ctx, e.answer)
	case dialResult:
		s.handleDialResult(e)
	}
}

func (s *Session) handleJoin(ctx context.Context) {
	switch s.state {
	case StateDisconnected:
		s.connect(ctx)
	case StateConnecting:
		s.notifier.Notify(notify.Info, "Still connecting, hold on.")
	case StateRoundActive, StateRoundLocked:
		s.notifier.Notify(notify.Warning, "A match is already in progress.")
	default:
		// ConnectedIdle, Queued, MatchEnded, MatchCanceled: (re)join.
		s.send(ctx, protocol.QueueJoin{})
	}
}

func (s *Session) handleLeave(ctx context.Context) {
	switch s.state {
	case StateDisconnected:
		s.connect(ctx)
	case StateConnecting:
		s.notifier.Notify(notify.Info, "Still connecting, hold on.")
	case StateRoundActive, StateRoundLocked:
		s.notifier.Notify(notify.Warning, "A match is already in progress.")
	default:
		s.send(ctx, protocol.QueueLeave{})
	}
}

func (s *Session) handleSubmit(ctx context.Context, answer string) {
	if s.state == StateDisconnected && !s.hasCredential() {
		s.rejectSignedOut()
		return
	}
	if s.match == nil || !s.inMatch() {
		s.notifier.Notify(notify.Warning, "No active match yet.")
		return
	}
	if s.state != StateRoundActive || !s.match.RoundActive {
		s.notifier.Notify(notify.Warning, "Wait for the next question.")
		return
	}

	// Lock the round before the send returns: the authoritative round_end
	// (or the next task) is the only thing that may reopen it.
	s.match.RoundActive = false
	s.setState(StateRoundLocked)
	s.view.SetAnswerEnabled(false)

	s.send(ctx, protocol.AnswerSubmit{
		MatchID: s.match.ID,
		TaskID:  s.match.Task.ID,
		Answer:  answer,
	})
}

func (s *Session) connect(ctx context.Context) {
	token, err := s.creds.Token()
	if err != nil {
		s.logger.Error("reading credential", "error", err)
		s.notifier.Notify(notify.Error, "Could not read your sign-in token.")
		return
	}
	if token == "" {
		s.rejectSignedOut()
		return
	}

	s.setState(StateConnecting)
	s.view.SetStatus("connecting")

	go func() {
		stream, err := s.dialer.Dial(ctx, token)
		select {
		case s.inbox <- dialResult{stream: stream, err: err}:
		case <-ctx.Done():
			if stream != nil {
				stream.Close()
			}
		}
	}()
}

func (s *Session) handleDialResult(e dialResult) {
	if e.err != nil {
		s.logger.Error("dial failed", "error", e.err)
		s.setState(StateDisconnected)
		s.view.SetStatus("disconnected")
		s.notifier.Notify(notify.Error, "Could not connect to the game server.")
		return
	}

	// At most one live stream: tear down any previous handle first.
	if s.stream != nil {
		s.stream.Close()
	}
	s.stream = e.stream
	s.setState(StateConnectedIdle)
	s.view.SetStatus("connected")
}

func (s *Session) handleTransport(ev transport.Event) {
	switch e := ev.(type) {
	case transport.CloseEvent:
		s.handleClosed(e.Err)
	case transport.MessageEvent:
		s.handleMessage(e.Msg)
	}
}

// handleClosed marks the session disconnected. Whatever match, task and
// score were on screen stay there, but they are stale: nothing acts on
// them until a new stream opens and a new match is found.
func (s *Session) handleClosed(err error) {
	s.logger.Debug("stream closed", "error", err)
	s.stream = nil
	if s.match != nil {
		s.match.RoundActive = false
	}
	s.setState(StateDisconnected)
	s.view.SetStatus("disconnected")
	s.view.SetAnswerEnabled(false)
}

func (s *Session) handleMessage(msg protocol.Inbound) {
	switch m := msg.(type) {
	case protocol.Connected:
		s.view.SetStatus("connected")

	case protocol.QueueJoined:
		if s.inMatch() {
			s.dropMessage(msg)
			return
		}
		s.setState(StateQueued)
		s.view.SetStatus("queued")

	case protocol.QueueLeft:
		if s.state != StateQueued {
			s.dropMessage(msg)
			return
		}
		s.setState(StateConnectedIdle)
		s.view.SetStatus("idle")

	case protocol.MatchFound:
		// Accepted from any connected state, not just Queued: the server
		// may pair us while our queue_leave is still in flight.
		if s.stream == nil {
			s.dropMessage(msg)
			return
		}
		s.startMatch(m)

	case protocol.NextTask:
		if !s.inMatch() || s.match == nil {
			s.dropMessage(msg)
			return
		}
		if m.Round > 0 {
			s.match.Round = m.Round
		}
		s.match.Task = m.Task
		s.match.RoundActive = true
		s.setState(StateRoundActive)
		s.view.ShowTask(s.match.Round, m.Task)
		s.view.SetAnswerEnabled(true)

	case protocol.AnswerResult:
		if !s.inMatch() {
			s.dropMessage(msg)
			return
		}
		// Informational echo only. The score moves on round_end alone.
		switch {
		case m.IsCorrect && m.Scored:
			s.notifier.Notify(notify.Success, "Correct! The point is yours.")
		case m.IsCorrect:
			s.notifier.Notify(notify.Success, "Correct, but your opponent scored first.")
		default:
			s.notifier.Notify(notify.Warning, "Wrong answer. Next question coming up.")
		}

	case protocol.RoundEnd:
		if !s.inMatch() || s.match == nil {
			s.dropMessage(msg)
			return
		}
		s.match.Player1Score = m.Player1Score
		s.match.Player2Score = m.Player2Score
		s.match.RoundActive = false
		s.setState(StateRoundLocked)
		s.view.SetScore(m.Player1Score, m.Player2Score)
		s.view.SetAnswerEnabled(false)

	case protocol.MatchEnd:
		if !s.inMatch() {
			s.dropMessage(msg)
			return
		}
		s.match = nil
		s.setState(StateMatchEnded)
		s.view.SetStatus("match over: " + m.Result)
		s.view.SetAnswerEnabled(false)
		if m.RatingBefore != 0 || m.RatingAfter != 0 {
			s.notifier.Notify(notify.Info, fmt.Sprintf("Rating: %d to %d", m.RatingBefore, m.RatingAfter))
		}

	case protocol.MatchCanceled:
		if !s.inMatch() && s.state != StateQueued {
			s.dropMessage(msg)
			return
		}
		s.match = nil
		s.setState(StateMatchCanceled)
		s.view.SetStatus("match canceled: " + m.Reason)
		s.view.SetAnswerEnabled(false)

	case protocol.ServerError:
		s.notifier.Notify(notify.Warning, "Server rejected the request: "+m.Message)

	case protocol.RoundClosed:
		s.notifier.Notify(notify.Warning, "Too late: the round is already settled.")

	case protocol.WrongTask:
		s.notifier.Notify(notify.Warning, "The question changed before your answer arrived.")

	default:
		s.dropMessage(msg)
	}
}

// startMatch creates the Match, resets the score to 0-0 and opens the
// first round.
func (s *Session) startMatch(m protocol.MatchFound) {
	round := m.Round
	if round <= 0 {
		round = 1
	}
	s.match = &Match{
		ID:             m.MatchID,
		OpponentUserID: m.OpponentUserID,
		TargetScore:    m.TargetScore,
		Round:          round,
		Task:           m.Task,
		RoundActive:    true,
	}
	s.setState(StateRoundActive)
	s.view.SetStatus("match found")
	s.view.ShowMatch(m.MatchID, m.OpponentUserID)
	s.view.ShowTask(round, m.Task)
	s.view.SetScore(0, 0)
	s.view.SetAnswerEnabled(true)
}

func (s *Session) send(ctx context.Context, msg protocol.Outbound) {
	if s.stream == nil {
		s.notifier.Notify(notify.Error, "Not connected to the game server.")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := s.stream.Send(ctx, msg); err != nil {
		// The matching CloseEvent, if the stream is gone, arrives on the
		// event channel; nothing else to do here.
		s.logger.Error("send failed", "error", err)
	}
}

func (s *Session) rejectSignedOut() {
	s.view.SetStatus("sign-in required")
	s.notifier.Notify(notify.Error, "You must sign in to play. Run: taskduel login")
}

func (s *Session) hasCredential() bool {
	token, err := s.creds.Token()
	return err == nil && token != ""
}

func (s *Session) inMatch() bool {
	return s.state == StateRoundActive || s.state == StateRoundLocked
}

func (s *Session) setState(next State) {
	if next == s.state {
		return
	}
	s.logger.Debug("session state", "from", s.state.String(), "to", next.String())
	s.state = next
}

func (s *Session) dropMessage(msg protocol.Inbound) {
	s.logger.Debug("ignoring message in current state",
		"message", fmt.Sprintf("%T", msg), "state", s.state.String())
}
