// Package protocol defines the wire messages exchanged with the PvP
// matchmaking service: one JSON object per frame, discriminated by a
// "type" field. Frames are decoded into a closed set of variants at the
// transport boundary; the session never switches on raw strings.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType reports an inbound frame whose "type" tag is not part of
// the protocol. Callers are expected to drop such frames rather than fail
// the session, so the protocol can grow without breaking old clients.
var ErrUnknownType = errors.New("unknown message type")

// Task is the question payload shown to both players in a round.
type Task struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Statement  string   `json:"statement"`
	Subject    string   `json:"subject"`
	Topic      string   `json:"topic"`
	Difficulty int      `json:"difficulty"`
	AnswerType string   `json:"answer_type,omitempty"`
	Hints      []string `json:"hints,omitempty"`
}

// Outbound is a client-to-server message.
type Outbound interface{ isOutbound() }

type QueueJoin struct{}

type QueueLeave struct{}

type AnswerSubmit struct {
	MatchID string `json:"match_id"`
	TaskID  int64  `json:"task_id"`
	Answer  string `json:"answer"`
}

func (QueueJoin) isOutbound()    {}
func (QueueLeave) isOutbound()   {}
func (AnswerSubmit) isOutbound() {}

// Encode serializes an outbound message into a single JSON frame with the
// "type" discriminator set.
func Encode(msg Outbound) ([]byte, error) {
	switch m := msg.(type) {
	case QueueJoin:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{Type: "queue_join"})
	case QueueLeave:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{Type: "queue_leave"})
	case AnswerSubmit:
		return json.Marshal(struct {
			Type string `json:"type"`
			AnswerSubmit
		}{Type: "answer_submit", AnswerSubmit: m})
	default:
		return nil, fmt.Errorf("unsupported outbound message %T", msg)
	}
}

// Inbound is a server-to-client message.
type Inbound interface{ isInbound() }

// Connected is the server's greeting after the stream opens.
type Connected struct{}

type QueueJoined struct{}

type QueueLeft struct {
	Removed int `json:"removed"`
}

// MatchFound pairs this client with an opponent and opens round one.
type MatchFound struct {
	MatchID        string `json:"match_id"`
	OpponentUserID int64  `json:"opponent_user_id"`
	Round          int    `json:"round"`
	TargetScore    int    `json:"target_score"`
	Task           Task   `json:"task"`
}

type NextTask struct {
	MatchID string `json:"match_id"`
	Round   int    `json:"round"`
	Task    Task   `json:"task"`
}

// AnswerResult echoes the grading of this client's own submission.
// Scored reports whether the point for the round went to this client.
// It never carries authority over the score; only RoundEnd does.
type AnswerResult struct {
	MatchID      string `json:"match_id"`
	IsCorrect    bool   `json:"is_correct"`
	Scored       bool   `json:"scored"`
	Player1Score int    `json:"player1_score"`
	Player2Score int    `json:"player2_score"`
}

// RoundEnd is the authoritative settlement both players converge on.
type RoundEnd struct {
	WinnerUserID *int64 `json:"winner_user_id"`
	Player1Score int    `json:"player1_score"`
	Player2Score int    `json:"player2_score"`
}

type MatchEnd struct {
	MatchID      string `json:"match_id"`
	Result       string `json:"result"`
	RatingBefore int    `json:"rating_before"`
	RatingAfter  int    `json:"rating_after"`
}

type MatchCanceled struct {
	MatchID string `json:"match_id"`
	Reason  string `json:"reason"`
}

// ServerError is a generic server-side rejection (unknown message, no
// tasks available, and so on).
type ServerError struct {
	Message string `json:"message"`
}

// RoundClosed tells the client its submission arrived after the round was
// already settled.
type RoundClosed struct{}

// WrongTask tells the client its submission referenced a task that is no
// longer the current one.
type WrongTask struct{}

func (Connected) isInbound()     {}
func (QueueJoined) isInbound()   {}
func (QueueLeft) isInbound()     {}
func (MatchFound) isInbound()    {}
func (NextTask) isInbound()      {}
func (AnswerResult) isInbound()  {}
func (RoundEnd) isInbound()      {}
func (MatchEnd) isInbound()      {}
func (MatchCanceled) isInbound() {}
func (ServerError) isInbound()   {}
func (RoundClosed) isInbound()   {}
func (WrongTask) isInbound()     {}

// Decode parses one inbound frame into its variant. An unrecognized
// "type" tag returns ErrUnknownType so callers can drop the frame.
func Decode(data []byte) (Inbound, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("parsing frame: %w", err)
	}

	switch tag.Type {
	case "connected":
		return Connected{}, nil
	case "queue_joined":
		return QueueJoined{}, nil
	case "queue_left":
		var m QueueLeft
		return m, unmarshalPayload(data, &m)
	case "match_found":
		var m MatchFound
		return m, unmarshalPayload(data, &m)
	case "next_task":
		var m NextTask
		return m, unmarshalPayload(data, &m)
	case "answer_result":
		var m AnswerResult
		return m, unmarshalPayload(data, &m)
	case "round_end":
		var m RoundEnd
		return m, unmarshalPayload(data, &m)
	case "match_end":
		var m MatchEnd
		return m, unmarshalPayload(data, &m)
	case "match_canceled":
		var m MatchCanceled
		return m, unmarshalPayload(data, &m)
	case "error":
		var m ServerError
		return m, unmarshalPayload(data, &m)
	case "round_closed":
		return RoundClosed{}, nil
	case "wrong_task":
		return WrongTask{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, tag.Type)
	}
}

func unmarshalPayload(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %T payload: %w", v, err)
	}
	return nil
}
