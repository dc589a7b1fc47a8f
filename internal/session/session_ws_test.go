package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/playperu/taskduel/internal/auth"
	"github.com/playperu/taskduel/internal/transport"
)

// TestPlayThroughOverWebSocket drives a whole match against a scripted
// matchmaking server on a real WebSocket connection.
func TestPlayThroughOverWebSocket(t *testing.T) {
	serverDone := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/pvp/ws", func(w http.ResponseWriter, r *http.Request) {
		serverDone <- scriptMatch(r.Context(), w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dialer, err := transport.NewWSDialer(srv.URL, testLogger())
	if err != nil {
		t.Fatalf("new dialer: %v", err)
	}

	view := &fakeView{}
	notifier := &fakeNotifier{}
	s := New(dialer, auth.NewMemStore("tok"), view, notifier, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.JoinQueue() // connect
	waitFor(t, 2*time.Second, "connected", func() bool {
		return view.snapshot().status == "connected"
	})

	s.JoinQueue() // queue up; server pairs us immediately
	waitFor(t, 2*time.Second, "round one", func() bool {
		snap := view.snapshot()
		return snap.round == 1 && snap.task.ID == 101 && snap.answerEnabled
	})

	s.SubmitAnswer("4")
	waitFor(t, 2*time.Second, "round one settled", func() bool {
		snap := view.snapshot()
		return snap.scoreP1 == 1 && snap.scoreP2 == 0
	})
	waitFor(t, 2*time.Second, "round two", func() bool {
		snap := view.snapshot()
		return snap.round == 2 && snap.task.ID == 102 && snap.answerEnabled
	})

	s.SubmitAnswer("9")
	waitFor(t, 2*time.Second, "match over", func() bool {
		return view.snapshot().status == "match over: win"
	})

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if err := <-serverDone; err != nil {
		t.Fatalf("server script: %v", err)
	}
}

// scriptMatch plays the server's side of a two-round match: the client
// queues, gets paired, answers twice, wins.
func scriptMatch(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	send := func(frame string) error {
		return conn.Write(ctx, websocket.MessageText, []byte(frame))
	}
	expectType := func(want string) error {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var tag struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &tag); err != nil {
			return err
		}
		if tag.Type != want {
			return errUnexpectedFrame{got: tag.Type, want: want}
		}
		return nil
	}

	if err := send(`{"type":"connected"}`); err != nil {
		return err
	}
	if err := expectType("queue_join"); err != nil {
		return err
	}
	if err := send(`{"type":"queue_joined"}`); err != nil {
		return err
	}
	if err := send(`{"type":"match_found","match_id":"m-1","opponent_user_id":2,"round":1,"target_score":2,` +
		`"task":{"id":101,"title":"R1","statement":"2+2","subject":"math","topic":"arith","difficulty":1}}`); err != nil {
		return err
	}

	if err := expectType("answer_submit"); err != nil {
		return err
	}
	if err := send(`{"type":"answer_result","match_id":"m-1","is_correct":true,"scored":true,"player1_score":1,"player2_score":0}`); err != nil {
		return err
	}
	if err := send(`{"type":"round_end","winner_user_id":1,"player1_score":1,"player2_score":0}`); err != nil {
		return err
	}
	if err := send(`{"type":"next_task","match_id":"m-1","round":2,"task":{"id":102,"title":"R2","statement":"3*3","subject":"math","topic":"arith","difficulty":1}}`); err != nil {
		return err
	}

	if err := expectType("answer_submit"); err != nil {
		return err
	}
	if err := send(`{"type":"round_end","winner_user_id":1,"player1_score":2,"player2_score":0}`); err != nil {
		return err
	}
	if err := send(`{"type":"match_end","match_id":"m-1","result":"win","rating_before":1000,"rating_after":1016}`); err != nil {
		return err
	}

	// Hold the stream open until the client hangs up, so the close does
	// not race the match_end delivery.
	_, _, _ = conn.Read(ctx)
	return nil
}

type errUnexpectedFrame struct{ got, want string }

func (e errUnexpectedFrame) Error() string {
	return "unexpected frame type " + e.got + ", want " + e.want
}
