package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/playperu/taskduel/internal/auth"
	"github.com/playperu/taskduel/internal/config"
	"github.com/playperu/taskduel/internal/notify"
	"github.com/playperu/taskduel/internal/protocol"
	"github.com/playperu/taskduel/internal/session"
	"github.com/playperu/taskduel/internal/transport"
)

// runPlay wires the PvP session to the terminal: the session loop and a
// notice printer run under an errgroup, while a detached stdin reader
// turns typed lines into intents.
func runPlay(ctx context.Context, stdout io.Writer, cfg *config.Config, creds *auth.FileStore, logger *slog.Logger) error {
	dialer, err := transport.NewWSDialer(cfg.ServerURL, logger)
	if err != nil {
		return err
	}

	broker := notify.NewBroker()
	view := &termView{out: stdout}
	sess := session.New(dialer, creds, view, broker, logger)

	fmt.Fprintln(stdout, "Commands: j = join queue, l = leave queue, q = quit.")
	fmt.Fprintln(stdout, "Anything else you type is submitted as your answer.")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go readIntents(sess, cancel)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sess.Run(gctx)
	})

	g.Go(func() error {
		ch := broker.Subscribe()
		defer broker.Unsubscribe(ch)
		for {
			select {
			case <-gctx.Done():
				return nil
			case n := <-ch:
				fmt.Fprintf(stdout, "[%s] %s\n", n.Severity, n.Message)
			}
		}
	})

	return g.Wait()
}

// readIntents blocks on stdin for the life of the process; when the
// session winds down first, the process exits and takes this goroutine
// with it.
func readIntents(sess *session.Session, quit context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch line := strings.TrimSpace(scanner.Text()); line {
		case "":
		case "j", "join":
			sess.JoinQueue()
		case "l", "leave":
			sess.LeaveQueue()
		case "q", "quit":
			quit()
			return
		default:
			sess.SubmitAnswer(line)
		}
	}
	quit()
}

// termView renders the session's decisions as plain terminal lines.
type termView struct {
	out io.Writer
}

func (v *termView) SetStatus(status string) {
	fmt.Fprintf(v.out, "-- %s\n", status)
}

func (v *termView) ShowMatch(matchID string, opponentUserID int64) {
	fmt.Fprintf(v.out, "Match %s against player #%d\n", matchID, opponentUserID)
}

func (v *termView) ShowTask(round int, task protocol.Task) {
	fmt.Fprintf(v.out, "\nRound %d: %s (%s / %s, difficulty %d)\n%s\n",
		round, task.Title, task.Subject, task.Topic, task.Difficulty, task.Statement)
}

func (v *termView) SetScore(player1, player2 int) {
	fmt.Fprintf(v.out, "Score: %d - %d\n", player1, player2)
}

func (v *termView) SetAnswerEnabled(enabled bool) {
	if enabled {
		fmt.Fprintln(v.out, "Your answer?")
	}
}
