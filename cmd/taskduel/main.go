package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/playperu/taskduel/internal/auth"
	"github.com/playperu/taskduel/internal/config"
	"github.com/playperu/taskduel/internal/taskapi"
)

const usage = `taskduel - play PvP quiz matches from the terminal

Usage:
  taskduel login <username>          sign in and store the token
  taskduel register <email> <user>   create an account
  taskduel logout                    forget the stored token
  taskduel tasks [flags]             browse the task catalog
  taskduel task <id>                 show one task
  taskduel submit <id> <answer>      answer a task outside PvP
  taskduel stats                     your submission summary
  taskduel play                      queue up for a PvP match
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer, args []string) error {
	// A .env next to the binary is a dev convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	creds := auth.NewFileStore(cfg.TokenFile)
	api := taskapi.New(cfg.ServerURL, cfg.HTTPTimeout, creds)

	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return nil
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "login":
		return cmdLogin(ctx, stdout, api, rest)
	case "register":
		return cmdRegister(ctx, stdout, api, rest)
	case "logout":
		if err := creds.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Signed out.")
		return nil
	case "tasks":
		return cmdTasks(ctx, stdout, api, rest)
	case "task":
		return cmdTask(ctx, stdout, api, rest)
	case "submit":
		return cmdSubmit(ctx, stdout, api, rest)
	case "stats":
		return cmdStats(ctx, stdout, api)
	case "play":
		return runPlay(ctx, stdout, cfg, creds, logger)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q (try: taskduel help)", cmd)
	}
}

func cmdLogin(ctx context.Context, stdout io.Writer, api *taskapi.Client, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: taskduel login <username>")
	}
	password, err := promptPassword(stdout, "Password: ")
	if err != nil {
		return err
	}
	if err := api.Login(ctx, args[0], password); err != nil {
		if errors.Is(err, taskapi.ErrAuthRequired) {
			return errors.New("invalid username or password")
		}
		return err
	}
	fmt.Fprintln(stdout, "Signed in.")
	return nil
}

func cmdRegister(ctx context.Context, stdout io.Writer, api *taskapi.Client, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: taskduel register <email> <username>")
	}
	password, err := promptPassword(stdout, "Choose a password: ")
	if err != nil {
		return err
	}
	if err := api.Register(ctx, args[0], args[1], password); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Account created. Sign in with: taskduel login "+args[1])
	return nil
}

func cmdTasks(ctx context.Context, stdout io.Writer, api *taskapi.Client, args []string) error {
	fs := flag.NewFlagSet("tasks", flag.ContinueOnError)
	var p taskapi.ListParams
	fs.StringVar(&p.Subject, "subject", "", "filter by subject")
	fs.StringVar(&p.Topic, "topic", "", "filter by topic")
	fs.StringVar(&p.Query, "q", "", "search in title and statement")
	fs.IntVar(&p.DifficultyMin, "min", 0, "minimum difficulty")
	fs.IntVar(&p.DifficultyMax, "max", 0, "maximum difficulty")
	fs.IntVar(&p.Limit, "limit", 50, "page size")
	fs.IntVar(&p.Offset, "offset", 0, "page offset")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tasks, err := api.ListTasks(ctx, p)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Fprintln(stdout, "No tasks found.")
		return nil
	}
	for _, t := range tasks {
		fmt.Fprintf(stdout, "%5d  %-40s  %s / %s, difficulty %d\n",
			t.ID, t.Title, t.Subject, t.Topic, t.Difficulty)
	}
	return nil
}

func cmdTask(ctx context.Context, stdout io.Writer, api *taskapi.Client, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: taskduel task <id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("task id must be a number, got %q", args[0])
	}

	t, err := api.GetTask(ctx, id)
	if errors.Is(err, taskapi.ErrNotFound) {
		return fmt.Errorf("task %d does not exist", id)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s\n%s / %s, difficulty %d\n\n%s\n", t.Title, t.Subject, t.Topic, t.Difficulty, t.Statement)
	if len(t.Hints) > 0 {
		fmt.Fprintln(stdout, "\nHints: "+strings.Join(t.Hints, " | "))
	}
	return nil
}

func cmdSubmit(ctx context.Context, stdout io.Writer, api *taskapi.Client, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: taskduel submit <id> <answer>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("task id must be a number, got %q", args[0])
	}

	sub, err := api.Submit(ctx, id, strings.Join(args[1:], " "))
	switch {
	case errors.Is(err, taskapi.ErrAuthRequired):
		return errors.New("you must sign in first: taskduel login <username>")
	case errors.Is(err, taskapi.ErrAlreadyAnswered):
		fmt.Fprintln(stdout, "You already answered this task.")
		return nil
	case err != nil:
		return err
	}

	if sub.IsCorrect {
		fmt.Fprintln(stdout, "Correct!")
	} else {
		fmt.Fprintln(stdout, "Wrong answer.")
	}
	return nil
}

func cmdStats(ctx context.Context, stdout io.Writer, api *taskapi.Client) error {
	s, err := api.Summary(ctx)
	if errors.Is(err, taskapi.ErrAuthRequired) {
		return errors.New("you must sign in first: taskduel login <username>")
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Submissions: %d\nCorrect:     %d\nAccuracy:    %.1f%%\n",
		s.TotalSubmissions, s.CorrectSubmissions, s.Accuracy*100)
	for _, sub := range s.BySubject {
		fmt.Fprintf(stdout, "  %-12s %d/%d\n", sub.Subject, sub.Correct, sub.Total)
	}
	return nil
}

func promptPassword(stdout io.Writer, prompt string) (string, error) {
	fmt.Fprint(stdout, prompt)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(stdout)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if len(data) == 0 {
		return "", errors.New("password must not be empty")
	}
	return string(data), nil
}
