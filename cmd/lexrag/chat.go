package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/liliang-cn/lexrag/internal/domain"
	"github.com/liliang-cn/lexrag/internal/service"
	"github.com/spf13/cobra"
)

var (
	askSession  string
	askNoSource bool
)

// chatCmd starts an interactive conversation
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	Long: `Starts an interactive chat with the backend.

Type a question and press Enter. Press Ctrl-C while an answer is streaming
to cancel it.

Commands:
  /new            start a new session
  /sessions       list sessions (* marks the active one)
  /select <n|id>  switch to a session by list number or id
  /delete <n|id>  delete a session
  /quit           exit`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

// askCmd sends a single question
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question and print the answer",
	Long: `Sends one question and prints the streamed answer.

Without --session a new session is created for the question.

Example:
  lexrag ask "What does Section 420 of the IPC cover?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "Existing session id to ask in")
	askCmd.Flags().BoolVar(&askNoSource, "no-sources", false, "Do not print source passages")
}

func runChat(cmd *cobra.Command, args []string) error {
	chat, closeLog, err := newChatService()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := context.WithCancel(cmd.Context())
	defer stop()

	// Ctrl-C cancels the answer in flight instead of killing the process
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				if !chat.Cancel() {
					fmt.Fprintln(cmd.ErrOrStderr(), "\n(type /quit to exit)")
				}
			}
		}
	}()

	return runREPL(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), chat)
}

// runREPL reads questions and commands from in until EOF or /quit
func runREPL(ctx context.Context, in io.Reader, out io.Writer, chat *service.ChatService) error {
	registry := chat.Registry()
	chat.Subscribe(newRenderer(out))

	if err := registry.Load(ctx); err != nil {
		return fmt.Errorf("backend not available: %w", err)
	}
	fmt.Fprintf(out, "Connected. %d session(s). Type /quit to exit.\n", len(registry.Sessions()))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "/") {
			quit, err := runSlashCommand(ctx, out, registry, line)
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		if _, err := chat.Send(ctx, line); err != nil {
			if errors.Is(err, domain.ErrEmptyInput) {
				continue
			}
			fmt.Fprintf(out, "! %v\n", err)
		}
	}
}

func runSlashCommand(ctx context.Context, out io.Writer, registry *service.SessionRegistry, line string) (bool, error) {
	fields := strings.Fields(line)
	name, arg := fields[0], ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/new":
		s, err := registry.CreateSession(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Started session %s\n", s.ID)
	case "/sessions":
		if err := registry.Load(ctx); err != nil {
			return false, err
		}
		printSessionList(out, registry.Sessions(), registry.ActiveID())
	case "/select":
		id, err := resolveSession(registry, arg)
		if err != nil {
			return false, err
		}
		if err := registry.SelectSession(id); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Switched to session %s\n", id)
	case "/delete":
		id, err := resolveSession(registry, arg)
		if err != nil {
			return false, err
		}
		if err := registry.DeleteSession(ctx, id); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Deleted session %s\n", id)
	default:
		return false, fmt.Errorf("unknown command %s", name)
	}
	return false, nil
}

// resolveSession accepts a 1-based list position or a session id
func resolveSession(registry *service.SessionRegistry, arg string) (string, error) {
	if arg == "" {
		return "", errors.New("missing session number or id")
	}
	sessions := registry.Sessions()
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(sessions) {
		return sessions[n-1].ID, nil
	}
	return arg, nil
}

func printSessionList(out io.Writer, sessions []domain.SessionSummary, activeID string) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions.")
		return
	}
	for i, s := range sessions {
		marker := " "
		if s.ID == activeID {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %d. %s (%d turns) %s\n", marker, i+1, s.Title, s.Turns, s.ID)
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	chat, closeLog, err := newChatService()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	registry := chat.Registry()
	if askSession != "" {
		if err := registry.Load(ctx); err != nil {
			return err
		}
		if err := registry.SelectSession(askSession); err != nil {
			return err
		}
	}

	r := newRenderer(cmd.OutOrStdout())
	r.showSources = !askNoSource
	chat.Subscribe(r)

	msg, err := chat.Send(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if msg.Phase == domain.PhaseErrored {
		return fmt.Errorf("answer failed: %s", msg.Error.Kind)
	}
	return nil
}
