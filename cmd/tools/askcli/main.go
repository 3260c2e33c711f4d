package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/magic-chat/backend/internal/config"
	handlerchat "github.com/zhouzirui/magic-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/magic-chat/backend/internal/logging"
	"github.com/zhouzirui/magic-chat/backend/internal/model/chat"
	"github.com/zhouzirui/magic-chat/backend/internal/render"
	chatservice "github.com/zhouzirui/magic-chat/backend/internal/service/chat"
	"github.com/zhouzirui/magic-chat/backend/internal/service/remote"
	"github.com/zhouzirui/magic-chat/backend/internal/service/session"
)

var (
	// Global flags
	verbose     bool
	endpoint    string
	sessionFlag string
	sessionFile string
	width       int
	plain       bool
	timeout     time.Duration

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "askcli",
	Short: "Ask Magic: The Gathering rules questions from the terminal",
	Long: `askcli talks to the same answering service as the web chat.

Mana symbols such as {T}, {2}{R} or {G/P} in answers are rendered as
coloured badges. The session id is kept in a YAML file so a conversation
continues across runs.

Run without arguments to start an interactive session.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		var err error
		logger, err = logging.New(logging.Config{Level: level})
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		return c.repl(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		return c.ask(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "))
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Print the session id used for questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := resolver().Resolve(sessionFlag)
		_, err := fmt.Fprintln(cmd.OutOrStdout(), s.ID)
		return err
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Start a new session",
	RunE: func(cmd *cobra.Command, args []string) error {
		id := uuid.NewString()
		if err := session.NewFileStorage(sessionFile).Set(session.DefaultStorageKey, id); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), id)
		return err
	},
}

func init() {
	defaultSessionFile := "askcli-session.yaml"
	if dir, err := os.UserConfigDir(); err == nil {
		defaultSessionFile = filepath.Join(dir, "magic-chat", "session.yaml")
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "Answering service URL (default: ANSWER_URL or the APP_ENV endpoint)")
	rootCmd.PersistentFlags().StringVarP(&sessionFlag, "session", "s", "", "Use this session id instead of the stored one")
	rootCmd.PersistentFlags().StringVar(&sessionFile, "session-file", defaultSessionFile, "Where the session id is stored")
	rootCmd.PersistentFlags().IntVar(&width, "width", 80, "Word wrap width")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "Disable colours")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Request timeout (default: ANSWER_TIMEOUT, none if unset)")

	rootCmd.AddCommand(askCmd, sessionCmd, resetCmd)
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolver() *session.Resolver {
	return session.NewResolver(session.NewFileStorage(sessionFile), session.WithLogger(logger))
}

// client holds one terminal conversation.
type client struct {
	sender    chatservice.Sender
	sessionID string
	conv      *chatservice.Conversation
	term      *render.Terminal
}

func newClient() (*client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	url := cfg.Remote.URL
	if endpoint != "" {
		url = endpoint
	}
	d := cfg.Remote.Timeout
	if timeout > 0 {
		d = timeout
	}

	s := resolver().Resolve(sessionFlag)
	logger.Debug("resolved session", zap.String("session_id", s.ID), zap.String("endpoint", url))

	return &client{
		sender:    remote.NewClient(url, remote.WithTimeout(d), remote.WithLogger(logger)),
		sessionID: s.ID,
		conv:      chatservice.NewConversation(),
		term:      render.NewTerminal(width, plain),
	}, nil
}

func (c *client) repl(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Session %s. Type /quit to exit.\n", c.sessionID)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/session":
			fmt.Fprintln(out, c.sessionID)
			continue
		}

		if err := c.ask(ctx, out, line); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// ask sends one question and prints the resulting turns. Send failures are
// printed, not returned.
func (c *client) ask(ctx context.Context, out io.Writer, question string) error {
	user, err := c.conv.Append(chat.NewUserTurn(uuid.NewString(), question, time.Now()))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, c.term.Render(user))

	turns, err := c.sender.Send(ctx, question, c.sessionID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		logger.Debug("send failed", zap.Error(err))
		fmt.Fprintln(out, "error: "+handlerchat.Describe(err).Message)
		return nil
	}

	if len(turns) == 0 {
		fmt.Fprintln(out, "(no answer)")
	}
	for _, t := range turns {
		added, err := c.conv.Append(t)
		if errors.Is(err, chatservice.ErrDuplicateTurn) {
			continue
		}
		fmt.Fprintln(out, c.term.Render(added))
	}
	return nil
}
