package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/config"
	"github.com/parlorhq/parlor/internal/core"
	"github.com/parlorhq/parlor/internal/core/engine"
	"github.com/parlorhq/parlor/internal/observability"
)

// transportCLI tags turns that arrive through the chat command.
const transportCLI = "cli"

var chatUserID string

var chatCmd = &cobra.Command{
	Use:   "chat [message...]",
	Short: "Run conversational turns from the terminal",
	Long: `Run turns against the configured store and provider as if the user had
sent them over a transport.

With a message argument a single turn runs and the reply is printed. Without
arguments each line read from stdin is a turn, until EOF.`,
	Example: `  parlor chat --user 42 "hi there"
  printf 'hello\nhow are you?\n' | parlor chat --user 42`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatUserID, "user", "u", "", "user id the turns belong to (required)")
	_ = chatCmd.MarkFlagRequired("user")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = engine.WithTransport(ctx, transportCLI)

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := buildRuntime(ctx, cfg, observability.CLILogger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(context.Background()); closeErr != nil {
			observability.CLILogger.Warn("Relay shutdown incomplete", zap.Error(closeErr))
		}
	}()

	out := cmd.OutOrStdout()
	if len(args) > 0 {
		return chatTurn(ctx, rt.Relay, out, chatUserID, strings.Join(args, " "))
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := chatTurn(ctx, rt.Relay, out, chatUserID, line); err != nil {
			var relayErr *core.Error
			if !errors.As(err, &relayErr) {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "! %v\n", err)
		}
	}
	return scanner.Err()
}

// chatTurn runs one turn and prints the reply.
func chatTurn(ctx context.Context, relay *engine.Relay, out io.Writer, userID, message string) error {
	reply, err := relay.Handle(ctx, userID, message)
	switch {
	case errors.Is(err, core.ErrRateLimited):
		return fmt.Errorf("rate limited: %w", err)
	case err != nil:
		return err
	}
	_, err = fmt.Fprintln(out, reply)
	return err
}
