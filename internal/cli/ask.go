package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dwizi/einstein/internal/app"
	"github.com/dwizi/einstein/internal/config"
	"github.com/dwizi/einstein/internal/mention"
)

type writerReplier struct {
	out io.Writer
}

func (w writerReplier) Reply(ctx context.Context, text string) error {
	_, err := fmt.Fprintln(w.out, text)
	return err
}

// newAskCommand prints the answer on stdout, so the runtime logs go to stderr
// in the same JSON form the process logger uses.
func newAskCommand() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question with the configured model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelInfo}))
			runtime, err := app.New(config.FromEnv(), logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			question := strings.Join(args, " ")
			outcome := runtime.Ask(cmd.Context(), userID, question, writerReplier{out: cmd.OutOrStdout()})
			if outcome.State == mention.StateFailed {
				return fmt.Errorf("ask failed: %w", outcome.Err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "local", "user id used for the cooldown and audit log")
	return cmd
}
