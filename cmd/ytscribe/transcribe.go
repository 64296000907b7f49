package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/ytscribe/internal/progress"
)

func newTranscribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe <url>",
		Short: "Transcribe one video; progress goes to stderr, the transcript to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			job := a.orch.NewJob(args[0])
			res, err := a.orch.Run(ctx, job, progressPrinter(cmd.ErrOrStderr()))
			if err != nil {
				return fmt.Errorf("job %s: %w", job.ID, err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return err
		},
	}
}

// progressPrinter renders events as "[ 42%] step: message" lines.
func progressPrinter(w io.Writer) progress.Sink {
	return progress.SinkFunc(func(ev progress.Event) {
		switch ev.Step {
		case progress.StepError:
			fmt.Fprintf(w, "[fail] %s\n", ev.Error)
		case progress.StepComplete:
			if ev.Files == nil {
				ev.Files = &progress.Files{}
			}
			fmt.Fprintf(w, "[%3d%%] %s: %s (%s)\n", ev.Progress, ev.Step, ev.Message, ev.Files.Text)
		default:
			fmt.Fprintf(w, "[%3d%%] %s: %s\n", ev.Progress, ev.Step, ev.Message)
		}
	})
}
