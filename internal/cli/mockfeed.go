package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aiden-platform/aiden-watch/internal/logging"
	"github.com/aiden-platform/aiden-watch/internal/mockfeed"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MockfeedCommand returns the aiden-mockfeed root command.
func MockfeedCommand() *cobra.Command {
	var (
		addr     string
		project  string
		token    string
		level    string
		interval time.Duration
		loop     bool
	)

	cmd := &cobra.Command{
		Use:   "aiden-mockfeed",
		Short: "Serve a scripted AIDEN event feed and review API",
		Long: `aiden-mockfeed stands in for the AIDEN backend. It serves /ws/{project}
and /api/v1/reviews, and once a client joins the project it plays an agent
run that pauses at every review stage until a decision is posted.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(zapcore.Lock(os.Stderr), logging.ParseLevel(level))
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := mockfeed.NewServer(mockfeed.Options{
				Token:        token,
				StepInterval: interval,
				Logger:       logger,
			})
			return serveMock(ctx, srv, addr, project, loop, logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "listen address")
	cmd.Flags().StringVarP(&project, "project", "p", "demo", "project the scripted run publishes to")
	cmd.Flags().StringVar(&token, "token", "", "require this bearer token")
	cmd.Flags().StringVar(&level, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "pause between scripted events")
	cmd.Flags().BoolVar(&loop, "loop", false, "start a new run after each one ends")
	return cmd
}

func serveMock(ctx context.Context, srv *mockfeed.Server, addr, project string, loop bool, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg conc.WaitGroup
	var serveErr error
	wg.Go(func() {
		defer logging.LogPanic(logger, "mockfeed-serve", nil)
		serveErr = srv.ListenAndServe(ctx, addr)
		cancel()
	})
	wg.Go(func() {
		defer logging.LogPanic(logger, "mockfeed-script", nil)
		playRuns(ctx, srv, project, loop, logger)
	})
	wg.Wait()
	return serveErr
}

// playRuns waits for a feed client on project, then plays runs.
func playRuns(ctx context.Context, srv *mockfeed.Server, project string, loop bool, logger *zap.Logger) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		for srv.ClientCount(project) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}

		err := srv.Run(ctx, project)
		switch {
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			logger.Warn("scripted run failed", zap.Error(err))
		default:
			logger.Info("scripted run finished", zap.String("project", project))
		}
		if !loop {
			<-ctx.Done()
			return
		}
	}
}
