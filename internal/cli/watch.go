package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aiden-platform/aiden-watch/internal/app"
	"github.com/aiden-platform/aiden-watch/internal/client"
	"github.com/aiden-platform/aiden-watch/internal/config"
	"github.com/aiden-platform/aiden-watch/internal/logging"
	"github.com/aiden-platform/aiden-watch/internal/session"
	"github.com/aiden-platform/aiden-watch/internal/stream"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logPath := cfg.Log.Path
	if logPath == "" {
		logPath = logging.DefaultLogPath()
	}
	logger, closeLog, err := logging.Setup(logPath, logging.ParseLevel(cfg.Log.Level))
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer closeLog()

	project, _ := cmd.Flags().GetString("project")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := newSession(cfg, logger)
	defer sess.Close()

	if path := viper.ConfigFileUsed(); path != "" && readErr == nil {
		watchConfig(ctx, path, sess, logger)
	}

	logger.Info("aiden-watch starting",
		zap.String("base_url", cfg.Server.BaseURL),
		zap.String("project", project))

	p := tea.NewProgram(app.New(sess, app.Options{Project: project}),
		tea.WithAltScreen(),
		tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func newSession(cfg *config.Config, logger *zap.Logger) *session.Session {
	return session.New(session.Options{
		Transport: client.NewWSTransport(cfg.Server.Token, logger),
		Reviews:   client.NewHTTPClient(cfg.HTTPBaseURL(), cfg.Server.Token),
		Stream: stream.Options{
			BaseURL:       cfg.WSBaseURL(),
			ReconnectBase: cfg.Stream.ReconnectBase,
			ReconnectMax:  cfg.Stream.ReconnectMax,
			PingInterval:  cfg.Stream.PingInterval,
			Logger:        logger,
		},
		Stages: cfg.StagesFor,
		Logger: logger,
	})
}

// watchConfig applies edited stage tables from the next target switch.
func watchConfig(ctx context.Context, path string, sess *session.Session, logger *zap.Logger) {
	err := config.Watch(ctx, path, func(cfg *config.Config, err error) {
		if err != nil {
			logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))
			return
		}
		sess.SetStageResolver(cfg.StagesFor)
		logger.Info("config reloaded", zap.String("path", path))
	})
	if err != nil {
		logger.Warn("config watch disabled", zap.Error(err))
	}
}
