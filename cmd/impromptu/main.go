package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"impromptu/internal/bootstrap"
	"impromptu/internal/config"
	"impromptu/internal/domain"
	"impromptu/internal/modes"
	"impromptu/internal/ui/tui"
	"impromptu/internal/words"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "impromptu",
		Short:         "Impromptu speaking practice",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")

	root.AddCommand(newPracticeCmd(&envFile))
	root.AddCommand(newHistoryCmd(&envFile))
	root.AddCommand(newShowCmd(&envFile))
	root.AddCommand(newDeleteCmd(&envFile))
	root.AddCommand(newModesCmd(&envFile))
	root.AddCommand(newWordsCmd(&envFile))
	return root
}

func loadConfig(envFile string) (config.Config, error) {
	if envFile == "" {
		return config.LoadFiles()
	}
	return config.LoadFiles(envFile)
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	if cfg.Development() {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func newPracticeCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "practice",
		Short: "Run a practice session in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.LogPath()), 0o755); err != nil {
				return fmt.Errorf("failed to create data dir: %w", err)
			}
			logFile, err := os.OpenFile(cfg.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			defer logFile.Close()

			logger := newLogger(cfg, logFile)
			slog.SetDefault(logger)
			return runPractice(cmd.Context(), cfg, logger)
		},
	}
}

func runPractice(parent context.Context, cfg config.Config, logger *slog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink := tui.NewSink()
	services, err := bootstrap.BuildWith(cfg, sink, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn("failed to release resources", "error", err)
		}
	}()

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := services.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event loop stopped", "error", err)
		}
	}()

	runErr := tui.Run(ctx, services.Driver, sink)

	closeCtx, cancelClose := context.WithTimeout(context.Background(), cfg.Audio.StopTimeout+time.Second)
	if err := services.Driver.Close(closeCtx); err != nil {
		logger.Warn("failed to close session controller", "error", err)
	}
	cancelClose()
	cancelLoop()
	<-loopDone
	return runErr
}

func newHistoryCmd(envFile *string) *cobra.Command {
	var limit int
	history := &cobra.Command{
		Use:   "history",
		Short: "List stored sessions, most recent first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			store, closeFn, err := bootstrap.OpenRecords(cfg, newLogger(cfg, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer closeFn()

			sessions := store.List()
			if len(sessions) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
				return nil
			}
			if limit > 0 && len(sessions) > limit {
				sessions = sessions[:limit]
			}
			for _, s := range sessions {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), historyLine(s))
			}
			return nil
		},
	}
	history.Flags().IntVar(&limit, "limit", 0, "show at most this many sessions")
	return history
}

func historyLine(s domain.Session) string {
	score := "-"
	if s.OverallScore != nil {
		score = fmt.Sprintf("%.1f", *s.OverallScore)
	}
	status := string(s.Status)
	if s.CancelReason != "" {
		status += "/" + string(s.CancelReason)
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s",
		s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04"), status, s.Mode, s.Word, score)
}

func newShowCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one session as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			store, closeFn, err := bootstrap.OpenRecords(cfg, newLogger(cfg, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer closeFn()

			session, ok := store.Get(args[0])
			if !ok {
				return fmt.Errorf("session %q not found", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(session)
		},
	}
}

func newDeleteCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			store, closeFn, err := bootstrap.OpenRecords(cfg, newLogger(cfg, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer closeFn()

			if !store.Delete(cmd.Context(), args[0]) {
				return fmt.Errorf("session %q not found", args[0])
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newModesCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List practice modes and their timings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			table, err := modes.Load(cfg.Practice.ModesFile)
			if err != nil {
				return err
			}
			for _, m := range table.All() {
				marker := " "
				if m.Name == cfg.Practice.DefaultMode {
					marker = "*"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\tthink %ds\tspeak %ds\t%s\n",
					marker, m.Name, m.ThinkSeconds, m.SpeakSeconds, m.Descriptor)
			}
			return nil
		},
	}
}

func newWordsCmd(envFile *string) *cobra.Command {
	var category string
	wordsCmd := &cobra.Command{
		Use:   "words",
		Short: "List the topic words",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			pool, err := words.Load(cfg.Practice.WordsFile)
			if err != nil {
				return err
			}
			count := 0
			for _, e := range pool.Entries() {
				if category != "" && e.Category != category {
					continue
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", e.Category, e.Word)
				count++
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%d word(s)\n", count)
			return nil
		},
	}
	wordsCmd.Flags().StringVar(&category, "category", "", "only list words from this category")
	return wordsCmd
}
