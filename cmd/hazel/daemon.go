package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mvold/hazel/internal/api"
	"github.com/mvold/hazel/internal/classify"
	"github.com/mvold/hazel/internal/config"
	"github.com/mvold/hazel/internal/dispatch"
	"github.com/mvold/hazel/internal/harness"
	"github.com/mvold/hazel/internal/mode"
	"github.com/mvold/hazel/internal/models"
	"github.com/mvold/hazel/internal/scheduler"
	"github.com/mvold/hazel/internal/session"
	"github.com/mvold/hazel/internal/store"
	"github.com/spf13/cobra"
)

var (
	configPath string
	listenAddr string
	dbPath     string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the Hazel daemon",
	Long:  `Starts the Hazel daemon: mode state machine, fallback dispatcher, task store, proactive scheduler, and the HTTP API.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&configPath, "config", config.DefaultPath(), "Path to config file")
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	log.Println("Starting Hazel daemon...")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	s, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}

	registry, err := harness.NewRegistry(cfg.Harnesses...)
	if err != nil {
		s.Close()
		return err
	}

	modes, err := mode.NewManager(s, defaultModeHandlers())
	if err != nil {
		s.Close()
		return err
	}

	var primary classify.Classifier
	if cfg.Classifier.Endpoint != "" {
		primary = classify.NewLLMClassifier(cfg.Classifier.Endpoint, cfg.Classifier.Model, cfg.ClassifierAPIKey(), registry.IDs())
	}
	planner := classify.NewPlanner(primary, registry)

	dispatcher := dispatch.New(registry, harness.NewPathProber(registry), harness.NewCLIExecutor(), s, modes, nil, cfg.Workspace)

	var sess *session.Session
	sched := scheduler.New(s, func(ctx context.Context, command string) error {
		return sess.Run(ctx, command)
	})
	sess = session.New(modes, planner, dispatcher, sched, s, cfg.GuardTerms)

	if err := sched.Restore(); err != nil {
		log.Printf("Warning: %v", err)
	}
	for _, job := range cfg.IntervalJobs {
		if _, err := sched.RegisterInterval(job.ID, job.Command, job.Interval); err != nil {
			log.Printf("Warning: failed to register interval job %s: %v", job.ID, err)
		}
	}
	defer sched.Stop()

	server := api.NewServer(s, modes, sched, sess, cfg.Listen)

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("Server error: %v", err)
			s.Close()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	sched.Stop()

	log.Println("Closing database connection...")
	if err := s.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}

// defaultModeHandlers wires a logging hook per declared mode. The mode
// manager rejects construction if any declared mode is missing here.
func defaultModeHandlers() map[models.Mode]mode.Handler {
	logEnter := func(name models.Mode) func(models.Mode, map[string]string) error {
		return func(from models.Mode, data map[string]string) error {
			log.Printf("Mode %s -> %s", from, name)
			return nil
		}
	}

	return map[models.Mode]mode.Handler{
		models.ModeIdle:    {OnEnter: logEnter(models.ModeIdle)},
		models.ModeWorking: {OnEnter: logEnter(models.ModeWorking)},
		models.ModeWaiting: {
			OnEnter: func(from models.Mode, data map[string]string) error {
				log.Printf("Mode %s -> waiting (question: %s)", from, data["question"])
				return nil
			},
		},
		models.ModeGuarding: {
			OnEnter: func(from models.Mode, data map[string]string) error {
				log.Printf("Mode %s -> guarding (pending: %s)", from, data["command"])
				return nil
			},
		},
		// Reserved extension point; registration only.
		models.ModeResting: {},
	}
}
