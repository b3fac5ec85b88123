package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/campuskv/campuskv/internal/api"
	"github.com/campuskv/campuskv/internal/broadcast"
	"github.com/campuskv/campuskv/internal/config"
	"github.com/campuskv/campuskv/internal/storage"
	"github.com/campuskv/campuskv/internal/wal"
	"github.com/campuskv/campuskv/kvsync"
)

var serverAddr string

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the CampusKV server",
	Run:   runServer,
}

func init() {
	serverCmd.Flags().StringVarP(&serverAddr, "address", "a", "", "Address to listen on (overrides CAMPUSKV_LISTEN_ADDR)")
}

func runServer(cmd *cobra.Command, args []string) {
	cfg := config.Load()
	if serverAddr != "" {
		cfg.ListenAddr = serverAddr
	}

	if cfg.LogFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
		})
	}

	// Storage: WAL-backed row table with snapshot recovery
	walManager, err := wal.NewManager(filepath.Join(cfg.DataDir, "wal"), wal.Config{
		MaxFileSize:    cfg.WALMaxFileSize,
		MaxFiles:       cfg.WALMaxFiles,
		RotationPeriod: cfg.WALRotation,
	})
	if err != nil {
		log.Fatalf("failed to open WAL: %v", err)
	}

	snapshotter, err := storage.NewFileSnapshotter(filepath.Join(cfg.DataDir, "snapshots"))
	if err != nil {
		log.Fatalf("failed to open snapshot directory: %v", err)
	}

	table := storage.NewTable(walManager, snapshotter, cfg.MaxTableSize)

	if path, err := snapshotter.Latest(); err != nil {
		log.Printf("snapshot listing failed: %v", err)
	} else if path != "" {
		if err := table.RestoreSnapshot(path); err != nil {
			log.Printf("snapshot restore failed: %v", err)
		}
	}
	if err := walManager.Recover(table.ApplyWALEntry); err != nil {
		log.Printf("WAL recovery failed: %v", err)
	}

	// Fan-out hub for the change feed
	hub := broadcast.NewHub(kvsync.IsSensitive)

	metrics := api.NewMetrics()
	metrics.UpdateStorageMetrics(table.GetMetrics())

	var tracer *api.Tracer
	if cfg.TracingEnabled {
		tracer, err = api.NewTracer("campuskv", cfg.JaegerEndpoint)
		if err != nil {
			log.Printf("tracing disabled: %v", err)
		}
	}

	var authManager *api.AuthManager
	if cfg.AuthEnabled {
		keyStore, err := api.NewFileAPIKeyStore(cfg.DataDir)
		if err != nil {
			log.Fatalf("failed to open API key store: %v", err)
		}
		authManager = api.NewAuthManager(keyStore)
	}

	healthManager := api.NewHealthManager()
	healthManager.RegisterChecker("storage", api.NewStorageHealthChecker(table))

	handler := api.NewHandler(table, hub, metrics, healthManager, kvsync.IsSensitive)
	srv := api.NewServer(cfg.ListenAddr, api.Router(handler, authManager, metrics, tracer))

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting CampusKV server on %s", cfg.ListenAddr)
		errCh <- srv.Start()
	}()

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, initiating shutdown", sig)
	case err := <-errCh:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	if _, err := table.CreateSnapshot(); err != nil {
		log.Printf("Failed to snapshot on shutdown: %v", err)
	}
	if err := walManager.Close(); err != nil {
		log.Printf("Failed to close WAL: %v", err)
	}
}
