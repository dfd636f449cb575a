// Command server runs the embedded key-value store behind a RESP
// front end, grounded on the teacher's cmd/server/main.go: load
// configuration, build a logger, open the storage engine, start the
// network loop, and wait for SIGINT/SIGTERM to shut both down
// gracefully.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ganjayant/lsmkv/compressors"
	"github.com/ganjayant/lsmkv/config"
	"github.com/ganjayant/lsmkv/core"
	"github.com/ganjayant/lsmkv/engine"
	"github.com/ganjayant/lsmkv/netpoll"
)

func createLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	var output io.Writer
	var closer io.Closer
	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		output = os.Stdout
	case "file":
		if cfg.File == "" {
			return nil, nil, fmt.Errorf("log output is 'file' but no file path is specified")
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", cfg.File, err)
		}
		output = file
		closer = file
	case "none":
		output = io.Discard
	default:
		return nil, nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	logger := slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
	return logger, closer, nil
}

func selectCompressor(name string) (core.Compressor, error) {
	compressor, err := compressors.ByName(name)
	if err != nil {
		return nil, fmt.Errorf("engine.sstable.compression %q: %w", name, err)
	}
	return compressor, nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := createLogger(cfg.Logging)
	if err != nil {
		slog.Error("failed to create logger", "error", err)
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	compressor, err := selectCompressor(cfg.Engine.SSTable.Compression)
	if err != nil {
		logger.Error("failed to select sstable compressor", "error", err)
		os.Exit(1)
	}

	eng, err := engine.Open(engine.Options{
		DataDir:           cfg.Engine.DataDir,
		MemtableThreshold: cfg.Engine.Memtable.SizeThresholdBytes,
		MaxSegmentCount:   cfg.Engine.Compaction.MaxSegmentCount,
		Compressor:        compressor,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("failed to open storage engine", "error", err)
		os.Exit(1)
	}

	srv, err := netpoll.New(cfg.Server.ListenAddress, eng, logger)
	if err != nil {
		logger.Error("failed to start network front end", "error", err)
		eng.Close()
		os.Exit(1)
	}

	logger.Info("server running", "address", cfg.Server.ListenAddress, "data_dir", cfg.Engine.DataDir)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Run() }()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("server exited with an error", "error", err)
		}
	case <-quit:
		logger.Info("shutdown signal received, stopping server")
		srv.Close()
		<-serverErr
	}

	if err := eng.Close(); err != nil {
		logger.Error("error closing storage engine", "error", err)
	}
	logger.Info("server exited gracefully")
}
