// wview-load feeds a directory of webhook payload JSON files through the
// ingestion pipeline and prints a store summary.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rlopes/wview/internal/bus"
	"github.com/rlopes/wview/internal/config"
	"github.com/rlopes/wview/internal/ingest"
	"github.com/rlopes/wview/internal/logging"
	"github.com/rlopes/wview/internal/metrics"
	"github.com/rlopes/wview/internal/store"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "wview.toml", "path to config file")
	dir := flag.String("dir", ".", "directory containing payload JSON files")
	flag.Parse()

	if err := run(*configPath, *dir); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, dir string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New("")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Migrate(); err != nil {
		return err
	}

	pipeline := ingest.New(db, bus.New(), metrics.New(prometheus.NewRegistry()), logger)

	files, err := payloadFiles(dir)
	if err != nil {
		return err
	}
	logger.Info("processing payload files", zap.Int("count", len(files)))

	processed := 0
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			logger.Warn("skipping unreadable file", zap.String("file", file), zap.Error(err))
			continue
		}
		outcome, err := pipeline.ProcessPayload(raw)
		if err != nil {
			logger.Warn("skipping payload", zap.String("file", file), zap.Error(err))
			continue
		}
		logger.Info("payload processed", zap.String("file", filepath.Base(file)), zap.String("outcome", string(outcome)))
		processed++
	}
	logger.Info("processing complete", zap.Int("processed", processed), zap.Int("total", len(files)))

	return printSummary(db)
}

func payloadFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func printSummary(db *store.DB) error {
	summary, err := db.StoreSummary()
	if err != nil {
		return err
	}

	fmt.Println("Database summary:")
	fmt.Printf("  total messages: %d\n", summary.TotalMessages)
	fmt.Printf("  conversations:  %d\n", summary.Conversations)
	fmt.Println("  status distribution:")

	statuses := make([]string, 0, len(summary.StatusCounts))
	for status := range summary.StatusCounts {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Printf("    %s: %d\n", status, summary.StatusCounts[status])
	}
	return nil
}
