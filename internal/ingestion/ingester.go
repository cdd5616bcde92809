// Package ingestion feeds batches of JSON-lines reports through the pipeline.
// Each line is one report object; lines already ingested, in this batch or an
// earlier one, are skipped by content hash.
package ingestion

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mr1hm/go-relief-pipeline/internal/config"
	"github.com/mr1hm/go-relief-pipeline/internal/models"
	"github.com/mr1hm/go-relief-pipeline/internal/repository"
	"github.com/mr1hm/go-relief-pipeline/internal/worker"
)

const (
	defaultReporter = "batch"
	maxLineBytes    = 1 << 20
)

// Submitter runs one report through every stage.
type Submitter interface {
	Submit(ctx context.Context, r models.Report) (*models.Envelope, error)
}

type Stats struct {
	Lines      int
	Submitted  int
	Duplicates int
	Invalid    int
	Completed  int
	Failed     int
}

type Manager struct {
	cfg       config.WorkerConfig
	seen      repository.SeenRepository
	submitter Submitter
}

func NewManager(cfg config.WorkerConfig, seen repository.SeenRepository, submitter Submitter) *Manager {
	return &Manager{
		cfg:       cfg,
		seen:      seen,
		submitter: submitter,
	}
}

type job struct {
	line   int
	hash   string
	report models.Report
}

func (m *Manager) IngestFile(ctx context.Context, path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("error opening %s: %w", path, err)
	}
	defer f.Close()
	return m.Ingest(ctx, f)
}

// Ingest reads reports from r and submits the new ones on the worker pool.
// Reports in one batch are processed concurrently; it returns once all
// queued reports have finished.
func (m *Manager) Ingest(ctx context.Context, r io.Reader) (Stats, error) {
	processor := func(ctx context.Context, j job) error {
		env, err := m.submitter.Submit(ctx, j.report)
		if err != nil {
			slog.Error("error submitting report", "line", j.line, "error", err)
			return err
		}
		if err := m.seen.MarkSeen(ctx, j.hash); err != nil {
			slog.Error("error marking report seen", "line", j.line, "incident_id", env.IncidentID(), "error", err)
			return err
		}
		slog.Debug("ingested report", "line", j.line, "incident_id", env.IncidentID())
		return nil
	}

	pool := worker.NewPool(m.cfg.Count, m.cfg.BufferSize, processor)
	pool.Start(ctx)

	stats, readErr := m.enqueue(ctx, r, pool)
	pool.Stop()

	stats.Completed = int(pool.Processed())
	stats.Failed = int(pool.Failed())
	slog.Info("batch ingested",
		"lines", stats.Lines,
		"submitted", stats.Submitted,
		"duplicates", stats.Duplicates,
		"invalid", stats.Invalid,
		"failed", stats.Failed,
	)
	return stats, readErr
}

func (m *Manager) enqueue(ctx context.Context, r io.Reader, pool *worker.Pool[job]) (Stats, error) {
	var stats Stats
	batch := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Lines++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var fields map[string]any
		if err := json.Unmarshal(line, &fields); err != nil {
			stats.Invalid++
			slog.Warn("skipping malformed report", "line", stats.Lines, "error", err)
			continue
		}

		hash, err := ContentHash(fields)
		if err != nil {
			stats.Invalid++
			slog.Warn("skipping unhashable report", "line", stats.Lines, "error", err)
			continue
		}
		if _, dup := batch[hash]; dup {
			stats.Duplicates++
			continue
		}
		seen, err := m.seen.IsSeen(ctx, hash)
		if err != nil {
			return stats, fmt.Errorf("error checking seen items: %w", err)
		}
		if seen {
			stats.Duplicates++
			continue
		}
		batch[hash] = struct{}{}

		if err := pool.Submit(ctx, job{line: stats.Lines, hash: hash, report: models.ReportFromFields(fields, defaultReporter)}); err != nil {
			return stats, err
		}
		stats.Submitted++
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("error reading reports: %w", err)
	}
	return stats, nil
}

// ContentHash identifies a report by its fields regardless of key order or
// whitespace.
func ContentHash(fields map[string]any) (string, error) {
	canonical, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
