package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skosovsky/toolsynth"
	"github.com/skosovsky/toolsynth/fsp"
	"github.com/skosovsky/toolsynth/graph"
	"github.com/skosovsky/toolsynth/walk"
)

// Sink receives finished path records.
type Sink interface {
	Write(ctx context.Context, records []PathRecord) error
}

// Synthesizer runs the whole flow: normalize the raw catalog, build (or reuse) the
// dependency graph, walk it, execute the paths and hand the records to the sink.
type Synthesizer struct {
	Normalizer *toolsynth.Normalizer
	Builder    *graph.Builder
	Walker     *walk.Walker
	Oracles    Oracles
	// Snapshots caches graphs per catalog. Optional.
	Snapshots *graph.SnapshotStore
	// Sink receives the records. Optional.
	Sink          Sink
	RunnerOptions []Option
	Logger        *slog.Logger
}

// Result is the outcome of Synthesizer.Run.
type Result struct {
	Catalog    *toolsynth.Catalog
	Graph      *graph.Graph
	Rejections []toolsynth.Rejection
	Paths      []fsp.Path
	WalkStats  walk.Stats
	Records    []PathRecord
	Report     Report
}

// Run executes the flow. Per-path failures are reported in Result.Report, not returned.
func (s *Synthesizer) Run(ctx context.Context, raws []toolsynth.RawTool) (*Result, error) {
	res, err := s.Walk(ctx, raws)
	if err != nil {
		return nil, err
	}
	logger := s.logger()

	runner := NewRunner(res.Graph, s.Oracles, append([]Option{WithLogger(logger)}, s.RunnerOptions...)...)
	records, report, err := runner.Run(ctx, res.Paths)
	if err != nil {
		return nil, err
	}
	if s.Sink != nil && len(records) > 0 {
		if err := s.Sink.Write(ctx, records); err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
	}
	res.Records = records
	res.Report = report
	return res, nil
}

// Walk normalizes, builds the graph and walks it, stopping short of execution.
func (s *Synthesizer) Walk(ctx context.Context, raws []toolsynth.RawTool) (*Result, error) {
	res, err := s.Prepare(ctx, raws)
	if err != nil {
		return nil, err
	}
	paths, stats, err := s.Walker.Walk(ctx, res.Graph, nil)
	if err != nil {
		return nil, fmt.Errorf("walk: %w", err)
	}
	s.logger().InfoContext(ctx, "paths walked",
		"paths", stats.Paths, "dead_ends", stats.DeadEnds, "duplicates", stats.Duplicates)
	res.Paths = paths
	res.WalkStats = stats
	return res, nil
}

// Prepare normalizes raws and builds (or loads) their dependency graph.
func (s *Synthesizer) Prepare(ctx context.Context, raws []toolsynth.RawTool) (*Result, error) {
	logger := s.logger()
	catalog, rejections, err := s.Normalizer.NormalizeAll(ctx, raws)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	for _, rej := range rejections {
		logger.WarnContext(ctx, "tool rejected", "tool", rej.Name, "reason", rej.Reason)
	}
	g, err := s.graph(ctx, catalog, logger)
	if err != nil {
		return nil, err
	}
	return &Result{Catalog: catalog, Graph: g, Rejections: rejections}, nil
}

func (s *Synthesizer) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Synthesizer) graph(ctx context.Context, catalog *toolsynth.Catalog, logger *slog.Logger) (*graph.Graph, error) {
	if s.Snapshots != nil {
		g, meta, err := s.Snapshots.LoadLatest(ctx, catalog)
		switch {
		case err == nil:
			logger.InfoContext(ctx, "dependency graph loaded from snapshot", "snapshot_id", meta.SnapshotID)
			return g, nil
		case !errors.Is(err, graph.ErrSnapshotNotFound):
			logger.WarnContext(ctx, "graph snapshot unusable, rebuilding", "error", err)
		}
	}
	g, _, err := s.Builder.Build(ctx, catalog.All())
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	if s.Snapshots != nil {
		if _, err := s.Snapshots.Save(ctx, g); err != nil {
			logger.WarnContext(ctx, "graph snapshot not saved", "error", err)
		}
	}
	return g, nil
}
