package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"gopkg.in/yaml.v3"

	"github.com/skosovsky/toolsynth"
	"github.com/skosovsky/toolsynth/config"
	"github.com/skosovsky/toolsynth/export"
	"github.com/skosovsky/toolsynth/graph"
	"github.com/skosovsky/toolsynth/oracle"
	"github.com/skosovsky/toolsynth/oracle/openai"
	"github.com/skosovsky/toolsynth/pipeline"
	"github.com/skosovsky/toolsynth/walk"
)

// readCatalog loads raw tools from a JSON or YAML file, chosen by extension.
func readCatalog(path string) ([]toolsynth.RawTool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	var raws []toolsynth.RawTool
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raws)
	default:
		err = json.Unmarshal(data, &raws)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	if len(raws) == 0 {
		return nil, fmt.Errorf("catalog %s holds no tools", path)
	}
	return raws, nil
}

// build wires a Synthesizer from the loaded config. The returned close func releases
// the snapshot store and any sinks.
func build(ctx context.Context, withSinks bool) (*pipeline.Synthesizer, func() error, error) {
	if cfg.Oracle.APIKey == "" {
		return nil, nil, fmt.Errorf("no API key: set oracle.api_key or %s", config.EnvAPIKey)
	}
	client, err := openai.New(cfg.Oracle.APIKey,
		openai.WithModel(cfg.Oracle.Model),
		openai.WithBaseURL(cfg.Oracle.BaseURL),
		openai.WithTemperature(cfg.Oracle.Temperature),
		openai.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}
	guarded := oracle.NewGuarded(client, oracle.NewGuard(cfg.GuardOptions(logger)...))

	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	s := &pipeline.Synthesizer{
		Normalizer:    toolsynth.NewNormalizer(guarded, cfg.NormalizerOptions(logger)...),
		Builder:       graph.NewBuilder(guarded, cfg.GraphOptions(logger, guarded)...),
		Walker:        walk.New(cfg.WalkOptions(logger)...),
		Oracles:       guarded.Oracles(),
		RunnerOptions: cfg.RunnerOptions(logger),
		Logger:        logger,
	}

	if dir := cfg.Graph.SnapshotDir; dir != "" {
		db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
		if err != nil {
			return nil, nil, fmt.Errorf("opening snapshot store: %w", err)
		}
		closers = append(closers, db.Close)
		s.Snapshots, err = graph.NewSnapshotStore(db, logger, graph.WithBuildFingerprint(s.Builder.Fingerprint()))
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
	}

	if withSinks {
		var sinks multiSink
		if path := cfg.Export.JSONL; path != "" {
			f, err := os.Create(path)
			if err != nil {
				_ = closeAll()
				return nil, nil, fmt.Errorf("creating %s: %w", path, err)
			}
			closers = append(closers, f.Close)
			sinks = append(sinks, export.NewJSONLWriter(f))
		}
		if path := cfg.Export.SQLite; path != "" {
			store, err := export.OpenSQLite(ctx, path)
			if err != nil {
				_ = closeAll()
				return nil, nil, err
			}
			closers = append(closers, store.Close)
			sinks = append(sinks, store)
		}
		if len(sinks) > 0 {
			s.Sink = sinks
		}
	}
	return s, closeAll, nil
}

// multiSink writes to every sink in order and stops at the first failure.
type multiSink []pipeline.Sink

func (m multiSink) Write(ctx context.Context, records []pipeline.PathRecord) error {
	for _, s := range m {
		if err := s.Write(ctx, records); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	out := os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
