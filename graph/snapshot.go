package graph

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/skosovsky/toolsynth"
)

const (
	keyPrefixSnap   = "graph:snap:"
	keySuffixData   = ":data"
	keySuffixMeta   = ":meta"
	keySuffixLatest = ":latest"

	snapshotSchemaVersion = "1"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a catalog.
var ErrSnapshotNotFound = errors.New("graph snapshot not found")

// SnapshotMetadata describes a stored graph snapshot.
type SnapshotMetadata struct {
	SnapshotID     string `json:"snapshot_id"`
	CatalogHash    string `json:"catalog_hash"`
	CreatedAtMilli int64  `json:"created_at_milli"`
	NodeCount      int    `json:"node_count"`
	EdgeCount      int    `json:"edge_count"`
	SchemaVersion  string `json:"schema_version"`
	CompressedSize int64  `json:"compressed_size"`
	ContentHash    string `json:"content_hash"`

	// BuildFingerprint is the builder configuration the graph was built with.
	BuildFingerprint string `json:"build_fingerprint,omitempty"`
}

// SnapshotStore caches built graphs in BadgerDB, keyed by the hash of the catalog they were
// built from and the builder fingerprint, so an unchanged catalog and configuration skip the
// (oracle-heavy) build. scope below is the catalog hash, or the hash of catalog hash and
// fingerprint when a fingerprint is set.
//
// Keys:
//
//	graph:snap:{scope}:{snapshotID}:data → gzip(JSON(Snapshot))
//	graph:snap:{scope}:{snapshotID}:meta → JSON(SnapshotMetadata)
//	graph:snap:{scope}:latest            → snapshotID
type SnapshotStore struct {
	db          *badger.DB
	logger      *slog.Logger
	fingerprint string
}

// SnapshotOption configures a SnapshotStore.
type SnapshotOption func(*SnapshotStore)

// WithBuildFingerprint scopes snapshots to a builder configuration (see Builder.Fingerprint).
// Graphs saved under one fingerprint are never loaded under another.
func WithBuildFingerprint(fp string) SnapshotOption {
	return func(s *SnapshotStore) { s.fingerprint = fp }
}

// NewSnapshotStore wraps an open BadgerDB.
func NewSnapshotStore(db *badger.DB, logger *slog.Logger, opts ...SnapshotOption) (*SnapshotStore, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &SnapshotStore{db: db, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SnapshotStore) scope(catalogHash string) string {
	if s.fingerprint == "" {
		return catalogHash
	}
	return hashString(catalogHash + "\n" + s.fingerprint)
}

// Save stores g and makes it the latest snapshot for its catalog.
func (s *SnapshotStore) Save(ctx context.Context, g *Graph) (*SnapshotMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(g.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}
	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gw.Write(payload); err != nil {
		return nil, fmt.Errorf("compressing snapshot: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	data := compressed.Bytes()

	catalogHash := CatalogHash(g.Tools())
	now := time.Now().UTC()
	snapshotID := hashString(fmt.Sprintf("%s:%d", catalogHash, now.UnixNano()))
	meta := SnapshotMetadata{
		SnapshotID:     snapshotID,
		CatalogHash:    catalogHash,
		CreatedAtMilli: now.UnixMilli(),
		NodeCount:      g.Len(),
		EdgeCount:      g.EdgeCount(),
		SchemaVersion:  snapshotSchemaVersion,
		CompressedSize: int64(len(data)),
		ContentHash:    hashBytes(data),

		BuildFingerprint: s.fingerprint,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot metadata: %w", err)
	}

	scope := s.scope(catalogHash)
	base := keyPrefixSnap + scope + ":" + snapshotID
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(base+keySuffixData), data); err != nil {
			return fmt.Errorf("writing data: %w", err)
		}
		if err := txn.Set([]byte(base+keySuffixMeta), metaJSON); err != nil {
			return fmt.Errorf("writing metadata: %w", err)
		}
		return txn.Set([]byte(keyPrefixSnap+scope+keySuffixLatest), []byte(snapshotID))
	})
	if err != nil {
		return nil, fmt.Errorf("saving snapshot %s: %w", snapshotID, err)
	}
	s.logger.Info("graph snapshot saved",
		"snapshot_id", snapshotID,
		"catalog_hash", catalogHash,
		"edges", meta.EdgeCount,
		"compressed_size", meta.CompressedSize)
	return &meta, nil
}

// LoadLatest returns the latest snapshot built from exactly this catalog, re-attached to
// its tool records. Returns ErrSnapshotNotFound when there is none.
func (s *SnapshotStore) LoadLatest(ctx context.Context, catalog *toolsynth.Catalog) (*Graph, *SnapshotMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	catalogHash := CatalogHash(catalog.All())
	scope := s.scope(catalogHash)
	var snapshotID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefixSnap + scope + keySuffixLatest))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			snapshotID = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading latest pointer for %s: %w", catalogHash, err)
	}
	return s.load(catalog, scope, snapshotID)
}

func (s *SnapshotStore) load(catalog *toolsynth.Catalog, scope, snapshotID string) (*Graph, *SnapshotMetadata, error) {
	base := keyPrefixSnap + scope + ":" + snapshotID
	var data, metaJSON []byte
	err := s.db.View(func(txn *badger.Txn) error {
		dataItem, err := txn.Get([]byte(base + keySuffixData))
		if err != nil {
			return fmt.Errorf("reading data for %s: %w", snapshotID, err)
		}
		if data, err = dataItem.ValueCopy(nil); err != nil {
			return fmt.Errorf("copying data for %s: %w", snapshotID, err)
		}
		metaItem, err := txn.Get([]byte(base + keySuffixMeta))
		if err != nil {
			return fmt.Errorf("reading metadata for %s: %w", snapshotID, err)
		}
		if metaJSON, err = metaItem.ValueCopy(nil); err != nil {
			return fmt.Errorf("copying metadata for %s: %w", snapshotID, err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var meta SnapshotMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling metadata for %s: %w", snapshotID, err)
	}
	if actual := hashBytes(data); meta.ContentHash != "" && meta.ContentHash != actual {
		return nil, nil, fmt.Errorf("integrity check failed for %s: expected hash %s, got %s", snapshotID, meta.ContentHash, actual)
	}
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing snapshot %s: %w", snapshotID, err)
	}
	defer gr.Close()
	payload, err := io.ReadAll(gr)
	if err != nil {
		return nil, nil, fmt.Errorf("reading decompressed data for %s: %w", snapshotID, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling graph for %s: %w", snapshotID, err)
	}
	g, err := FromSnapshot(catalog, snap)
	if err != nil {
		return nil, nil, fmt.Errorf("reconstructing graph for %s: %w", snapshotID, err)
	}
	return g, &meta, nil
}

// CatalogHash fingerprints the parts of tool records that affect graph construction.
func CatalogHash(tools []*toolsynth.ToolRecord) string {
	lines := make([]string, 0, len(tools))
	names := func(fields []toolsynth.Field) string {
		out := make([]string, len(fields))
		for i, f := range fields {
			out[i] = f.Name
		}
		return strings.Join(out, ",")
	}
	for _, t := range tools {
		lines = append(lines, strings.Join([]string{
			t.Name(), names(t.Inputs()), names(t.Outputs()), t.Class().String(), strings.Join(t.Tags(), ","),
		}, "|"))
	}
	slices.Sort(lines)
	return hashString(strings.Join(lines, "\n"))
}

func hashString(s string) string {
	return hashBytes([]byte(s))
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}
