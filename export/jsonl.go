// Package export writes synthesized path records for downstream trainers.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/skosovsky/toolsynth/pipeline"
)

// JSONLWriter writes one PathRecord per line. It is safe for concurrent use.
type JSONLWriter struct {
	mu  sync.Mutex
	w   *bufio.Writer
	enc *json.Encoder
}

// NewJSONLWriter writes to w. Records are flushed at the end of every Write call.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{w: bw, enc: enc}
}

// Write implements pipeline.Sink.
func (j *JSONLWriter) Write(ctx context.Context, records []pipeline.PathRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := j.enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("encoding path %s: %w", records[i].ID, err)
		}
	}
	return j.w.Flush()
}

// ReadJSONL decodes every record from r.
func ReadJSONL(r io.Reader) ([]pipeline.PathRecord, error) {
	dec := json.NewDecoder(r)
	var out []pipeline.PathRecord
	for {
		var rec pipeline.PathRecord
		err := dec.Decode(&rec)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("decoding record %d: %w", len(out), err)
		}
		out = append(out, rec)
	}
}

var _ pipeline.Sink = (*JSONLWriter)(nil)
