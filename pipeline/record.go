package pipeline

import (
	"time"

	"github.com/skosovsky/toolsynth/fsp"
)

// Provenance says where an argument value came from.
type Provenance string

const (
	FromUtterance   Provenance = "utterance"
	FromPriorOutput Provenance = "prior-output"
	FromDefault     Provenance = "default"
)

// Canned replies of empty turns.
const (
	MissingFunctionText   = "I don't have a function that can handle this request. Could you try something else I can help with?"
	MissingParametersText = "To proceed with this request, I need more information. Could you provide the missing details?"
)

// SentinelText returns the canned reply for miss.
func SentinelText(miss fsp.MissType) string {
	if miss == fsp.MissParameters {
		return MissingParametersText
	}
	return MissingFunctionText
}

// ExecutionRecord is one call, or the sentinel of an empty turn.
type ExecutionRecord struct {
	Tool       string                `json:"tool,omitempty"`
	Arguments  map[string]any        `json:"arguments,omitempty"`
	Provenance map[string]Provenance `json:"provenance,omitempty"`
	Output     map[string]any        `json:"output,omitempty"`
	Attempts   int                   `json:"attempts,omitempty"`
	Sentinel   bool                  `json:"sentinel,omitempty"`
	Miss       fsp.MissType          `json:"miss,omitempty"`
}

// TurnRecord is one executed turn. Unresolved holds the reason a turn could not be
// completed; its Records are then partial.
type TurnRecord struct {
	Index      int               `json:"index"`
	Tools      []string          `json:"tools"`
	Ops        fsp.TurnOps       `json:"ops"`
	Utterance  string            `json:"utterance"`
	Records    []ExecutionRecord `json:"records"`
	Unresolved string            `json:"unresolved,omitempty"`
}

// PathRecord is a synthesized trajectory, the unit handed to exporters.
type PathRecord struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	Turns     []TurnRecord `json:"turns"`
	Ledger    fsp.Ledger   `json:"ledger"`
	CreatedAt time.Time    `json:"created_at"`
}

// Path rebuilds the augmented path of the record.
func (r PathRecord) Path() fsp.Path {
	p := fsp.Path{Turns: make([]fsp.Turn, len(r.Turns))}
	for i, t := range r.Turns {
		p.Turns[i] = fsp.Turn{Tools: append([]string(nil), t.Tools...), Miss: t.Ops.Miss}
	}
	return p
}

// PathFailure explains why a path produced no record.
type PathFailure struct {
	PathID string   `json:"path_id"`
	Tools  []string `json:"tools"`
	Reason string   `json:"reason"`
	Err    error    `json:"-"`
	Error  string   `json:"error"`
}

// Report counts outcomes of a run. No path is dropped silently: every failure is listed.
type Report struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Failures  []PathFailure `json:"failures,omitempty"`
}

// Merge adds the counts and failures of o to r.
func (r *Report) Merge(o Report) {
	r.Total += o.Total
	r.Succeeded += o.Succeeded
	r.Failed += o.Failed
	r.Failures = append(r.Failures, o.Failures...)
}
