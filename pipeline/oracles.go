package pipeline

import (
	"context"

	"github.com/skosovsky/toolsynth"
	"github.com/skosovsky/toolsynth/fsp"
)

// UtteranceRequest asks for the user message of one turn. Ops tells the generator which
// tools the user names (explicit), which are silent helpers (implicit) and which refer back
// to an earlier result (cross-turn).
type UtteranceRequest struct {
	PathID  string
	Ops     fsp.TurnOps
	Tools   []*toolsynth.ToolRecord
	History []TurnRecord
}

// QueryGenerator writes user utterances.
type QueryGenerator interface {
	Utterance(ctx context.Context, req UtteranceRequest) (string, error)
}

// ArgumentRequest asks for the arguments of one call.
type ArgumentRequest struct {
	Tool      *toolsynth.ToolRecord
	Role      fsp.Role
	Utterance string
	// Prior holds every record of the path so far, current turn included, oldest first.
	Prior []ExecutionRecord
	// Source holds the records of the source tool when the call is a cross-turn helper.
	Source []ExecutionRecord
	// Feedback is the validation error of the previous attempt, if any.
	Feedback string
}

// Arguments are proposed call arguments with the provenance of each value.
type Arguments struct {
	Values     map[string]any        `json:"values"`
	Provenance map[string]Provenance `json:"provenance,omitempty"`
}

// ArgumentFiller proposes call arguments.
type ArgumentFiller interface {
	Arguments(ctx context.Context, req ArgumentRequest) (Arguments, error)
}

// SimulationRequest asks for the nominal output of a call.
type SimulationRequest struct {
	Tool      *toolsynth.ToolRecord
	Arguments map[string]any
	History   []ExecutionRecord
}

// Simulator predicts what a tool would return.
type Simulator interface {
	Simulate(ctx context.Context, req SimulationRequest) (map[string]any, error)
}

// Oracles bundles the generation capabilities a Runner consumes.
type Oracles struct {
	Query     QueryGenerator
	Arguments ArgumentFiller
	Simulator Simulator
}
