// Package toolsynth synthesizes multi-turn tool-use trajectories for training language-model
// agents.
//
// # Overview
//
// A catalog of tools is normalized into ToolRecords (input schema, inferred output schema,
// behavioral class). The graph package links tools whose outputs feed other tools' inputs,
// walk turns the graph into call sequences, augment reshapes those sequences into realistic
// conversations, and pipeline executes every sequence against an isolated, stateful sandbox.
//
// Pipeline: RawTool → Normalizer → Catalog → graph.Builder → walk.Walker →
// augment.Augmenter → fsp.Resolve → sandbox.Session → pipeline.PathRecord.
//
// # Key concepts
//
//   - Single Source of Truth: a tool's JSON Schema drives both the inputs shown to the
//     oracle and the validation of the arguments it proposes.
//   - Oracles are capabilities: every judgment (edge kind, output schema, utterance,
//     arguments, simulated output) is an interface with a declared failure mode.
//   - Failure isolation: an OracleError degrades to a conservative default; a
//     StructuralError aborts one path and never its siblings.
//
// # Example
//
//	n := toolsynth.NewNormalizer(inferrer)
//	catalog, rejected, err := n.NormalizeAll(ctx, rawTools)
//	if err != nil { ... }
//	for _, r := range rejected {
//	    log.Printf("skipped %s: %s", r.Name, r.Reason)
//	}
package toolsynth
