package toolsynth

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// InferRequest is sent to the schema oracle for one tool.
type InferRequest struct {
	Name        string
	Description string
	Parameters  map[string]any
	Inputs      []Field
	Examples    []Example
}

// Inference is the schema oracle's answer: an output schema and a behavioral class.
type Inference struct {
	Outputs []Field
	Class   Class
}

// SchemaInferrer infers output schemas and classifies tools.
// Implementations must be safe for concurrent use.
type SchemaInferrer interface {
	Infer(ctx context.Context, req InferRequest) (Inference, error)
}

// Rejection records a raw tool the normalizer refused.
type Rejection struct {
	Name   string
	Reason string
	Err    error
}

// Normalizer turns raw tool definitions into ToolRecords.
type Normalizer struct {
	inferrer SchemaInferrer
	opts     normalizerOptions
}

// NewNormalizer creates a Normalizer. inferrer may be nil, in which case every tool gets an
// empty output schema and a keyword-based class.
func NewNormalizer(inferrer SchemaInferrer, opts ...NormalizerOption) *Normalizer {
	o := normalizerOptions{
		concurrency: 8,
		timeout:     60 * time.Second,
		maxExamples: 4,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Normalizer{inferrer: inferrer, opts: o}
}

// Normalize builds the ToolRecord for one raw tool. The caller's schema map is not mutated.
// Oracle failures degrade to a keyword classification; schema problems are returned.
func (n *Normalizer) Normalize(ctx context.Context, raw RawTool) (*ToolRecord, error) {
	if strings.TrimSpace(raw.Name) == "" {
		return nil, fmt.Errorf("%w: empty tool name", ErrInvalidTool)
	}
	if raw.Parameters == nil {
		return nil, fmt.Errorf("%w: tool %s has no parameter schema", ErrInvalidTool, raw.Name)
	}
	schemaCopy, err := copySchema(raw.Parameters)
	if err != nil {
		return nil, fmt.Errorf("%w: tool %s: %w", ErrInvalidTool, raw.Name, err)
	}
	stripSchemaIDs(schemaCopy)
	inputs := fieldsFromSchema(schemaCopy)

	inference, err := n.infer(ctx, raw, schemaCopy, inputs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		n.opts.logger.Warn("schema inference failed, using keyword class",
			"tool", raw.Name, "error", err)
		inference = Inference{Class: ClassifyByName(raw.Name)}
	}
	return NewToolRecord(raw.Name,
		WithDescription(raw.Description),
		WithInputSchema(schemaCopy),
		WithOutputs(inference.Outputs...),
		WithClass(inference.Class),
		WithTags(raw.Tags...),
		WithDomain(raw.Domain),
	)
}

func (n *Normalizer) infer(ctx context.Context, raw RawTool, schema map[string]any, inputs []Field) (Inference, error) {
	if n.inferrer == nil {
		return Inference{}, &OracleError{Op: "infer_schema", Reason: "no schema oracle configured"}
	}
	if n.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.opts.timeout)
		defer cancel()
	}
	examples := raw.Examples
	if n.opts.maxExamples > 0 && len(examples) > n.opts.maxExamples {
		examples = examples[:n.opts.maxExamples]
	}
	return n.inferrer.Infer(ctx, InferRequest{
		Name:        raw.Name,
		Description: raw.Description,
		Parameters:  schema,
		Inputs:      inputs,
		Examples:    examples,
	})
}

// NormalizeAll normalizes a batch concurrently. A rejected tool never aborts the batch;
// only context cancellation does. Duplicate names keep the first definition.
func (n *Normalizer) NormalizeAll(ctx context.Context, raws []RawTool) (*Catalog, []Rejection, error) {
	records := make([]*ToolRecord, len(raws))
	errs := make([]error, len(raws))
	g, gctx := errgroup.WithContext(ctx)
	if n.opts.concurrency > 0 {
		g.SetLimit(n.opts.concurrency)
	}
	for i, raw := range raws {
		g.Go(func() error {
			rec, err := n.Normalize(gctx, raw)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			records[i], errs[i] = rec, err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	catalog := &Catalog{tools: make(map[string]*ToolRecord, len(raws))}
	var rejected []Rejection
	reject := func(name string, err error) {
		rejected = append(rejected, Rejection{Name: name, Reason: err.Error(), Err: err})
	}
	for i, raw := range raws {
		if errs[i] != nil {
			reject(raw.Name, errs[i])
			continue
		}
		if err := catalog.Add(records[i]); err != nil {
			reject(raw.Name, err)
		}
	}
	for _, r := range rejected {
		n.opts.logger.Warn("tool rejected", "tool", r.Name, "reason", r.Reason)
	}
	return catalog, rejected, nil
}

var (
	actionWords = []string{"write", "create", "save", "update", "delete", "remove", "post", "send",
		"set", "add", "upload", "insert", "edit", "move", "rename", "publish"}
	queryWords = []string{"get", "read", "list", "search", "view", "find", "fetch", "query",
		"lookup", "show", "check", "retrieve", "browse"}
)

// ClassifyByName guesses a class from the words in a tool name. Action words win over
// query words; anything else is Computation.
func ClassifyByName(name string) Class {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' ' || r == '/'
	})
	hasAny := func(set []string) bool {
		return slices.ContainsFunc(words, func(w string) bool { return slices.Contains(set, w) })
	}
	switch {
	case hasAny(actionWords):
		return Action
	case hasAny(queryWords):
		return Query
	default:
		return Computation
	}
}
