package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/skosovsky/toolsynth"
	"github.com/skosovsky/toolsynth/fsp"
	"github.com/skosovsky/toolsynth/graph"
	"github.com/skosovsky/toolsynth/pipeline"
)

type fieldReply struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type inferReply struct {
	Outputs []fieldReply `json:"outputs" description:"Fields of the tool's JSON result"`
	Class   string       `json:"class" enum:"computation,query,action" description:"Whether the tool computes, reads or mutates state"`
}

func (r *inferReply) Validate() error {
	_, err := toolsynth.ParseClass(r.Class)
	return err
}

type mappingReply struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

type judgeReply struct {
	Kind          string         `json:"kind" enum:"none,full,partial,prerequisite"`
	Justification string         `json:"justification"`
	Mapping       []mappingReply `json:"mapping" description:"Target input fields fed by source output fields"`
}

func (r *judgeReply) Validate() error {
	_, err := graph.ParseKind(r.Kind)
	return err
}

type filterReply struct {
	Identical []string `json:"identical" description:"Output fields that merely restate an input"`
}

type utteranceReply struct {
	Utterance string `json:"utterance"`
}

func (r *utteranceReply) Validate() error {
	if strings.TrimSpace(r.Utterance) == "" {
		return errors.New("utterance is empty")
	}
	return nil
}

type extractors struct {
	infer     *toolsynth.Extractor[inferReply]
	judge     *toolsynth.Extractor[judgeReply]
	filter    *toolsynth.Extractor[filterReply]
	utterance *toolsynth.Extractor[utteranceReply]
}

func newExtractors() (extractors, error) {
	var (
		ex  extractors
		err error
	)
	if ex.infer, err = toolsynth.NewExtractor[inferReply](true); err != nil {
		return ex, err
	}
	if ex.judge, err = toolsynth.NewExtractor[judgeReply](true); err != nil {
		return ex, err
	}
	if ex.filter, err = toolsynth.NewExtractor[filterReply](true); err != nil {
		return ex, err
	}
	if ex.utterance, err = toolsynth.NewExtractor[utteranceReply](true); err != nil {
		return ex, err
	}
	return ex, nil
}

const (
	inferSystem = "You document software tools. Given a tool's name, description, input schema and example calls, " +
		"describe the fields of its JSON result and classify it: computation (derives output from arguments only), " +
		"query (reads external state) or action (changes external state)."
	judgeSystem = "You decide whether the output of a source tool can feed a target tool. Answer full when the " +
		"source output satisfies every required input of the target, partial when it satisfies some, prerequisite " +
		"when the source must run first without passing data, and none otherwise."
	filterSystem = "You list the output fields of a tool that carry no new information because they restate one " +
		"of its inputs."
	utteranceSystem = "You write the next message of a user talking to an assistant that can call tools. Ask only " +
		"for the tools marked explicit. Never mention implicit helpers. For cross-turn tools, refer back to the " +
		"earlier result instead of restating it. For an empty turn, ask for something the tools cannot do " +
		"(missing-function) or leave out a detail the request needs (missing-parameters)."
	argumentsSystem = "You fill in the arguments of a tool call from the user's message and earlier results. For " +
		"every value say whether it came from the utterance, a prior-output, or a default."
	simulateSystem = "You simulate a tool. Return a realistic JSON result for the call, consistent with earlier results."
)

// Infer implements toolsynth.SchemaInferrer.
func (c *Client) Infer(ctx context.Context, req toolsynth.InferRequest) (toolsynth.Inference, error) {
	user := fmt.Sprintf("Tool: %s\nDescription: %s\nInput schema: %s\nExamples: %s",
		req.Name, req.Description, toJSON(req.Parameters), toJSON(req.Examples))
	data, err := c.complete(ctx, "infer", format{name: "inference", schema: c.ex.infer.Schema(), strict: true}, 0, inferSystem, user)
	if err != nil {
		return toolsynth.Inference{}, err
	}
	reply, err := parse("infer", c.ex.infer, data)
	if err != nil {
		return toolsynth.Inference{}, err
	}
	class, _ := toolsynth.ParseClass(reply.Class)
	out := toolsynth.Inference{Class: class}
	for _, f := range reply.Outputs {
		out.Outputs = append(out.Outputs, toolsynth.Field{Name: f.Name, Type: f.Type, Description: f.Description})
	}
	return out, nil
}

// Judge implements graph.EdgeJudge.
func (c *Client) Judge(ctx context.Context, req graph.EdgeRequest) (graph.Judgment, error) {
	user := fmt.Sprintf("Source tool:\n%s\nSource outputs: %s\n\nTarget tool:\n%s",
		describe(req.Source), toJSON(req.SourceOutputs), describe(req.Target))
	data, err := c.complete(ctx, "judge", format{name: "judgment", schema: c.ex.judge.Schema(), strict: true}, 0, judgeSystem, user)
	if err != nil {
		return graph.Judgment{}, err
	}
	reply, err := parse("judge", c.ex.judge, data)
	if err != nil {
		return graph.Judgment{}, err
	}
	kind, _ := graph.ParseKind(reply.Kind)
	j := graph.Judgment{Kind: kind, Justification: reply.Justification}
	if len(reply.Mapping) > 0 {
		j.Mapping = make(map[string]string, len(reply.Mapping))
		for _, m := range reply.Mapping {
			j.Mapping[m.Input] = m.Output
		}
	}
	return j, nil
}

// IdenticalFields implements graph.FieldFilter.
func (c *Client) IdenticalFields(ctx context.Context, tool *toolsynth.ToolRecord, outputs []toolsynth.Field) ([]string, error) {
	user := fmt.Sprintf("Tool:\n%s\nOutputs to check: %s", describe(tool), toJSON(outputs))
	data, err := c.complete(ctx, "filter", format{name: "identical_fields", schema: c.ex.filter.Schema(), strict: true}, 0, filterSystem, user)
	if err != nil {
		return nil, err
	}
	reply, err := parse("filter", c.ex.filter, data)
	if err != nil {
		return nil, err
	}
	return reply.Identical, nil
}

// Utterance implements pipeline.QueryGenerator.
func (c *Client) Utterance(ctx context.Context, req pipeline.UtteranceRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Turn %d, style %s.\n", req.Ops.Index, req.Ops.Style)
	if req.Ops.Empty {
		fmt.Fprintf(&b, "This turn is empty: %s.\n", req.Ops.Miss)
	}
	for _, t := range req.Tools {
		fmt.Fprintf(&b, "Tool %s (%s):\n%s\n", t.Name(), roleOf(req.Ops, t.Name()), describe(t))
	}
	if len(req.History) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, h := range req.History {
			fmt.Fprintf(&b, "user: %s\nresults: %s\n", h.Utterance, toJSON(h.Records))
		}
	}
	data, err := c.complete(ctx, "utterance", format{name: "utterance", schema: c.ex.utterance.Schema(), strict: true},
		c.opts.temperature, utteranceSystem, b.String())
	if err != nil {
		return "", err
	}
	reply, err := parse("utterance", c.ex.utterance, data)
	if err != nil {
		return "", err
	}
	return reply.Utterance, nil
}

// Arguments implements pipeline.ArgumentFiller. The reply schema embeds the tool's own
// input schema.
func (c *Client) Arguments(ctx context.Context, req pipeline.ArgumentRequest) (pipeline.Arguments, error) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"values": req.Tool.Schema(),
			"provenance": map[string]any{
				"type": "object",
				"additionalProperties": map[string]any{
					"type": "string",
					"enum": []any{string(pipeline.FromUtterance), string(pipeline.FromPriorOutput), string(pipeline.FromDefault)},
				},
			},
		},
		"required": []any{"values", "provenance"},
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Tool (%s):\n%s\nUser message: %s\n", req.Role, describe(req.Tool), req.Utterance)
	if len(req.Source) > 0 {
		fmt.Fprintf(&b, "The value comes from this earlier result: %s\n", toJSON(req.Source))
	}
	if len(req.Prior) > 0 {
		fmt.Fprintf(&b, "Earlier results: %s\n", toJSON(req.Prior))
	}
	if req.Feedback != "" {
		fmt.Fprintf(&b, "Your previous arguments were rejected: %s\n", req.Feedback)
	}
	data, err := c.complete(ctx, "arguments", format{name: "arguments", schema: schema}, 0, argumentsSystem, b.String())
	if err != nil {
		return pipeline.Arguments{}, err
	}
	var out pipeline.Arguments
	if err := json.Unmarshal(data, &out); err != nil {
		return pipeline.Arguments{}, &toolsynth.OracleError{Op: "arguments", Reason: "unparseable reply: " + err.Error(), Err: err}
	}
	return out, nil
}

// Simulate implements pipeline.Simulator.
func (c *Client) Simulate(ctx context.Context, req pipeline.SimulationRequest) (map[string]any, error) {
	user := fmt.Sprintf("Tool:\n%s\nArguments: %s\nEarlier results: %s",
		describe(req.Tool), toJSON(req.Arguments), toJSON(req.History))
	data, err := c.complete(ctx, "simulate", format{name: "result", schema: req.Tool.OutputSchema()},
		c.opts.temperature, simulateSystem, user)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &toolsynth.OracleError{Op: "simulate", Reason: "unparseable reply: " + err.Error(), Err: err}
	}
	return out, nil
}

func roleOf(ops fsp.TurnOps, tool string) fsp.Role {
	if r, ok := ops.Roles[tool]; ok {
		return r
	}
	return fsp.RoleExplicit
}

func describe(t *toolsynth.ToolRecord) string {
	if t == nil {
		return "{}"
	}
	return toJSON(map[string]any{
		"name":        t.Name(),
		"description": t.Description(),
		"class":       t.Class().String(),
		"inputs":      t.Schema(),
		"outputs":     t.Outputs(),
	})
}

func toJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
