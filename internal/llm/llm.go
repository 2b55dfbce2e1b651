// Package llm is the AI proposal source: it turns a natural-language
// instruction plus the current plan into either a complete replacement tree
// (review path) or an ordered change-operation list (applier path).
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Seasonsling/clarion/internal/change"
	"github.com/Seasonsling/clarion/internal/models"
)

// Client wraps the Anthropic API for plan mutation proposals.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildPlanPrompt constructs the system and user prompts for a full-tree
// replacement proposal.
func buildPlanPrompt(planJSON, instruction string) (system string, user string) {
	system = `You revise project plans for a planning tool. You receive the current plan as JSON and an instruction. Return ONLY the complete revised plan as a JSON object with this shape:

{"phases": [{"name": string, "tasks": [Task], "projects": [{"name": string, "notes": string, "tasks": [Task]}]}]}

Task: {"id": string, "name": string, "status": "todo"|"in-progress"|"done", "priority": "high"|"medium"|"low", "details": string, "start": RFC3339 timestamp, "due": RFC3339 timestamp, "assignees": [string], "notes": string, "subtasks": [Task], "dependencies": [task id]}

Rules:
- Return the ENTIRE plan, not just the changed parts
- PRESERVE the "id" of every task you keep; never rewrite existing ids
- Omit the "id" field on tasks you add; one will be assigned
- "dependencies" entries must reference task ids within this plan
- Only change what the instruction asks for; leave everything else untouched
- Optional fields may be omitted when empty
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Current plan:\n")
	sb.WriteString(planJSON)
	sb.WriteString("\n\nInstruction: ")
	sb.WriteString(instruction)
	user = sb.String()
	return
}

// buildOpsPrompt constructs the system and user prompts for a discrete
// change-operation list.
func buildOpsPrompt(planJSON, instruction string) (system string, user string) {
	system = `You revise project plans for a planning tool. You receive the current plan as JSON and an instruction. Return ONLY a JSON array of change operations:

{"op": "update", "path": Path, "patch": {partial task fields}}
{"op": "add", "path": Path, "task": {full task without id}}
{"op": "delete", "path": Path}

Path: {"phaseIndex": int, "projectIndex": int (omit for tasks directly under a phase), "taskPath": [int, ...]}

"taskPath" is the chain of child indices from the phase's (or nested project's) task list down to the target; all but the last index descend into subtasks. For "add", the last index is the insertion position (list length appends).

Rules:
- Emit the minimal set of operations for the instruction
- Paths refer to the CURRENT plan as given; do not account for your own deletions
- "patch" carries only the fields that change
- Status is one of "todo", "in-progress", "done"; priority "high", "medium", "low"
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Current plan:\n")
	sb.WriteString(planJSON)
	sb.WriteString("\n\nInstruction: ")
	sb.WriteString(instruction)
	user = sb.String()
	return
}

// ProposePlan sends the current plan and an instruction to the LLM and
// returns the proposed replacement tree. The result is not normalized;
// callers run it through the review workflow.
func (c *Client) ProposePlan(ctx context.Context, project *models.Project, instruction string) (*models.Project, error) {
	planJSON, err := json.Marshal(struct {
		Phases []*models.Phase `json:"phases"`
	}{Phases: project.Phases})
	if err != nil {
		return nil, fmt.Errorf("marshal plan: %w", err)
	}

	systemPrompt, userPrompt := buildPlanPrompt(string(planJSON), instruction)
	text, err := c.complete(ctx, systemPrompt, userPrompt, 8192)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Phases []*models.Phase `json:"phases"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}

	proposed := &models.Project{
		ID:      project.ID,
		Name:    project.Name,
		OwnerID: project.OwnerID,
		Members: project.Members,
		Phases:  payload.Phases,
	}
	return proposed, nil
}

// ProposeOperations sends the current plan and an instruction to the LLM and
// returns an ordered change-operation list for the applier path.
func (c *Client) ProposeOperations(ctx context.Context, project *models.Project, instruction string) ([]change.Operation, error) {
	planJSON, err := json.Marshal(struct {
		Phases []*models.Phase `json:"phases"`
	}{Phases: project.Phases})
	if err != nil {
		return nil, fmt.Errorf("marshal plan: %w", err)
	}

	systemPrompt, userPrompt := buildOpsPrompt(string(planJSON), instruction)
	text, err := c.complete(ctx, systemPrompt, userPrompt, 4096)
	if err != nil {
		return nil, err
	}

	var ops []change.Operation
	if err := json.Unmarshal([]byte(text), &ops); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	return ops, nil
}

// complete runs one message exchange and returns the stripped text content.
func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int64) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}
	return stripFencing(text), nil
}

// stripFencing removes markdown code fencing from a model response.
func stripFencing(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}
