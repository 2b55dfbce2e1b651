package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPlanPrompt(t *testing.T) {
	system, user := buildPlanPrompt(`{"phases":[]}`, "add a QA phase")

	assert.Contains(t, system, "Return ONLY the complete revised plan")
	assert.Contains(t, system, `PRESERVE the "id"`)
	assert.Contains(t, system, "no markdown fencing")
	assert.Contains(t, user, `{"phases":[]}`)
	assert.Contains(t, user, "Instruction: add a QA phase")
}

func TestBuildOpsPrompt(t *testing.T) {
	system, user := buildOpsPrompt(`{"phases":[]}`, "mark task 2 done")

	assert.Contains(t, system, `"op": "update"`)
	assert.Contains(t, system, `"op": "delete"`)
	assert.Contains(t, system, "phaseIndex")
	assert.Contains(t, system, "Paths refer to the CURRENT plan")
	assert.Contains(t, user, "Instruction: mark task 2 done")
}

func TestStripFencing(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}\n", `{"a":1}`},
		{"fence with trailing text", "```json\n[1,2]\n```\n", "[1,2]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFencing(tt.in))
		})
	}
}

func TestNewClient(t *testing.T) {
	c := NewClient("test-key", "claude-haiku-4-5-20251001")
	assert.NotNil(t, c.api)
	assert.Equal(t, "claude-haiku-4-5-20251001", string(c.model))
}
