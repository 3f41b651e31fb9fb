package card

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender_ExpandsPlaceholdersBeforeClipping(t *testing.T) {
	c := Card{
		Name:        "Nyx",
		Description: "{{char}} greets {{user}} warmly.",
	}
	out := Render(c, "Alex")
	assert.Contains(t, out, "Nyx greets Alex warmly.")
}

func TestRender_ClipsLongDescription(t *testing.T) {
	c := Card{Name: "X", Description: strings.Repeat("a", 900)}
	out := Render(c, "user")
	descStart := strings.Index(out, "[X's Description]\n") + len("[X's Description]\n")
	rest := out[descStart:]
	nextBlank := strings.Index(rest, "\n\n")
	if nextBlank == -1 {
		nextBlank = len(rest)
	}
	field := rest[:nextBlank]
	assert.True(t, strings.HasSuffix(field, "..."))
	assert.LessOrEqual(t, len(field), clipDescription+3)
}

func TestRender_SkipsEmptyFields(t *testing.T) {
	c := Card{Name: "X", Description: "hello"}
	out := Render(c, "user")
	assert.NotContains(t, out, "[Scenario]")
	assert.NotContains(t, out, "[Creator's Notes]")
}

func TestRender_NoBehavioralRulesInjected(t *testing.T) {
	c := Card{Name: "X", Description: "hi"}
	out := Render(c, "user")
	assert.NotContains(t, out, "You must")
	assert.NotContains(t, out, "Rules:")
}
