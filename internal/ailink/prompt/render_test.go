package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyConditionals(t *testing.T) {
	tmpl := "a{{#if x}}[x={{x}}{{#if y}}+y{{/if}}]{{else}}[none]{{/if}}b"

	require.Equal(t, "a[x={{x}}+y]b", applyConditionals(tmpl, map[string]string{"x": "1", "y": "2"}))
	require.Equal(t, "a[x={{x}}]b", applyConditionals(tmpl, map[string]string{"x": "1"}))
	require.Equal(t, "a[none]b", applyConditionals(tmpl, map[string]string{"x": "  "}))
	require.Equal(t, "a[none]b", applyConditionals(tmpl, nil))
}

func TestApplyVarsDoesNotExpandValues(t *testing.T) {
	got := applyVars("{{a}} and {{b}}", map[string]string{"a": "{{b}}", "b": "bee"})
	require.Equal(t, "{{b}} and bee", got)
}

func TestRenderRequiresDeclaredVariables(t *testing.T) {
	def := &Prompt{Config: Config{
		Slug:           "needs-topic",
		SystemTemplate: "About {{topic}}",
		Input:          InputSpec{RequiredVariables: []string{"topic"}},
	}}

	_, err := Render(def, map[string]string{})
	require.ErrorContains(t, err, `missing variable "topic"`)

	out, err := Render(def, map[string]string{"topic": "cats"})
	require.NoError(t, err)
	require.Equal(t, "About cats", out)
}

func TestBuilderReplyPrompt(t *testing.T) {
	reg, err := LoadRegistry("")
	require.NoError(t, err)
	b := NewBuilder(reg)

	first, err := b.ReplyPrompt("", "hi there")
	require.NoError(t, err)
	require.Contains(t, first, "This is the start of the conversation.")
	require.NotContains(t, first, "Previous context summary")
	require.True(t, strings.HasSuffix(first, "\nUser: hi there"))

	later, err := b.ReplyPrompt("They like hiking.", "any plans?")
	require.NoError(t, err)
	require.Contains(t, later, "Previous context summary:\nThey like hiking.")
	require.True(t, strings.HasSuffix(later, "\nUser: any plans?"))
	require.NotContains(t, later, "{{")
}

func TestBuilderCompactionPrompt(t *testing.T) {
	reg, err := LoadRegistry("")
	require.NoError(t, err)
	b := NewBuilder(reg)

	out, err := b.CompactionPrompt("", "User: one\nAssistant: two\n", 120)
	require.NoError(t, err)
	require.Contains(t, out, "Maximum length: 120 words")
	require.Contains(t, out, "Current summary: (none)")
	require.True(t, strings.HasSuffix(out, "Recent interactions:\nUser: one\nAssistant: two"))
}

func TestBuilderWithoutRegistry(t *testing.T) {
	_, err := (&Builder{}).ReplyPrompt("", "hi")
	require.ErrorContains(t, err, "not configured")
}
