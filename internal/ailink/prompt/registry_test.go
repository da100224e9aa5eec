package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadRegistryBuiltins(t *testing.T) {
	reg, err := LoadRegistry("")
	require.NoError(t, err)
	require.Len(t, reg.List(), 2)

	for _, slug := range []string{SlugReply, SlugCompaction} {
		p, err := reg.Get(slug)
		require.NoError(t, err)
		require.NotEmpty(t, p.Config.SystemTemplate)
	}
	_, err = reg.Get("missing")
	require.ErrorContains(t, err, "not found")
}

func TestParseUsesBodyAsSystemTemplate(t *testing.T) {
	data := []byte("---\r\nslug: greeting\r\nuser_template: \"User: {{message}}\"\r\ninput:\r\n  required_variables: [message]\r\n---\r\nBe brief.\r\n")

	p, err := Parse("greeting.md", data)
	require.NoError(t, err)
	require.Equal(t, "greeting", p.Config.Slug)
	require.Equal(t, "Be brief.", p.Config.SystemTemplate)
	require.Equal(t, "User: {{message}}", p.Config.UserTemplate)
}

func TestParsePlainYAML(t *testing.T) {
	p, err := Parse("plain.yaml", []byte("slug: plain\nsystem_template: Be kind.\n"))
	require.NoError(t, err)
	require.Equal(t, "Be kind.", p.Config.SystemTemplate)
}

func TestParseRejectsInvalidDefinitions(t *testing.T) {
	cases := map[string]string{
		"empty":        "",
		"unterminated": "---\nslug: open\n",
		"no slug":      "---\nname: x\n---\nbody\n",
		"bad slug":     "---\nslug: Bad_Slug\n---\nbody\n",
		"no template":  "---\nslug: empty-body\n---\n",
		"unused var":   "---\nslug: unused\ninput:\n  required_variables: [topic]\n---\nbody\n",
		"bad var name": "---\nslug: badvar\ninput:\n  optional_variables: [Topic]\n---\nbody\n",
		"dup var":      "---\nslug: dup\ninput:\n  required_variables: [a]\n  optional_variables: [a]\n---\n{{a}}\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(name, []byte(data))
			require.Error(t, err)
		})
	}
}

func TestNewSetRejectsDuplicateSlugs(t *testing.T) {
	a := &Prompt{Config: Config{Slug: "same", SystemTemplate: "a"}}
	b := &Prompt{Config: Config{Slug: "same", SystemTemplate: "b"}}

	_, err := NewSet(a, b)
	require.ErrorContains(t, err, "duplicate prompt slug")
}

func TestLoadRegistryOverridesBuiltins(t *testing.T) {
	dir := t.TempDir()
	override := "---\nslug: relay-reply\nuser_template: \"User: {{message}}\"\n---\nOverride persona.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "relay-reply.md"), []byte(override), 0o600))

	reg, err := LoadRegistry(dir)
	require.NoError(t, err)

	reply, err := reg.Get(SlugReply)
	require.NoError(t, err)
	require.Equal(t, "Override persona.", reply.Config.SystemTemplate)
	require.Equal(t, "relay-reply.md", reply.Source)

	_, err = reg.Get(SlugCompaction)
	require.NoError(t, err)
}

func TestLoadRegistryIgnoresMissingDir(t *testing.T) {
	reg, err := LoadRegistry(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	require.Len(t, reg.List(), 2)
}
