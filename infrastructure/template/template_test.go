package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProvider_Builtin(t *testing.T) {
	p, err := NewDefaultProvider("")
	require.NoError(t, err)

	ids := make([]string, 0)
	for _, info := range p.Templates() {
		ids = append(ids, info.ID)
	}
	assert.Equal(t, []string{"conventional", "detailed", "simple"}, ids)

	prompt, err := p.RenderSystemPrompt(DefaultID, Context{Language: "Chinese", BranchHint: "feature/parser"})
	require.NoError(t, err)
	assert.Contains(t, prompt, "Write the message in Chinese.")
	assert.Contains(t, prompt, `branch "feature/parser"`)
}

func TestRenderSystemPrompt_DefaultsLanguage(t *testing.T) {
	p, err := NewDefaultProvider("")
	require.NoError(t, err)

	prompt, err := p.RenderSystemPrompt("simple", Context{})
	require.NoError(t, err)
	assert.Contains(t, prompt, "in English.")
	assert.NotContains(t, prompt, "<no value>")
}

func TestRenderSystemPrompt_Unknown(t *testing.T) {
	p, err := NewDefaultProvider("")
	require.NoError(t, err)

	_, err = p.RenderSystemPrompt("missing", Context{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, p.Has("missing"))
	assert.True(t, p.Has(DefaultID))
}

func TestNewDefaultProvider_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	doc := "templates:\n  - id: simple\n    system_prompt: \"Reply in {{.Language}} only.\"\n  - id: team\n    name: Team\n    system_prompt: Team style.\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	p, err := NewDefaultProvider(path)
	require.NoError(t, err)

	prompt, err := p.RenderSystemPrompt("simple", Context{Language: "German"})
	require.NoError(t, err)
	assert.Equal(t, "Reply in German only.", prompt)

	prompt, err = p.RenderSystemPrompt("team", Context{})
	require.NoError(t, err)
	assert.Equal(t, "Team style.", prompt)

	_, err = p.RenderSystemPrompt("conventional", Context{})
	assert.NoError(t, err)
}

func TestNewYAMLProvider_Invalid(t *testing.T) {
	_, err := NewYAMLProvider([]byte("templates:\n  - name: no id\n"))
	assert.Error(t, err)

	_, err = NewYAMLProvider([]byte("templates:\n  - id: bad\n    system_prompt: \"{{.Language\"\n"))
	assert.Error(t, err)

	_, err = NewDefaultProvider(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
