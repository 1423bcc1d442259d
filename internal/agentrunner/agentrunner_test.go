package agentrunner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"loopctl/internal/errtax"
)

const sampleDefinition = `---
name: researcher
display_name: Researcher
model: claude-sonnet-4
temperature: 0.2
max_tokens: 4096
capabilities: [search, summarize]
category: research
phase: research
tools: [web_search]
tags: [core]
---
You are the research agent. Investigate the task thoroughly before
handing off to design.
`

func TestParseDefinition_SplitsFrontMatterAndBody(t *testing.T) {
	def, err := ParseDefinition([]byte(sampleDefinition), "researcher.md")
	require.NoError(t, err)
	require.Equal(t, "researcher", def.Name)
	require.Equal(t, "claude-sonnet-4", def.Model)
	require.Equal(t, []string{"search", "summarize"}, def.Capabilities)
	require.Contains(t, def.Instructions, "research agent")
}

func TestParseDefinition_MissingNameIsError(t *testing.T) {
	_, err := ParseDefinition([]byte("---\nmodel: x\n---\nbody"), "bad.md")
	require.Error(t, err)
}

func TestParseDefinition_NoFrontMatterIsError(t *testing.T) {
	_, err := ParseDefinition([]byte("just a body, no header"), "bad.md")
	require.Error(t, err)
}

func TestLoadDefinitionDirectory_LoadsAllValidFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "researcher.md"), []byte(sampleDefinition), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.md"), []byte("no front matter"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	defs, errs := LoadDefinitionDirectory(dir)
	require.Len(t, defs, 1)
	require.Len(t, errs, 1)
	require.Equal(t, "researcher", defs[0].Name)
}

func TestRunner_RetriesTransientErrorsThenSucceeds(t *testing.T) {
	fake := NewFakeInvoker()
	fake.Script("a1", ScriptedResponse{Err: errtax.New(errtax.Transient, "invoke", errors.New("timeout"))})
	fake.Script("a1", ScriptedResponse{Response: Response{OutputText: "done"}})

	r := New(fake)
	resp, err := r.Invoke(context.Background(), "a1", "do it", nil, Options{MaxAttempts: 3, BaseDelay: time.Millisecond})
	require.NoError(t, err)
	require.Equal(t, "done", resp.OutputText)
	require.Len(t, fake.Calls(), 2)
}

func TestRunner_DoesNotRetryFatalErrors(t *testing.T) {
	fake := NewFakeInvoker()
	fake.Script("a1", ScriptedResponse{Err: errtax.New(errtax.FatalAgent, "invoke", errors.New("rejected"))})

	r := New(fake)
	_, err := r.Invoke(context.Background(), "a1", "do it", nil, Options{MaxAttempts: 5, BaseDelay: time.Millisecond})
	require.Error(t, err)
	require.Len(t, fake.Calls(), 1)
}

func TestRunner_GivesUpAfterMaxAttempts(t *testing.T) {
	fake := NewFakeInvoker()
	for i := 0; i < 5; i++ {
		fake.Script("a1", ScriptedResponse{Err: errtax.New(errtax.Transient, "invoke", errors.New("timeout"))})
	}

	r := New(fake)
	_, err := r.Invoke(context.Background(), "a1", "do it", nil, Options{MaxAttempts: 3, BaseDelay: time.Millisecond})
	require.Error(t, err)
	require.Len(t, fake.Calls(), 3)
}
