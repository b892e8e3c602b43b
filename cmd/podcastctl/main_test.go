package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/podmatch/internal/config"
	"github.com/ignite/podmatch/internal/domain"
)

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"Podcast", "Score"}, [][]string{{"pod-1", "87"}, {"pod-2"}}, []columnAlignment{alignLeft, alignRight})

	assert.Contains(t, out, "Podcast")
	assert.Contains(t, out, "pod-1")
	assert.Contains(t, out, "87")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 6)
	assert.Empty(t, renderTable(nil, nil, nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b", truncate("a\nb", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"backfill", "score", "cache", "refresh-feeds", "runs", "migrate"} {
		assert.True(t, names[want], "missing %s", want)
	}

	runs, _, err := root.Find([]string{"runs", "show"})
	require.NoError(t, err)
	assert.Equal(t, "show", runs.Name())
}

func TestProfileFlags(t *testing.T) {
	kind, id, err := (&profileFlags{prospect: "p1"}).resolve()
	require.NoError(t, err)
	assert.Equal(t, domain.ProfileProspect, kind)
	assert.Equal(t, "p1", id)

	kind, _, err = (&profileFlags{client: "c1"}).resolve()
	require.NoError(t, err)
	assert.Equal(t, domain.ProfileClient, kind)

	_, _, err = (&profileFlags{prospect: "p1", client: "c1"}).resolve()
	assert.Error(t, err)
	_, _, err = (&profileFlags{}).resolve()
	assert.Error(t, err)
}

func TestBackfill_RequiresProfile(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"backfill"})
	root.SetOut(&bytes.Buffer{})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--prospect or --client")
}

func TestMigrate_NoDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	root := newRootCommand()
	root.SetArgs([]string{"migrate", "--config", t.TempDir() + "/none.yaml"})
	root.SetOut(&bytes.Buffer{})
	err := root.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingConfig)
}

func TestPrintSummary(t *testing.T) {
	root := newRootCommand()
	var buf bytes.Buffer
	root.SetOut(&buf)
	printSummary(root, &domain.BackfillSummary{
		RunID: "r1", ProfileID: "p1", ProfileKind: domain.ProfileProspect,
		CandidatesFound: 40, Selected: 15, NewAdded: 12, DuplicatesSkipped: 3,
		FilterMode: domain.FilterLLM, DedupDegraded: true,
	})
	out := buf.String()
	assert.Contains(t, out, "15 (llm)")
	assert.Contains(t, out, "Duplicates skipped")
	assert.Contains(t, out, "duplicates were not checked")
}
