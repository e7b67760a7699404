package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cachescope/internal/findings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFindings() []findings.Finding {
	return []findings.Finding{
		{
			Code: "uncached-view", Severity: findings.SeverityError,
			Message: "view runs queries without caching",
			App:     "blog", File: "blog/views.py", Line: 12, Ref: "py:blog/views.py:article_list",
		},
		{
			Code: "missing-invalidation", Severity: findings.SeverityError,
			Message: "no invalidation",
			App:     "blog", File: "blog/models.py", Line: 5, Ref: "py:blog/models.py:Article",
		},
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), ".cachescope", "cachescope.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SaveAndLoad(t *testing.T) {
	s := openTestStore(t)

	fs := testFindings()
	run := NewRun("analyze", time.Now().Add(-time.Second), 42, fs)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, 2, run.FindingCount)

	require.NoError(t, s.SaveRun(run, fs))

	runs, err := s.LastRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, "analyze", runs[0].Command)
	assert.Equal(t, 42, runs[0].FileCount)

	loaded, err := s.Findings(run.ID)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, fs[0].Code, loaded[0].Code)
	assert.Equal(t, fs[0].Severity, loaded[0].Severity)
	assert.Equal(t, fs[0].Message, loaded[0].Message)
	assert.Equal(t, fs[0].Line, loaded[0].Line)
}

func TestStore_LastRunsOrder(t *testing.T) {
	s := openTestStore(t)

	old := NewRun("analyze", time.Now().Add(-time.Hour), 1, nil)
	recent := NewRun("analyze", time.Now(), 2, nil)
	require.NoError(t, s.SaveRun(old, nil))
	require.NoError(t, s.SaveRun(recent, nil))

	runs, err := s.LastRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, recent.ID, runs[0].ID)
	assert.Equal(t, old.ID, runs[1].ID)
}

func TestStore_DiffLastRuns(t *testing.T) {
	s := openTestStore(t)

	base := testFindings()
	head := []findings.Finding{
		base[0], // unchanged
		{
			Code: "unversioned-cache-set", Severity: findings.SeverityWarning,
			Message: "new problem",
			App:     "blog", File: "blog/views.py", Line: 30, Ref: "py:blog/views.py:tag_list",
		},
	}

	require.NoError(t, s.SaveRun(NewRun("analyze", time.Now().Add(-time.Minute), 10, base), base))
	require.NoError(t, s.SaveRun(NewRun("analyze", time.Now(), 10, head), head))

	d, err := s.DiffLastRuns()
	require.NoError(t, err)

	require.Len(t, d.New, 1)
	assert.Equal(t, "unversioned-cache-set", d.New[0].Code)
	require.Len(t, d.Resolved, 1)
	assert.Equal(t, "missing-invalidation", d.Resolved[0].Code)
}

func TestStore_DiffLineDriftIsNotChurn(t *testing.T) {
	s := openTestStore(t)

	base := testFindings()
	head := testFindings()
	head[0].Line = 99 // same finding, shifted by an edit above it

	require.NoError(t, s.SaveRun(NewRun("analyze", time.Now().Add(-time.Minute), 10, base), base))
	require.NoError(t, s.SaveRun(NewRun("analyze", time.Now(), 10, head), head))

	d, err := s.DiffLastRuns()
	require.NoError(t, err)
	assert.Empty(t, d.New)
	assert.Empty(t, d.Resolved)
}

func TestStore_SameInstantRunsKeepOrder(t *testing.T) {
	s := openTestStore(t)

	// Two runs saved back to back can share a start timestamp; the later
	// save must still come out as head, not whichever ID sorts higher.
	started := time.Now()
	first := NewRun("analyze", started, 1, nil)
	second := NewRun("analyze", started, 1, nil)
	require.NoError(t, s.SaveRun(first, nil))
	require.NoError(t, s.SaveRun(second, nil))

	d, err := s.DiffLastRuns()
	require.NoError(t, err)
	assert.Equal(t, first.ID, d.Base.ID)
	assert.Equal(t, second.ID, d.Head.ID)
}

func TestStore_DiffNeedsTwoRuns(t *testing.T) {
	s := openTestStore(t)
	_, err := s.DiffLastRuns()
	assert.Error(t, err)

	require.NoError(t, s.SaveRun(NewRun("analyze", time.Now(), 1, nil), nil))
	_, err = s.DiffLastRuns()
	assert.Error(t, err)
}

func TestStore_RebuildsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cachescope.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a database"), 0644))

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveRun(NewRun("analyze", time.Now(), 1, nil), nil))
	runs, err := s.LastRuns(1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
