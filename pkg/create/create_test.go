package create

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/migsafe/migsafe/pkg/ledger"
	"github.com/migsafe/migsafe/pkg/rules"
	"github.com/migsafe/migsafe/pkg/sanitize"
)

type fakeTool struct {
	draft func(ctx context.Context, name string) (DraftResult, error)
	diff  func(ctx context.Context) (string, error)
}

func (f *fakeTool) CreateDraft(ctx context.Context, name string) (DraftResult, error) {
	return f.draft(ctx, name)
}

func (f *fakeTool) DiffScript(ctx context.Context) (string, error) {
	if f.diff == nil {
		return "", errors.New("diff not expected")
	}
	return f.diff(ctx)
}

func vectorPatterns() []rules.IgnorePattern {
	return []rules.IgnorePattern{{Pattern: "DROP INDEX.*idx_vec", Reason: "vector index"}}
}

func fixedNow() time.Time {
	return time.Date(2026, 1, 1, 12, 0, 0, 0, time.Local)
}

func newCreator(t *testing.T, tool Tool) (*Creator, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &Creator{
		Tool:          tool,
		MigrationsDir: t.TempDir(),
		Patterns:      vectorPatterns(),
		Out:           &out,
		Errw:          &out,
		Now:           fixedNow,
	}, &out
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"add_user_settings", true},
		{"a", true},
		{"add2fa", true},
		{"123abc", false},
		{"Add_Users", false},
		{"", false},
		{"add-users", false},
		{"add users", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.name), func(t *testing.T) {
			err := ValidateName(tt.name)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "^[a-z][a-z0-9_]*$")
			}
		})
	}
}

func TestRun_MissingNameNonInteractiveIsFatal(t *testing.T) {
	c, _ := newCreator(t, &fakeTool{})
	c.Interactive = false

	err := c.Run(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--name")
}

func TestRun_InvalidNameIsFatal(t *testing.T) {
	c, _ := newCreator(t, &fakeTool{})

	err := c.Run(context.Background(), "Add_Users")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid migration name")
}

func TestRun_NoPendingChangesIsEmptyNotError(t *testing.T) {
	tool := &fakeTool{draft: func(context.Context, string) (DraftResult, error) {
		return DraftResult{Output: "No pending changes to apply", NoPendingChanges: true}, nil
	}}
	c, out := newCreator(t, tool)

	err := c.Run(context.Background(), "add_users")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "No pending schema changes")

	entries, err := os.ReadDir(c.MigrationsDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_GeneratedPathSanitizesAndReports(t *testing.T) {
	var c *Creator
	tool := &fakeTool{draft: func(_ context.Context, name string) (DraftResult, error) {
		// Simulate the tool writing a timestamped directory.
		dir := filepath.Join(c.MigrationsDir, "20260101115959_"+name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return DraftResult{}, err
		}
		sqlText := "DROP INDEX \"idx_vec\";\nALTER TABLE t ADD COLUMN x INT;\n"
		return DraftResult{Output: "created migration"}, os.WriteFile(filepath.Join(dir, "migration.sql"), []byte(sqlText), 0o644)
	}}
	c, out := newCreator(t, tool)

	err := c.Run(context.Background(), "add_users")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(c.MigrationsDir, "20260101115959_add_users", "migration.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "-- REMOVED: DROP INDEX \"idx_vec\";")
	assert.Contains(t, string(data), "ALTER TABLE t ADD COLUMN x INT;")

	report := out.String()
	assert.Contains(t, report, "Removed statements:")
	assert.Contains(t, report, "vector index")
	assert.Contains(t, report, "Next steps:")
	assert.NotContains(t, report, "shadow")
}

func TestRun_CleanSQLIsNotRewritten(t *testing.T) {
	var c *Creator
	sqlText := "ALTER TABLE t ADD COLUMN x INT;\n"
	tool := &fakeTool{draft: func(_ context.Context, name string) (DraftResult, error) {
		dir := filepath.Join(c.MigrationsDir, "20260101115959_"+name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return DraftResult{}, err
		}
		return DraftResult{}, os.WriteFile(filepath.Join(dir, "migration.sql"), []byte(sqlText), 0o644)
	}}
	c, out := newCreator(t, tool)

	err := c.Run(context.Background(), "add_col")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(c.MigrationsDir, "20260101115959_add_col", "migration.sql"))
	require.NoError(t, err)
	assert.Equal(t, sqlText, string(data))
	assert.NotContains(t, out.String(), "Removed statements:")
	assert.Contains(t, out.String(), "Next steps:")
}

func TestRun_NonInteractiveFailureFallsBackToDiff(t *testing.T) {
	tool := &fakeTool{
		draft: func(context.Context, string) (DraftResult, error) {
			return DraftResult{Output: "Prisma Migrate has detected that the environment is non-interactive"},
				errors.New("exit status 1")
		},
		diff: func(context.Context) (string, error) {
			return "DROP INDEX \"idx_vec\";\nALTER TABLE t ADD COLUMN x INT;\n", nil
		},
	}
	c, out := newCreator(t, tool)
	c.IsNonInteractiveFailure = func(output string) bool {
		return strings.Contains(output, "non-interactive")
	}

	err := c.Run(context.Background(), "add_users")
	require.NoError(t, err)

	// Directory constructed manually: local-time timestamp, zero padded.
	dir := filepath.Join(c.MigrationsDir, "20260101120000_add_users")
	data, err := os.ReadFile(filepath.Join(dir, "migration.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "-- REMOVED: DROP INDEX \"idx_vec\";")

	report := out.String()
	assert.Contains(t, report, "shadow")
	assert.Contains(t, report, "first real application")
}

func TestRun_FallbackEmptyScriptIsEmpty(t *testing.T) {
	tool := &fakeTool{
		draft: func(context.Context, string) (DraftResult, error) {
			return DraftResult{Output: "environment is non-interactive"}, errors.New("exit status 1")
		},
		diff: func(context.Context) (string, error) {
			return "-- This is an empty migration.\n", nil
		},
	}
	c, out := newCreator(t, tool)
	c.IsNonInteractiveFailure = func(string) bool { return true }

	err := c.Run(context.Background(), "add_users")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "No pending schema changes")

	entries, err := os.ReadDir(c.MigrationsDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_OtherToolFailureIsFatal(t *testing.T) {
	tool := &fakeTool{draft: func(context.Context, string) (DraftResult, error) {
		return DraftResult{Output: "P1001: Can't reach database server"},
			errors.New("prisma migrate dev: exit status 1: P1001: Can't reach database server")
	}}
	c, _ := newCreator(t, tool)
	c.IsNonInteractiveFailure = func(output string) bool {
		return strings.Contains(output, "non-interactive")
	}

	err := c.Run(context.Background(), "add_users")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "P1001")
}

func TestRun_FallbackEquivalence(t *testing.T) {
	// Given the same generated SQL, the interactive and fallback paths must
	// produce the same file name, directory format and sanitized bytes.
	sqlText := "DROP INDEX \"idx_vec\";\n\n\n\n\nALTER TABLE t ADD COLUMN x INT;\n"

	var interactive *Creator
	interactiveTool := &fakeTool{draft: func(_ context.Context, name string) (DraftResult, error) {
		dir := filepath.Join(interactive.MigrationsDir, "20260101120000_"+name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return DraftResult{}, err
		}
		return DraftResult{}, os.WriteFile(filepath.Join(dir, "migration.sql"), []byte(sqlText), 0o644)
	}}
	interactive, _ = newCreator(t, interactiveTool)
	require.NoError(t, interactive.Run(context.Background(), "add_users"))

	fallbackTool := &fakeTool{
		draft: func(context.Context, string) (DraftResult, error) {
			return DraftResult{Output: "environment is non-interactive"}, errors.New("exit status 1")
		},
		diff: func(context.Context) (string, error) { return sqlText, nil },
	}
	fb, _ := newCreator(t, fallbackTool)
	fb.IsNonInteractiveFailure = func(string) bool { return true }
	require.NoError(t, fb.Run(context.Background(), "add_users"))

	dirPattern := regexp.MustCompile(`^\d{14}_add_users$`)
	readOnly := func(root string) (string, []byte) {
		entries, err := os.ReadDir(root)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		data, err := os.ReadFile(filepath.Join(root, entries[0].Name(), "migration.sql"))
		require.NoError(t, err)
		return entries[0].Name(), data
	}

	iDir, iData := readOnly(interactive.MigrationsDir)
	fDir, fData := readOnly(fb.MigrationsDir)
	assert.Regexp(t, dirPattern, iDir)
	assert.Regexp(t, dirPattern, fDir)
	assert.Equal(t, string(iData), string(fData))
}

// fakeExecer satisfies ledger.Execer for reconciliation wiring.
type fakeExecer struct {
	affected int64
	err      error
	gotQuery string
}

type fakeResult struct{ n int64 }

func (r fakeResult) LastInsertId() (int64, error) { return 0, errors.New("not supported") }
func (r fakeResult) RowsAffected() (int64, error) { return r.n, nil }

func (f *fakeExecer) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	f.gotQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return fakeResult{f.affected}, nil
}

func (f *fakeExecer) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errors.New("not supported")
}

func (f *fakeExecer) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}

func TestRun_SanitizationTriggersReconciliation(t *testing.T) {
	var c *Creator
	tool := &fakeTool{draft: func(_ context.Context, name string) (DraftResult, error) {
		dir := filepath.Join(c.MigrationsDir, "20260101115959_"+name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return DraftResult{}, err
		}
		return DraftResult{}, os.WriteFile(filepath.Join(dir, "migration.sql"),
			[]byte("DROP INDEX \"idx_vec\";\n"), 0o644)
	}}
	exec := &fakeExecer{affected: 1}
	c, out := newCreator(t, tool)
	c.Reconciler = &ledger.Reconciler{Client: ledger.NewClient(exec), Out: out}

	err := c.Run(context.Background(), "add_users")
	require.NoError(t, err)
	assert.Contains(t, exec.gotQuery, "UPDATE _prisma_migrations")
	assert.Contains(t, out.String(), "ledger checksum for 20260101115959_add_users updated")
}

func TestRun_ReconciliationErrorIsNonFatal(t *testing.T) {
	var c *Creator
	tool := &fakeTool{draft: func(_ context.Context, name string) (DraftResult, error) {
		dir := filepath.Join(c.MigrationsDir, "20260101115959_"+name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return DraftResult{}, err
		}
		return DraftResult{}, os.WriteFile(filepath.Join(dir, "migration.sql"),
			[]byte("DROP INDEX \"idx_vec\";\n"), 0o644)
	}}
	exec := &fakeExecer{err: errors.New("connection reset")}
	c, out := newCreator(t, tool)
	c.Reconciler = &ledger.Reconciler{Client: ledger.NewClient(exec)}

	err := c.Run(context.Background(), "add_users")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "warning: could not reconcile")

	// The sanitized file was still written.
	data, err := os.ReadFile(filepath.Join(c.MigrationsDir, "20260101115959_add_users", "migration.sql"))
	require.NoError(t, err)
	assert.True(t, sanitize.IsRemoved(strings.Split(string(data), "\n")[0]))
}
