package safety

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/migsafe/migsafe/pkg/rules"
)

func protected() []rules.ProtectedIndex {
	return []rules.ProtectedIndex{{
		Name:          "idx_protected",
		DropPattern:   `DROP INDEX.*idx_protected`,
		CreatePattern: `CREATE INDEX.*idx_protected`,
		Description:   "hnsw index, not representable in the datamodel",
	}}
}

func writeSQL(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScan_DropWithoutCreateIsOneViolation(t *testing.T) {
	root := t.TempDir()
	writeSQL(t, root, "20260101000000_init/migration.sql",
		"DROP INDEX \"idx_protected\";\nALTER TABLE t ADD COLUMN x INT;\n")

	report, err := Scan(root, protected())
	require.NoError(t, err)
	require.Len(t, report.Violations, 1)
	assert.True(t, report.HasViolations())
	assert.Equal(t, "idx_protected", report.Violations[0].Index)
	assert.Equal(t, "20260101000000_init/migration.sql", filepath.ToSlash(report.Violations[0].File))
	assert.Equal(t, "DROP INDEX \"idx_protected\";", report.Violations[0].Statement)
}

func TestScan_CreateAnywhereInFileCancelsViolation(t *testing.T) {
	root := t.TempDir()
	writeSQL(t, root, "20260101000000_init/migration.sql",
		"DROP INDEX \"idx_protected\";\nALTER TABLE t ADD COLUMN x INT;\nCREATE INDEX \"idx_protected\" ON t USING hnsw (v);\n")

	report, err := Scan(root, protected())
	require.NoError(t, err)
	assert.False(t, report.HasViolations())
	assert.Equal(t, 1, report.FilesScanned)
}

func TestScan_CaseInsensitive(t *testing.T) {
	root := t.TempDir()
	writeSQL(t, root, "m/migration.sql", "drop index \"IDX_PROTECTED\";\n")

	report, err := Scan(root, protected())
	require.NoError(t, err)
	assert.True(t, report.HasViolations())
}

func TestScan_SanitizedLinesAreNotViolations(t *testing.T) {
	root := t.TempDir()
	writeSQL(t, root, "m/migration.sql",
		"-- REMOVED: DROP INDEX \"idx_protected\";\nALTER TABLE t ADD COLUMN x INT;\n")

	report, err := Scan(root, protected())
	require.NoError(t, err)
	assert.False(t, report.HasViolations())
}

func TestScan_RecursesAndGroupsByFile(t *testing.T) {
	root := t.TempDir()
	writeSQL(t, root, "a/20260101000000_one/migration.sql", "DROP INDEX idx_protected;\n")
	writeSQL(t, root, "b/20260102000000_two/migration.sql", "DROP INDEX idx_protected;\n")
	writeSQL(t, root, "b/notes.txt", "DROP INDEX idx_protected") // non-SQL ignored

	report, err := Scan(root, protected())
	require.NoError(t, err)
	assert.Equal(t, 2, report.FilesScanned)
	require.Len(t, report.Violations, 2)

	var buf bytes.Buffer
	report.Print(&buf)
	out := buf.String()
	assert.Contains(t, out, "one/migration.sql")
	assert.Contains(t, out, "two/migration.sql")
	assert.Contains(t, out, "2 violations")
}

func TestScan_CleanReport(t *testing.T) {
	root := t.TempDir()
	writeSQL(t, root, "m/migration.sql", "ALTER TABLE t ADD COLUMN x INT;\n")

	report, err := Scan(root, protected())
	require.NoError(t, err)
	assert.False(t, report.HasViolations())

	var buf bytes.Buffer
	report.Print(&buf)
	assert.Contains(t, buf.String(), "no protected index violations")
}
