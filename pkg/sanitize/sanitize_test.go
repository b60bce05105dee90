package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/migsafe/migsafe/pkg/rules"
)

func vectorPatterns() []rules.IgnorePattern {
	return []rules.IgnorePattern{
		{Pattern: "DROP INDEX.*idx_vec", Reason: "vector index", Action: rules.ActionRemove},
	}
}

func TestSanitize_RemovesMatchingLine(t *testing.T) {
	sql := "DROP INDEX \"idx_vec\";\nALTER TABLE t ADD COLUMN x INT;"

	res := Sanitize(sql, vectorPatterns())

	assert.Equal(t,
		"-- REMOVED: DROP INDEX \"idx_vec\";\nALTER TABLE t ADD COLUMN x INT;",
		res.Text)
	require.Len(t, res.Removed, 1)
	assert.Equal(t, "DROP INDEX \"idx_vec\";", res.Removed[0].Statement)
	assert.Equal(t, "vector index", res.Removed[0].Reason)
}

func TestSanitize_CaseInsensitive(t *testing.T) {
	res := Sanitize("drop index \"IDX_VEC\";", vectorPatterns())
	require.Len(t, res.Removed, 1)
	assert.Equal(t, "-- REMOVED: drop index \"IDX_VEC\";", res.Text)
}

func TestSanitize_Idempotent(t *testing.T) {
	first := Sanitize("DROP INDEX \"idx_vec\";\nSELECT 1;", vectorPatterns())
	require.Len(t, first.Removed, 1)

	second := Sanitize(first.Text, vectorPatterns())
	assert.Empty(t, second.Removed)
	assert.Equal(t, first.Text, second.Text)
}

func TestSanitize_FirstMatchWins(t *testing.T) {
	// Two patterns hit the same line with different reasons. The line is
	// annotated once and only the first rule's reason is recorded.
	patterns := []rules.IgnorePattern{
		{Pattern: "DROP INDEX.*idx_vec", Reason: "vector index"},
		{Pattern: "DROP INDEX", Reason: "any index drop"},
	}

	res := Sanitize("DROP INDEX \"idx_vec\";", patterns)

	require.Len(t, res.Removed, 1)
	assert.Equal(t, "vector index", res.Removed[0].Reason)
	assert.Equal(t, "-- REMOVED: DROP INDEX \"idx_vec\";", res.Text)
}

func TestSanitize_CollapsesBlankRuns(t *testing.T) {
	sql := "SELECT 1;\n\n\n\n\nSELECT 2;"
	res := Sanitize(sql, nil)
	assert.Equal(t, "SELECT 1;\n\nSELECT 2;", res.Text)
}

func TestSanitize_KeepsSingleBlankLine(t *testing.T) {
	sql := "SELECT 1;\n\nSELECT 2;"
	res := Sanitize(sql, nil)
	assert.Equal(t, sql, res.Text)
}

func TestSanitize_Deterministic(t *testing.T) {
	sql := "DROP INDEX \"idx_vec\";\n\n\n\n\nALTER TABLE t ADD COLUMN x INT;"
	a := Sanitize(sql, vectorPatterns())
	b := Sanitize(sql, vectorPatterns())
	assert.Equal(t, a.Text, b.Text)
	assert.Equal(t, a.Removed, b.Removed)
}

func TestSanitize_InvalidPatternMatchesNothing(t *testing.T) {
	res := Sanitize("DROP INDEX \"idx_vec\";", []rules.IgnorePattern{
		{Pattern: "DROP INDEX.*(", Reason: "broken"},
	})
	assert.Empty(t, res.Removed)
	assert.Equal(t, "DROP INDEX \"idx_vec\";", res.Text)
}

func TestIsRemoved(t *testing.T) {
	assert.True(t, IsRemoved("-- REMOVED: DROP INDEX \"idx_vec\";"))
	assert.True(t, IsRemoved("  -- REMOVED: DROP INDEX \"idx_vec\";"))
	assert.False(t, IsRemoved("DROP INDEX \"idx_vec\";"))
	assert.False(t, IsRemoved("-- a plain comment"))
}
