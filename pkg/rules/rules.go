// Package rules holds the rule table describing SQL statements the schema
// diffing tool emits but must never be allowed through: statements that drop
// indexes the datamodel cannot express (vector indexes, partial indexes).
//
// One table feeds two consumers. The sanitizer consumes the removal view
// (IgnorePatterns) and comments offending lines out before the migration is
// persisted. The safety scanner consumes the pair view (ProtectedIndexes) and
// fails CI when a drop appears without a matching recreate. Keeping a single
// table prevents the two lists from drifting apart.
package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// ActionRemove is the only supported action for ignore patterns.
const ActionRemove = "remove"

// Rule is one row of the rule table.
type Rule struct {
	// Subject names what the rule protects, e.g. "vector indexes".
	Subject string
	// DangerousShape is a regex fragment matching the statement that must
	// not survive, e.g. `DROP INDEX.*idx_vec`.
	DangerousShape string
	// MitigatingShape is a regex fragment that, when present anywhere in the
	// same file, makes the dangerous statement acceptable (the index is
	// recreated). Empty when no mitigation exists.
	MitigatingShape string
	// Reason is recorded with every removal and violation.
	Reason string
}

// IgnorePattern is the removal view of a rule, matching the on-disk artifact.
type IgnorePattern struct {
	Pattern string `json:"pattern"`
	Reason  string `json:"reason"`
	Action  string `json:"action"`
}

// ProtectedIndex is the drop/create pair view of a rule.
type ProtectedIndex struct {
	Name          string `json:"name"`
	DropPattern   string `json:"dropPattern"`
	CreatePattern string `json:"createPattern"`
	Description   string `json:"description"`
}

// Set is an immutable per-invocation rule collection. It is loaded fresh on
// every command and passed by value into the sanitizer and scanner.
type Set struct {
	Rules []Rule
}

// IgnorePatterns derives the removal form of every rule, in table order.
func (s Set) IgnorePatterns() []IgnorePattern {
	out := make([]IgnorePattern, 0, len(s.Rules))
	for _, r := range s.Rules {
		out = append(out, IgnorePattern{
			Pattern: r.DangerousShape,
			Reason:  r.Reason,
			Action:  ActionRemove,
		})
	}
	return out
}

// ProtectedIndexes derives the drop/create pair form of every rule that has
// a mitigating shape. Rules without one cannot be checked as pairs.
func (s Set) ProtectedIndexes() []ProtectedIndex {
	var out []ProtectedIndex
	for _, r := range s.Rules {
		if r.MitigatingShape == "" {
			continue
		}
		out = append(out, ProtectedIndex{
			Name:          r.Subject,
			DropPattern:   r.DangerousShape,
			CreatePattern: r.MitigatingShape,
			Description:   r.Reason,
		})
	}
	return out
}

// artifact is the JSON shape of the external rules file.
type artifact struct {
	IgnorePatterns   []IgnorePattern  `json:"ignorePatterns"`
	ProtectedIndexes []ProtectedIndex `json:"protectedIndexes"`
}

// Defaults returns the built-in rule set used when no artifact is readable.
// The shapes rely on the project convention of suffixing index names that
// the datamodel cannot express with _vec, _embedding or _partial.
func Defaults() Set {
	return Set{Rules: []Rule{
		{
			Subject:         "vector indexes",
			DangerousShape:  `DROP INDEX\s+.*(_vec|_embedding)`,
			MitigatingShape: `CREATE INDEX\s+.*(_vec|_embedding)`,
			Reason:          "vector index cannot be represented in the schema datamodel",
		},
		{
			Subject:         "partial indexes",
			DangerousShape:  `DROP INDEX\s+.*_partial`,
			MitigatingShape: `CREATE\s+(UNIQUE\s+)?INDEX\s+.*_partial`,
			Reason:          "partial index cannot be represented in the schema datamodel",
		},
	}}
}

// Load reads the rules artifact at path and converts it into a rule table.
// A missing, unreadable or invalid artifact is never fatal: the built-in
// defaults are returned together with the load error so callers can warn.
func Load(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Defaults(), fmt.Errorf("reading rules artifact: %w", err)
	}

	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Defaults(), fmt.Errorf("parsing rules artifact %s: %w", path, err)
	}

	var set Set
	for _, p := range a.IgnorePatterns {
		if p.Action != "" && p.Action != ActionRemove {
			return Defaults(), fmt.Errorf("rules artifact %s: unsupported action %q", path, p.Action)
		}
		set.Rules = append(set.Rules, Rule{
			Subject:        p.Pattern,
			DangerousShape: p.Pattern,
			Reason:         p.Reason,
		})
	}
	for _, idx := range a.ProtectedIndexes {
		set.Rules = append(set.Rules, Rule{
			Subject:         idx.Name,
			DangerousShape:  idx.DropPattern,
			MitigatingShape: idx.CreatePattern,
			Reason:          idx.Description,
		})
	}

	if err := set.validate(); err != nil {
		return Defaults(), fmt.Errorf("rules artifact %s: %w", path, err)
	}
	if len(set.Rules) == 0 {
		return Defaults(), fmt.Errorf("rules artifact %s: no rules defined", path)
	}
	return set, nil
}

// validate compiles every regex fragment so the sanitizer and scanner can
// assume well-formed patterns.
func (s Set) validate() error {
	for _, r := range s.Rules {
		if _, err := regexp.Compile("(?i)" + r.DangerousShape); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", r.DangerousShape, err)
		}
		if r.MitigatingShape != "" {
			if _, err := regexp.Compile("(?i)" + r.MitigatingShape); err != nil {
				return fmt.Errorf("invalid pattern %q: %w", r.MitigatingShape, err)
			}
		}
	}
	return nil
}
