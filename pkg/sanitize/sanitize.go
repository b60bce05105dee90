// Package sanitize rewrites auto-generated migration SQL before it is
// persisted. Lines matching a configured dangerous pattern are commented out
// with a REMOVED marker — never silently deleted — so the migration file
// still shows what the diffing tool proposed.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/migsafe/migsafe/pkg/rules"
)

// RemovedPrefix marks a line the sanitizer commented out.
const RemovedPrefix = "-- REMOVED: "

// Removal records one commented-out statement and the rule that hit it.
type Removal struct {
	Statement string
	Reason    string
}

// Result is the outcome of one sanitization pass. It is transient: the
// rewritten text is what gets persisted and checksummed, the removals only
// feed the report.
type Result struct {
	Text    string
	Removed []Removal
}

// blankRuns matches three or more consecutive blank lines.
var blankRuns = regexp.MustCompile(`\n{4,}`)

// Sanitize applies each pattern in order to every line of sql. Matching is
// case-insensitive and per line. A line that already carries the REMOVED
// marker is skipped, so the first matching pattern wins and re-sanitizing
// output is a no-op. After all patterns run, runs of three or more blank
// lines collapse to one. Identical input always yields byte-identical
// output; the sanitized text is what gets checksummed.
func Sanitize(sql string, patterns []rules.IgnorePattern) Result {
	lines := strings.Split(sql, "\n")
	var removed []Removal

	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p.Pattern)
		if err != nil {
			// Patterns are validated at load time; an invalid one that
			// slips through must not take lines out on a false match.
			continue
		}
		for i, line := range lines {
			if IsRemoved(line) {
				continue
			}
			if re.MatchString(line) {
				removed = append(removed, Removal{
					Statement: strings.TrimSpace(line),
					Reason:    p.Reason,
				})
				lines[i] = RemovedPrefix + line
			}
		}
	}

	text := blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return Result{Text: text, Removed: removed}
}

// IsRemoved reports whether line was commented out by a previous pass.
func IsRemoved(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), strings.TrimRight(RemovedPrefix, " "))
}
