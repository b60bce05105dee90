// Package safety is the CI gate for protected indexes. It never edits files:
// it assumes the sanitizer already ran for anything auto-fixable and fails
// the build when a migration drops a protected index without recreating it
// in the same file.
package safety

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/migsafe/migsafe/pkg/rules"
	"github.com/migsafe/migsafe/pkg/sanitize"
)

// Violation is one protected index dropped without a matching recreate.
type Violation struct {
	// File is the offending migration file, relative to the scan root.
	File string
	// Index is the protected index name from the rule table.
	Index string
	// Statement is the matched drop statement, trimmed.
	Statement string
	// Description explains why the index is protected.
	Description string
}

// Report aggregates violations across a scan.
type Report struct {
	FilesScanned int
	Violations   []Violation
}

// HasViolations reports whether the scan must fail the build.
func (r *Report) HasViolations() bool {
	return len(r.Violations) > 0
}

// Print writes violations grouped by file.
func (r *Report) Print(w io.Writer) {
	if !r.HasViolations() {
		fmt.Fprintf(w, "Scanned %d files, no protected index violations.\n", r.FilesScanned)
		return
	}

	byFile := make(map[string][]Violation)
	var order []string
	for _, v := range r.Violations {
		if _, seen := byFile[v.File]; !seen {
			order = append(order, v.File)
		}
		byFile[v.File] = append(byFile[v.File], v)
	}

	for _, file := range order {
		fmt.Fprintf(w, "\n%s\n", file)
		for _, v := range byFile[file] {
			fmt.Fprintf(w, "  ✗ %s dropped without a matching recreate\n", v.Index)
			fmt.Fprintf(w, "      %s\n", v.Statement)
			if v.Description != "" {
				fmt.Fprintf(w, "      (%s)\n", v.Description)
			}
		}
	}
	fmt.Fprintf(w, "\nScanned %d files, %d violations.\n", r.FilesScanned, len(r.Violations))
}

// Scan recursively enumerates SQL files under root and checks each against
// every protected index: if the drop pattern matches and the create pattern
// does not match anywhere in the same file, that is a violation. Matching is
// case-insensitive throughout.
func Scan(root string, indexes []rules.ProtectedIndex) (*Report, error) {
	type compiled struct {
		rules.ProtectedIndex
		drop   *regexp.Regexp
		create *regexp.Regexp
	}

	checks := make([]compiled, 0, len(indexes))
	for _, idx := range indexes {
		drop, err := regexp.Compile("(?i)" + idx.DropPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid drop pattern for %s: %w", idx.Name, err)
		}
		create, err := regexp.Compile("(?i)" + idx.CreatePattern)
		if err != nil {
			return nil, fmt.Errorf("invalid create pattern for %s: %w", idx.Name, err)
		}
		checks = append(checks, compiled{ProtectedIndex: idx, drop: drop, create: create})
	}

	report := &Report{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".sql") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		report.FilesScanned++

		content := activeSQL(string(data))
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		for _, c := range checks {
			loc := c.drop.FindString(content)
			if loc == "" || c.create.MatchString(content) {
				continue
			}
			report.Violations = append(report.Violations, Violation{
				File:        rel,
				Index:       c.Name,
				Statement:   strings.TrimSpace(loc),
				Description: c.Description,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// activeSQL strips lines the sanitizer already commented out, so a removed
// drop statement is not reported again as a violation.
func activeSQL(content string) string {
	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if sanitize.IsRemoved(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
