// Package create orchestrates the end-to-end migration creation workflow:
// name acquisition, schema tool invocation with a non-interactive fallback,
// sanitization and reporting.
//
// The workflow is a small state machine:
//
//	NAME_PENDING → GENERATING → {EMPTY, GENERATED} → SANITIZING → REPORTED
//
// EMPTY (no schema changes) and REPORTED are the terminal states; EMPTY is
// not an error. The interactive and fallback generation paths converge on
// the same directory layout and sanitization pass, so downstream behavior
// is identical regardless of how the SQL was produced.
package create

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/migsafe/migsafe/pkg/ledger"
	"github.com/migsafe/migsafe/pkg/rules"
	"github.com/migsafe/migsafe/pkg/sanitize"
)

// DraftResult is the outcome of the schema tool's draft-a-migration call.
// Output is populated even when the call failed, so the caller can classify
// the failure.
type DraftResult struct {
	Output           string
	NoPendingChanges bool
}

// Tool is the external schema tool contract: an interactive "draft a
// migration, do not apply" operation and a non-interactive "diff the live
// database against the datamodel, emit SQL" operation.
type Tool interface {
	CreateDraft(ctx context.Context, name string) (DraftResult, error)
	DiffScript(ctx context.Context) (string, error)
}

// Creator wires the creation workflow together. Zero-value writers default
// to stdout/stderr, a nil Now to time.Now.
type Creator struct {
	Tool          Tool
	MigrationsDir string
	Patterns      []rules.IgnorePattern

	// Reconciler repairs the ledger checksum when sanitization rewrites a
	// migration that is already marked applied. Nil when the ledger is not
	// configured; reconciliation is best effort either way.
	Reconciler *ledger.Reconciler

	// Interactive controls whether a missing name may be prompted for.
	Interactive bool

	// IsNonInteractiveFailure decides whether a failed draft call should
	// trigger the diff fallback. The tool-version-dependent sentinel string
	// lives behind this one predicate.
	IsNonInteractiveFailure func(output string) bool

	// IsEmptyScript overrides the built-in empty-script detection for the
	// fallback path.
	IsEmptyScript func(script string) bool

	Out  io.Writer
	Errw io.Writer
	Now  func() time.Time
}

var nameRE = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidateName checks a migration name against the required shape.
func ValidateName(name string) error {
	if !nameRE.MatchString(name) {
		return fmt.Errorf("invalid migration name %q: expected format ^[a-z][a-z0-9_]*$ (lowercase letters, digits and underscores, starting with a letter)", name)
	}
	return nil
}

// Run executes the workflow. A supplied name is validated; an absent name is
// prompted for when interactive and fatal otherwise. Tool failures are fatal
// unless the non-interactive sentinel matches, which switches to the diff
// fallback.
func (c *Creator) Run(ctx context.Context, name string) error {
	name, err := c.resolveName(name)
	if err != nil {
		return err
	}

	before, err := c.listMigrations()
	if err != nil {
		return err
	}

	res, err := c.Tool.CreateDraft(ctx, name)
	if err != nil {
		if c.IsNonInteractiveFailure != nil && c.IsNonInteractiveFailure(res.Output) {
			return c.fallback(ctx, name)
		}
		// Surface the tool's raw error, never swallow it.
		return fmt.Errorf("schema tool failed: %w", err)
	}

	if res.NoPendingChanges {
		fmt.Fprintln(c.out(), "No pending schema changes; nothing to migrate.")
		return nil
	}

	dir, found, err := c.newMigrationDir(before, name)
	if err != nil {
		return err
	}
	if !found {
		// Tool exited cleanly without a marker or a directory; treat as
		// empty rather than guessing at a directory to sanitize.
		fmt.Fprintln(c.out(), "The schema tool created no migration directory; nothing to do.")
		return nil
	}

	return c.sanitizeAndReport(ctx, dir, false)
}

// resolveName implements the NAME_PENDING state.
func (c *Creator) resolveName(name string) (string, error) {
	if name != "" {
		if err := ValidateName(name); err != nil {
			return "", err
		}
		return name, nil
	}

	if !c.Interactive {
		return "", errors.New("migration name required: pass --name when not running in a terminal")
	}

	input := huh.NewInput().
		Title("Migration name").
		Description("lowercase letters, digits and underscores, starting with a letter").
		Value(&name).
		Validate(ValidateName)
	if err := huh.NewForm(huh.NewGroup(input)).Run(); err != nil {
		return "", fmt.Errorf("reading migration name: %w", err)
	}
	return name, nil
}

// fallback generates the migration by diffing the live database directly
// against the datamodel, bypassing the tool's consistency-check database
// (which itself needs interactivity to provision). The timestamped directory
// is constructed manually in the same format the tool uses.
func (c *Creator) fallback(ctx context.Context, name string) error {
	fmt.Fprintln(c.out(), "Interactive generation unavailable; diffing the live database against the datamodel instead.")

	script, err := c.Tool.DiffScript(ctx)
	if err != nil {
		return fmt.Errorf("schema diff failed: %w", err)
	}

	if c.emptyScript(script) {
		fmt.Fprintln(c.out(), "No pending schema changes; nothing to migrate.")
		return nil
	}

	dirName := c.now().Format("20060102150405") + "_" + name
	dir := filepath.Join(c.MigrationsDir, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating migration directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "migration.sql"), []byte(script), 0o644); err != nil {
		return fmt.Errorf("writing migration file: %w", err)
	}

	return c.sanitizeAndReport(ctx, dir, true)
}

// sanitizeAndReport implements SANITIZING and REPORTED. The file is
// rewritten only when the pass removed something; the report is printed
// either way.
func (c *Creator) sanitizeAndReport(ctx context.Context, dir string, usedFallback bool) error {
	path := filepath.Join(dir, "migration.sql")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading generated migration: %w", err)
	}

	res := sanitize.Sanitize(string(data), c.Patterns)
	if len(res.Removed) > 0 {
		if err := os.WriteFile(path, []byte(res.Text), 0o644); err != nil {
			return fmt.Errorf("rewriting sanitized migration: %w", err)
		}
		if c.Reconciler != nil {
			if err := c.Reconciler.Reconcile(ctx, dir, []byte(res.Text)); err != nil {
				fmt.Fprintf(c.errw(), "warning: could not reconcile ledger checksum: %v\n", err)
			}
		}
	}

	c.printReport(dir, res, usedFallback)
	return nil
}

// listMigrations snapshots the migration directory names. Discovery works by
// diffing snapshots taken before and after the draft call, so changes in the
// tool's output format cannot break it.
func (c *Creator) listMigrations() (map[string]bool, error) {
	entries, err := os.ReadDir(c.MigrationsDir)
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names[e.Name()] = true
		}
	}
	return names, nil
}

func (c *Creator) newMigrationDir(before map[string]bool, name string) (string, bool, error) {
	after, err := c.listMigrations()
	if err != nil {
		return "", false, err
	}
	var created []string
	for dir := range after {
		if !before[dir] && strings.HasSuffix(dir, "_"+name) {
			created = append(created, dir)
		}
	}
	if len(created) == 0 {
		return "", false, nil
	}
	sort.Strings(created)
	return filepath.Join(c.MigrationsDir, created[len(created)-1]), true, nil
}

func (c *Creator) emptyScript(script string) bool {
	if c.IsEmptyScript != nil {
		return c.IsEmptyScript(script)
	}
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}

func (c *Creator) out() io.Writer {
	if c.Out != nil {
		return c.Out
	}
	return os.Stdout
}

func (c *Creator) errw() io.Writer {
	if c.Errw != nil {
		return c.Errw
	}
	return os.Stderr
}

func (c *Creator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
