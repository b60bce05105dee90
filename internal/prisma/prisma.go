// Package prisma adapts the Prisma CLI to the creation workflow. It shells
// out for both operations the workflow needs: drafting a migration without
// applying it, and diffing the live database against the datamodel.
//
// The diagnostics Prisma prints are version-dependent strings; every
// fragile match lives in a named predicate here and nowhere else.
package prisma

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/migsafe/migsafe/pkg/create"
)

// CLI invokes the Prisma CLI. Command is the argv prefix, typically
// ["npx", "prisma"]. Connection configuration is environment-driven
// (DATABASE_URL), passed through to the child process.
type CLI struct {
	Command []string
	// Schema is the path to schema.prisma; empty uses Prisma's default
	// discovery.
	Schema string
	// DatabaseURL overrides the environment for the diff operation's
	// --from-url argument. Empty falls back to $DATABASE_URL.
	DatabaseURL string
	// Dir is the working directory for tool invocations.
	Dir string

	// Stdout and Stderr receive the tool's streamed output during the
	// interactive draft call, in addition to capture. Default to the
	// process's own streams.
	Stdout io.Writer
	Stderr io.Writer
}

// New returns a CLI with the default npx invocation.
func New(schema, databaseURL string) *CLI {
	return &CLI{
		Command:     []string{"npx", "prisma"},
		Schema:      schema,
		DatabaseURL: databaseURL,
	}
}

// RunError carries the tool's combined output alongside the exec error so
// callers can classify the failure and surface the raw diagnostics.
type RunError struct {
	Output string
	Err    error
}

func (e *RunError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("prisma: %v", e.Err)
	}
	return fmt.Sprintf("prisma: %v\n%s", e.Err, out)
}

func (e *RunError) Unwrap() error { return e.Err }

// CreateDraft runs `prisma migrate dev --create-only --name <name>`. The
// call is interactive: Prisma may prompt (e.g. to reset the shadow
// database), so stdin is wired through. Output is captured even on failure
// so the caller can test it against the non-interactive sentinel.
func (c *CLI) CreateDraft(ctx context.Context, name string) (create.DraftResult, error) {
	args := []string{"migrate", "dev", "--create-only", "--name", name}
	if c.Schema != "" {
		args = append(args, "--schema", c.Schema)
	}

	var buf bytes.Buffer
	cmd := c.command(ctx, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = io.MultiWriter(c.stdout(), &buf)
	cmd.Stderr = io.MultiWriter(c.stderr(), &buf)

	err := cmd.Run()
	res := create.DraftResult{
		Output:           buf.String(),
		NoPendingChanges: HasNoPendingChanges(buf.String()),
	}
	if err != nil {
		return res, &RunError{Output: res.Output, Err: err}
	}
	return res, nil
}

// DiffScript runs `prisma migrate diff --from-url <db> --to-schema-datamodel
// <schema> --script`, comparing the live database directly against the
// datamodel. This bypasses the shadow database entirely, which is the point:
// the shadow database cannot be provisioned without interactivity.
func (c *CLI) DiffScript(ctx context.Context) (string, error) {
	fromURL := c.DatabaseURL
	if fromURL == "" {
		fromURL = os.Getenv("DATABASE_URL")
	}
	schema := c.Schema
	if schema == "" {
		schema = "prisma/schema.prisma"
	}

	args := []string{
		"migrate", "diff",
		"--from-url", fromURL,
		"--to-schema-datamodel", schema,
		"--script",
	}

	var stdout, stderr bytes.Buffer
	cmd := c.command(ctx, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &RunError{Output: stderr.String(), Err: err}
	}
	return stdout.String(), nil
}

func (c *CLI) command(ctx context.Context, args ...string) *exec.Cmd {
	argv := append(append([]string{}, c.Command...), args...)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = os.Environ()
	return cmd
}

func (c *CLI) stdout() io.Writer {
	if c.Stdout != nil {
		return c.Stdout
	}
	return os.Stdout
}

func (c *CLI) stderr() io.Writer {
	if c.Stderr != nil {
		return c.Stderr
	}
	return os.Stderr
}

// HasNoPendingChanges detects the marker Prisma prints when the datamodel
// and the migration history already agree.
func HasNoPendingChanges(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "no pending changes") ||
		strings.Contains(lower, "already in sync")
}

// IsNonInteractiveFailure reports whether a failed draft call died because
// Prisma refused to run interactively. This is the single place the
// version-dependent sentinel string lives.
func IsNonInteractiveFailure(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "environment is non-interactive") ||
		strings.Contains(lower, "non-interactive environment")
}

// IsEmptyScript reports whether a diff script contains no statements.
// Prisma emits "-- This is an empty migration." when the diff is empty; any
// script that is blank or all comments counts.
func IsEmptyScript(script string) bool {
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}
