// Package drift compares on-disk migration checksums against the ledger.
// It is a read-only auditor: every ledger row is checked against the file it
// was recorded for, and mismatches are reported for the reconciler to fix.
package drift

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/migsafe/migsafe/pkg/checksum"
	"github.com/migsafe/migsafe/pkg/ledger"
)

// Status is the per-migration comparison outcome.
type Status int

const (
	// StatusOK means the file checksum matches the ledger.
	StatusOK Status = iota
	// StatusDrift means the file was modified after it was applied.
	StatusDrift
	// StatusMissing means the ledger row has no corresponding file on disk.
	StatusMissing
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusDrift:
		return "DRIFT"
	case StatusMissing:
		return "MISSING"
	default:
		return "unknown"
	}
}

// Symbol returns a status indicator for terminal output.
func (s Status) Symbol() string {
	switch s {
	case StatusOK:
		return "✓"
	case StatusDrift:
		return "✗"
	case StatusMissing:
		return "?"
	default:
		return "?"
	}
}

// Entry is the comparison result for one ledger row.
type Entry struct {
	Name           string
	Status         Status
	LedgerChecksum string
	FileChecksum   string
	// Unfinished marks a row whose application never finished; it needs
	// manual resolution regardless of checksum state.
	Unfinished bool
}

// Report aggregates entries for printing and for the reconciler.
type Report struct {
	Entries []Entry
}

// Drifted returns the names of migrations whose checksums mismatch.
func (r *Report) Drifted() []string {
	var names []string
	for _, e := range r.Entries {
		if e.Status == StatusDrift {
			names = append(names, e.Name)
		}
	}
	return names
}

// Missing returns the names of ledger rows with no file on disk.
func (r *Report) Missing() []string {
	var names []string
	for _, e := range r.Entries {
		if e.Status == StatusMissing {
			names = append(names, e.Name)
		}
	}
	return names
}

// Clean reports whether every entry is OK.
func (r *Report) Clean() bool {
	for _, e := range r.Entries {
		if e.Status != StatusOK {
			return false
		}
	}
	return true
}

// Print writes the report. Drifted entries show both checksums so the
// operator can decide which side is right before reconciling.
func (r *Report) Print(w io.Writer) {
	for _, e := range r.Entries {
		fmt.Fprintf(w, "%s %-50s %s", e.Status.Symbol(), e.Name, e.Status)
		if e.Unfinished {
			fmt.Fprint(w, " (application never finished; resolve manually)")
		}
		fmt.Fprintln(w)
		if e.Status == StatusDrift {
			fmt.Fprintf(w, "    ledger: %s\n", e.LedgerChecksum)
			fmt.Fprintf(w, "    file:   %s\n", e.FileChecksum)
		}
	}

	if drifted := r.Drifted(); len(drifted) > 0 {
		fmt.Fprintln(w)
		fmt.Fprint(w, "After reviewing which side is correct, run: migsafe reconcile")
		for _, name := range drifted {
			fmt.Fprintf(w, " %s", name)
		}
		fmt.Fprintln(w)
	}
}

// RecordSource supplies ledger rows. *ledger.Client satisfies it; tests use
// an in-memory fake.
type RecordSource interface {
	Records(ctx context.Context) ([]ledger.Record, error)
}

// Detect reads every ledger row and compares it against
// <migrationsDir>/<name>/migration.sql. A ledger failure is fatal — there is
// nothing useful to report without the data. A missing file is not: the
// entry is recorded and the scan continues.
func Detect(ctx context.Context, src RecordSource, migrationsDir string) (*Report, error) {
	records, err := src.Records(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, rec := range records {
		entry := Entry{
			Name:           rec.Name,
			LedgerChecksum: rec.Checksum,
			Unfinished:     !rec.Applied(),
		}

		path := filepath.Join(migrationsDir, rec.Name, "migration.sql")
		sum, err := checksum.File(path)
		switch {
		case os.IsNotExist(err):
			entry.Status = StatusMissing
		case err != nil:
			// Unreadable for another reason (permissions); treat like a
			// missing file rather than aborting the whole scan.
			entry.Status = StatusMissing
		case sum == rec.Checksum:
			entry.Status = StatusOK
			entry.FileChecksum = sum
		default:
			entry.Status = StatusDrift
			entry.FileChecksum = sum
		}
		report.Entries = append(report.Entries, entry)
	}
	return report, nil
}
