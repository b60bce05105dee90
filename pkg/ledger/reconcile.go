package ledger

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/migsafe/migsafe/pkg/checksum"
)

// Reconciler writes a corrected checksum into the ledger after sanitization
// rewrote a migration, or after an operator reviewed a drift report.
// Reconciliation is best effort: callers log errors and carry on, it never
// blocks migration creation.
type Reconciler struct {
	Client *Client
	// Out receives one line per reconciliation outcome. Defaults to
	// io.Discard when nil.
	Out io.Writer
}

// Reconcile computes the checksum of finalSQL and updates the ledger row
// keyed by the base name of migrationDir. Zero rows updated means the
// migration is not applied yet; its real application will record the correct
// checksum, so that case is logged, not an error.
func (r *Reconciler) Reconcile(ctx context.Context, migrationDir string, finalSQL []byte) error {
	name := filepath.Base(migrationDir)
	sum := checksum.Sum(finalSQL)

	n, err := r.Client.UpdateChecksum(ctx, name, sum)
	if err != nil {
		return err
	}

	out := r.Out
	if out == nil {
		out = io.Discard
	}
	if n == 0 {
		fmt.Fprintf(out, "ledger has no row for %s yet; first application will record the new checksum\n", name)
	} else {
		fmt.Fprintf(out, "ledger checksum for %s updated to %s\n", name, sum)
	}
	return nil
}
