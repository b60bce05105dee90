package create

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/migsafe/migsafe/pkg/sanitize"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Strikethrough(true)
	noteStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

// printReport prints the final SQL with removed lines visually
// distinguished, then the next-step checklist.
func (c *Creator) printReport(dir string, res sanitize.Result, usedFallback bool) {
	w := c.out()

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Created "+filepath.Base(dir)))
	fmt.Fprintln(w)

	for _, line := range strings.Split(res.Text, "\n") {
		if sanitize.IsRemoved(line) {
			fmt.Fprintln(w, removedStyle.Render(line))
		} else {
			fmt.Fprintln(w, line)
		}
	}

	if len(res.Removed) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render("Removed statements:"))
		for _, r := range res.Removed {
			fmt.Fprintf(w, "  - %s (%s)\n", r.Statement, r.Reason)
		}
	}

	if usedFallback {
		fmt.Fprintln(w)
		fmt.Fprintln(w, noteStyle.Render(
			"Note: generated via schema diff; the consistency-check (shadow) database was skipped.\n"+
				"Structural validity is confirmed on first real application."))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Next steps:"))
	fmt.Fprintln(w, "  1. Review the SQL above.")
	fmt.Fprintln(w, "  2. Apply it: npx prisma migrate deploy")
	fmt.Fprintln(w, "  3. Regenerate the client: npx prisma generate")
	fmt.Fprintln(w, "  4. Commit the migration directory and deploy.")
}
