package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/profile-dedupe/internal/model"
)

// FormatSummary renders the operator-facing summary of a run.
func FormatSummary(r *model.Report) string {
	var b strings.Builder

	mode := "COMMIT"
	switch {
	case r.Cancelled:
		mode = "CANCELLED (nothing written)"
	case r.DryRun:
		mode = "DRY RUN (nothing written)"
	}
	fmt.Fprintf(&b, "# Profile reconciliation %s\n", r.RunID)
	fmt.Fprintf(&b, "Mode: %s\n", mode)
	fmt.Fprintf(&b, "Selection: %s\n", selection(r.Selection))
	fmt.Fprintf(&b, "Started: %s\n\n", r.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))

	s := r.Summary
	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Keys scanned: %d\n", s.KeysScanned)
	fmt.Fprintf(&b, "- Documents: %d (%d malformed, %d vanished)\n", s.Documents, s.Malformed, s.Absent)
	fmt.Fprintf(&b, "- Identity groups: %d (%d with duplicates)\n", s.Groups, s.Duplicates)
	fmt.Fprintf(&b, "- Selected: %d\n", s.Selected)
	fmt.Fprintf(&b, "- Succeeded: %d\n", s.Succeeded)
	fmt.Fprintf(&b, "- Failed: %d\n", s.Failed)
	fmt.Fprintf(&b, "- Skipped: %d\n", s.Skipped)
	fmt.Fprintf(&b, "- Already canonical: %d\n", s.Noop)
	fmt.Fprintf(&b, "- Orphans: %d\n\n", s.Orphans)

	if r.Fatal != "" {
		fmt.Fprintf(&b, "FATAL: %s\n\n", r.Fatal)
	}

	if len(r.Results.Success) > 0 {
		verb := "Committed"
		if r.DryRun {
			verb = "Would commit"
		}
		fmt.Fprintf(&b, "## %s\n", verb)
		for _, g := range r.Results.Success {
			fmt.Fprintf(&b, "- %s: %s -> %s", g.Handle, g.Action, g.CanonicalKey)
			if len(g.DeletedKeys) > 0 {
				fmt.Fprintf(&b, " (replaces %s)", strings.Join(g.DeletedKeys, ", "))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(r.Results.Failed) > 0 {
		b.WriteString("## Failed\n")
		for _, f := range r.Results.Failed {
			fmt.Fprintf(&b, "- %s [%s, %s]: %s\n", f.Handle, f.Stage, f.ErrorType, f.Reason)
		}
		b.WriteString("\n")
	}

	if len(r.Results.Skipped) > 0 {
		b.WriteString("## Skipped\n")
		for _, sk := range r.Results.Skipped {
			fmt.Fprintf(&b, "- %s: %s\n", sk.Handle, sk.Reason)
		}
		b.WriteString("\n")
	}

	if len(r.Orphans) > 0 {
		b.WriteString("## Orphans (left untouched)\n")
		for _, o := range r.Orphans {
			fmt.Fprintf(&b, "- %s: %s\n", o.Key, o.Reason)
		}
		b.WriteString("\n")
	}

	if len(r.Malformed) > 0 {
		b.WriteString("## Malformed keys\n")
		for _, m := range r.Malformed {
			fmt.Fprintf(&b, "- %s: %s\n", m.Key, m.Reason)
		}
		b.WriteString("\n")
	}

	if ix := r.Index; ix != nil {
		if ix.Planned {
			b.WriteString("## Index (planned)\n")
		} else {
			b.WriteString("## Index\n")
			fmt.Fprintf(&b, "- Cleared: %d\n", ix.Cleared)
		}
		fmt.Fprintf(&b, "- Profiles: %d\n", ix.Profiles)
		fmt.Fprintf(&b, "- Entries: %d\n", ix.Entries)
		dims := make([]string, 0, len(ix.Dimensions))
		for d := range ix.Dimensions {
			dims = append(dims, d)
		}
		sort.Strings(dims)
		for _, d := range dims {
			fmt.Fprintf(&b, "  - %s: %d\n", d, ix.Dimensions[d])
		}
		if ix.Failed > 0 {
			fmt.Fprintf(&b, "- Failed: %d\n", ix.Failed)
		}
		b.WriteString("\n")
	}

	if r.BackupFile != "" {
		fmt.Fprintf(&b, "Backup: %s\n", r.BackupFile)
	}
	fmt.Fprintf(&b, "Duration: %dms\n", r.DurationMs)
	return b.String()
}

func selection(s model.Selection) string {
	switch s.Mode {
	case model.SelectHandles:
		return "handles " + strings.Join(s.Handles, ", ")
	case model.SelectRole:
		return "role " + s.Role
	default:
		return "all"
	}
}
