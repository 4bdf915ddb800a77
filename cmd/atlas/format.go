package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// formatEntitiesText formats entities as aligned columns with an optional
// trailing summary column.
func formatEntitiesText(w io.Writer, entities []CLIEntity, summaries []string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := "ID\tKIND\tNAME\tFILE\tLINE"
	if summaries != nil {
		header += "\tSUMMARY"
	}
	fmt.Fprintln(tw, header)
	for i, e := range entities {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d", e.ID, e.Kind, e.Name, e.File, e.StartLine)
		if summaries != nil {
			fmt.Fprintf(tw, "\t%s", summaries[i])
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}

// formatRelatedText formats related entities, indented under their focal
// entity.
func formatRelatedText(w io.Writer, related []CLIRelated, indent string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range related {
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s (%d)\n",
			indent, r.Direction, r.Relationship, r.Entity.ID, r.Certainty, r.Confidence)
	}
	tw.Flush()
}

func formatConceptsText(w io.Writer, concepts []CLIConcept) {
	for i, c := range concepts {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s  %s\n", c.Entity.ID, c.Summary)
		formatRelatedText(w, c.Related, "  ")
	}
}

func formatBriefingText(w io.Writer, b CLIBriefing) {
	fmt.Fprintf(w, "Entity: %s\n", b.Entity.ID)
	if b.Entity.File != "" {
		fmt.Fprintf(w, "Location: %s:%d\n", b.Entity.File, b.Entity.StartLine)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, b.Summary)
	if len(b.Related) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Related:")
		formatRelatedText(w, b.Related, "  ")
	}
}

// formatImpactsText formats impact targets as aligned columns.
func formatImpactsText(w io.Writer, impacts []CLIImpact, indent string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%sDEPTH\tENTITY\tCERTAINTY\tREASON\n", indent)
	for _, im := range impacts {
		fmt.Fprintf(tw, "%s%d\t%s\t%s (%d)\t%s\n",
			indent, im.Depth, im.Entity.ID, im.Certainty, im.Confidence, im.Reason)
	}
	tw.Flush()
}

func formatBlastText(w io.Writer, b CLIBlast) {
	fmt.Fprintf(w, "Direct impacts: %d\n", len(b.Direct))
	if len(b.Direct) > 0 {
		formatImpactsText(w, b.Direct, "  ")
	}
	fmt.Fprintf(w, "Indirect impacts: %d\n", len(b.Indirect))
	if len(b.Indirect) > 0 {
		formatImpactsText(w, b.Indirect, "  ")
	}
	if len(b.Unresolved) > 0 {
		fmt.Fprintln(w, "Unresolved references:")
		for _, u := range b.Unresolved {
			fmt.Fprintf(w, "  %s\n", u)
		}
	}
}

func formatDeltaText(w io.Writer, d CLIDelta) {
	fmt.Fprintf(w, "Completeness: %s\n", d.Completeness)
	for _, f := range d.Files {
		fmt.Fprintf(w, "\n%s\n", f.File)
		if len(f.Impacted) > 0 {
			formatImpactsText(w, f.Impacted, "  ")
		}
	}
}

func formatRenameEditsText(w io.Writer, title string, edits []CLIRenameEdit) {
	fmt.Fprintf(w, "%s: %d\n", title, len(edits))
	if len(edits) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range edits {
		fmt.Fprintf(tw, "  %s:%d:%d\t%s\t%d\t%s\n", e.File, e.StartLine, e.StartCol, e.Replacement, e.Confidence, e.Reason)
	}
	tw.Flush()
}

func formatRenameText(w io.Writer, r CLIRename) {
	formatRenameEditsText(w, "High-confidence edits", r.HighConfidence)
	formatRenameEditsText(w, "Low-confidence edits", r.LowConfidence)
	if len(r.Conflicts) > 0 {
		fmt.Fprintln(w, "Conflicts:")
		for _, c := range r.Conflicts {
			if c.File != "" {
				fmt.Fprintf(w, "  %s:%d: %s\n", c.File, c.Line, c.Message)
			} else {
				fmt.Fprintf(w, "  %s\n", c.Message)
			}
		}
	}
}

func formatIndexText(w io.Writer, s CLIIndexSummary) {
	fmt.Fprintf(w, "Root: %s\n", s.Root)
	fmt.Fprintf(w, "Snapshot: %s (written: %t)\n", s.SnapshotPath, s.Written)
	fmt.Fprintf(w, "Entities: %d\n", s.Entities)
	fmt.Fprintf(w, "Relationships: %d\n", s.Relationships)
	fmt.Fprintf(w, "Completeness: %s\n", s.Completeness)
	formatDiagnosticsText(w, s.Diagnostics)
}

func formatStatusText(w io.Writer, s CLIStatus) {
	fmt.Fprintf(w, "Root: %s\n", s.Root)
	if s.Package != "" {
		fmt.Fprintf(w, "Package: %s\n", s.Package)
	}
	if len(s.Members) > 0 {
		fmt.Fprintf(w, "Members: %s\n", strings.Join(s.Members, ", "))
	}
	fmt.Fprintf(w, "Snapshot: %s\n", s.SnapshotPath)
	fmt.Fprintf(w, "State: %s\n", s.State)
	if s.Message != "" {
		fmt.Fprintf(w, "  %s\n", s.Message)
	}
	if s.SchemaVersion == "" {
		return
	}
	fmt.Fprintf(w, "Schema: %s\n", s.SchemaVersion)
	fmt.Fprintf(w, "Entities: %d\n", s.Entities)
	fmt.Fprintf(w, "Relationships: %d\n", s.Relationships)
	fmt.Fprintf(w, "Completeness: %s\n", s.Completeness)
	fmt.Fprintf(w, "Freshness: %s\n", s.Freshness)
	if s.Guidance != "" {
		fmt.Fprintf(w, "  %s\n", s.Guidance)
	}
	formatDiagnosticsText(w, s.Diagnostics)
}

func formatDiagnosticsText(w io.Writer, diags []CLIDiagnostic) {
	if len(diags) == 0 {
		return
	}
	fmt.Fprintln(w, "Diagnostics:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, d := range diags {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", d.Severity, d.Code, d.File, d.Message)
	}
	tw.Flush()
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLIConcept:
		formatConceptsText(w, v)
	case CLIBriefing:
		formatBriefingText(w, v)
	case CLIBlast:
		formatBlastText(w, v)
	case CLIDelta:
		formatDeltaText(w, v)
	case CLIRename:
		formatRenameText(w, v)
	case []CLIMatch:
		entities := make([]CLIEntity, len(v))
		summaries := make([]string, len(v))
		for i, m := range v {
			entities[i], summaries[i] = m.Entity, m.Summary
		}
		formatEntitiesText(w, entities, summaries)
	case CLIIndexSummary:
		formatIndexText(w, v)
	case CLIStatus:
		formatStatusText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	if result.Timeout != nil {
		fmt.Fprintf(w, "\nTimed out after %dms (budget %dms); results are partial\n",
			result.Timeout.ElapsedMS, result.Timeout.LimitMS)
	}
	return nil
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
