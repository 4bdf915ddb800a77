package main

// CLIResult is the top-level JSON envelope for every command.
type CLIResult struct {
	Command string      `json:"command"`
	Results any         `json:"results"`
	Timeout *CLITimeout `json:"timeout,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CLITimeout is set when a query ran out of budget and Results holds the
// partial answer.
type CLITimeout struct {
	LimitMS   uint64 `json:"limit_ms"`
	ElapsedMS uint64 `json:"elapsed_ms"`
}

type CLIIndexSummary struct {
	Root          string          `json:"root"`
	SnapshotPath  string          `json:"snapshot_path"`
	Written       bool            `json:"written"`
	Completeness  string          `json:"completeness"`
	Entities      int             `json:"entities"`
	Relationships int             `json:"relationships"`
	Diagnostics   []CLIDiagnostic `json:"diagnostics"`
	DurationMS    int64           `json:"duration_ms"`
}

type CLIStatus struct {
	Root          string          `json:"root"`
	Package       string          `json:"package,omitempty"`
	Members       []string        `json:"members,omitempty"`
	SnapshotPath  string          `json:"snapshot_path"`
	State         string          `json:"state"`
	Reason        string          `json:"reason,omitempty"`
	Message       string          `json:"message,omitempty"`
	SchemaVersion string          `json:"schema_version,omitempty"`
	Completeness  string          `json:"completeness,omitempty"`
	Entities      int             `json:"entities"`
	Relationships int             `json:"relationships"`
	Diagnostics   []CLIDiagnostic `json:"diagnostics,omitempty"`
	Freshness     string          `json:"freshness,omitempty"`
	Guidance      string          `json:"guidance,omitempty"`
}

type CLIDiagnostic struct {
	Code     string `json:"code,omitempty"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	File     string `json:"file,omitempty"`
}

// CLIEntity is a flattened entity. Positions are copied from the
// snapshot unchanged.
type CLIEntity struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	Name          string `json:"name"`
	QualifiedName string `json:"qualified_name,omitempty"`
	File          string `json:"file,omitempty"`
	StartLine     int    `json:"start_line"`
	StartCol      int    `json:"start_col"`
	EndLine       int    `json:"end_line"`
	EndCol        int    `json:"end_col"`
}

type CLIRelated struct {
	Direction    string    `json:"direction"`
	Relationship string    `json:"relationship"`
	Entity       CLIEntity `json:"entity"`
	Summary      string    `json:"summary,omitempty"`
	Certainty    string    `json:"certainty"`
	Confidence   int       `json:"confidence"`
}

type CLIConcept struct {
	Entity  CLIEntity    `json:"entity"`
	Summary string       `json:"summary"`
	Related []CLIRelated `json:"related"`
}

type CLIBriefing struct {
	Entity  CLIEntity    `json:"entity"`
	Summary string       `json:"summary"`
	Related []CLIRelated `json:"related"`
}

type CLIImpact struct {
	Entity     CLIEntity `json:"entity"`
	Depth      int       `json:"depth"`
	Reason     string    `json:"reason,omitempty"`
	Certainty  string    `json:"certainty"`
	Confidence int       `json:"confidence"`
}

type CLIBlast struct {
	Direct     []CLIImpact `json:"direct"`
	Indirect   []CLIImpact `json:"indirect"`
	Unresolved []string    `json:"unresolved"`
}

type CLIFileImpact struct {
	File     string      `json:"file"`
	Impacted []CLIImpact `json:"impacted"`
}

type CLIDelta struct {
	Completeness string          `json:"completeness"`
	Files        []CLIFileImpact `json:"files"`
}

type CLIRenameEdit struct {
	File        string `json:"file"`
	StartLine   int    `json:"start_line"`
	StartCol    int    `json:"start_col"`
	EndLine     int    `json:"end_line"`
	EndCol      int    `json:"end_col"`
	Replacement string `json:"replacement"`
	Confidence  int    `json:"confidence"`
	Reason      string `json:"reason,omitempty"`
}

type CLIRenameConflict struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

type CLIRename struct {
	HighConfidence []CLIRenameEdit     `json:"high_confidence"`
	LowConfidence  []CLIRenameEdit     `json:"low_confidence"`
	Conflicts      []CLIRenameConflict `json:"conflicts"`
}

type CLIMatch struct {
	Entity  CLIEntity `json:"entity"`
	Summary string    `json:"summary"`
}
