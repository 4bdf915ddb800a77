package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/atlas/internal/agent"
	"github.com/jward/atlas/internal/config"
	"github.com/jward/atlas/internal/semantic"
)

var (
	flagWorkspace string
	flagByName    bool
	flagLimit     int
	flagDepth     int
	flagScope     string
	flagDialect   string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the workspace snapshot",
	Long:  "Run agent capabilities against the persisted snapshot. Run 'atlas index' first.",
}

func init() {
	queryCmd.PersistentFlags().StringVarP(&flagWorkspace, "workspace", "w", "", "workspace directory (default: current directory)")
	queryCmd.PersistentFlags().BoolVar(&flagByName, "by-name", false, "treat <entity> as a qualified name instead of an entity id")

	conceptsCmd.Flags().IntVar(&flagLimit, "limit", 0, "maximum matches (default: query.concept_limit)")
	briefCmd.Flags().IntVar(&flagLimit, "limit", 0, "related entities per direction (default: query.relationship_limit)")
	blastCmd.Flags().IntVar(&flagDepth, "depth", 0, "maximum traversal depth (default: query.max_depth)")
	deltaCmd.Flags().StringVar(&flagScope, "scope", string(agent.ScopeUnstaged), "diff scope: unstaged|staged|all")
	structuralCmd.Flags().StringVar(&flagDialect, "dialect", string(agent.DialectPattern), "query dialect: pattern|graph")
	structuralCmd.Flags().IntVar(&flagLimit, "limit", 50, "maximum matches")

	queryCmd.AddCommand(conceptsCmd)
	queryCmd.AddCommand(briefCmd)
	queryCmd.AddCommand(blastCmd)
	queryCmd.AddCommand(deltaCmd)
	queryCmd.AddCommand(renameCmd)
	queryCmd.AddCommand(structuralCmd)
}

var conceptsCmd = &cobra.Command{
	Use:   "concepts <query>",
	Short: "Find entities matching a natural-language query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "concepts", agent.CapabilityConceptDiscovery,
			func(cfg *config.Config) (any, error) {
				return agent.ConceptDiscoveryRequest{
					Query: strings.Join(args, " "),
					Limit: limitOr(cmd, "limit", flagLimit, cfg.Query.ConceptLimit),
				}, nil
			}, conceptsToCLI)
	},
}

var briefCmd = &cobra.Command{
	Use:   "brief <entity>",
	Short: "Summarize an entity and its nearest relationships",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "brief", agent.CapabilityEntityBriefing,
			func(cfg *config.Config) (any, error) {
				return agent.EntityBriefingRequest{
					Entity:            selectorFromArg(args[0]),
					RelationshipLimit: limitOr(cmd, "limit", flagLimit, cfg.Query.RelationshipLimit),
				}, nil
			}, briefingToCLI)
	},
}

var blastCmd = &cobra.Command{
	Use:   "blast <entity>",
	Short: "Estimate what a change to an entity would affect",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "blast", agent.CapabilityBlastRadius,
			func(cfg *config.Config) (any, error) {
				return agent.BlastRadiusRequest{
					Entity:   selectorFromArg(args[0]),
					MaxDepth: limitOr(cmd, "depth", flagDepth, cfg.Query.MaxDepth),
				}, nil
			}, blastToCLI)
	},
}

var deltaCmd = &cobra.Command{
	Use:   "delta",
	Short: "Map working-tree changes to impacted entities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "delta", agent.CapabilityDeltaImpactScan,
			func(*config.Config) (any, error) {
				var scope agent.DeltaScope
				if err := scope.UnmarshalText([]byte(flagScope)); err != nil {
					return nil, err
				}
				return agent.DeltaImpactScanRequest{Scope: scope}, nil
			}, deltaToCLI)
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <entity> <new-name>",
	Short: "Plan the edits needed to rename an entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "rename", agent.CapabilityRenamePlanning,
			func(*config.Config) (any, error) {
				return agent.RenamePlanningRequest{Entity: selectorFromArg(args[0]), NewName: args[1]}, nil
			}, renameToCLI)
	},
}

var structuralCmd = &cobra.Command{
	Use:   "structural <query>",
	Short: "Run a pattern expression or read-only SQL query over the graph",
	Long: `Run a structural query. The pattern dialect evaluates a Risor expression per
entity ("@name" runs .atlas/patterns/name.risor). The graph dialect runs a
read-only SELECT whose first column is an entity id.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "structural", agent.CapabilityStructuralQuery,
			func(*config.Config) (any, error) {
				if flagLimit < 0 {
					return nil, fmt.Errorf("invalid limit %d: must be non-negative", flagLimit)
				}
				return agent.StructuralQueryRequest{
					Dialect: agent.Dialect(flagDialect),
					Query:   args[0],
					Limit:   uint32(flagLimit),
				}, nil
			}, matchesToCLI)
	},
}

// --- Helpers ---

// runQuery opens the engine, dispatches one capability request and writes
// the converted result. A timed-out response is written with its partial
// result and a timeout block.
func runQuery[T, R any](cmd *cobra.Command, command string, capability agent.Capability,
	params func(*config.Config) (any, error), convert func(T) R) error {
	engine, err := openEngine(workspaceArgs())
	if err != nil {
		return outputError(command, err)
	}
	defer engine.Close()

	p, err := params(engine.Config())
	if err != nil {
		return outputError(command, err)
	}
	req, err := agent.NewRequest(capability, p)
	if err != nil {
		return outputError(command, err)
	}

	reply := engine.Handle(cmd.Context(), req)
	resp, ok := reply.Response.(agent.Response[T])
	if !ok {
		return outputError(command, fmt.Errorf("unexpected %s response %T", capability, reply.Response))
	}

	switch resp.Status {
	case agent.StatusSuccess:
		return outputResult(CLIResult{Command: command, Results: convert(*resp.Result)})
	case agent.StatusTimeout:
		result := CLIResult{
			Command: command,
			Timeout: &CLITimeout{LimitMS: resp.Timeout.LimitMS, ElapsedMS: resp.Timeout.ElapsedMS},
		}
		if resp.PartialResult != nil {
			result.Results = convert(*resp.PartialResult)
		}
		fmt.Fprintf(os.Stderr, "Query exceeded its %dms budget; results are partial\n", resp.Timeout.LimitMS)
		return outputResult(result)
	}
	return outputError(command, fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message))
}

func workspaceArgs() []string {
	if flagWorkspace == "" {
		return nil
	}
	return []string{flagWorkspace}
}

func selectorFromArg(arg string) agent.Selector {
	if flagByName {
		return agent.ByQualifiedName(arg)
	}
	return agent.ByID(arg)
}

// limitOr returns the flag value when it was set and fallback otherwise.
// Negative values clamp to zero.
func limitOr(cmd *cobra.Command, name string, value, fallback int) uint32 {
	if !cmd.Flags().Changed(name) {
		value = fallback
	}
	return uint32(max(value, 0))
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(os.Stdout, result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

// --- Conversions ---

func entityToCLI(e semantic.Entity) CLIEntity {
	out := CLIEntity{
		ID:            e.ID,
		Kind:          string(e.Kind),
		Name:          e.Name,
		QualifiedName: e.QualifiedNameOrEmpty(),
	}
	if e.Location != nil {
		out.File = e.Location.Path
		if span := e.Location.Span; span != nil {
			out.StartLine, out.StartCol = int(span.Start.Line), int(span.Start.Column)
			out.EndLine, out.EndCol = int(span.End.Line), int(span.End.Column)
		}
	}
	return out
}

func relatedToCLI(related []agent.RelatedEntity) []CLIRelated {
	out := make([]CLIRelated, len(related))
	for i, r := range related {
		out[i] = CLIRelated{
			Direction:    string(r.Direction),
			Relationship: string(r.RelationshipKind),
			Entity:       entityToCLI(r.Entity),
			Certainty:    string(r.Certainty.Kind),
			Confidence:   int(r.Certainty.Confidence),
		}
		if r.Summary != nil {
			out[i].Summary = *r.Summary
		}
	}
	return out
}

func impactsToCLI(targets []agent.ImpactTarget) []CLIImpact {
	out := make([]CLIImpact, len(targets))
	for i, t := range targets {
		out[i] = CLIImpact{
			Entity:     entityToCLI(t.Entity),
			Depth:      int(t.Depth),
			Certainty:  string(t.Certainty.Kind),
			Confidence: int(t.Certainty.Confidence),
		}
		if t.Reason != nil {
			out[i].Reason = *t.Reason
		}
	}
	return out
}

func diagnosticsToCLI(diags []semantic.Diagnostic) []CLIDiagnostic {
	out := make([]CLIDiagnostic, len(diags))
	for i := range diags {
		d := &diags[i]
		out[i] = CLIDiagnostic{Severity: string(d.Severity), Message: d.Message, File: d.Path()}
		if d.Code != nil {
			out[i].Code = *d.Code
		}
	}
	return out
}

func conceptsToCLI(r agent.ConceptDiscoveryResult) []CLIConcept {
	out := make([]CLIConcept, len(r.Matches))
	for i, m := range r.Matches {
		out[i] = CLIConcept{Entity: entityToCLI(m.Entity), Summary: m.Summary, Related: relatedToCLI(m.RelatedEntities)}
	}
	return out
}

func briefingToCLI(r agent.EntityBriefingResult) CLIBriefing {
	return CLIBriefing{Entity: entityToCLI(r.Entity), Summary: r.Summary, Related: relatedToCLI(r.RelatedEntities)}
}

func blastToCLI(r agent.BlastRadiusResult) CLIBlast {
	out := CLIBlast{
		Direct:     impactsToCLI(r.DirectImpacts),
		Indirect:   impactsToCLI(r.IndirectImpacts),
		Unresolved: make([]string, len(r.UnresolvedReferences)),
	}
	for i, u := range r.UnresolvedReferences {
		out.Unresolved[i] = u.Description
	}
	return out
}

func deltaToCLI(r agent.DeltaImpactScanResult) CLIDelta {
	out := CLIDelta{Completeness: string(r.Completeness), Files: make([]CLIFileImpact, len(r.FileImpacts))}
	for i, f := range r.FileImpacts {
		out.Files[i] = CLIFileImpact{File: f.Path, Impacted: impactsToCLI(f.ImpactedEntities)}
	}
	return out
}

func renameEditsToCLI(edits []agent.RenameEdit) []CLIRenameEdit {
	out := make([]CLIRenameEdit, len(edits))
	for i, e := range edits {
		out[i] = CLIRenameEdit{
			File:        e.Location.Path,
			Replacement: e.Replacement,
			Confidence:  int(e.Certainty.Confidence),
		}
		if span := e.Location.Span; span != nil {
			out[i].StartLine, out[i].StartCol = int(span.Start.Line), int(span.Start.Column)
			out[i].EndLine, out[i].EndCol = int(span.End.Line), int(span.End.Column)
		}
		if e.Reason != nil {
			out[i].Reason = *e.Reason
		}
	}
	return out
}

func renameToCLI(r agent.RenamePlanningResult) CLIRename {
	out := CLIRename{
		HighConfidence: renameEditsToCLI(r.HighConfidenceEdits),
		LowConfidence:  renameEditsToCLI(r.LowConfidenceEdits),
		Conflicts:      make([]CLIRenameConflict, len(r.Conflicts)),
	}
	for i, c := range r.Conflicts {
		out.Conflicts[i] = CLIRenameConflict{Message: c.Message}
		if c.Location != nil {
			out.Conflicts[i].File = c.Location.Path
			if c.Location.Span != nil {
				out.Conflicts[i].Line = int(c.Location.Span.Start.Line)
			}
		}
	}
	return out
}

func matchesToCLI(r agent.StructuralQueryResult) []CLIMatch {
	out := make([]CLIMatch, len(r.Matches))
	for i, m := range r.Matches {
		out[i] = CLIMatch{Entity: entityToCLI(m.Entity), Summary: m.Summary}
	}
	return out
}
