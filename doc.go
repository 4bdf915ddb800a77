// Package atlas builds and queries a semantic code graph for Rust
// workspaces. It bridges tree-sitter's concrete syntax tree and the
// questions a coding agent asks about a codebase: what exists, what is
// related, and what a change would touch.
//
// # Pipeline
//
// Atlas works in two phases:
//
//  1. Index: every .rs file under the workspace is parsed with tree-sitter
//     and folded into an immutable WorkspaceSnapshot of entities and
//     relationships. The snapshot is persisted as versioned JSON under the
//     user cache directory.
//
//  2. Query: a loaded snapshot answers six agent capabilities: concept
//     discovery, entity briefing, blast radius estimation, delta impact
//     scan, rename planning and structural query.
//
// # Usage
//
//	e, err := atlas.New("path/to/workspace")
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	if _, err := e.Index(ctx); err != nil { ... }
//
//	req, _ := agent.NewRequest(agent.CapabilityConceptDiscovery,
//		agent.ConceptDiscoveryRequest{Query: "render", Limit: 5})
//	reply := e.Handle(ctx, req)
//
// # Structural queries
//
// Two dialects are registered. The pattern dialect evaluates a Risor
// expression once per entity; a query of the form "@name" runs
// <workspace>/.atlas/patterns/name.risor instead. The graph dialect runs a
// read-only SQL SELECT against an in-memory SQLite copy of the graph and
// treats the first column as entity ids.
package atlas
