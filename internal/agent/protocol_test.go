package agent

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/atlas/internal/semantic"
)

func TestResponse_EnvelopeShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp Response[StructuralQueryResult]
		want string
	}{
		{
			name: "success",
			resp: Success(StructuralQueryResult{Matches: []StructuralQueryMatch{}}),
			want: `{"status":"success","result":{"matches":[]}}`,
		},
		{
			name: "timeout without partial",
			resp: TimedOut[StructuralQueryResult](NewTimeout(2*time.Second, 2100*time.Millisecond), nil),
			want: `{"status":"timeout","timeout":{"limit_ms":2000,"elapsed_ms":2100},"partial_result":null}`,
		},
		{
			name: "error",
			resp: Failure[StructuralQueryResult](CodeUnsupportedQuery, "no", false),
			want: `{"status":"error","error":{"code":"unsupported-query","message":"no","retryable":false}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := json.Marshal(tt.resp)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))

			var back Response[StructuralQueryResult]
			require.NoError(t, json.Unmarshal(got, &back))
			assert.Equal(t, tt.resp.Status, back.Status)
		})
	}
}

func TestResponse_UnknownStatusFails(t *testing.T) {
	t.Parallel()
	var r Response[BlastRadiusResult]
	require.Error(t, json.Unmarshal([]byte(`{"status":"pending"}`), &r))

	_, err := json.Marshal(Response[BlastRadiusResult]{})
	require.Error(t, err)
}

func TestSelector_JSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(ByQualifiedName("crate::ui::render"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"qualified-name","qualified_name":"crate::ui::render"}`, string(b))

	var sel Selector
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"id","id":"function:a.rs:f","extra":1}`), &sel))
	assert.Equal(t, ByID("function:a.rs:f"), sel)

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"id"}`), &sel))
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"path","path":"x"}`), &sel))
}

func TestRequest_DecodesParamsAndIgnoresUnknownFields(t *testing.T) {
	t.Parallel()

	raw := `{"capability":"blast-radius-estimation","params":{"entity":{"kind":"id","id":"x"},"max_depth":2,"future":true},"trace":"abc"}`
	var req Request
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	assert.Equal(t, CapabilityBlastRadius, req.Capability)

	var params BlastRadiusRequest
	require.NoError(t, json.Unmarshal(req.Params, &params))
	assert.Equal(t, ByID("x"), params.Entity)
	assert.Equal(t, uint32(2), params.MaxDepth)
}

func TestDeltaScope_RejectsUnknown(t *testing.T) {
	t.Parallel()

	var req DeltaImpactScanRequest
	require.NoError(t, json.Unmarshal([]byte(`{"scope":"staged"}`), &req))
	assert.Equal(t, ScopeStaged, req.Scope)
	assert.Error(t, json.Unmarshal([]byte(`{"scope":"everything"}`), &req))
}

func TestNewRequest_RoundTrips(t *testing.T) {
	t.Parallel()

	req, err := NewRequest(CapabilityConceptDiscovery, ConceptDiscoveryRequest{Query: "render", Limit: 3})
	require.NoError(t, err)
	b, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"capability":"concept-discovery","params":{"query":"render","limit":3}}`, string(b))
}

func TestRelatedEntity_JSON(t *testing.T) {
	t.Parallel()

	rel := RelatedEntity{
		Direction:        Inbound,
		RelationshipKind: semantic.RelCalls,
		Entity:           semantic.Entity{ID: "a", Kind: semantic.KindFunction, Name: "a"},
		Certainty:        semantic.ObservedCertainty(),
		Provenance:       semantic.Provenance{Source: semantic.SourceSyntaxTree},
	}
	b, err := json.Marshal(rel)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"direction":"inbound",
		"relationship_kind":"calls",
		"entity":{"id":"a","kind":"function","name":"a","qualified_name":null,"location":null},
		"summary":null,
		"certainty":{"kind":"observed","confidence":100},
		"provenance":{"source":"syntax-tree","detail":null}
	}`, string(b))
}
