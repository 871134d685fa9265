package fhir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		resourceType string
		raw          string
		want         string
	}{
		{"PlanDefinition", `{"resourceType":"PlanDefinition","url":"https://example.org/PlanDefinition/a","status":"active"}`, "https://example.org/PlanDefinition/a"},
		{"ActivityDefinition", `{"resourceType":"ActivityDefinition","url":"https://example.org/ActivityDefinition/b","status":"draft"}`, "https://example.org/ActivityDefinition/b"},
		{"ValueSet", `{"resourceType":"ValueSet","url":"https://example.org/ValueSet/c","status":"active"}`, "https://example.org/ValueSet/c"},
		{"Library", `{"resourceType":"Library","url":"https://example.org/Library/d"}`, "https://example.org/Library/d"},
		{"EvidenceVariable", `{"resourceType":"EvidenceVariable","url":"https://example.org/ev/1","status":"active"}`, "https://example.org/ev/1"},
		{"Measure", `{"resourceType":"Measure","url":"https://example.org/Measure/m"}`, "https://example.org/Measure/m"},
	}
	for _, tt := range tests {
		t.Run(tt.resourceType, func(t *testing.T) {
			got, err := CanonicalURL(tt.resourceType, []byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalURL_Missing(t *testing.T) {
	tests := []struct {
		name         string
		resourceType string
		raw          string
	}{
		{"canonical type without url", "PlanDefinition", `{"resourceType":"PlanDefinition"}`},
		{"canonical type empty url", "ValueSet", `{"resourceType":"ValueSet","url":""}`},
		{"no url element", "Observation", `{"resourceType":"Observation","id":"x"}`},
		{"no url element but url given", "Patient", `{"resourceType":"Patient","url":"https://example.org/p"}`},
		{"nested url only", "Observation", `{"resourceType":"Observation","meta":{"source":"x"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CanonicalURL(tt.resourceType, []byte(tt.raw))
			assert.ErrorIs(t, err, ErrMissingURL)
		})
	}
}

func TestCanonicalURL_Malformed(t *testing.T) {
	tests := []struct {
		name         string
		resourceType string
		raw          string
	}{
		{"url not a string", "PlanDefinition", `{"resourceType":"PlanDefinition","url":["not","a","string"]}`},
		{"status not a code", "EvidenceVariable", `{"resourceType":"EvidenceVariable","url":"https://example.org/ev/2","status":42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CanonicalURL(tt.resourceType, []byte(tt.raw))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestCanonicalURL_UnknownType(t *testing.T) {
	_, err := CanonicalURL("NotAFhirType", []byte(`{"resourceType":"NotAFhirType","url":"https://example.org/x"}`))
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.NotErrorIs(t, err, ErrMissingURL)
}

func TestDecode(t *testing.T) {
	res, err := Decode("Library", []byte(`{"resourceType":"Library","id":"lib"}`))
	require.NoError(t, err)
	assert.Equal(t, "Library", res.GetResourceType())
	require.NotNil(t, res.GetId())
	assert.Equal(t, "lib", *res.GetId())
}

func TestResourceType(t *testing.T) {
	rt, ok := ResourceType([]byte(`{"resourceType":"Library"}`))
	assert.True(t, ok)
	assert.Equal(t, "Library", rt)

	_, ok = ResourceType([]byte(`{"id":"x"}`))
	assert.False(t, ok)

	_, ok = ResourceType([]byte(`{"resourceType":7}`))
	assert.False(t, ok)
}
