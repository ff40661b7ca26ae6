package issuance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "attest/pkg/domain-errors"
	"attest/pkg/testutil"
)

func validRequest() IssueRequest {
	return IssueRequest{
		Student:     testutil.TestIDs.Student1.String(),
		Institution: testutil.TestIDs.Institution1.String(),
		DegreeLabel: "BSc (2024)",
		Document:    []byte("diploma bytes"),
	}
}

func TestParseValidRequest(t *testing.T) {
	parsed, err := validRequest().Parse()
	require.NoError(t, err)

	assert.Equal(t, testutil.TestIDs.Student1, parsed.Student)
	assert.Equal(t, testutil.TestIDs.Institution1, parsed.Institution)
	assert.Equal(t, "BSc (2024)", parsed.DegreeLabel)
}

func TestParseNormalizesIdentityCase(t *testing.T) {
	req := validRequest()
	req.Student = "0x1111111111111111111111111111111111111111"
	req.Institution = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

	parsed, err := req.Parse()
	require.NoError(t, err)
	assert.Equal(t, testutil.TestIDs.Institution1, parsed.Institution)
}

func TestParseTrimsDegreeLabel(t *testing.T) {
	req := validRequest()
	req.DegreeLabel = "  BSc (2024)  "

	parsed, err := req.Parse()
	require.NoError(t, err)
	assert.Equal(t, "BSc (2024)", parsed.DegreeLabel)
}

func TestParseRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*IssueRequest)
	}{
		{"missing student", func(r *IssueRequest) { r.Student = "" }},
		{"malformed student", func(r *IssueRequest) { r.Student = "alice@example.com" }},
		{"short address", func(r *IssueRequest) { r.Student = "0x1234" }},
		{"missing institution", func(r *IssueRequest) { r.Institution = "" }},
		{"blank degree", func(r *IssueRequest) { r.DegreeLabel = "   " }},
		{"empty document", func(r *IssueRequest) { r.Document = nil }},
		{"student equals institution", func(r *IssueRequest) { r.Institution = r.Student }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			_, err := req.Parse()
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "expected validation error, got %v", err)
		})
	}
}
