package httpx

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProblemCarriesTypeAndMediaType(t *testing.T) {
	rec := httptest.NewRecorder()
	Problem(rec, 404, "Not Found", "no such account")

	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var pd ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
	assert.Equal(t, "https://helios-erp.dev/problems/not-found", pd.Type)
	assert.Equal(t, 404, pd.Status)
	assert.Equal(t, "no such account", pd.Detail)

	// unmapped statuses fall back to the RFC's blank type
	rec = httptest.NewRecorder()
	Problem(rec, 418, "Teapot", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
	assert.Equal(t, "about:blank", pd.Type)
}

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{ErrNotFound, 404},
		{ErrDuplicate, 409},
		{ErrPrecondition, 409},
		{ErrValidation, 400},
		{ErrForbidden, 403},
		{ErrUnauthorized, 401},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, fmt.Errorf("wrapped: %w", tc.err))
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
	}

	// unknown errors never leak their message
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("pq: connection refused"))
	assert.Equal(t, 500, rec.Code)
	var pd ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
	assert.Empty(t, pd.Detail)
}
