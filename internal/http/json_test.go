package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	apperrors "github.com/target/opsdesk-go/internal/errors"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody map[string]string
	}{
		{
			name:     "validation with field",
			err:      fmt.Errorf("update: %w", apperrors.ValidationField("email", "must be a valid email address")),
			wantCode: http.StatusBadRequest,
			wantBody: map[string]string{"error": "validation", "message": "must be a valid email address", "field": "email"},
		},
		{
			name:     "not authenticated",
			err:      domainauth.ErrNotAuthenticated,
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "no provider session",
			err:      domainauth.ErrNoProviderSession,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "storage unavailable",
			err:      apperrors.MapDBError(context.DeadlineExceeded),
			wantCode: http.StatusServiceUnavailable,
			wantBody: map[string]string{"error": "storage_unavailable", "message": "storage unavailable"},
		},
		{
			name:     "upstream network",
			err:      domainauth.Errorf(domainauth.KindNetwork, "provider", "connection reset"),
			wantCode: http.StatusBadGateway,
			wantBody: map[string]string{"error": "upstream_unavailable", "message": "upstream unavailable"},
		},
		{
			name:     "anything else stays opaque",
			err:      errors.New("pq: secret detail"),
			wantCode: http.StatusInternalServerError,
			wantBody: map[string]string{"error": "internal", "message": "internal error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, tt.err)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
			if tt.wantBody != nil {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.wantBody, body)
			}
		})
	}
}

func TestDecodeJSON_RejectsOversizedBody(t *testing.T) {
	payload := `{"email":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(payload))
	rec := httptest.NewRecorder()

	var dst loginRequest
	assert.False(t, DecodeJSON(rec, req, &dst))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_json")
}
