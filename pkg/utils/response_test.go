package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"validation", apperror.Validation("Amount must be positive"), http.StatusUnprocessableEntity, "Amount must be positive"},
		{"provider hides cause", apperror.Provider("monnify down", errors.New("503")), http.StatusBadGateway, "Service temporarily unavailable, please retry later"},
		{"foreign error", errors.New("pq: boom"), http.StatusInternalServerError, "Something went wrong, please try again later"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			var body Response
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantMsg, body.Message)
		})
	}
}

func TestWriteErrorSetsRetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, apperror.RateLimited("Please wait", 1500*time.Millisecond))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("Retry-After"))
}

func TestGetPaginationDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=3&per_page=500", nil)
	limit, offset, page := GetPaginationDetails(req)

	assert.Equal(t, 100, limit)
	assert.Equal(t, 200, offset)
	assert.Equal(t, 3, page)

	assert.Equal(t, 4, NewPagination(1, 20, 61).TotalPages)
}
