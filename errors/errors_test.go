package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPStatus_Taxonomy(t *testing.T) {
	req := require.New(t)

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", Validation("limit must be positive"), http.StatusBadRequest, CodeValidation},
		{"authentication", Authentication("missing token"), http.StatusUnauthorized, CodeAuthentication},
		{"authorization", Authorization("not the sender"), http.StatusForbidden, CodeAuthorization},
		{"not found", NotFound("message %d", 42), http.StatusNotFound, CodeNotFound},
		{"transient", Transient(fmt.Errorf("disk full")), http.StatusServiceUnavailable, CodeUnavailable},
		{"wrapped twice", fmt.Errorf("send: %w", Validation("empty")), http.StatusBadRequest, CodeValidation},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		req.Equal(tt.status, HTTPStatus(tt.err), tt.name)
		req.Equal(tt.code, Code(tt.err), tt.name)
	}
}

func TestMessage_HidesInternalCause(t *testing.T) {
	req := require.New(t)

	req.Equal("internal server error", Message(fmt.Errorf("pointer exploded")))
	req.Equal("not found: message 7", Message(NotFound("message %d", 7)))
	req.Equal("service temporarily unavailable", Message(Transient(fmt.Errorf("value log truncated at /var/lib/badger/000001.vlog"))))
	req.Nil(Transient(nil))
}
