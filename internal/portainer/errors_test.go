package portainer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    ErrorKind
		message string
	}{
		{"invalid jwt", 401, `{"message":"Invalid JWT token"}`, KindUnauthenticated, "Invalid JWT token"},
		{"missing token", 401, `{"message":"A valid authorisation token is missing"}`, KindUnauthenticated, "A valid authorisation token is missing"},
		{"unauthorized", 403, `{"message":"Unauthorized"}`, KindUnauthorized, "Unauthorized"},
		{"bad payload", 400, `{"message":"Invalid request payload"}`, KindMalformedPayload, "Invalid request payload"},
		{"application", 409, `{"message":"A stack with this name already exists","details":"conflict"}`, KindApplicationError, "A stack with this name already exists: conflict"},
		{"same details", 500, `{"message":"boom","details":"boom"}`, KindApplicationError, "boom"},
		{"empty body", 502, ``, KindServerRejected, ""},
		{"not json", 500, `gateway exploded`, KindServerRejected, ""},
		{"empty message", 500, `{"message":"  "}`, KindServerRejected, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyResponse(tt.status, []byte(tt.body))
			assert.Equal(t, tt.kind, err.Kind)
			assert.Equal(t, tt.status, err.StatusCode)
			assert.Equal(t, tt.message, err.Message)
		})
	}
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindUnauthenticated, Message: "Invalid JWT token"})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.NotErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, KindUnauthenticated, KindOf(err))
	assert.Equal(t, KindUnknown, KindOf(errors.New("foreign")))
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "server rejected (status 502)", (&Error{Kind: KindServerRejected, StatusCode: 502}).Error())
	assert.Equal(t, "application error: no such container", (&Error{Kind: KindApplicationError, Message: "no such container"}).Error())
	assert.Equal(t, "transport unreachable: dial failed", (&Error{Kind: KindTransportUnreachable, Err: errors.New("dial failed")}).Error())
}

func TestClassifyTransport(t *testing.T) {
	assert.Equal(t, KindCancelled, classifyTransport(context.Canceled).Kind)
	assert.Equal(t, KindTransportUnreachable, classifyTransport(context.DeadlineExceeded).Kind)
	assert.Equal(t, KindTransportUnreachable, classifyTransport(errors.New("connection refused")).Kind)

	existing := &Error{Kind: KindInvalidParameters}
	assert.Same(t, existing, classifyTransport(existing))

	assert.True(t, IsCancelled(context.Canceled))
	assert.True(t, IsCancelled(&Error{Kind: KindCancelled}))
	assert.False(t, IsCancelled(errors.New("other")))
}

func TestClassifyDecode(t *testing.T) {
	decodeErr := errors.New("unexpected token")

	err := classifyDecode(200, []byte(`{"message":"Invalid JWT token"}`), decodeErr)
	assert.Equal(t, KindUnauthenticated, err.Kind)

	err = classifyDecode(200, []byte(`[1,2`), decodeErr)
	require.Equal(t, KindDecodingFailed, err.Kind)
	assert.ErrorIs(t, err, decodeErr)

	dateErr := &Error{Kind: KindInvalidDate, Message: "yesterday"}
	assert.Same(t, dateErr, classifyDecode(200, nil, dateErr))
}
