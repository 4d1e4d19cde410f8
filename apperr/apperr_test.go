package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("missing")))
	assert.Equal(t, KindConflict, KindOf(Conflict("taken")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))

	// Kind survives wrapping with fmt.Errorf.
	wrapped := fmt.Errorf("handling request: %w", Forbidden("nope"))
	assert.Equal(t, KindForbidden, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindForbidden))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(KindUnavailable, cause, "Database unavailable")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindUnavailable, KindOf(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestHTTPStatus(t *testing.T) {
	cases := map[int]error{
		404: NotFound("x"),
		409: Conflict("x"),
		400: InvalidState("x"),
		403: Forbidden("x"),
		503: Unavailable("x"),
		500: errors.New("x"),
	}
	for status, err := range cases {
		assert.Equal(t, status, HTTPStatus(err), "%v", err)
	}
}

func TestMessageHidesInternalDetail(t *testing.T) {
	assert.Equal(t, "Party not found", Message(NotFound("Party not found")))

	msg := Message(errors.New("pq: relation does not exist"))
	assert.NotContains(t, msg, "pq:")

	msg = Message(Internal("stack trace detail"))
	assert.NotContains(t, msg, "stack trace")
}
