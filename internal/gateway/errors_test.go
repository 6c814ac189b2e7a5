package gateway

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatching(t *testing.T) {
	err := fmt.Errorf("create post: %w", &Error{Kind: KindBadStatus, StatusCode: 422, Op: "POST /posts"})

	assert.ErrorIs(t, err, ErrBadStatus)
	assert.ErrorIs(t, err, BadStatus(422))
	assert.NotErrorIs(t, err, BadStatus(500))
	assert.NotErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, KindBadStatus, KindOf(err))
	assert.Equal(t, 422, StatusCode(err))
	assert.Equal(t, "create post: POST /posts: bad status code 422", err.Error())
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, 0, StatusCode(errors.New("boom")))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := &Error{Kind: KindDecoding, Op: "GET /posts", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "GET /posts: decoding error: unexpected end of JSON input", err.Error())
}
