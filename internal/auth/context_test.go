// ABOUTME: Tests for caller propagation through context
// ABOUTME: Verifies round-trips and the empty-context case

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallerContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	ctx := WithCaller(context.Background(), &Caller{Subject: "web-client"})
	caller := FromContext(ctx)
	if assert.NotNil(t, caller) {
		assert.Equal(t, "web-client", caller.Subject)
	}
}
