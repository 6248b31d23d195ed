package reqctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestMeta(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, ActorFromContext(ctx))

	_, ok := RequestMetaFromContext(WithRequestMeta(ctx, nil))
	assert.False(t, ok)

	ctx = WithRequestMeta(ctx, &RequestMeta{RequestID: "req-1", Actor: "doctor-7"})
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "doctor-7", ActorFromContext(ctx))
}
