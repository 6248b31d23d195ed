package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeduper(t *testing.T) {
	mr, rdb := newMiniredis(t)
	d := NewDeduper(rdb, "webhook:", time.Hour)
	ctx := context.Background()

	first, err := d.FirstSeen(ctx, "TXN1")
	require.NoError(t, err)
	assert.True(t, first)
	assert.Equal(t, time.Hour, mr.TTL("webhook:TXN1"))

	again, err := d.FirstSeen(ctx, "TXN1")
	require.NoError(t, err)
	assert.False(t, again)

	other, err := d.FirstSeen(ctx, "TXN2")
	require.NoError(t, err)
	assert.True(t, other)

	require.NoError(t, d.Forget(ctx, "TXN1"))
	afterForget, err := d.FirstSeen(ctx, "TXN1")
	require.NoError(t, err)
	assert.True(t, afterForget)

	mr.FastForward(time.Hour + time.Second)
	afterExpiry, err := d.FirstSeen(ctx, "TXN2")
	require.NoError(t, err)
	assert.True(t, afterExpiry)
}

func TestDeduperDefaultTTL(t *testing.T) {
	mr, rdb := newMiniredis(t)
	d := NewDeduper(rdb, "webhook:", 0)

	_, err := d.FirstSeen(context.Background(), "TXN1")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().DedupeTTL, mr.TTL("webhook:TXN1"))
}

func TestDeduperReportsRedisErrors(t *testing.T) {
	mr, rdb := newMiniredis(t)
	d := NewDeduper(rdb, "webhook:", time.Hour)
	mr.SetError("LOADING")

	_, err := d.FirstSeen(context.Background(), "TXN1")
	assert.Error(t, err)
}
