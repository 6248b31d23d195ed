package logs

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Alijeyrad/teleconsult/pkg/reqctx"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestMultiHandlerFansOut(t *testing.T) {
	var debugBuf, errBuf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&errBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	logger := slog.New(h).With("consultation_id", "CON001")

	logger.Info("checked in")
	logger.Error("payment failed")

	assert.Contains(t, debugBuf.String(), "checked in")
	assert.Contains(t, debugBuf.String(), "payment failed")
	assert.NotContains(t, errBuf.String(), "checked in")
	assert.Contains(t, errBuf.String(), "consultation_id=CON001")

	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestContextHandlerAddsRequestMeta(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(contextHandler{slog.NewTextHandler(&buf, nil)})

	ctx := reqctx.WithRequestMeta(context.Background(), &reqctx.RequestMeta{RequestID: "req-42", Actor: "nurse-3"})
	logger.InfoContext(ctx, "marked ready")

	assert.Contains(t, buf.String(), "request_id=req-42")
	assert.Contains(t, buf.String(), "actor=nurse-3")
	assert.NotContains(t, buf.String(), "trace_id")
}
