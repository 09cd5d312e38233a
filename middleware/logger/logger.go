package logger

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sehgal-vip/travel-agent/middleware"
	"github.com/sehgal-vip/travel-agent/pkg/logging"
)

// InvocationLogger logs every handler invocation with its outcome and duration
type InvocationLogger struct {
	logger *slog.Logger
}

// New creates an invocation logging middleware. A nil logger falls back to
// the shared component logger.
func New(logger *slog.Logger) *InvocationLogger {
	if logger == nil {
		logger = logging.WithComponent("handler")
	}
	return &InvocationLogger{logger: logger}
}

// Name returns the middleware name
func (m *InvocationLogger) Name() string {
	return "InvocationLogger"
}

// Execute logs the invocation
func (m *InvocationLogger) Execute(ctx *middleware.Context, next middleware.Handler) error {
	start := time.Now()
	m.logger.Debug("handler invoked",
		"handler", ctx.Handler,
		"conversation_id", ctx.ConversationID(),
		"input_len", len(ctx.Input))

	err := next(ctx)
	attrs := []any{
		"handler", ctx.Handler,
		"conversation_id", ctx.ConversationID(),
		"duration", time.Since(start),
	}
	if err != nil {
		m.logger.Error("handler failed", append(attrs, "error", err)...)
		return err
	}
	m.logger.Info("handler completed", append(attrs,
		"response_len", len(ctx.Result.Response),
		"patch_keys", len(ctx.Result.Patch),
		"signal", signalName(ctx))...)
	return nil
}

func signalName(ctx *middleware.Context) string {
	if ctx.Result.Signal == nil {
		return "none"
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", ctx.Result.Signal), "state.")
}
