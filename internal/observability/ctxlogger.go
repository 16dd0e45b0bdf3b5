package observability

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const conversationIDKey ctxKey = iota

// WithConversationID tags ctx with the conversation an agent run is working
// on, so every log line below it can be correlated back to one chat.
func WithConversationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, conversationIDKey, id)
}

// ConversationIDFromContext returns the conversation id tagged by
// WithConversationID, or "".
func ConversationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(conversationIDKey).(string)
	return id
}

// LoggerWithTrace returns a zerolog.Logger enriched with trace_id/span_id and
// the current conversation id from the context, if available.
func LoggerWithTrace(ctx context.Context) *zerolog.Logger {
	l := log.Logger
	if ctx == nil {
		return &l
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With().Str("trace_id", sc.TraceID().String()).Logger()
		if sc.HasSpanID() {
			l = l.With().Str("span_id", sc.SpanID().String()).Logger()
		}
		if sc.IsSampled() {
			l = l.With().Bool("trace_sampled", true).Logger()
		}
	}
	if id := ConversationIDFromContext(ctx); id != "" {
		l = l.With().Str("conversation_id", id).Logger()
	}
	return &l
}
