// Package context provides request-scoped context utilities.
package context

import (
	"context"
)

type contextKey string

const (
	// RequestIDKey is the context key for the HTTP request ID.
	RequestIDKey contextKey = "request_id"

	// AnalysisIDKey is the context key for the analysis ID, set for the
	// duration of one scoresheet analysis so event handlers and logs can
	// correlate with it.
	AnalysisIDKey contextKey = "analysis_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID retrieves the request ID from context.
// Returns empty string if not found.
func RequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithAnalysisID adds an analysis ID to the context.
func WithAnalysisID(ctx context.Context, analysisID string) context.Context {
	return context.WithValue(ctx, AnalysisIDKey, analysisID)
}

// AnalysisID retrieves the analysis ID from context.
// Returns empty string if not found.
func AnalysisID(ctx context.Context) string {
	if analysisID, ok := ctx.Value(AnalysisIDKey).(string); ok {
		return analysisID
	}
	return ""
}
