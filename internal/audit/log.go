// Package audit writes one JSON line per domain mutation. Entries share the
// stdout stream with access logs and are distinguished by type=audit.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"sponsorchain.org/internal/auth"
	"sponsorchain.org/internal/obs"
)

type ctxKey struct{}

// WithRequestID carries the request identifier into audit entries logged
// under this context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, requestID)
}

type entry struct {
	TS        string         `json:"ts"`
	Type      string         `json:"type"`
	Event     string         `json:"event"`
	RequestID string         `json:"request_id,omitempty"`
	Caller    string         `json:"caller,omitempty"`
	Roles     []string       `json:"roles,omitempty"`
	Fields    map[string]any `json:"fields"`
}

// LogEvent records a named audit event enriched with the request id and the
// authenticated caller from ctx. Field maps are copied before marshalling.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}

	e := entry{
		TS:     time.Now().UTC().Format(time.RFC3339Nano),
		Type:   "audit",
		Event:  event,
		Fields: make(map[string]any, len(fields)),
	}
	for k, v := range fields {
		e.Fields[k] = v
	}
	if ctx != nil {
		if rid, ok := ctx.Value(ctxKey{}).(string); ok {
			e.RequestID = rid
		}
		if caller, ok := auth.CallerFromContext(ctx); ok {
			e.Caller = caller
			e.Roles = auth.RolesFromContext(ctx)
		}
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
