package logger

import (
	"time"
)

// Standard field keys used by the engine.
const (
	FieldComponent  = "component"
	FieldExchangeID = "exchange_id"
	FieldMethod     = "method"
	FieldURL        = "url"
	FieldStatus     = "status"
	FieldAttempt    = "attempt"
	FieldCacheKey   = "cache_key"
	FieldFromCache  = "from_cache"
	FieldMocked     = "mocked"
	FieldError      = "error"
	FieldDuration   = "duration_ms"
	FieldTag        = "tag"
)

// Fields builds a map from alternating key-value pairs.
//
//	log.Info("done", logger.Fields("op", "save", "id", 42))
func Fields(kvs ...any) map[string]any {
	m := make(map[string]any, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ErrorFields creates fields for an operation that failed.
func ErrorFields(op string, err error) map[string]any {
	return map[string]any{
		"operation": op,
		FieldError:  err.Error(),
	}
}

// DurationFields creates fields for a timed operation.
func DurationFields(op string, d time.Duration) map[string]any {
	return map[string]any{
		"operation":   op,
		FieldDuration: d.Milliseconds(),
	}
}
