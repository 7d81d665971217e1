package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Exchange errors (retryable when a policy says so)
const (
	// ErrCodeTransport indicates a connection-level failure reported by the transport.
	ErrCodeTransport ErrorCode = "TRANSPORT_FAILURE"
	// ErrCodeTimeout indicates the exchange was aborted by its watchdog.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeHTTPStatus indicates the exchange completed with a 4xx/5xx status.
	ErrCodeHTTPStatus ErrorCode = "HTTP_STATUS"
	// ErrCodeCanceled indicates the caller canceled the exchange.
	ErrCodeCanceled ErrorCode = "CANCELED"
)

// Programmer and data errors (never retried)
const (
	// ErrCodeConfiguration indicates an unsupported method/mode combination or invalid settings.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"
	// ErrCodeDeserialization indicates the response content could not be materialized.
	ErrCodeDeserialization ErrorCode = "DESERIALIZATION"
	// ErrCodeSerialization indicates the request entity could not be encoded.
	ErrCodeSerialization ErrorCode = "SERIALIZATION"
	// ErrCodeCache indicates the cache provider failed.
	ErrCodeCache ErrorCode = "CACHE"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeTransport:  true,
	ErrCodeTimeout:    true,
	ErrCodeHTTPStatus: true,
}

// IsRetryableCode reports whether failures with this code may be retried.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
