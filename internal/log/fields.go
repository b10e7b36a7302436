package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID = "user_id"

	// Chat session
	FieldSessionID = "session_id"
	FieldFrameType = "frame_type"
	FieldAttempt   = "attempt"

	// Service
	FieldService = "service"
)
