package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor, shared with the keys pkg/middleware stores on gin.Context.
	FieldUserID = "user_id"

	// Chat
	FieldConnID         = "conn_id"
	FieldRoomID         = "room_id"
	FieldConversationID = "conversation_id"
	FieldTargetUserID   = "target_user_id"
	FieldIntent         = "intent"
	FieldOutcome        = "outcome"
	FieldReason         = "reason"

	FieldService = "service"

	// gRPC
	FieldGRPCMethod = "grpc_method"
	FieldGRPCCode   = "grpc_code"

	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
