package frames

const (
	MetaStreamID    = "stream_id"
	MetaClientID    = "client_id"
	MetaTraceID     = "trace_id"
	MetaSource      = "source"
	MetaRemoteAddr  = "remote_addr"
	MetaCloseReason = "close_reason"
)
