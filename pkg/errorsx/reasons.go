package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonTranscribeConnect   ReasonCode = "transcribe_connect"
	ReasonTranscribeProbe     ReasonCode = "transcribe_probe"
	ReasonTranscribeStatus    ReasonCode = "transcribe_status"
	ReasonTranscribeMalformed ReasonCode = "transcribe_malformed"
	ReasonTranscribeConfig    ReasonCode = "transcribe_config"

	ReasonTranslateConnect       ReasonCode = "translate_connect"
	ReasonTranslateStatus        ReasonCode = "translate_status"
	ReasonTranslateMalformed     ReasonCode = "translate_malformed"
	ReasonTranslateRateLimit     ReasonCode = "translate_rate_limit"
	ReasonTranslateCircuitOpen   ReasonCode = "translate_circuit_open"
	ReasonTranslateMisconfigured ReasonCode = "unsupported_or_misconfigured"

	ReasonEmptyInput ReasonCode = "empty_input"
	ReasonNoSpeech   ReasonCode = "no_speech"

	ReasonTransportSend ReasonCode = "transport_send"
	ReasonUnexpected    ReasonCode = "unexpected"
)

// Class groups reason codes into the failure taxonomy operators alert on.
type Class string

const (
	ClassConnectivity  Class = "connectivity"
	ClassEmptyInput    Class = "empty_input"
	ClassProtocol      Class = "protocol"
	ClassConfiguration Class = "configuration"
	ClassUnexpected    Class = "unexpected"
)

// ClassOf maps a reason code to its taxonomy class.
func ClassOf(reason ReasonCode) Class {
	switch reason {
	case ReasonTranscribeConnect, ReasonTranscribeProbe, ReasonTranslateConnect,
		ReasonTranslateRateLimit, ReasonTranslateCircuitOpen, ReasonTransportSend:
		return ClassConnectivity
	case ReasonEmptyInput, ReasonNoSpeech:
		return ClassEmptyInput
	case ReasonTranscribeStatus, ReasonTranscribeMalformed, ReasonTranslateStatus, ReasonTranslateMalformed:
		return ClassProtocol
	case ReasonTranscribeConfig, ReasonTranslateMisconfigured:
		return ClassConfiguration
	default:
		return ClassUnexpected
	}
}
