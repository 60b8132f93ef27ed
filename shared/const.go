package shared

const (
	// Inbound webhook headers
	HeaderSignature  = "X-Hub-Signature-256"
	HeaderEvent      = "X-GitHub-Event"
	HeaderDelivery   = "X-GitHub-Delivery"
	HeaderForwarded  = "X-Forwarded-For"
	HeaderRetryAfter = "Retry-After"

	SignaturePrefix = "sha256="

	// Client identifier used when no proxy header is present
	UnknownClient = "unknown"

	DefaultTriggerToken = "/fact-check"

	MsgEventProcessed = "Event processed"
	MsgCheckComplete  = "Article check complete"
)
