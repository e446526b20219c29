package models

// Header names used on the wire by the Kafka transport.
const (
	HeaderMessageID     = "message-id"
	HeaderRetryCount    = "retry-count"
	HeaderOriginalTopic = "original-topic"
	HeaderFailureReason = "failure-reason"
	HeaderProcessedAt   = "processed-at"

	// HeaderContentType and HeaderMessageType are read by the dispatch core.
	HeaderContentType = "Content-Type"
	HeaderMessageType = "MessageType"

	HeaderLabel                = "label"
	HeaderTo                   = "to"
	HeaderReplyTo              = "reply-to"
	HeaderSessionID            = "session-id"
	HeaderReplyToSessionID     = "reply-to-session-id"
	HeaderViaPartitionKey      = "via-partition-key"
	HeaderScheduledEnqueueTime = "scheduled-enqueue-time"
)

// Envelope is the JSON body shape of the bus envelope content type.
type Envelope struct {
	MessageID   string   `json:"messageId"`
	MessageType []string `json:"messageType"`
	SentTime    string   `json:"sentTime,omitempty"`
	Message     any      `json:"message"`
}
