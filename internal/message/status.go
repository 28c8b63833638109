package message

// Status is the delivery state of a message.
type Status string

const (
	StatusReceived   Status = "received"
	StatusQueued     Status = "queued"
	StatusSending    Status = "sending"
	StatusSendFailed Status = "send_failed"
	StatusSent       Status = "sent"
	StatusDelivered  Status = "delivered"
	StatusSeen       Status = "seen"
	StatusAgreed     Status = "agreed"
	StatusDisagreed  Status = "disagreed"
)

// Pending reports whether an outgoing message has not been acknowledged yet.
func (s Status) Pending() bool {
	return s == StatusQueued || s == StatusSending || s == StatusSendFailed
}
