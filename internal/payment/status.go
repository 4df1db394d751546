package payment

import "strings"

// Status is the payment lifecycle state as reported by the processor.
// Inbound values are normalized to lower case before comparison.
type Status string

const (
	StatusWaiting       Status = "waiting"
	StatusConfirming    Status = "confirming"
	StatusConfirmed     Status = "confirmed"
	StatusSending       Status = "sending"
	StatusPartiallyPaid Status = "partially_paid"
	StatusFinished      Status = "finished"
	StatusFailed        Status = "failed"
	StatusRefunded      Status = "refunded"
	StatusExpired       Status = "expired"
)

// Terminal reports whether the status is absorbing: once a record
// reaches a terminal status no later notification may change it.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusExpired, StatusRefunded:
		return true
	}
	return false
}

func NormalizeStatus(s string) Status {
	return Status(strings.ToLower(strings.TrimSpace(s)))
}
