package webhook

import (
	"bytes"
	"encoding/json"

	errors "github.com/frahmantamala/crypto-gateway/internal"
)

// NotificationKind is what an inbound payload was classified as.
type NotificationKind int

const (
	KindUnknown NotificationKind = iota
	KindPayment
	KindWithdrawal
)

// Payload is a decoded notification body. Identifier fields arrive as
// either strings or numbers depending on the processor's mood, so
// everything is read through coercing accessors.
type Payload struct {
	fields map[string]interface{}
}

// ParsePayload decodes raw notification bytes. Numbers are kept as
// json.Number so large integer ids survive unmangled.
func ParsePayload(raw []byte) (*Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return nil, errors.NewValidationError("malformed notification body", errors.ErrCodeMalformedNotification)
	}
	if fields == nil {
		return nil, errors.NewValidationError("empty notification body", errors.ErrCodeMalformedNotification)
	}
	return &Payload{fields: fields}, nil
}

// Classify decides whether the payload describes a payment or a
// withdrawal and returns the identifier to resolve by. payment_id wins
// outright. A withdrawal is recognized by batch_withdrawal_id or by the
// currency/address pair the payout API reports, but is always resolved
// by the per-payout id field: that is the value stored under
// metadata.processor_withdrawal_id at creation, while the batch id
// spans multiple payouts. A withdrawal-shaped payload without an id is
// unresolvable.
func (p *Payload) Classify() (NotificationKind, string) {
	if id := p.String("payment_id"); id != "" {
		return KindPayment, id
	}
	isWithdrawal := p.String("batch_withdrawal_id") != "" ||
		(p.String("currency") != "" && p.String("address") != "")
	if isWithdrawal {
		if id := p.String("id"); id != "" {
			return KindWithdrawal, id
		}
	}
	return KindUnknown, ""
}

// String coerces a field to its string form. Numbers render without an
// exponent.
func (p *Payload) String(key string) string {
	switch v := p.fields[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}

// Float returns a numeric field, or nil when absent or non-numeric.
func (p *Payload) Float(key string) *float64 {
	switch v := p.fields[key].(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil
		}
		return &f
	case string:
		if v == "" {
			return nil
		}
		var n json.Number = json.Number(v)
		f, err := n.Float64()
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}
