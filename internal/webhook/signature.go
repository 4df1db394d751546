package webhook

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// VerdictKind is the outcome of signature verification combined with
// the tenant's environment policy.
type VerdictKind int

const (
	// VerdictOK means the signature matched.
	VerdictOK VerdictKind = iota
	// VerdictAcceptWithWarning means processing continues but the
	// notification was not authenticated.
	VerdictAcceptWithWarning
	// VerdictReject means the notification must be refused.
	VerdictReject
)

type Verdict struct {
	Kind   VerdictKind
	Reason string
}

// ComputeSignature returns the hex HMAC-SHA512 of body under secret.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the received signature against the raw body.
//
// Sandbox tenants tolerate missing and mismatched signatures so the
// processor's sandbox, which signs inconsistently, stays usable; the
// lapse is surfaced as a warning verdict. A tenant with no secret
// configured cannot verify anything, so its notifications are accepted
// with a warning in every environment. Production tenants with a
// secret reject on missing or mismatched signatures.
func VerifySignature(body []byte, received, secret string, sandbox bool) Verdict {
	if secret == "" {
		return Verdict{Kind: VerdictAcceptWithWarning, Reason: "no signing secret configured"}
	}

	if received == "" {
		if sandbox {
			return Verdict{Kind: VerdictAcceptWithWarning, Reason: "signature missing in sandbox"}
		}
		return Verdict{Kind: VerdictReject, Reason: "signature missing"}
	}

	expected := ComputeSignature(body, secret)
	expectedBytes, err := hex.DecodeString(expected)
	if err != nil {
		return Verdict{Kind: VerdictReject, Reason: "signature computation failed"}
	}
	receivedBytes, err := hex.DecodeString(received)
	if err != nil || !hmac.Equal(expectedBytes, receivedBytes) {
		if sandbox {
			return Verdict{Kind: VerdictAcceptWithWarning, Reason: "signature mismatch in sandbox"}
		}
		return Verdict{Kind: VerdictReject, Reason: "signature mismatch"}
	}

	return Verdict{Kind: VerdictOK}
}
