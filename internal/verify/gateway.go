// Package verify decides whether a payment-proof image shows a successful
// transfer of the expected amount to the expected merchant.
package verify

import "context"

// ReasonGatewayError is returned whenever the gateway could not produce a
// usable answer. It is never reported as a success.
const ReasonGatewayError = "Validasi gagal, silakan coba lagi"

// ReasonRejected is used when a gateway rejects without saying why.
const ReasonRejected = "Validasi gagal"

type Request struct {
	Image          []byte
	MIME           string
	ExpectedAmount int64
	MerchantName   string
}

type Verdict struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Gateway implementations fold every transport or parse failure into a
// rejected Verdict.
type Gateway interface {
	Verify(ctx context.Context, req Request) Verdict
}

// Releaser is implemented by gateways that remember accepted proofs. Release
// forgets image again when no sale was recorded for it.
type Releaser interface {
	Release(ctx context.Context, image []byte)
}

// Fixed answers every request with the same verdict.
type Fixed struct{ Verdict Verdict }

func (f Fixed) Verify(context.Context, Request) Verdict { return f.Verdict }

// Func adapts a plain function to Gateway.
type Func func(ctx context.Context, req Request) Verdict

func (f Func) Verify(ctx context.Context, req Request) Verdict { return f(ctx, req) }

func reject(reason string) Verdict {
	if reason == "" {
		reason = ReasonRejected
	}
	return Verdict{Accepted: false, Reason: reason}
}
