package transport

import (
	"context"
	"errors"

	"mailpostbridge/internal/address"
	"mailpostbridge/internal/exitcode"
)

// ExitPolicy decides which failures are reported to the MTA through the exit status.
type ExitPolicy string

const (
	// Compat never fails a delivery the MTA could retry or bounce: only usage,
	// configuration and input errors exit non-zero.
	Compat ExitPolicy = "compat"

	// Strict reports unknown domains as a bounce and post failures as temporary,
	// so the MTA requeues them.
	Strict ExitPolicy = "strict"
)

func (p ExitPolicy) Valid() bool {
	return p == Compat || p == Strict
}

// ExitCode maps a delivery result to a sysexits.h code.
func ExitCode(p ExitPolicy, out Outcome, err error) int {
	if err == nil {
		return exitcode.OK
	}
	if errors.Is(err, address.ErrArgumentFormat) {
		return exitcode.Usage
	}
	if p != Strict {
		return exitcode.OK
	}

	switch {
	case errors.Is(err, ErrDomainNotRegistered):
		return exitcode.NoUser
	case errors.Is(err, ErrRejected):
		if out.StatusCode >= 500 {
			return exitcode.TempFail
		}
		return exitcode.Unavailable
	default:
		return exitcode.TempFail
	}
}

// Result is what a binary needs to finish one delivery.
type Result struct {
	ExitCode   int
	Diagnostic string
	Err        error
}

// Run parses the recipient argument, delivers raw and applies the exit policy.
func Run(ctx context.Context, inv *Invoker, p ExitPolicy, id, recipient string, raw []byte) Result {
	rcpt, err := address.Parse(recipient)
	if err != nil {
		return Result{ExitCode: exitcode.Usage, Err: err}
	}

	out, err := inv.Deliver(ctx, Request{
		ID:        id,
		Recipient: rcpt,
		Message:   raw,
	})

	return Result{
		ExitCode:   ExitCode(p, out, err),
		Diagnostic: out.Diagnostic,
		Err:        err,
	}
}
