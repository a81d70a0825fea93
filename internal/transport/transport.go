// Package transport implements the delivery of one piped message to the site
// registered for its recipient domain.
package transport

import (
	"context"
	"errors"
	"fmt"

	"mailpostbridge/internal/address"
	"mailpostbridge/internal/logging"
	"mailpostbridge/internal/message"
	"mailpostbridge/internal/poster"
	"mailpostbridge/internal/registry"
	"mailpostbridge/internal/token"
)

var (
	// ErrDomainNotRegistered means no site matches the recipient domain; nothing was posted.
	ErrDomainNotRegistered = errors.New("domain not registered")

	// ErrNetwork means the post could not be completed (connect, TLS, timeout).
	ErrNetwork = errors.New("network error")

	// ErrRejected means the site answered with a non-2xx status.
	ErrRejected = errors.New("post rejected by site")
)

// Poster sends the outbound form to a site.
type Poster interface {
	Post(ctx context.Context, url string, f poster.Form) (poster.Result, error)
}

// Request is a single delivery: who it is for and the raw message bytes.
type Request struct {
	ID        string
	Recipient address.Recipient
	Message   []byte
}

// Outcome reports what Deliver did, whether or not it returned an error.
type Outcome struct {
	Site       registry.Site
	StatusCode int
	Diagnostic string // operator-facing text, set when the domain is not registered
}

// Invoker delivers requests using an immutable registry. It holds no
// per-delivery state and may be shared between goroutines.
type Invoker struct {
	registry *registry.Registry
	poster   Poster
	log      logging.Logger
}

func NewInvoker(reg *registry.Registry, p Poster, log logging.Logger) *Invoker {
	if log == nil {
		log = logging.Nop{}
	}
	return &Invoker{registry: reg, poster: p, log: log}
}

// NotRegisteredDiagnostic is the text shown to the operator for an unmatched domain.
func NotRegisteredDiagnostic(domain string) string {
	return fmt.Sprintf("Could not match the email domain %s with a registered site. Check the site registry.", domain)
}

// Deliver looks up the recipient's site, signs the message and posts it.
// At most one network call is made, and none when the domain is unknown.
func (inv *Invoker) Deliver(ctx context.Context, req Request) (Outcome, error) {
	domain := req.Recipient.Domain

	site, ok := inv.registry.Lookup(domain)
	if !ok {
		inv.log.Warn(ctx, "Domain not registered",
			"id", req.ID,
			"recipient", req.Recipient.String(),
			"domain", domain)
		return Outcome{Diagnostic: NotRegisteredDiagnostic(domain)},
			fmt.Errorf("%w: %s", ErrDomainNotRegistered, domain)
	}
	out := Outcome{Site: site}

	tok, err := token.Compute(site.TokenAlgorithm, site.ValidationString, req.Message)
	if err != nil {
		return out, fmt.Errorf("failed to compute token for %s: %w", domain, err)
	}

	summary, err := message.Summarize(req.Message)
	if err != nil {
		inv.log.Debug(ctx, "Message headers not parsed", "id", req.ID, "error", err.Error())
	}
	inv.log.Debug(ctx, "Posting message",
		append([]any{"id", req.ID, "group_name", req.Recipient.Local, "post_url", site.PostURL}, summary.LogArgs()...)...)

	res, err := inv.poster.Post(ctx, site.PostURL, poster.Form{
		Message:   req.Message,
		Token:     tok,
		GroupName: req.Recipient.Local,
	})
	if err != nil {
		inv.log.Error(ctx, "Failed to post message",
			"id", req.ID,
			"recipient", req.Recipient.String(),
			"post_url", site.PostURL,
			"error", err.Error())
		return out, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	out.StatusCode = res.StatusCode

	if res.StatusCode < 200 || res.StatusCode > 299 {
		inv.log.Warn(ctx, "Site rejected message",
			"id", req.ID,
			"recipient", req.Recipient.String(),
			"post_url", site.PostURL,
			"status", res.StatusCode)
		return out, fmt.Errorf("%w: %s answered %q", ErrRejected, site.PostURL, res.Status)
	}

	inv.log.Info(ctx, "Message posted",
		"id", req.ID,
		"recipient", req.Recipient.String(),
		"post_url", site.PostURL,
		"status", res.StatusCode,
		"size", len(req.Message),
		"duration", res.Duration.String())
	return out, nil
}
