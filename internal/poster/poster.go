// Package poster issues the single outbound form POST that hands a message to
// a site's ingestion endpoint.
package poster

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Encoding selects the request body format expected by the receiving site.
type Encoding string

const (
	// Multipart sends multipart/form-data, what existing receivers were built against
	Multipart Encoding = "multipart"

	// URLEncoded sends application/x-www-form-urlencoded
	URLEncoded Encoding = "form"
)

// Valid reports whether e is a known encoding. The empty value means Multipart.
func (e Encoding) Valid() bool {
	switch e {
	case "", Multipart, URLEncoded:
		return true
	}
	return false
}

// Form field names on the wire
const (
	FieldMessage   = "message"
	FieldToken     = "token"
	FieldGroupName = "group_name"
)

type Config struct {
	// Total timeout for the request including reading the response.
	// A context deadline can still override this.
	Timeout time.Duration

	DialTimeout    time.Duration
	TLSHandshake   time.Duration
	ResponseHeader time.Duration

	Encoding  Encoding
	UserAgent string
}

func DefaultConfig() Config {
	return Config{
		Timeout:        30 * time.Second,
		DialTimeout:    5 * time.Second,
		TLSHandshake:   5 * time.Second,
		ResponseHeader: 20 * time.Second,
		Encoding:       Multipart,
		UserAgent:      "mailpostbridge",
	}
}

// Form is the outbound post derived from a delivery and its site
type Form struct {
	Message   []byte
	Token     string
	GroupName string
}

func (f Form) fields() map[string]string {
	return map[string]string{
		FieldMessage:   string(f.Message),
		FieldToken:     f.Token,
		FieldGroupName: f.GroupName,
	}
}

// Result describes the receiver's answer. The body is never inspected.
type Result struct {
	StatusCode int
	Status     string
	Duration   time.Duration
}

// Poster is safe for concurrent use.
type Poster struct {
	client   *resty.Client
	encoding Encoding
}

// New builds a Poster with its own HTTP transport.
func New(cfg Config) *Poster {
	dialer := &net.Dialer{
		Timeout: cfg.DialTimeout,
	}

	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   cfg.TLSHandshake,
		ResponseHeaderTimeout: cfg.ResponseHeader,
	}

	client := resty.NewWithClient(&http.Client{
		Transport: tr,
		Timeout:   cfg.Timeout,
	})
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	enc := cfg.Encoding
	if enc == "" {
		enc = Multipart
	}

	return &Poster{client: client, encoding: enc}
}

// Post sends f to url. A non-2xx answer is not an error; the caller decides
// what the status means.
func (p *Poster) Post(ctx context.Context, url string, f Form) (Result, error) {
	req := p.client.R().SetContext(ctx)

	switch p.encoding {
	case URLEncoded:
		req.SetFormData(f.fields())
	default:
		req.SetMultipartFormData(f.fields())
	}

	start := time.Now()
	resp, err := req.Post(url)
	duration := time.Since(start)
	if err != nil {
		return Result{Duration: duration}, fmt.Errorf("post to %s: %w", url, err)
	}

	return Result{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		Duration:   duration,
	}, nil
}
