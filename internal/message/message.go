// Package message extracts a few headers from a raw message for log lines.
// Parsing is best effort: the transport forwards the bytes unchanged whether
// or not they parse.
package message

import (
	"bytes"

	"github.com/jordan-wright/email"
)

// Summary holds the headers worth logging
type Summary struct {
	From      string
	Subject   string
	MessageID string
	Size      int
}

// Summarize parses raw and returns what it could find. Size is always set.
func Summarize(raw []byte) (Summary, error) {
	s := Summary{Size: len(raw)}

	e, err := email.NewEmailFromReader(bytes.NewReader(raw))
	if err != nil {
		return s, err
	}

	s.From = e.From
	s.Subject = e.Subject
	s.MessageID = e.Headers.Get("Message-Id")
	return s, nil
}

// LogArgs flattens the summary into key/value pairs.
func (s Summary) LogArgs() []any {
	return []any{
		"size", s.Size,
		"from", s.From,
		"subject", s.Subject,
		"message_id", s.MessageID,
	}
}
