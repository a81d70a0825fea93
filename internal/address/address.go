package address

import (
	"errors"
	"fmt"
	"strings"
)

// ErrArgumentFormat is returned when the recipient argument is missing or has no '@'.
var ErrArgumentFormat = errors.New("recipient must be of the form local@domain")

// Recipient is the envelope recipient handed to the transport by the MTA
type Recipient struct {
	Local  string // used verbatim as the group name
	Domain string // lower-cased registry key
}

// Parse splits arg on the first '@'. The local part is kept as-is, the domain
// is lower-cased. Anything after the first '@' belongs to the domain.
func Parse(arg string) (Recipient, error) {
	local, domain, found := strings.Cut(arg, "@")
	if !found {
		return Recipient{}, fmt.Errorf("%w: %q", ErrArgumentFormat, arg)
	}
	return Recipient{
		Local:  local,
		Domain: strings.ToLower(domain),
	}, nil
}

// String reassembles the address with the normalized domain.
func (r Recipient) String() string {
	return r.Local + "@" + r.Domain
}
