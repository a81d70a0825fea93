// Package registry maps recipient domains to the sites that ingest their mail.
// A Registry is built once and never mutated, so it can be shared freely
// between concurrent deliveries.
package registry

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"mailpostbridge/internal/token"
)

// Site is one registry entry
type Site struct {
	Domain           string
	PostURL          string
	ValidationString string
	TokenAlgorithm   token.Algorithm
}

// Registry is an immutable, case-insensitive domain -> Site lookup table
type Registry struct {
	sites map[string]Site
}

type fileSite struct {
	PostURL          string `yaml:"post_url"`
	ValidationString string `yaml:"validation_string"`
	TokenAlgorithm   string `yaml:"token_algorithm"`
}

type file struct {
	Sites map[string]fileSite `yaml:"sites"`
}

// New validates sites and builds a Registry keyed by lower-cased domain.
func New(sites []Site) (*Registry, error) {
	r := &Registry{sites: make(map[string]Site, len(sites))}

	for _, s := range sites {
		key := strings.ToLower(strings.TrimSpace(s.Domain))
		if key == "" {
			return nil, fmt.Errorf("site with empty domain")
		}
		if _, dup := r.sites[key]; dup {
			return nil, fmt.Errorf("duplicate site for domain %q", key)
		}
		if err := validateSite(s); err != nil {
			return nil, fmt.Errorf("site %q: %w", key, err)
		}
		if s.TokenAlgorithm == "" {
			s.TokenAlgorithm = token.Default
		}
		s.Domain = key
		r.sites[key] = s
	}

	return r, nil
}

func validateSite(s Site) error {
	u, err := url.Parse(s.PostURL)
	if err != nil {
		return fmt.Errorf("invalid post_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("post_url must be an absolute http(s) URL, got %q", s.PostURL)
	}
	if s.ValidationString == "" {
		return fmt.Errorf("missing validation_string")
	}
	if !s.TokenAlgorithm.Valid() {
		return fmt.Errorf("unknown token_algorithm %q", string(s.TokenAlgorithm))
	}
	return nil
}

// Parse reads a YAML registry document.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}

	sites := make([]Site, 0, len(f.Sites))
	for domain, fs := range f.Sites {
		sites = append(sites, Site{
			Domain:           domain,
			PostURL:          fs.PostURL,
			ValidationString: fs.ValidationString,
			TokenAlgorithm:   token.Algorithm(strings.ToLower(fs.TokenAlgorithm)),
		})
	}
	// deterministic error reporting for duplicates
	sort.Slice(sites, func(i, j int) bool { return sites[i].Domain < sites[j].Domain })

	return New(sites)
}

// Load reads the registry file at path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Lookup finds the site for domain, ignoring case.
func (r *Registry) Lookup(domain string) (Site, bool) {
	s, ok := r.sites[strings.ToLower(domain)]
	return s, ok
}

// Len returns the number of registered sites.
func (r *Registry) Len() int {
	return len(r.sites)
}

// Domains returns the registered domains in sorted order.
func (r *Registry) Domains() []string {
	out := make([]string, 0, len(r.sites))
	for d := range r.sites {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
