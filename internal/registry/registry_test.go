package registry

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"mailpostbridge/internal/token"
)

const sampleRegistry = `
sites:
  example.com:
    post_url: https://site.example/api/mail
    validation_string: s3cr3t
  Lists.Example.ORG:
    post_url: http://lists.example.org/og/post
    validation_string: other
    token_algorithm: SHA256
`

func TestParse(t *testing.T) {
	r, err := Parse([]byte(sampleRegistry))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	if got, want := r.Domains(), []string{"example.com", "lists.example.org"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Domains() = %v, want %v", got, want)
	}

	site, ok := r.Lookup("example.com")
	if !ok {
		t.Fatal("example.com not found")
	}
	if site.PostURL != "https://site.example/api/mail" || site.ValidationString != "s3cr3t" {
		t.Errorf("unexpected site: %+v", site)
	}
	if site.TokenAlgorithm != token.MD5 {
		t.Errorf("TokenAlgorithm = %q, want default md5", site.TokenAlgorithm)
	}

	site, ok = r.Lookup("lists.example.org")
	if !ok {
		t.Fatal("lists.example.org not found")
	}
	if site.TokenAlgorithm != token.SHA256 {
		t.Errorf("TokenAlgorithm = %q, want sha256", site.TokenAlgorithm)
	}
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	r, err := New([]Site{{
		Domain:           "Example.com",
		PostURL:          "https://site.example/api/mail",
		ValidationString: "s3cr3t",
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, d := range []string{"example.com", "EXAMPLE.com", "eXaMpLe.CoM"} {
		site, ok := r.Lookup(d)
		if !ok {
			t.Errorf("Lookup(%q) not found", d)
			continue
		}
		if site.Domain != "example.com" {
			t.Errorf("Lookup(%q).Domain = %q", d, site.Domain)
		}
	}

	if _, ok := r.Lookup("unknown.org"); ok {
		t.Error("Lookup(unknown.org) unexpectedly found")
	}
}

func TestNewValidation(t *testing.T) {
	good := Site{Domain: "example.com", PostURL: "https://a.example/post", ValidationString: "x"}

	tests := []struct {
		name    string
		sites   []Site
		wantErr string
	}{
		{
			name:    "empty domain",
			sites:   []Site{{PostURL: good.PostURL, ValidationString: "x"}},
			wantErr: "empty domain",
		},
		{
			name:    "relative url",
			sites:   []Site{{Domain: "a.org", PostURL: "/api/mail", ValidationString: "x"}},
			wantErr: "absolute http(s) URL",
		},
		{
			name:    "ftp url",
			sites:   []Site{{Domain: "a.org", PostURL: "ftp://a.org/x", ValidationString: "x"}},
			wantErr: "absolute http(s) URL",
		},
		{
			name:    "missing secret",
			sites:   []Site{{Domain: "a.org", PostURL: "https://a.org/x"}},
			wantErr: "validation_string",
		},
		{
			name:    "unknown algorithm",
			sites:   []Site{{Domain: "a.org", PostURL: "https://a.org/x", ValidationString: "x", TokenAlgorithm: "crc32"}},
			wantErr: "token_algorithm",
		},
		{
			name:    "duplicate after lower-casing",
			sites:   []Site{good, {Domain: "EXAMPLE.COM", PostURL: good.PostURL, ValidationString: "y"}},
			wantErr: "duplicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.sites)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sites.yaml")
	if err := os.WriteFile(path, []byte(sampleRegistry), 0o600); err != nil {
		t.Fatal(err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("sites: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(bad)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), bad) {
		t.Errorf("expected path in error, got %v", err)
	}
}
