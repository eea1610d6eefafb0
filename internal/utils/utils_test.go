package utils_test

import (
	"errors"
	"testing"

	"github.com/raysh454/patternshield/internal/utils"
)

// ─── URLTools ──────────────────────────────────────────────────────────

func TestNewURLTools_NormalizesSchemeAndHost(t *testing.T) {
	t.Parallel()
	u, err := utils.NewURLTools("HTTPS://EXAMPLE.COM:443/Plans/#pricing")
	if err != nil {
		t.Fatalf("NewURLTools: %v", err)
	}
	if u.URL.Scheme != "https" {
		t.Errorf("expected lowercased scheme, got %q", u.URL.Scheme)
	}
	if u.URL.Host != "example.com" {
		t.Errorf("expected default port stripped, got host %q", u.URL.Host)
	}
	if u.URL.Fragment != "" {
		t.Errorf("expected empty fragment, got %q", u.URL.Fragment)
	}
	if u.URL.Path != "/Plans" {
		t.Errorf("expected /Plans, got %q", u.URL.Path)
	}
}

func TestURLTools_SameHost(t *testing.T) {
	t.Parallel()
	a, _ := utils.NewURLTools("https://shop.example/a")
	b, _ := utils.NewURLTools("https://shop.example/b")
	c, _ := utils.NewURLTools("https://other.example/a")

	if !a.SameHost(b) {
		t.Error("expected same host")
	}
	if a.SameHost(c) {
		t.Error("expected different host")
	}
}

func TestURLTools_Resolve(t *testing.T) {
	t.Parallel()
	base, _ := utils.NewURLTools("https://shop.example/plans/basic")

	cases := map[string]string{
		"/cancel#faq":               "https://shop.example/cancel",
		"premium":                   "https://shop.example/plans/premium",
		"https://other.example/x":   "https://other.example/x",
		"../checkout?step=2":        "https://shop.example/checkout?step=2",
	}
	for ref, want := range cases {
		got, err := base.Resolve(ref)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", ref, err)
		}
		if got != want {
			t.Errorf("Resolve(%q): expected %q, got %q", ref, want, got)
		}
	}
}

// ─── Canonicalize ──────────────────────────────────────────────────────

func TestCanonicalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		opts utils.CanonicalizeOptions
		want string
	}{
		{
			in:   "HTTP://Example.COM:80/foo/../bar/?b=2&a=1#frag",
			want: "http://example.com/bar?a=1&b=2",
		},
		{
			in:   "https://example.com:443/index.html#section",
			want: "https://example.com/index.html",
		},
		{
			in:   "example.com/page?utm_source=x&utm_medium=y&z=1",
			opts: utils.CanonicalizeOptions{DefaultScheme: "https", DropTrackingParams: true},
			want: "https://example.com/page?z=1",
		},
		{
			in:   "https://例え.テスト/a",
			want: "https://xn--r8jz45g.xn--zckzah/a",
		},
		{
			in:   "https://example.com:8443/page",
			want: "https://example.com:8443/page",
		},
		{
			in:   "https://user:pw@example.com/p",
			want: "https://example.com/p",
		},
		{
			in:   "https://example.com?z=1&a=2",
			want: "https://example.com/?a=2&z=1",
		},
	}

	for _, tt := range tests {
		got, err := utils.Canonicalize(tt.in, tt.opts)
		if err != nil {
			t.Fatalf("Canonicalize(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalize_Errors(t *testing.T) {
	t.Parallel()
	if _, err := utils.Canonicalize("", utils.CanonicalizeOptions{}); !errors.Is(err, utils.ErrEmptyURL) {
		t.Errorf("expected ErrEmptyURL, got %v", err)
	}
	if _, err := utils.Canonicalize("/relative/path", utils.CanonicalizeOptions{}); !errors.Is(err, utils.ErrMissingHost) {
		t.Errorf("expected ErrMissingHost, got %v", err)
	}
}

// ─── Hosts ─────────────────────────────────────────────────────────────

func TestHostnameAndSiteKey(t *testing.T) {
	t.Parallel()
	h, err := utils.Hostname("WWW.Example.com:8080/path")
	if err != nil {
		t.Fatalf("Hostname: %v", err)
	}
	if h != "www.example.com" {
		t.Errorf("expected www.example.com, got %q", h)
	}

	k, err := utils.SiteKey("https://www.example.com/plans")
	if err != nil {
		t.Fatalf("SiteKey: %v", err)
	}
	if k != "example.com" {
		t.Errorf("expected example.com, got %q", k)
	}

	if _, err := utils.SiteKey("   "); err == nil {
		t.Error("expected error for blank input")
	}
}

func TestShortHash_Stable(t *testing.T) {
	t.Parallel()
	a := utils.ShortHash([]byte("screenshot"))
	b := utils.ShortHash([]byte("screenshot"))
	if a != b || len(a) != 12 {
		t.Errorf("expected stable 12-char hash, got %q and %q", a, b)
	}
	if a == utils.ShortHash([]byte("other")) {
		t.Error("expected different inputs to hash differently")
	}
}
