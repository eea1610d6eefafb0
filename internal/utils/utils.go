package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

var (
	ErrEmptyURL    = errors.New("empty url")
	ErrMissingHost = errors.New("missing host")
)

// URLTools wraps a parsed URL with the normalisation the crawler relies on.
type URLTools struct {
	URL *url.URL
}

func NewURLTools(raw string) (*URLTools, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse url %s: %w", raw, err)
	}
	t := &URLTools{URL: u}
	t.normalize()
	return t, nil
}

func (u *URLTools) normalize() {
	u.URL.Fragment = ""
	u.URL.Scheme = strings.ToLower(u.URL.Scheme)
	u.URL.Host = strings.ToLower(u.URL.Host)

	if (u.URL.Scheme == "http" && strings.HasSuffix(u.URL.Host, ":80")) ||
		(u.URL.Scheme == "https" && strings.HasSuffix(u.URL.Host, ":443")) {
		u.URL.Host, _, _ = strings.Cut(u.URL.Host, ":")
	}

	u.URL.Path = strings.TrimRight(u.URL.Path, "/")
}

// SameHost reports whether both URLs point at the same hostname.
func (u *URLTools) SameHost(target *URLTools) bool {
	return u.URL.Hostname() == target.URL.Hostname()
}

// Resolve resolves ref against u and returns the absolute URL without a
// fragment.
//
//	Base: https://example.com/plans
//	Resolve("checkout")    → "https://example.com/checkout"
//	Resolve("/cancel#faq") → "https://example.com/cancel"
func (u *URLTools) Resolve(ref string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("couldn't parse reference %s: %w", ref, err)
	}
	out := u.URL.ResolveReference(parsed)
	out.Fragment = ""
	return out.String(), nil
}

// CanonicalizeOptions controls optional canonicalization policies.
type CanonicalizeOptions struct {
	DropTrackingParams bool   // remove utm_*, gclid, fbclid, ...
	StripTrailingSlash bool   // treat /a and /a/ the same (root "/" is kept)
	DefaultScheme      string // assumed for schemeless input; empty requires a scheme
}

var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {}, "utm_content": {},
	"gclid": {}, "fbclid": {}, "mc_cid": {}, "mc_eid": {},
}

// Canonicalize returns a deterministic canonical URL string. Hosts are
// lower-cased and converted to punycode, default ports and credentials are
// dropped and query parameters are sorted.
func Canonicalize(raw string, opts CanonicalizeOptions) (string, error) {
	u, err := parseWithDefault(raw, opts.DefaultScheme)
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := asciiHost(u.Hostname())
	port := u.Port()
	switch {
	case (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") || port == "":
		u.Host = host
	default:
		u.Host = net.JoinHostPort(host, port)
	}
	u.User = nil
	u.Fragment = ""

	p := path.Clean(u.Path)
	if p == "." {
		p = "/"
	}
	if opts.StripTrailingSlash && len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	u.Path = p

	q := u.Query()
	if opts.DropTrackingParams {
		for k := range q {
			if _, ok := trackingParams[strings.ToLower(k)]; ok {
				q.Del(k)
			}
		}
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := url.Values{}
	for _, k := range keys {
		vals := q[k]
		sort.Strings(vals)
		for _, v := range vals {
			ordered.Add(k, v)
		}
	}
	u.RawQuery = ordered.Encode()

	return u.String(), nil
}

// Hostname returns the lower-cased ASCII host of raw, without port.
// Schemeless input is accepted.
func Hostname(raw string) (string, error) {
	u, err := parseWithDefault(raw, "https")
	if err != nil {
		return "", err
	}
	return asciiHost(u.Hostname()), nil
}

// SiteKey is the host used to key per-site state: Hostname without a
// leading "www.".
func SiteKey(raw string) (string, error) {
	h, err := Hostname(raw)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(h, "www."), nil
}

// ShortHash returns the first 12 hex characters of the SHA-256 of data.
func ShortHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:12]
}

func parseWithDefault(raw, scheme string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &url.Error{Op: "parse", URL: raw, Err: ErrEmptyURL}
	}
	if scheme != "" && !strings.Contains(raw, "://") {
		raw = scheme + "://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, &url.Error{Op: "parse", URL: raw, Err: ErrMissingHost}
	}
	return u, nil
}

func asciiHost(host string) string {
	host = strings.ToLower(host)
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		return puny
	}
	return host
}
