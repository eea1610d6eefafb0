package evidence

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/raysh454/patternshield/internal/utils"
)

// URLEvidence is what the URL adapter extracts: the lower-cased URL and its
// canonical host. Only the URL rule table consumes it.
type URLEvidence struct {
	Raw    string
	Lower  string
	Host   string
	Secure bool
}

// FromURL parses raw and returns the evidence the URL heuristics need.
// The host is converted to its ASCII (punycode) form.
func FromURL(raw string) (*URLEvidence, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("url %q must be absolute", raw)
	}
	host, err := utils.Hostname(raw)
	if err != nil {
		return nil, err
	}
	return &URLEvidence{
		Raw:    raw,
		Lower:  strings.ToLower(raw),
		Host:   host,
		Secure: strings.EqualFold(u.Scheme, "https"),
	}, nil
}
