// Package company looks up who operates a domain. The result only
// decorates scan output.
package company

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raysh454/patternshield/internal/logging"
	"github.com/raysh454/patternshield/internal/model"
)

const DefaultEndpoint = "https://autocomplete.clearbit.com/v1/companies/suggest"

// Client queries a Clearbit-style autocomplete endpoint and falls back to a
// name derived from the domain when nothing is suggested.
type Client struct {
	endpoint string
	http     *http.Client
	logger   logging.Logger
}

func New(endpoint string, hc *http.Client, logger logging.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Client{endpoint: endpoint, http: hc, logger: logger.With(logging.Field{Key: "component", Value: "company"})}
}

type suggestion struct {
	Name        string `json:"name"`
	Domain      string `json:"domain"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Logo        string `json:"logo"`
}

func (c *Client) Lookup(ctx context.Context, domain string) (*model.Company, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, fmt.Errorf("company: empty domain")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?query="+url.QueryEscape(domain), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("company lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("company lookup: status %d", resp.StatusCode)
	}

	var found []suggestion
	if err := json.NewDecoder(resp.Body).Decode(&found); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}
	if len(found) == 0 {
		c.logger.Debug("no suggestion; using domain", logging.Field{Key: "domain", Value: domain})
		return Fallback(domain), nil
	}
	s := found[0]
	return &model.Company{
		Name:        s.Name,
		Domain:      s.Domain,
		Industry:    s.Category,
		Description: s.Description,
		Logo:        s.Logo,
	}, nil
}

// Fallback names a company after the first label of its domain.
func Fallback(domain string) *model.Company {
	d := strings.TrimPrefix(strings.ToLower(domain), "www.")
	name := d
	if i := strings.IndexByte(d, '.'); i > 0 {
		name = d[:i]
	}
	return &model.Company{Name: name, Domain: domain}
}
