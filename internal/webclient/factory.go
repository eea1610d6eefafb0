package webclient

import (
	"fmt"
	"strings"

	"github.com/raysh454/patternshield/internal/logging"
)

// New constructs the backend named by cfg.Client. An empty name selects
// nethttp.
func New(cfg Config, logger logging.Logger) (WebClient, error) {
	if logger == nil {
		logger = logging.Nop{}
	}
	cfg = cfg.withDefaults()

	switch Client(strings.ToLower(strings.TrimSpace(string(cfg.Client)))) {
	case ClientNetHTTP:
		return NewNetHTTPClient(cfg, logger, nil)
	case ClientChromedp:
		c, err := NewChromedpClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create chromedp client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("webclient backend %q not supported: available backends=%v", cfg.Client, Backends())
	}
}

// Backends lists the supported backend names.
func Backends() []string {
	return []string{string(ClientNetHTTP), string(ClientChromedp)}
}
