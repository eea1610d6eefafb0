package webclient

import "time"

type Client string

const (
	ClientNetHTTP  Client = "nethttp"
	ClientChromedp Client = "chromedp"
)

// DefaultUserAgent is sent when a request carries no User-Agent header.
const DefaultUserAgent = "patternshield/1.0 (+dark-pattern scanner)"

// Config selects and tunes a WebClient backend.
type Config struct {
	Client Client `yaml:"client"`

	// Timeout bounds a single fetch, including rendering for chromedp.
	Timeout time.Duration `yaml:"timeout"`

	// IdleAfter is how long the network must stay quiet before a rendered
	// page is considered loaded. chromedp only.
	IdleAfter time.Duration `yaml:"idle_after"`

	// Headless toggles the browser window. chromedp only.
	Headless bool `yaml:"headless"`

	UserAgent string `yaml:"user_agent"`
}

func DefaultConfig() Config {
	return Config{
		Client:    ClientNetHTTP,
		Timeout:   30 * time.Second,
		IdleAfter: 2 * time.Second,
		Headless:  true,
		UserAgent: DefaultUserAgent,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Client == "" {
		c.Client = d.Client
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = d.IdleAfter
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	return c
}
