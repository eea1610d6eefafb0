package fetcher

type Config struct {
	// MaxConcurrency bounds how many pages are fetched at once.
	MaxConcurrency int `yaml:"max_concurrency"`

	// MaxURLs caps one batch; extra URLs are dropped.
	MaxURLs int `yaml:"max_urls"`
}

func DefaultConfig() Config {
	return Config{MaxConcurrency: 4, MaxURLs: 50}
}
