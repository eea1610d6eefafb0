package assessor

import "time"

// Config holds runtime settings for the scanner.
type Config struct {
	// CollaboratorTimeout bounds each OCR and company lookup call. A timeout
	// degrades to empty evidence.
	CollaboratorTimeout time.Duration `yaml:"collaborator_timeout"`

	// EnrichCompany enables the company lookup for page and URL scans.
	EnrichCompany bool `yaml:"enrich_company"`
}

func DefaultConfig() Config {
	return Config{
		CollaboratorTimeout: 10 * time.Second,
		EnrichCompany:       true,
	}
}
