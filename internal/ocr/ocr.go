// Package ocr extracts text lines from screenshots through the OCR.space
// HTTP API.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/raysh454/patternshield/internal/evidence"
	"github.com/raysh454/patternshield/internal/logging"
)

const (
	DefaultEndpoint = "https://api.ocr.space/parse/image"

	// DefaultAPIKey is OCR.space's public free-tier key.
	DefaultAPIKey = "helloworld"
)

var (
	// ErrNoText is returned when the service parsed nothing.
	ErrNoText = errors.New("ocr: no text extracted")

	// ErrService is returned when the service reports a processing error.
	ErrService = errors.New("ocr: service error")
)

type Config struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Language string `yaml:"language"`
}

func DefaultConfig() Config {
	return Config{Endpoint: DefaultEndpoint, APIKey: DefaultAPIKey, Language: "eng"}
}

// Client implements assessor.TextExtractor.
type Client struct {
	cfg    Config
	http   *http.Client
	logger logging.Logger
}

func New(cfg Config, hc *http.Client, logger logging.Logger) *Client {
	d := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = d.Endpoint
	}
	if cfg.APIKey == "" {
		cfg.APIKey = d.APIKey
	}
	if cfg.Language == "" {
		cfg.Language = d.Language
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Client{cfg: cfg, http: hc, logger: logger.With(logging.Field{Key: "component", Value: "ocr"})}
}

type parseResponse struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
}

// ExtractText submits imageURL for recognition and returns the non-blank
// lines of the first parsed result.
func (c *Client) ExtractText(ctx context.Context, imageURL string) ([]string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, kv := range [][2]string{
		{"url", imageURL},
		{"language", c.cfg.Language},
		{"isOverlayRequired", "true"},
	} {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, fmt.Errorf("write form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("write form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("apikey", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrService, resp.StatusCode)
	}

	var pr parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode ocr response: %w", err)
	}
	if pr.IsErroredOnProcessing {
		return nil, fmt.Errorf("%w: %s", ErrService, strings.TrimSpace(string(pr.ErrorMessage)))
	}
	if len(pr.ParsedResults) == 0 {
		return nil, ErrNoText
	}

	lines := evidence.SplitLines(pr.ParsedResults[0].ParsedText)
	c.logger.Debug("text extracted",
		logging.Field{Key: "image", Value: imageURL},
		logging.Field{Key: "lines", Value: len(lines)})
	return lines, nil
}
