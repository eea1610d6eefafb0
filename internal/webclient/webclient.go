package webclient

import (
	"context"
	"errors"
)

var (
	// ErrNilRequest is returned by Do when req is nil.
	ErrNilRequest = errors.New("webclient: nil request")

	// ErrUnsupportedMethod is returned by backends that can only navigate.
	ErrUnsupportedMethod = errors.New("webclient: unsupported method")
)

// WebClient fetches pages for the scanner and the crawler.
type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	// Get is shorthand for a GET Do.
	Get(ctx context.Context, url string) (*Response, error)

	Close() error
}
