// Package enumerator discovers the pages of a site so each one can be
// scanned.
package enumerator

import "context"

type Enumerator interface {
	Enumerate(ctx context.Context, target string) ([]string, error)
}
