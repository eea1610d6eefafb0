package model

import "fmt"

// Category is the closed set of dark-pattern categories.
type Category string

const (
	CategoryForcedRenewal      Category = "forced_renewal"
	CategoryCancellationTrap   Category = "cancellation_trap"
	CategoryHiddenCost         Category = "hidden_cost"
	CategoryMisleadingLanguage Category = "misleading_language"
	CategoryPreChecked         Category = "pre_checked"
	CategoryCountdownPressure  Category = "countdown_pressure"
)

var allCategories = []Category{
	CategoryForcedRenewal,
	CategoryCancellationTrap,
	CategoryHiddenCost,
	CategoryMisleadingLanguage,
	CategoryPreChecked,
	CategoryCountdownPressure,
}

// Categories returns every category in canonical order.
func Categories() []Category {
	return append([]Category(nil), allCategories...)
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range allCategories {
		if c == k {
			return true
		}
	}
	return false
}

// ParseCategory validates s as a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown pattern category %q", s)
	}
	return c, nil
}

// Label is the display form used in reports, e.g. "FORCED RENEWAL".
func (c Category) Label() string {
	b := []byte(c)
	for i, ch := range b {
		switch {
		case ch == '_':
			b[i] = ' '
		case ch >= 'a' && ch <= 'z':
			b[i] = ch - 'a' + 'A'
		}
	}
	return string(b)
}
