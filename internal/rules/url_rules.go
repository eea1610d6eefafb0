package rules

import (
	"fmt"
	"strings"

	"github.com/raysh454/patternshield/internal/model"
)

// URLConfidence is the fixed confidence attached to URL-only detections.
// URL structure is weak evidence compared to page content.
const URLConfidence = 0.6

// URLRule flags a URL by substring. Keywords are tested against the whole
// lower-cased URL, Domains against the lower-cased host. A rule with both
// lists needs a hit in each.
type URLRule struct {
	ID       string
	Message  string
	Weight   int
	Category model.Category
	Keywords []string
	Domains  []string
}

// Severity maps the rule weight onto the 1..5 severity scale.
func (u URLRule) Severity() int {
	switch {
	case u.Weight < 1:
		return 1
	case u.Weight > 5:
		return 5
	default:
		return u.Weight
	}
}

// Match reports whether the rule fires for the lower-cased url and host.
// The matching keyword or domain is returned as evidence.
func (u URLRule) Match(lowerURL, lowerHost string) (string, bool) {
	var hits []string
	if len(u.Keywords) > 0 {
		kw, ok := firstContained(lowerURL, u.Keywords)
		if !ok {
			return "", false
		}
		hits = append(hits, kw)
	}
	if len(u.Domains) > 0 {
		d, ok := firstContained(lowerHost, u.Domains)
		if !ok {
			return "", false
		}
		hits = append(hits, d)
	}
	return strings.Join(hits, " @ "), len(hits) > 0
}

func firstContained(s string, needles []string) (string, bool) {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return n, true
		}
	}
	return "", false
}

// ValidateURLRules applies the same fail-fast checks as New to a URL table.
func ValidateURLRules(us []URLRule) error {
	seen := make(map[string]bool, len(us))
	for _, u := range us {
		if u.ID == "" {
			return fmt.Errorf("%w: url rule with empty id", ErrMalformedRule)
		}
		if seen[u.ID] {
			return fmt.Errorf("%w: duplicate url rule id %q", ErrMalformedRule, u.ID)
		}
		seen[u.ID] = true
		if len(u.Keywords) == 0 && len(u.Domains) == 0 {
			return fmt.Errorf("%w: url rule %q has no keywords or domains", ErrMalformedRule, u.ID)
		}
		if !u.Category.Valid() {
			return fmt.Errorf("%w: url rule %q: unknown category %q", ErrMalformedRule, u.ID, u.Category)
		}
	}
	return nil
}

// DefaultURLRules is the URL heuristic table. It is independent of the DOM
// rule table.
func DefaultURLRules() []URLRule {
	return []URLRule{
		{ID: "linkedin-notifications", Message: "Notification engagement pattern - designed to increase time on platform", Weight: 2, Category: model.CategoryMisleadingLanguage, Keywords: []string{"notifications"}, Domains: []string{"linkedin.com"}},
		{ID: "linkedin-premium", Message: "Premium upselling detected in URL structure", Weight: 3, Category: model.CategoryForcedRenewal, Keywords: []string{"premium", "sales"}, Domains: []string{"linkedin.com"}},
		{ID: "linkedin-engagement", Message: "Social media engagement optimization - uses behavioral nudges", Weight: 1, Category: model.CategoryMisleadingLanguage, Domains: []string{"linkedin.com"}},

		{ID: "free-trial", Message: "Free trial offer - check for auto-renewal terms", Weight: 3, Category: model.CategoryForcedRenewal, Keywords: []string{"free-trial"}},
		{ID: "limited-time", Message: "Artificial urgency - limited time offer detected", Weight: 2, Category: model.CategoryCountdownPressure, Keywords: []string{"limited-time"}},
		{ID: "act-now", Message: "Pressure tactic - immediate action required", Weight: 2, Category: model.CategoryCountdownPressure, Keywords: []string{"act-now"}},
		{ID: "urgent", Message: "Urgency manipulation detected", Weight: 2, Category: model.CategoryCountdownPressure, Keywords: []string{"urgent"}},
		{ID: "expires", Message: "Expiration pressure - time-sensitive offer", Weight: 2, Category: model.CategoryCountdownPressure, Keywords: []string{"expires"}},
		{ID: "cancel-anytime", Message: "Potentially misleading cancellation claim", Weight: 3, Category: model.CategoryCancellationTrap, Keywords: []string{"cancel-anytime"}},
		{ID: "no-commitment", Message: "No commitment claim - verify actual terms", Weight: 2, Category: model.CategoryMisleadingLanguage, Keywords: []string{"no-commitment"}},
		{ID: "risk-free", Message: "Risk-free claim - check for hidden conditions", Weight: 2, Category: model.CategoryMisleadingLanguage, Keywords: []string{"risk-free"}},

		{ID: "subscription-page", Message: "Subscription signup page - verify auto-renewal terms and cancellation policy", Weight: 2, Category: model.CategoryForcedRenewal, Keywords: []string{"subscribe", "subscription"}},
		{ID: "billing-page", Message: "Payment/billing page - check for hidden fees and pre-selected options", Weight: 2, Category: model.CategoryHiddenCost, Keywords: []string{"billing", "payment"}},
		{ID: "checkout-page", Message: "Checkout process - watch for pre-checked add-ons and hidden costs", Weight: 2, Category: model.CategoryPreChecked, Keywords: []string{"checkout"}},

		{ID: "social-platform", Message: "Social media platform - uses engagement optimization and behavioral nudges", Weight: 1, Category: model.CategoryMisleadingLanguage, Domains: []string{"facebook.com", "instagram.com", "twitter.com", "tiktok.com", "snapchat.com"}},
		{ID: "ecommerce-platform", Message: "E-commerce platform - check for hidden shipping costs and return policies", Weight: 1, Category: model.CategoryHiddenCost, Domains: []string{"amazon.com", "ebay.com", "shopify", "store", "shop"}},
		{ID: "streaming-service", Message: "Streaming service - verify auto-renewal settings and cancellation process", Weight: 2, Category: model.CategoryForcedRenewal, Domains: []string{"netflix.com", "hulu.com", "disney", "prime", "spotify.com"}},
		{ID: "news-subscription", Message: "News subscription - check for introductory pricing and auto-renewal terms", Weight: 3, Category: model.CategoryForcedRenewal, Keywords: []string{"subscribe"}, Domains: []string{"news", "times", "post"}},
		{ID: "known-problematic", Message: "Known problematic domain - high risk of deceptive practices", Weight: 5, Category: model.CategoryMisleadingLanguage, Domains: []string{"example-scam.com", "fake-service.net", "phishing-site.org"}},
		{ID: "tracking-params", Message: "Tracking parameters detected - your activity may be monitored for marketing purposes", Weight: 1, Category: model.CategoryMisleadingLanguage, Keywords: []string{"ref=", "utm_", "affiliate"}},
	}
}
