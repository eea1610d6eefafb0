package rules

import "github.com/raysh454/patternshield/internal/model"

// Selectors shared between rules and the live-DOM adapter.
const (
	SelectorCheckbox = `input[type="checkbox"]`

	SelectorTimerClass     = `[class*="timer"]`
	SelectorTimerID        = `[id*="timer"]`
	SelectorCountdownClass = `[class*="countdown"]`
	SelectorCountdownID    = `[id*="countdown"]`
)

var truthy = []string{"true", "1", "yes"}

func flag(attr string) StructuralMatcher {
	return StructuralMatcher{Selector: "[" + attr + "]", Attr: attr, Values: truthy}
}

func class(sel string) StructuralMatcher {
	return StructuralMatcher{Selector: sel}
}

// DefaultRules returns the canonical rule table, one rule per category.
// The slice is freshly allocated on every call.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "hidden-auto-renewal",
			Name:        "Hidden Auto-Renewal",
			Category:    model.CategoryForcedRenewal,
			Severity:    4,
			Confidence:  0.9,
			Description: "Subscription will automatically renew without clear user consent",
			Suggestion:  "Look for auto-renewal settings and disable them before subscribing",
			Structural: []StructuralMatcher{
				{Selector: SelectorCheckbox, RequireChecked: true, LabelPattern: `renew|recurring|auto-?bill|subscription continues`},
				class(".auto-renewal"),
				class(".recurring-billing"),
				flag("data-auto-renew"),
				flag("data-recurring"),
			},
			Text: []string{
				`automatically.*renew`,
				`recurring.*billing`,
				`auto.?renew`,
				`subscription.*continues`,
			},
		},
		{
			ID:          "confusing-cancellation",
			Name:        "Confusing Cancellation Process",
			Category:    model.CategoryCancellationTrap,
			Severity:    5,
			Confidence:  0.85,
			Description: "Cancellation process is hidden or overly complicated",
			Suggestion:  "Document the cancellation process before subscribing",
			Structural: []StructuralMatcher{
				class(".cancellation-hidden"),
				class(".cancel-difficult"),
				class(".no-cancel-button"),
				flag("data-cancel-hidden"),
				flag("data-cancel-difficult"),
			},
			Text: []string{
				`contact.*support.*to.*cancel`,
				`call.*to.*cancel`,
				`email.*to.*cancel`,
				`phone.*to.*cancel`,
				`cancellation.*not.*available`,
				`no online.*cancel`,
			},
		},
		{
			ID:          "hidden-costs",
			Name:        "Hidden Additional Costs",
			Category:    model.CategoryHiddenCost,
			Severity:    4,
			Confidence:  0.8,
			Description: "Additional costs are hidden or not clearly disclosed",
			Suggestion:  "Look for fine print and calculate the total cost before subscribing",
			Structural: []StructuralMatcher{
				class(".hidden-fee"),
				class(".additional-cost"),
				class(".service-fee"),
				flag("data-hidden-cost"),
				flag("data-additional-fee"),
			},
			Text: []string{
				`additional.*fees.*may.*apply`,
				`service.*fee.*not.*included`,
				`taxes.*and.*fees.*extra`,
				`processing.*fee`,
				`additional charges? (apply|may)`,
			},
		},
		{
			ID:          "misleading-language",
			Name:        "Misleading Language",
			Category:    model.CategoryMisleadingLanguage,
			Severity:    3,
			Confidence:  0.75,
			Description: "Language is misleading or creates false expectations",
			Suggestion:  "Read the terms carefully and ask for clarification if needed",
			Structural: []StructuralMatcher{
				class(".misleading-text"),
				class(".confusing-terms"),
				flag("data-misleading"),
				flag("data-confusing"),
			},
			Text: []string{
				`free.*trial.*credit.*card`,
				`no.*commitment.*billing`,
				`cancel.*anytime.*charges`,
				`unlimited.*with.*restrictions`,
				`cancel anytime\*`,
				`no commitment\*`,
			},
		},
		{
			ID:          "pre-checked-addons",
			Name:        "Pre-checked Add-ons",
			Category:    model.CategoryPreChecked,
			Severity:    3,
			Confidence:  0.85,
			Description: "Additional services are pre-selected without clear disclosure",
			Suggestion:  "Uncheck any pre-selected add-ons you don't want",
			Structural: []StructuralMatcher{
				{Selector: SelectorCheckbox, RequireChecked: true, LabelPattern: `premium|protection|insurance|warranty|add-?on|backup|priority support|donat`},
				class(".addon-checked"),
				class(".premium-included"),
				flag("data-pre-checked"),
				flag("data-default-checked"),
			},
			Text: []string{
				`premium.*features.*included`,
				`add.*protection.*plan`,
				`extended.*warranty`,
				`✓.*\$\d`,
			},
		},
		{
			ID:          "countdown-pressure",
			Name:        "Artificial Countdown Pressure",
			Category:    model.CategoryCountdownPressure,
			Severity:    2,
			Confidence:  0.75,
			Description: "Artificial time pressure to force quick decisions",
			Suggestion:  "Take your time to evaluate the offer properly",
			Structural: []StructuralMatcher{
				class(".countdown-timer"),
				class(".limited-time"),
				class(".expires-soon"),
				flag("data-countdown"),
				flag("data-pressure"),
				class(SelectorCountdownClass),
				class(SelectorCountdownID),
				{Selector: SelectorTimerClass, LabelPattern: `\d{1,2}:\d{2}`},
				{Selector: SelectorTimerID, LabelPattern: `\d{1,2}:\d{2}`},
			},
			Text: []string{
				`offer.*expires.*in`,
				`limited.*time.*only`,
				`hurry.*before.*gone`,
				`only.*few.*left`,
				`\bonly \d+ left\b`,
				`\bact now\b`,
			},
		},
	}
}
