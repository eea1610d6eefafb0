package demoserver

import "github.com/raysh454/patternshield/internal/model"

// PageVersion is one revision of a demo page.
type PageVersion struct {
	HTML        string
	ContentType string
}

// PageDefinition holds all versions of a single page. Category is the dark
// pattern the page demonstrates; it is empty for the clean control page and
// the index.
type PageDefinition struct {
	Path        string
	Description string
	Category    model.Category
	Versions    map[int]PageVersion
}

// GetAllPages returns all demo page definitions.
func GetAllPages() []PageDefinition {
	return []PageDefinition{
		getIndexPage(),
		getRenewalPage(),
		getCancelPage(),
		getCheckoutPage(),
		getTrialPage(),
		getAddonsPage(),
		getOfferPage(),
		getCleanPage(),
	}
}

func page(title, body string) string {
	return `<!DOCTYPE html>
<html>
<head>
    <title>` + title + `</title>
    <meta name="description" content="Demo storefront page">
</head>
<body>
` + body + `
</body>
</html>`
}

// ===== INDEX =====
func getIndexPage() PageDefinition {
	return PageDefinition{
		Path:        "/",
		Description: "Index linking every demo page",
		Versions: map[int]PageVersion{
			1: {HTML: page("Demo Store", `    <h1>Demo Store</h1>
    <ul>
        <li><a href="/renewal">Membership</a></li>
        <li><a href="/cancel">Account</a></li>
        <li><a href="/checkout">Checkout</a></li>
        <li><a href="/trial">Trial</a></li>
        <li><a href="/addons">Extras</a></li>
        <li><a href="/offer">Offer</a></li>
        <li><a href="/clean">Plans</a></li>
    </ul>`)},
		},
	}
}

// ===== FORCED RENEWAL =====
func getRenewalPage() PageDefinition {
	return PageDefinition{
		Path:        "/renewal",
		Description: "Checked auto-renew checkbox at sign-up",
		Category:    model.CategoryForcedRenewal,
		Versions: map[int]PageVersion{
			1: {HTML: page("Join", `    <h1>Join today</h1>
    <form action="/renewal" method="post">
        <label><input type="checkbox" name="renew" checked> Keep my membership active with automatic renewal</label>
        <button type="submit">Join</button>
    </form>`)},
			2: {HTML: page("Join", `    <h1>Join today</h1>
    <form action="/renewal" method="post">
        <label><input type="checkbox" name="renew" checked> Keep my membership active with automatic renewal</label>
        <p class="auto-renewal">Your subscription continues until you tell us otherwise.</p>
        <button type="submit">Join</button>
    </form>`)},
		},
	}
}

// ===== CANCELLATION TRAP =====
func getCancelPage() PageDefinition {
	return PageDefinition{
		Path:        "/cancel",
		Description: "Cancellation only through a phone line",
		Category:    model.CategoryCancellationTrap,
		Versions: map[int]PageVersion{
			1: {HTML: page("Account", `    <h1>Your account</h1>
    <div class="no-cancel-button">
        <p>To stop your plan, call our support line to cancel.</p>
    </div>`)},
		},
	}
}

// ===== HIDDEN COSTS =====
func getCheckoutPage() PageDefinition {
	return PageDefinition{
		Path:        "/checkout",
		Description: "Fees revealed only in fine print",
		Category:    model.CategoryHiddenCost,
		Versions: map[int]PageVersion{
			1: {HTML: page("Checkout", `    <h1>Checkout</h1>
    <p>Total: $19.99</p>
    <small data-hidden-cost="true" style="display:none">A processing fee of $4.99 is added at payment.</small>`)},
		},
	}
}

// ===== MISLEADING LANGUAGE =====
func getTrialPage() PageDefinition {
	return PageDefinition{
		Path:        "/trial",
		Description: "Free trial that requires a credit card",
		Category:    model.CategoryMisleadingLanguage,
		Versions: map[int]PageVersion{
			1: {HTML: page("Trial", `    <h1>Start your free trial</h1>
    <p class="misleading-text">Free trial, just enter your credit card to begin. No commitment*</p>`)},
		},
	}
}

// ===== PRE-CHECKED ADD-ONS =====
func getAddonsPage() PageDefinition {
	return PageDefinition{
		Path:        "/addons",
		Description: "Protection plan selected by default",
		Category:    model.CategoryPreChecked,
		Versions: map[int]PageVersion{
			1: {HTML: page("Extras", `    <h1>Your order</h1>
    <label><input type="checkbox" name="plan" checked> Device protection plan ($7.99)</label>
    <label><input type="checkbox" name="gift"> Gift wrap</label>`)},
		},
	}
}

// ===== COUNTDOWN PRESSURE =====

// The offer page starts clean and gains a countdown in version 2, which
// exercises change detection.
func getOfferPage() PageDefinition {
	return PageDefinition{
		Path:        "/offer",
		Description: "Offer page that gains a countdown timer in v2",
		Category:    model.CategoryCountdownPressure,
		Versions: map[int]PageVersion{
			1: {HTML: page("Offer", `    <h1>Premium plan</h1>
    <p>$9 per month.</p>`)},
			2: {HTML: page("Offer", `    <h1>Premium plan</h1>
    <p>$9 per month.</p>
    <div class="countdown-timer" id="countdown">Offer expires in 09:59</div>`)},
		},
	}
}

// ===== CLEAN CONTROL =====
func getCleanPage() PageDefinition {
	return PageDefinition{
		Path:        "/clean",
		Description: "Control page with honest pricing",
		Versions: map[int]PageVersion{
			1: {HTML: page("Plans", `    <h1>Plans</h1>
    <p>Plans are billed monthly. You can end your plan online from your account page.</p>
    <p>The price shown is the total price.</p>
    <label><input type="checkbox" name="newsletter"> Send me the newsletter</label>`)},
		},
	}
}
