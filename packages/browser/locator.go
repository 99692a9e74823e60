// Package browser owns the role-bound automation sessions: creation, auth,
// health probing, recovery and the DOM interactions the posting worker drives.
package browser

import (
	"context"
	"time"

	"commentbot/packages/config"

	"github.com/chromedp/chromedp"
)

// Logical element names looked up in the policy's locator chains.
const (
	ElemCommentBox    = "comment_box"
	ElemSubmitButton  = "submit_button"
	ElemImageInput    = "image_input"
	ElemLoginEmail    = "login_email"
	ElemLoginPassword = "login_password"
	ElemLoginSubmit   = "login_submit"
	ElemLoggedIn      = "logged_in_marker"
)

const locatorProbeTimeout = 3 * time.Second

func queryOption(by string) chromedp.QueryOption {
	if by == "xpath" {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// resolve walks the element's ordered locator chain and returns the first
// locator whose target is currently visible. UI drift is expected; absence is
// an ordinary outcome here, not a fault.
func resolve(ctx context.Context, chain []config.Locator) (config.Locator, bool) {
	for _, loc := range chain {
		probeCtx, cancel := context.WithTimeout(ctx, locatorProbeTimeout)
		err := chromedp.Run(probeCtx, chromedp.WaitVisible(loc.Value, queryOption(loc.By)))
		cancel()
		if err == nil {
			return loc, true
		}
	}
	return config.Locator{}, false
}
