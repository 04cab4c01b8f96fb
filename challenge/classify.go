package challenge

import (
	"net/http"
	"regexp"
	"strings"
)

// vendorServer is the Server header prefix every rule requires.
const vendorServer = "cloudflare"

var (
	reFirewall = regexp.MustCompile(`<span class="cf-error-code">1020</span>`)

	reV2Captcha   = regexp.MustCompile(`cpo\.src\s*=\s*['"]/cdn-cgi/challenge-platform/\S+orchestrate/(captcha|managed)/v1`)
	reV2Challenge = regexp.MustCompile(`cpo\.src\s*=\s*['"]/cdn-cgi/challenge-platform/\S+orchestrate/jsch/v1`)

	reV3Orchestrate = regexp.MustCompile(`cpo\.src\s*=\s*['"]/cdn-cgi/challenge-platform/\S+orchestrate/jsch/v3`)
	reV3Context     = regexp.MustCompile(`window\._cf_chl_ctx\s*=`)
	reV3Form        = regexp.MustCompile(`<form[^>]*id="challenge-form"[^>]*action="[^"]*__cf_chl_rt_tk=`)

	reTurnstileClass  = regexp.MustCompile(`class="cf-turnstile"`)
	reTurnstileScript = regexp.MustCompile(`src="https://challenges\.cloudflare\.com/turnstile/v0/api\.js`)
	reTurnstileKey    = regexp.MustCompile(`data-sitekey="[0-9A-Za-z]{40}"`)

	reCaptchaForm  = regexp.MustCompile(`(?s)action="/\S+__cf_chl_(?:f_tk|captcha_tk__)=\S+`)
	reCaptchaTrace = regexp.MustCompile(`/cdn-cgi/images/trace/(?:captcha|managed)/`)
	reSiteKey      = regexp.MustCompile(`data-sitekey="`)

	reIuamForm   = regexp.MustCompile(`(?s)action="/\S+__cf_chl_(?:f_tk|jschl_tk__)=\S+`)
	reIuamTrace  = regexp.MustCompile(`/cdn-cgi/images/trace/jsch/`)
	reIuamScript = regexp.MustCompile(`(?s)setTimeout\(function\(\)\{\s+.*?a\.value\s*=`)
)

// rule pairs a predicate with the Kind it yields.  Rules are evaluated in
// slice order and the first match wins.
type rule struct {
	kind  Kind
	match func(status int, body string) bool
}

var rules = []rule{
	{FirewallBlocked, isFirewallBlocked},
	{UnsupportedV2Captcha, isV2Captcha},
	{UnsupportedV2Challenge, isV2Challenge},
	{V3VmChallenge, isV3},
	{Turnstile, isTurnstile},
	{CaptchaV1, isCaptchaV1},
	{IuamV1, isIuamV1},
}

// Classify returns the challenge variant represented by a response.  It never
// fails: anything that is not recognised is None.
func Classify(status int, header http.Header, body []byte) Kind {
	if !MayChallenge(status, header) {
		return None
	}
	s := string(body)
	for _, r := range rules {
		if r.match(status, s) {
			return r.kind
		}
	}
	return None
}

// MayChallenge reports whether a response with this status and header can
// carry a challenge at all.  Only such responses need their body read before
// classification.
func MayChallenge(status int, header http.Header) bool {
	switch status {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return FromVendor(header)
	}
	return false
}

// FromVendor reports whether the Server header names the challenge vendor.
func FromVendor(header http.Header) bool {
	return strings.HasPrefix(strings.ToLower(header.Get("Server")), vendorServer)
}

// IsRedirect reports whether a response is a redirect that carries a
// Location header.
func IsRedirect(status int, header http.Header) bool {
	if header.Get("Location") == "" {
		return false
	}
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// IsThrottled reports whether status is one a challenge is served with while
// the vendor is still deciding.  Such responses never reset loop protection.
func IsThrottled(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

func challengeStatus(status int) bool {
	return status == http.StatusForbidden || IsThrottled(status)
}

func isFirewallBlocked(status int, body string) bool {
	return status == http.StatusForbidden && reFirewall.MatchString(body)
}

func isV2Captcha(status int, body string) bool {
	return challengeStatus(status) && reV2Captcha.MatchString(body)
}

func isV2Challenge(status int, body string) bool {
	return challengeStatus(status) && reV2Challenge.MatchString(body)
}

func isV3(status int, body string) bool {
	if !challengeStatus(status) {
		return false
	}
	return reV3Orchestrate.MatchString(body) ||
		reV3Context.MatchString(body) ||
		reV3Form.MatchString(body)
}

func isTurnstile(status int, body string) bool {
	if !challengeStatus(status) {
		return false
	}
	return reTurnstileClass.MatchString(body) ||
		reTurnstileScript.MatchString(body) ||
		reTurnstileKey.MatchString(body)
}

func isCaptchaV1(status int, body string) bool {
	if status != http.StatusForbidden || !reCaptchaForm.MatchString(body) {
		return false
	}
	return reCaptchaTrace.MatchString(body) || reSiteKey.MatchString(body)
}

func isIuamV1(status int, body string) bool {
	if !IsThrottled(status) || !reIuamForm.MatchString(body) {
		return false
	}
	return reIuamTrace.MatchString(body) || reIuamScript.MatchString(body)
}
