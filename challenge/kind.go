// Package challenge classifies HTTP responses that stand in for the requested
// resource and defines the error taxonomy shared by every stage of the
// challenge pipeline.
//
// Classification is pure: Classify looks only at the status code, the Server
// header and the decoded body, and always returns exactly one Kind.
package challenge

// Kind identifies the challenge variant served in place of a resource.
type Kind int

const (
	// None means the response is the real resource (or at least not a
	// recognised challenge).
	None Kind = iota

	// FirewallBlocked is a hard firewall rule hit (error 1020).  There is no
	// proof that can pass it.
	FirewallBlocked

	// IuamV1 is the legacy "I'm Under Attack Mode" page carrying an
	// obfuscated arithmetic script.
	IuamV1

	// CaptchaV1 is the legacy hCaptcha / reCaptcha interstitial.
	CaptchaV1

	// UnsupportedV2Challenge is the orchestrated v2 script challenge.
	UnsupportedV2Challenge

	// UnsupportedV2Captcha is the orchestrated v2 captcha / managed challenge.
	UnsupportedV2Captcha

	// V3VmChallenge is the VM based v3 challenge.
	V3VmChallenge

	// Turnstile is the Turnstile widget challenge.
	Turnstile
)

// KindCount is the number of kinds, None included.
const KindCount = int(Turnstile) + 1

var kindNames = [...]string{
	None:                   "none",
	FirewallBlocked:        "firewall_blocked",
	IuamV1:                 "iuam_v1",
	CaptchaV1:              "captcha_v1",
	UnsupportedV2Challenge: "unsupported_v2_challenge",
	UnsupportedV2Captcha:   "unsupported_v2_captcha",
	V3VmChallenge:          "v3_vm_challenge",
	Turnstile:              "turnstile",
}

// Kinds lists every Kind in declaration order.
var Kinds = []Kind{
	None, FirewallBlocked, IuamV1, CaptchaV1,
	UnsupportedV2Challenge, UnsupportedV2Captcha, V3VmChallenge, Turnstile,
}

// String returns the snake_case name of k.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// IsChallenge reports whether k is anything other than None.
func (k Kind) IsChallenge() bool { return k != None }

// Solvable reports whether the engine has a solving path for k.  Turnstile
// is only solvable when a proof provider is configured, which the caller
// decides.
func (k Kind) Solvable() bool {
	switch k {
	case IuamV1, CaptchaV1, Turnstile:
		return true
	}
	return false
}
