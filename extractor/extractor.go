// Package extractor pulls the pieces of a challenge page the solver needs:
// the submission form, the embedded arithmetic script, the mandatory delay,
// and the element table the script reads through its fake document.
//
// Every failure is a *challenge.Error wrapping challenge.ErrExtraction, which
// signals that the page no longer looks the way the engine expects.
package extractor

import (
	"bytes"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/firasghr/GoChallengeEngine/challenge"
)

// Form is a challenge submission form.
type Form struct {
	// Action is the absolute URL the proof is submitted to.
	Action string

	// Method is the upper-cased form method; POST when the form omits it.
	Method string

	// Fields are the whitelisted inputs in markup order.
	Fields Fields

	// KTable maps the numeric suffix of indirection elements to their raw
	// expression text.  Nil for pages without an indirection table.
	KTable map[int]string
}

// IUAM is everything extracted from an "I'm Under Attack Mode" page.
type IUAM struct {
	Form   Form
	Script string
	Env    Environment
}

// Captcha types understood by proof providers.
const (
	CaptchaTypeReCaptcha = "reCaptcha"
	CaptchaTypeHCaptcha  = "hCaptcha"
)

// Captcha is everything extracted from a captcha interstitial.
type Captcha struct {
	Form    Form
	Type    string
	SiteKey string
	RayID   string
}

// TurnstilePage is everything extracted from a Turnstile challenge page.
type TurnstilePage struct {
	Form    Form
	SiteKey string
}

var (
	reIuamAction    = regexp.MustCompile(`__cf_chl_(?:f_tk|jschl_tk__)=`)
	reCaptchaAction = regexp.MustCompile(`__cf_chl_(?:f_tk|captcha_tk__)=`)
	reScript        = regexp.MustCompile(`(?s)setTimeout\(function\(\)\{\s+(.*?a\.value\s*=\s*[^;]+;)`)
	reKVar          = regexp.MustCompile(`\bk\s*=\s*'([^']+)';`)
	reElement       = regexp.MustCompile(`<div(?: [^<>]*)? id="([^<>]*?)">([^<>]*?)</div>`)
	reDelay         = regexp.MustCompile(`submit\(\);\r?\n\s*},\s*([0-9]+)`)
	reTurnstileKey  = regexp.MustCompile(`data-sitekey="([0-9A-Za-z]{40})"`)
)

var iuamInputs = map[string]bool{"r": true, "jschl_vc": true, "pass": true}

// ExtractIUAM extracts the form, script and evaluation environment from an
// IUAM page served for pageURL.
func ExtractIUAM(body []byte, pageURL *url.URL) (*IUAM, error) {
	const kind = challenge.IuamV1

	doc, err := parse(body, kind)
	if err != nil {
		return nil, err
	}
	sel, action, ok := findForm(doc, reIuamAction)
	if !ok {
		return nil, extractionError(kind, "locate challenge form")
	}

	form := Form{Method: formMethod(sel)}
	if form.Action, err = resolve(pageURL, action); err != nil {
		return nil, challenge.NewError(challenge.ErrExtraction, kind, "resolve form action", err)
	}
	sel.Find("input").Each(func(_ int, in *goquery.Selection) {
		name, _ := in.Attr("name")
		if iuamInputs[name] {
			value, _ := in.Attr("value")
			form.Fields.Add(name, value)
		}
	})
	for _, required := range []string{"jschl_vc", "pass"} {
		if _, ok := form.Fields.Get(required); !ok {
			return nil, extractionError(kind, "read form input "+required)
		}
	}

	script, err := ExtractScript(body)
	if err != nil {
		return nil, err
	}

	elements := ExtractElements(body)
	form.KTable = buildKTable(script, elements)

	return &IUAM{
		Form:   form,
		Script: script,
		Env: Environment{
			Domain:   pageURL.Host,
			Elements: elements,
			KTable:   form.KTable,
		},
	}, nil
}

// ExtractScript returns the numeric challenge script, from the start of the
// setTimeout callback up to and including the answer assignment.
func ExtractScript(body []byte) (string, error) {
	m := reScript.FindSubmatch(body)
	if m == nil {
		return "", extractionError(challenge.IuamV1, "locate challenge script")
	}
	return string(m[1]), nil
}

// ExtractElements returns every simple <div id="...">text</div> element in
// page order.
func ExtractElements(body []byte) []Element {
	var out []Element
	for _, m := range reElement.FindAllSubmatch(body, -1) {
		out = append(out, Element{ID: string(m[1]), HTML: string(m[2])})
	}
	return out
}

// buildKTable keys indirection elements by the integer that follows the
// script's k prefix in their id.
func buildKTable(script string, elements []Element) map[int]string {
	m := reKVar.FindStringSubmatch(script)
	if m == nil {
		return nil
	}
	prefix := m[1]
	table := make(map[int]string)
	for _, el := range elements {
		suffix, ok := strings.CutPrefix(el.ID, prefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		table[n] = el.HTML
	}
	if len(table) == 0 {
		return nil
	}
	return table
}

// ExtractDelay returns the vendor-mandated wait before submission in seconds.
func ExtractDelay(body []byte) (float64, error) {
	m := reDelay.FindSubmatch(body)
	if m == nil {
		return 0, extractionError(challenge.IuamV1, "extract delay")
	}
	ms, err := strconv.ParseFloat(string(m[1]), 64)
	if err != nil {
		return 0, challenge.NewError(challenge.ErrExtraction, challenge.IuamV1, "extract delay", err)
	}
	return ms / 1000, nil
}

// ExtractCaptcha extracts the form and captcha parameters from a captcha
// interstitial served for pageURL.
func ExtractCaptcha(body []byte, pageURL *url.URL) (*Captcha, error) {
	const kind = challenge.CaptchaV1

	doc, err := parse(body, kind)
	if err != nil {
		return nil, err
	}
	sel, action, ok := findForm(doc, reCaptchaAction)
	if !ok {
		return nil, extractionError(kind, "locate challenge form")
	}

	c := &Captcha{Form: Form{Method: formMethod(sel)}}
	if c.Form.Action, err = resolve(pageURL, action); err != nil {
		return nil, challenge.NewError(challenge.ErrExtraction, kind, "resolve form action", err)
	}

	r, _ := inputValue(sel, "r")
	captchaKind, ok := inputValue(sel, "cf_captcha_kind")
	if !ok {
		return nil, extractionError(kind, "read form input cf_captcha_kind")
	}
	c.SiteKey = attrIn(sel, doc.Selection, "data-sitekey")
	if c.SiteKey == "" {
		return nil, extractionError(kind, "read data-sitekey")
	}
	c.RayID = attrIn(sel, doc.Selection, "data-ray")

	c.Type = CaptchaTypeHCaptcha
	if captchaKind == "re" {
		c.Type = CaptchaTypeReCaptcha
	}
	c.Form.Fields.Add("r", r)
	c.Form.Fields.Add("cf_captcha_kind", captchaKind)
	return c, nil
}

// ExtractTurnstile extracts the site key and form of a Turnstile page.  When
// the page has no form the proof is posted back to the page URL without its
// query.
func ExtractTurnstile(body []byte, pageURL *url.URL) (*TurnstilePage, error) {
	const kind = challenge.Turnstile

	m := reTurnstileKey.FindSubmatch(body)
	if m == nil {
		return nil, extractionError(kind, "read data-sitekey")
	}
	doc, err := parse(body, kind)
	if err != nil {
		return nil, err
	}

	p := &TurnstilePage{SiteKey: string(m[1]), Form: Form{Method: "POST"}}
	sel := doc.Find("form[action]").First()
	if sel.Length() == 0 {
		p.Form.Action = (&url.URL{Scheme: pageURL.Scheme, Host: pageURL.Host, Path: pageURL.Path}).String()
	} else {
		action, _ := sel.Attr("action")
		if p.Form.Action, err = resolve(pageURL, action); err != nil {
			return nil, challenge.NewError(challenge.ErrExtraction, kind, "resolve form action", err)
		}
		p.Form.Method = formMethod(sel)
	}
	doc.Find("input[name]").Each(func(_ int, in *goquery.Selection) {
		name, _ := in.Attr("name")
		value, _ := in.Attr("value")
		p.Form.Fields.Add(name, value)
	})
	return p, nil
}

// ── helpers ─────────────────────────────────────────────────────────────────

func parse(body []byte, kind challenge.Kind) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, challenge.NewError(challenge.ErrExtraction, kind, "parse html", err)
	}
	return doc, nil
}

// findForm returns the first form whose action matches token.
func findForm(doc *goquery.Document, token *regexp.Regexp) (*goquery.Selection, string, bool) {
	var (
		found  *goquery.Selection
		action string
	)
	doc.Find("form").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		a, ok := s.Attr("action")
		if ok && token.MatchString(a) {
			found, action = s, a
			return false
		}
		return true
	})
	return found, action, found != nil
}

func formMethod(sel *goquery.Selection) string {
	m := strings.ToUpper(strings.TrimSpace(sel.AttrOr("method", "")))
	if m == "" {
		return "POST"
	}
	return m
}

func inputValue(sel *goquery.Selection, name string) (string, bool) {
	in := sel.Find(`input[name="` + name + `"]`).First()
	if in.Length() == 0 {
		return "", false
	}
	return in.AttrOr("value", ""), true
}

// attrIn looks for attr inside the form first and then anywhere on the page.
func attrIn(form, page *goquery.Selection, attr string) string {
	for _, s := range []*goquery.Selection{form, page} {
		if v, ok := s.Find("[" + attr + "]").First().Attr(attr); ok {
			return v
		}
	}
	return ""
}

func resolve(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}

func extractionError(kind challenge.Kind, step string) error {
	return challenge.NewError(challenge.ErrExtraction, kind, step, nil)
}
