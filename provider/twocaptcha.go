package provider

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/firasghr/GoChallengeEngine/payload"
)

// TwoCaptchaName is the registry name of the 2captcha backend.
const TwoCaptchaName = "2captcha"

func init() { Register(NewTwoCaptcha()) }

// TwoCaptcha solves captchas through the 2captcha.com in.php / res.php API.
//
// Credentials: "api_key" (required), "no_proxy" (optional, any non-empty
// value disables proxy forwarding).
type TwoCaptcha struct {
	s settings
}

// NewTwoCaptcha returns the backend with a 5 s poll step and a 180 s timeout.
func NewTwoCaptcha(opts ...Option) *TwoCaptcha {
	return &TwoCaptcha{s: newSettings("https://2captcha.com", 5*time.Second, 180*time.Second, opts)}
}

// Name implements Provider.
func (p *TwoCaptcha) Name() string { return TwoCaptchaName }

var twoCaptchaMethods = map[CaptchaType]string{
	ReCaptcha: "userrecaptcha",
	HCaptcha:  "hcaptcha",
	Turnstile: "turnstile",
}

// Supports implements Provider.
func (p *TwoCaptcha) Supports(t CaptchaType) bool {
	_, ok := twoCaptchaMethods[t]
	return ok
}

// twoCaptchaResponse is the shape of every json=1 reply.
type twoCaptchaResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

var twoCaptchaSchema = payload.Schema{"status": payload.TypeNumber, "request": payload.TypeString}

const (
	twoCaptchaNotReady = "CAPCHA_NOT_READY"
	twoCaptchaNoSlot   = "ERROR_NO_SLOT_AVAILABLE"
)

// Solve implements Provider.
func (p *TwoCaptcha) Solve(ctx context.Context, task Task, params Params) (string, error) {
	params.Name = TwoCaptchaName
	if err := params.Require("api_key"); err != nil {
		return "", err
	}
	method, ok := twoCaptchaMethods[task.Type]
	if !ok {
		return "", &UnsupportedTypeError{Provider: TwoCaptchaName, Type: task.Type}
	}
	key := params.Credential("api_key")

	form := url.Values{
		"key":     {key},
		"pageurl": {task.PageURL},
		"json":    {"1"},
		"soft_id": {"2905"},
		"method":  {method},
	}
	if task.Type == ReCaptcha {
		form.Set("googlekey", task.SiteKey)
	} else {
		form.Set("sitekey", task.SiteKey)
	}
	if task.UserAgent != "" {
		form.Set("userAgent", task.UserAgent)
	}
	if params.Proxy != nil && params.Credential("no_proxy") == "" {
		form.Set("proxy", params.Proxy.URLString())
		form.Set("proxytype", strings.ToUpper(params.Proxy.Type))
	}

	jobID, err := p.submit(ctx, form)
	if err != nil {
		return "", err
	}
	p.s.logger.Sugar().Debugf("2captcha: submitted job %s for %s", jobID, task.PageURL)

	check := func(ctx context.Context) (string, bool, error) {
		r, err := p.res(ctx, key, "get", jobID)
		if err != nil {
			return "", false, err
		}
		if r.Status == 1 {
			return r.Request, true, nil
		}
		if strings.HasPrefix(r.Request, "ERROR_") {
			return "", false, &APIError{Provider: TwoCaptchaName, Code: r.Request}
		}
		return "", false, nil
	}
	report := func(ctx context.Context) error {
		_, err := p.res(ctx, key, "reportbad", jobID)
		return err
	}
	return pollJob(ctx, p.s, TwoCaptchaName, jobID, check, report)
}

// submit posts the job, waiting out ERROR_NO_SLOT_AVAILABLE within the job
// timeout.
func (p *TwoCaptcha) submit(ctx context.Context, form url.Values) (string, error) {
	attempt := func(ctx context.Context) (string, bool, error) {
		data, err := p.s.postForm(ctx, TwoCaptchaName, "/in.php", form)
		if err != nil {
			return "", false, err
		}
		var r twoCaptchaResponse
		if err := decode(TwoCaptchaName, data, twoCaptchaSchema, &r); err != nil {
			return "", false, err
		}
		switch {
		case r.Status == 1 && r.Request != "":
			return r.Request, true, nil
		case r.Request == twoCaptchaNoSlot:
			return "", false, nil
		}
		return "", false, &APIError{Provider: TwoCaptchaName, Code: r.Request}
	}

	if id, done, err := attempt(ctx); err != nil || done {
		return id, err
	}
	return pollJob(ctx, p.s, TwoCaptchaName, "(unsubmitted)", attempt, nil)
}

func (p *TwoCaptcha) res(ctx context.Context, key, action, id string) (*twoCaptchaResponse, error) {
	data, err := p.s.get(ctx, TwoCaptchaName, "/res.php", url.Values{
		"key":    {key},
		"action": {action},
		"id":     {id},
		"json":   {"1"},
	})
	if err != nil {
		return nil, err
	}
	var r twoCaptchaResponse
	if err := decode(TwoCaptchaName, data, twoCaptchaSchema, &r); err != nil {
		return nil, err
	}
	if action == "reportbad" && r.Status != 1 {
		return nil, &APIError{Provider: TwoCaptchaName, Code: r.Request}
	}
	return &r, nil
}
