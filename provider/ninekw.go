package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"
)

// NineKWName is the registry name of the 9kw.eu backend.
const NineKWName = "9kw"

func init() { Register(NewNineKW()) }

// nineKWMaxTimeout is the default solve window handed to 9kw, in seconds.
const nineKWMaxTimeout = 180

// NineKW solves captchas through the 9kw.eu interactive upload API.
// Turnstile is not supported.
//
// Credentials: "api_key" (required), "maxtimeout" (optional, seconds).
type NineKW struct {
	s        settings
	explicit bool
}

// NewNineKW returns the backend with a 10 s poll step.  Unless WithTimeout
// is given, the job timeout is the requested maxtimeout plus 10 s.
func NewNineKW(opts ...Option) *NineKW {
	s := newSettings("https://www.9kw.eu", 10*time.Second, 0, opts)
	p := &NineKW{s: s, explicit: s.timeout > 0}
	if !p.explicit {
		p.s.timeout = (nineKWMaxTimeout + 10) * time.Second
	}
	return p
}

// Name implements Provider.
func (p *NineKW) Name() string { return NineKWName }

var nineKWSources = map[CaptchaType]string{
	ReCaptcha: "recaptchav2",
	HCaptcha:  "hcaptcha",
}

// Supports implements Provider.
func (p *NineKW) Supports(t CaptchaType) bool {
	_, ok := nineKWSources[t]
	return ok
}

var nineKWErrors = map[int]string{
	1:  "No API Key available.",
	2:  "No API key found.",
	3:  "No active API key found.",
	4:  "API Key has been disabled by the operator.",
	5:  "No user found.",
	6:  "No data found.",
	7:  "Found No ID.",
	8:  "found No captcha.",
	9:  "No image found.",
	10: "Image size not allowed.",
	11: "credit is not sufficient.",
	12: "what was done.",
	13: "No answer contain.",
	14: "Captcha already been answered.",
	15: "Captcha to quickly filed.",
	16: "JD check active.",
	17: "Unknown problem.",
	18: "Found No ID.",
	19: "Incorrect answer.",
	20: "Do not timely filed (Incorrect UserID).",
	21: "Link not allowed.",
	22: "Prohibited submit.",
	23: "Entering prohibited.",
	24: "Too little credit.",
	25: "No entry found.",
	26: "No Conditions accepted.",
	27: "No coupon code found in the database.",
	28: "Already unused voucher code.",
	29: "maxTimeout under 60 seconds.",
	30: "User not found.",
	31: "An account is not yet 24 hours in system.",
	32: "An account does not have the full rights.",
	33: "Plugin needed a update.",
	34: "No HTTPS allowed.",
	35: "No HTTP allowed.",
	36: "Source not allowed.",
	37: "Transfer denied.",
	54: "Assignment was not found.",
}

var reNineKWCode = regexp.MustCompile(`^00(\d+)`)

// nineKWReply is the json=1 reply of both actions.  error may be a number or
// a zero-padded string.
type nineKWReply struct {
	CaptchaID any    `json:"captchaid"`
	Answer    string `json:"answer"`
	Error     any    `json:"error"`
}

const nineKWNoData = "NO DATA"

// Solve implements Provider.
func (p *NineKW) Solve(ctx context.Context, task Task, params Params) (string, error) {
	params.Name = NineKWName
	if err := params.Require("api_key"); err != nil {
		return "", err
	}
	source, ok := nineKWSources[task.Type]
	if !ok {
		return "", &UnsupportedTypeError{Provider: NineKWName, Type: task.Type}
	}
	key := params.Credential("api_key")

	s := p.s
	maxTimeout := nineKWMaxTimeout
	if raw := params.Credential("maxtimeout"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return "", &APIError{Provider: NineKWName, Code: "BAD_PARAMETER", Message: fmt.Sprintf("maxtimeout %q is not a positive integer", raw)}
		}
		maxTimeout = n
		if !p.explicit {
			s.timeout = time.Duration(n+10) * time.Second
		}
	}

	form := url.Values{
		"apikey":         {key},
		"action":         {"usercaptchaupload"},
		"interactive":    {"1"},
		"file-upload-01": {task.SiteKey},
		"oldsource":      {source},
		"pageurl":        {task.PageURL},
		"maxtimeout":     {strconv.Itoa(maxTimeout)},
		"json":           {"1"},
	}
	upload := func(ctx context.Context) (string, bool, error) {
		r, err := p.call(s.postForm(ctx, NineKWName, "/index.cgi", form))
		if err != nil {
			return "", false, err
		}
		id := idString(r.CaptchaID)
		return id, id != "", nil
	}
	jobID, done, err := upload(ctx)
	if err != nil {
		return "", err
	}
	if !done {
		if jobID, err = pollJob(ctx, s, NineKWName, "(unsubmitted)", upload, nil); err != nil {
			return "", err
		}
	}
	p.s.logger.Sugar().Debugf("9kw: uploaded captcha %s", jobID)

	check := func(ctx context.Context) (string, bool, error) {
		r, err := p.call(s.get(ctx, NineKWName, "/index.cgi", url.Values{
			"apikey": {key},
			"action": {"usercaptchacorrectdata"},
			"id":     {jobID},
			"info":   {"1"},
			"json":   {"1"},
		}))
		if err != nil {
			return "", false, err
		}
		if r.Answer == "" || r.Answer == nineKWNoData {
			return "", false, nil
		}
		return r.Answer, true, nil
	}
	return pollJob(ctx, s, NineKWName, jobID, check, nil)
}

// call parses a 9kw reply, which is either a JSON object or a plain text
// status such as "0011 ...".
func (p *NineKW) call(data []byte, err error) (*nineKWReply, error) {
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if !bytes.HasPrefix(data, []byte("{")) {
		if m := reNineKWCode.FindSubmatch(data); m != nil {
			if code, _ := strconv.Atoi(string(m[1])); code != 0 {
				return nil, nineKWError(code)
			}
		}
		return &nineKWReply{}, nil
	}
	var r nineKWReply
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &APIError{Provider: NineKWName, Code: "BAD_RESPONSE", Message: err.Error()}
	}
	if code, _ := strconv.Atoi(idString(r.Error)); code != 0 {
		return nil, nineKWError(code)
	}
	return &r, nil
}

func nineKWError(code int) error {
	return &APIError{Provider: NineKWName, Code: fmt.Sprintf("%04d", code), Message: nineKWErrors[code]}
}

// idString renders a JSON scalar decoded into any.
func idString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}
