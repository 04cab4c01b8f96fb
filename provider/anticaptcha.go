package provider

import (
	"context"
	"strconv"
	"time"

	"github.com/firasghr/GoChallengeEngine/payload"
)

// AntiCaptchaName is the registry name of the anti-captcha.com backend.
const AntiCaptchaName = "anticaptcha"

func init() { Register(NewAntiCaptcha()) }

// AntiCaptcha solves captchas through the anti-captcha.com JSON task API.
//
// Credentials: "clientKey" (required).
type AntiCaptcha struct {
	s settings
}

// NewAntiCaptcha returns the backend with a 5 s poll step and a 180 s
// timeout.
func NewAntiCaptcha(opts ...Option) *AntiCaptcha {
	return &AntiCaptcha{s: newSettings("https://api.anti-captcha.com", 5*time.Second, 180*time.Second, opts)}
}

// Name implements Provider.
func (p *AntiCaptcha) Name() string { return AntiCaptchaName }

var antiCaptchaTasks = map[CaptchaType]string{
	ReCaptcha: "NoCaptchaTask",
	HCaptcha:  "HCaptchaTask",
	Turnstile: "TurnstileTask",
}

// Supports implements Provider.
func (p *AntiCaptcha) Supports(t CaptchaType) bool {
	_, ok := antiCaptchaTasks[t]
	return ok
}

type antiCaptchaReply struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           int64  `json:"taskId"`
	Status           string `json:"status"`
	Solution         struct {
		Token              string `json:"token"`
		GRecaptchaResponse string `json:"gRecaptchaResponse"`
	} `json:"solution"`
}

var (
	antiCaptchaErrorSchema  = payload.Schema{"errorId": payload.TypeNumber}
	antiCaptchaCreateSchema = payload.Schema{"taskId": payload.TypeNumber}
	antiCaptchaResultSchema = payload.Schema{"status": payload.TypeString}
)

// Solve implements Provider.
func (p *AntiCaptcha) Solve(ctx context.Context, task Task, params Params) (string, error) {
	params.Name = AntiCaptchaName
	if err := params.Require("clientKey"); err != nil {
		return "", err
	}
	taskType, ok := antiCaptchaTasks[task.Type]
	if !ok {
		return "", &UnsupportedTypeError{Provider: AntiCaptchaName, Type: task.Type}
	}
	key := params.Credential("clientKey")

	body := map[string]any{
		"websiteURL": task.PageURL,
		"websiteKey": task.SiteKey,
	}
	if task.UserAgent != "" {
		body["userAgent"] = task.UserAgent
	}
	if px := params.Proxy; px != nil {
		body["type"] = taskType
		body["proxyType"] = px.Type
		body["proxyAddress"] = px.Host
		port, _ := strconv.Atoi(px.Port)
		body["proxyPort"] = port
		if px.Login != "" {
			body["proxyLogin"] = px.Login
			body["proxyPassword"] = px.Password
		}
	} else {
		body["type"] = taskType + "Proxyless"
	}

	created, err := p.call(ctx, "/createTask", map[string]any{
		"clientKey": key,
		"task":      body,
		"softId":    959,
	}, antiCaptchaCreateSchema)
	if err != nil {
		return "", err
	}
	jobID := strconv.FormatInt(created.TaskID, 10)
	p.s.logger.Sugar().Debugf("anticaptcha: created task %s (%s)", jobID, body["type"])

	check := func(ctx context.Context) (string, bool, error) {
		r, err := p.call(ctx, "/getTaskResult", map[string]any{
			"clientKey": key,
			"taskId":    created.TaskID,
		}, antiCaptchaResultSchema)
		if err != nil {
			return "", false, err
		}
		if r.Status != "ready" {
			return "", false, nil
		}
		if r.Solution.Token != "" {
			return r.Solution.Token, true, nil
		}
		if r.Solution.GRecaptchaResponse != "" {
			return r.Solution.GRecaptchaResponse, true, nil
		}
		return "", false, &APIError{Provider: AntiCaptchaName, Code: "EMPTY_SOLUTION", Message: "task ready without a token"}
	}
	report := func(ctx context.Context) error {
		_, err := p.call(ctx, "/reportIncorrectRecaptcha", map[string]any{
			"clientKey": key,
			"taskId":    created.TaskID,
		}, nil)
		return err
	}
	return pollJob(ctx, p.s, AntiCaptchaName, jobID, check, report)
}

// call posts body to path and decodes the reply.  A non-zero errorId is an
// *APIError; want is only checked on success.
func (p *AntiCaptcha) call(ctx context.Context, path string, body any, want payload.Schema) (*antiCaptchaReply, error) {
	data, err := p.s.postJSON(ctx, AntiCaptchaName, path, body)
	if err != nil {
		return nil, err
	}
	var r antiCaptchaReply
	if err := decode(AntiCaptchaName, data, antiCaptchaErrorSchema, &r); err != nil {
		return nil, err
	}
	if r.ErrorID != 0 {
		msg := r.ErrorDescription
		code := r.ErrorCode
		if code == "" {
			code = "ERROR_" + strconv.Itoa(r.ErrorID)
		}
		return nil, &APIError{Provider: AntiCaptchaName, Code: code, Message: msg}
	}
	if want != nil {
		if err := payload.Require(data, want); err != nil {
			return nil, &APIError{Provider: AntiCaptchaName, Code: "SCHEMA_DRIFT", Message: err.Error()}
		}
	}
	return &r, nil
}
