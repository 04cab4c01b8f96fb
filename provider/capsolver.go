package provider

import (
	"context"
	"strings"
	"time"

	"github.com/firasghr/GoChallengeEngine/payload"
)

// CapSolverName is the registry name of the capsolver.com backend.
const CapSolverName = "capsolver"

func init() { Register(NewCapSolver()) }

// capSolverAppID identifies this client to CapSolver.
const capSolverAppID = "9E717405-8C70-49B3-B277-7C2F2196484B"

// capSolverBusy marks a transient createTask rejection that is retried.
const capSolverBusy = "Current system busy"

// CapSolver solves captchas through the capsolver.com task API.  Jobs are
// always proxyless.
//
// Credentials: "api_key" (required).
type CapSolver struct {
	s settings
}

// NewCapSolver returns the backend with a 5 s poll step and a 180 s timeout.
func NewCapSolver(opts ...Option) *CapSolver {
	return &CapSolver{s: newSettings("https://api.capsolver.com", 5*time.Second, 180*time.Second, opts)}
}

// Name implements Provider.
func (p *CapSolver) Name() string { return CapSolverName }

var capSolverTasks = map[CaptchaType]string{
	ReCaptcha: "ReCaptchaV2TaskProxyLess",
	HCaptcha:  "HCaptchaTaskProxyLess",
	Turnstile: "AntiTurnstileTaskProxyLess",
}

// Supports implements Provider.
func (p *CapSolver) Supports(t CaptchaType) bool {
	_, ok := capSolverTasks[t]
	return ok
}

type capSolverReply struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           string `json:"taskId"`
	Status           string `json:"status"`
	Solution         struct {
		GRecaptchaResponse string `json:"gRecaptchaResponse"`
		Token              string `json:"token"`
	} `json:"solution"`
}

var capSolverSchema = payload.Schema{"errorId": payload.TypeNumber}

// Solve implements Provider.
func (p *CapSolver) Solve(ctx context.Context, task Task, params Params) (string, error) {
	params.Name = CapSolverName
	if err := params.Require("api_key"); err != nil {
		return "", err
	}
	taskType, ok := capSolverTasks[task.Type]
	if !ok {
		return "", &UnsupportedTypeError{Provider: CapSolverName, Type: task.Type}
	}
	key := params.Credential("api_key")

	create := map[string]any{
		"clientKey": key,
		"appId":     capSolverAppID,
		"task": map[string]any{
			"type":       taskType,
			"websiteURL": task.PageURL,
			"websiteKey": task.SiteKey,
		},
	}
	submit := func(ctx context.Context) (string, bool, error) {
		r, err := p.call(ctx, "/createTask", create)
		if err != nil {
			return "", false, err
		}
		if r.ErrorID != 0 {
			if strings.Contains(r.ErrorDescription, capSolverBusy) {
				return "", false, nil
			}
			return "", false, capSolverError(r)
		}
		if r.TaskID == "" {
			return "", false, &APIError{Provider: CapSolverName, Code: "BAD_JOB_ID", Message: "no taskId returned"}
		}
		return r.TaskID, true, nil
	}

	jobID, done, err := submit(ctx)
	if err != nil {
		return "", err
	}
	if !done {
		if jobID, err = pollJob(ctx, p.s, CapSolverName, "(unsubmitted)", submit, nil); err != nil {
			return "", err
		}
	}
	p.s.logger.Sugar().Debugf("capsolver: created task %s (%s)", jobID, taskType)

	check := func(ctx context.Context) (string, bool, error) {
		r, err := p.call(ctx, "/getTaskResult", map[string]any{"clientKey": key, "taskId": jobID})
		if err != nil {
			return "", false, err
		}
		if r.ErrorID != 0 {
			return "", false, capSolverError(r)
		}
		if tok := r.Solution.GRecaptchaResponse; tok != "" {
			return tok, true, nil
		}
		if tok := r.Solution.Token; tok != "" {
			return tok, true, nil
		}
		if r.Status == "failed" {
			return "", false, &APIError{Provider: CapSolverName, Code: "TASK_FAILED"}
		}
		return "", false, nil
	}
	// CapSolver has no report endpoint for bad jobs.
	return pollJob(ctx, p.s, CapSolverName, jobID, check, nil)
}

func (p *CapSolver) call(ctx context.Context, path string, body any) (*capSolverReply, error) {
	data, err := p.s.postJSON(ctx, CapSolverName, path, body)
	if err != nil {
		return nil, err
	}
	var r capSolverReply
	if err := decode(CapSolverName, data, capSolverSchema, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func capSolverError(r *capSolverReply) error {
	code := r.ErrorCode
	if code == "" {
		code = "ERROR"
	}
	return &APIError{Provider: CapSolverName, Code: code, Message: r.ErrorDescription}
}
