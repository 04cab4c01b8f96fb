package cmd

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/firasghr/GoChallengeEngine/challenge"
	"github.com/firasghr/GoChallengeEngine/client"
	"github.com/firasghr/GoChallengeEngine/extractor"
	"github.com/firasghr/GoChallengeEngine/jschallenge"
)

type solveOptions struct {
	pageURL   string
	status    int
	server    string
	encoding  string
	evaluator string
}

func newSolveCmd(root *rootOptions) *cobra.Command {
	opts := &solveOptions{}
	cmd := &cobra.Command{
		Use:   "solve FILE",
		Short: "Classify a saved challenge page and compute its submission offline",
		Long: "solve reads a page saved from a challenged response (\"-\" for stdin), " +
			"classifies it and, for IUAM pages, evaluates the script and prints the form " +
			"that would be submitted.  Nothing is sent over the network.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, root, opts, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.pageURL, "url", "", "URL the page was served for (required)")
	f.IntVar(&opts.status, "status", http.StatusServiceUnavailable, "status code of the response")
	f.StringVar(&opts.server, "server", "cloudflare", "Server header of the response")
	f.StringVar(&opts.encoding, "encoding", "", "Content-Encoding of the saved body, e.g. br")
	f.StringVar(&opts.evaluator, "evaluator", "", "IUAM evaluator (default: from config)")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func runSolve(cmd *cobra.Command, root *rootOptions, opts *solveOptions, file string) error {
	page, err := url.Parse(opts.pageURL)
	if err != nil || page.Host == "" {
		return fmt.Errorf("invalid --url %q", opts.pageURL)
	}
	body, err := readPage(cmd, file)
	if err != nil {
		return err
	}
	if body, err = client.DecodeBody(opts.encoding, body); err != nil {
		return err
	}

	header := http.Header{}
	if opts.server != "" {
		header.Set("Server", opts.server)
	}
	kind := challenge.Classify(opts.status, header, body)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "kind:     %s\n", kind)

	switch kind {
	case challenge.None:
		return nil
	case challenge.IuamV1:
		return solveIUAM(cmd, root, opts, page, body)
	case challenge.CaptchaV1:
		c, err := extractor.ExtractCaptcha(body, page)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "captcha:  %s\nsitekey:  %s\n", c.Type, c.SiteKey)
		printForm(out, c.Form.Method, c.Form.Action, c.Form.Fields)
		return nil
	case challenge.Turnstile:
		tp, err := extractor.ExtractTurnstile(body, page)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "sitekey:  %s\n", tp.SiteKey)
		printForm(out, tp.Form.Method, tp.Form.Action, tp.Form.Fields)
		return nil
	default:
		fmt.Fprintln(out, "solvable: false")
		return nil
	}
}

func solveIUAM(cmd *cobra.Command, root *rootOptions, opts *solveOptions, page *url.URL, body []byte) error {
	name := opts.evaluator
	if name == "" {
		name = root.cfg.Evaluator
	}
	ev, err := jschallenge.Get(name)
	if err != nil {
		return err
	}
	iuam, err := extractor.ExtractIUAM(body, page)
	if err != nil {
		return err
	}
	answer, err := ev.Eval(cmd.Context(), iuam.Env, iuam.Script)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if secs, err := extractor.ExtractDelay(body); err == nil {
		fmt.Fprintf(out, "delay:    %s\n", time.Duration(secs*float64(time.Second)))
	}
	fmt.Fprintf(out, "answer:   %s (%s)\n", answer, ev.Name())
	fields := iuam.Form.Fields.Clone()
	fields.Set("jschl_answer", answer)
	printForm(out, http.MethodPost, iuam.Form.Action, fields)
	return nil
}

func printForm(out io.Writer, method, action string, fields extractor.Fields) {
	fmt.Fprintf(out, "submit:   %s %s\n", method, action)
	fmt.Fprintf(out, "body:     %s\n", fields.Encode())
}

func readPage(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(file)
}
