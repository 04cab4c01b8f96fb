package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/firasghr/GoChallengeEngine/dashboard"
	"github.com/firasghr/GoChallengeEngine/metrics"
	"github.com/firasghr/GoChallengeEngine/proxy"
	"github.com/firasghr/GoChallengeEngine/scheduler"
	"github.com/firasghr/GoChallengeEngine/session"
)

type fetchOptions struct {
	method    string
	sessions  int
	workers   int
	body      bool
	dashboard string
}

func newFetchCmd(root *rootOptions) *cobra.Command {
	opts := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch URL...",
		Short: "Fetch URLs, solving challenges on the way",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, root, opts, args)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.method, "method", "X", http.MethodGet, "request method")
	f.IntVar(&opts.sessions, "sessions", 0, "number of sessions (default: concurrency)")
	f.IntVar(&opts.workers, "workers", 0, "number of workers (default: concurrency)")
	f.BoolVar(&opts.body, "body", false, "print response bodies")
	f.StringVar(&opts.dashboard, "dashboard", "", "serve live metrics on this address while fetching, e.g. :8080")
	return cmd
}

func runFetch(cmd *cobra.Command, root *rootOptions, opts *fetchOptions, urls []string) error {
	cfg, log := root.cfg, root.log
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pm, err := proxy.NewManager()
	if err != nil {
		return err
	}
	if cfg.ProxyFile != "" {
		if err := pm.LoadFile(cfg.ProxyFile); err != nil {
			return err
		}
		log.Infof("loaded %d proxies from %q", pm.Count(), cfg.ProxyFile)
	}

	sessions := opts.sessions
	if sessions <= 0 {
		sessions = min(cfg.Concurrency, len(urls))
	}
	workers := opts.workers
	if workers <= 0 {
		workers = cfg.Concurrency
	}

	m := metrics.NewMetrics()
	sm := session.NewSessionManager(cfg, session.Options{Logger: log.Zap(), Observer: m})
	if err := sm.CreateSessions(ctx, sessions, pm); err != nil {
		return err
	}
	defer sm.StopAll()
	sm.StartAll()
	log.Infof("%d sessions ready", sm.Count())

	if opts.dashboard != "" {
		dash := dashboard.New(m, sm.Count, log.Zap())
		go func() {
			if err := dash.ListenAndServe(ctx, opts.dashboard); err != nil {
				log.Errorf("dashboard: %v", err)
			}
		}()
	}

	sc := scheduler.NewScheduler(sm, workers, m, log.Zap())
	results, err := sc.Dispatch(ctx, strings.ToUpper(opts.method), urls)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(out, "ERR\t%s\t%v\n", r.Job.URL, r.Err)
			continue
		}
		if r.Status >= 400 {
			failed++
		}
		fmt.Fprintf(out, "%d\t%s\t%d bytes\t%s\tsession=%d\n", r.Status, r.Job.URL, len(r.Body), r.Elapsed.Round(time.Millisecond), r.SessionID)
		if opts.body {
			fmt.Fprintf(out, "%s\n", r.Body)
		}
	}

	total, success, failedCount := m.Snapshot()
	fields := []zap.Field{
		zap.Uint64("total", total), zap.Uint64("success", success), zap.Uint64("failed", failedCount),
		zap.Uint64("loop_protections", m.LoopProtections()), zap.Duration("avg_solve", m.AverageSolveTime()),
	}
	for kind, c := range m.Challenges() {
		fields = append(fields, zap.Any(kind.String(), c))
	}
	log.Zap().Info("fetch finished", fields...)

	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, len(results))
	}
	return nil
}
