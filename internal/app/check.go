package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crest/internal/config"
	"crest/internal/extension"
	"crest/internal/extension/approvals"
	"crest/internal/extension/events"
	"crest/internal/httpx"
	"crest/internal/notifier/jandi"
	"crest/internal/source/terrain"
	"crest/internal/state"
	logx "crest/pkg/logx"
)

// CheckReport is the outcome of a dry run over a config file.
type CheckReport struct {
	Scheduled []string
	Webhooks  int
}

// Check validates the config at cfgPath the way Start would, without running
// anything. Approvals credentials are probed unless probe_login is off. With
// probeWebhooks every Jandi URL is sent an empty message, which a live webhook rejects.
func Check(ctx context.Context, cfgPath string, probeWebhooks bool, log logx.Logger) (CheckReport, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg, err := config.NewConfigManager(cfgPath).Parse()
	if err != nil {
		return CheckReport{}, err
	}
	httpCfg, err := mapHTTPConfig(cfg)
	if err != nil {
		return CheckReport{}, err
	}
	upstream := httpx.New(httpCfg, log)

	deps := extension.Deps{Store: state.New(state.NewMemory(), log), Log: log}
	reg := extension.NewRegistry()
	var all []extension.Scheduled
	all = append(all, events.Tasks(cfg.ScoutEventCrawler, nil, reg, deps)...)
	all = append(all, approvals.Tasks(ctx, cfg.TerrainApprovals, func() approvals.Client {
		return terrain.New(terrain.Config{HTTP: upstream}, log)
	}, reg, deps)...)

	var rep CheckReport
	for _, s := range all {
		rep.Scheduled = append(rep.Scheduled, s.ID.String())
	}
	if len(rep.Scheduled) == 0 {
		return rep, ErrNoTasks
	}
	if !probeWebhooks {
		return rep, nil
	}

	hook := jandi.New(log, jandi.WithHTTPClient(httpx.NoRetry(0, log)))
	var errs []error
	for _, u := range webhookURLs(cfg) {
		rep.Webhooks++
		if err := hook.Validate(ctx, u); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", redactHook(u), err))
		}
	}
	return rep, errors.Join(errs...)
}

func webhookURLs(cfg *config.Config) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || !jandi.ValidURL(u) {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	if bool(cfg.ScoutEventCrawler.Enabled) {
		for _, t := range cfg.ScoutEventCrawler.Tasks {
			add(t.JandiURL)
		}
	}
	if bool(cfg.TerrainApprovals.Enabled) {
		for _, t := range cfg.TerrainApprovals.Tasks {
			add(t.JandiURL)
		}
	}
	return out
}

// redactHook keeps the webhook id and hides its token.
func redactHook(u string) string {
	if i := strings.LastIndex(u, "/"); i > 0 {
		return u[:i+1] + "…"
	}
	return u
}
