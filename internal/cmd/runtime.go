package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/ailink"
	"github.com/parlorhq/parlor/internal/ailink/prompt"
	"github.com/parlorhq/parlor/internal/config"
	"github.com/parlorhq/parlor/internal/core/engine"
	"github.com/parlorhq/parlor/internal/core/store"
	"github.com/parlorhq/parlor/internal/notify"
)

// relayRuntime holds the components behind one running relay.
type relayRuntime struct {
	Config  *config.Config
	Store   *store.Store
	Limiter *engine.RateLimiter
	Relay   *engine.Relay
	Alerts  *notify.Dispatcher
	Prompts *prompt.Set
	AI      *ailink.Service
}

// buildRuntime opens the store and wires the relay. Close releases
// everything it opened.
func buildRuntime(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*relayRuntime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	prompts, err := prompt.LoadRegistry(cfg.AILink.PromptsDir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	notifier, err := buildNotifier(cfg, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	alerts := notify.NewDispatcher(notifier, cfg.Notify.QueueSize, logger)

	limiter := engine.NewRateLimiter(engine.NewMemoryWindowStore(cfg.Relay.MaxTrackedUsers), cfg.Relay.RateLimitPolicy())
	limiter.Logger = logger

	ai := ailink.NewService(ailink.NewRegistry(cfg.AILink), logger)
	builder := prompt.NewBuilder(prompts)

	summarizer := &engine.Summarizer{
		Store:          db,
		Generator:      ailink.RoleGenerator{Service: ai, Role: ailink.RoleCompaction},
		Prompts:        builder,
		Threshold:      cfg.Relay.CompactionThreshold,
		WordCap:        cfg.Relay.SummaryWordCap,
		MaxBufferBytes: cfg.Relay.MaxBufferBytes,
		Timeout:        cfg.Relay.GenerationTimeout,
		Logger:         logger,
	}

	watcher := notify.NewMediaWatcher(alerts)
	if len(cfg.Notify.MediaKeywords) > 0 {
		watcher.Keywords = cfg.Notify.MediaKeywords
	}

	relay := &engine.Relay{
		Limiter:    limiter,
		Summarizer: summarizer,
		Generator:  ailink.RoleGenerator{Service: ai, Role: ailink.RoleReply},
		Prompts:    builder,
		Alerts:     alerts,
		Timeout:    cfg.Relay.GenerationTimeout,
		Logger:     logger,
		OnAdmit:    watcher.Observe,
	}

	return &relayRuntime{
		Config:  cfg,
		Store:   db,
		Limiter: limiter,
		Relay:   relay,
		Alerts:  alerts,
		Prompts: prompts,
		AI:      ai,
	}, nil
}

// Close drains pending alerts, then closes the store.
func (rt *relayRuntime) Close(ctx context.Context) error {
	if rt == nil {
		return nil
	}
	return errors.Join(rt.Alerts.Close(ctx), rt.Store.Close())
}

// buildNotifier sends alerts by mail when SMTP is configured and to the log
// otherwise. With history enabled every alert is also recorded in the store.
func buildNotifier(cfg *config.Config, db *store.Store, logger *logging.Logger) (notify.Notifier, error) {
	var primary notify.Notifier = notify.LogNotifier{Logger: logger}
	if smtpCfg := cfg.Notify.SMTP; smtpCfg.Host != "" {
		mailer, err := notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:        smtpCfg.Host,
			Port:        smtpCfg.Port,
			Username:    smtpCfg.Username,
			Password:    smtpCfg.Password,
			From:        smtpCfg.From,
			To:          smtpCfg.To,
			ImplicitTLS: smtpCfg.ImplicitTLS,
			Timeout:     smtpCfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("configure smtp alerts: %w", err)
		}
		primary = mailer
		if logger != nil {
			logger.Info("Alert mail enabled",
				zap.String("smtp_host", smtpCfg.Host),
				zap.Int("recipients", len(smtpCfg.To)))
		}
	}

	if !cfg.Notify.History || db == nil {
		return primary, nil
	}
	history := notify.NotifierFunc(func(ctx context.Context, alert notify.Alert) error {
		return db.RecordAlert(ctx, alert.Subject, alert.Body, alert.At)
	})
	return notify.Fanout{history, primary}, nil
}
