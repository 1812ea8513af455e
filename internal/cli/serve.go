package cli

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"llmsock/internal/config"
	"llmsock/internal/httpapi"
	"llmsock/internal/logging"
	"llmsock/internal/metrics"
	"llmsock/internal/model"
	"llmsock/internal/progress"
	"llmsock/internal/sched"
	"llmsock/internal/server"
	"llmsock/internal/session"
	"llmsock/internal/template"
)

func (a *app) serve(ctx context.Context, cfg config.Config) error {
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Out: a.stderr})
	if err != nil {
		return err
	}

	tmpl, err := template.ParseFile(cfg.PromptTemplate, session.PromptVar)
	if err != nil {
		return fmt.Errorf("load prompt template: %w", err)
	}
	if !tmpl.References(session.PromptVar) {
		log.Warn().Str("template", cfg.PromptTemplate).Msg("prompt template never references {prompt}; every line gets the same prompt")
	}

	started := time.Now()
	m, err := a.load(ctx, model.LoadParams{
		Path:        cfg.Model,
		Arch:        cfg.ModelArch,
		GPULayers:   cfg.GPULayers,
		ContextSize: cfg.ContextSize,
		BatchSize:   cfg.BatchSize,
		Seed:        cfg.Seed,
	}, progress.New(logging.Component(log, "model"), a.stderr))
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	defer m.Close()
	info := m.Info()
	log.Info().
		Str("arch", info.Arch).
		Str("backend", info.Backend).
		Dur("took", time.Since(started)).
		Msg("model ready")

	met := metrics.New()
	s := sched.New(cfg.SchedulerWidth,
		sched.WithLogger(logging.Component(log, "sched")),
		sched.WithObserver(met),
	)
	h := session.New(session.Config{
		MaxLineBytes: cfg.MaxLineBytes,
		Sampling:     samplingParams(cfg.Sampling),
		Session: model.SessionConfig{
			BatchSize:   cfg.BatchSize,
			Threads:     cfg.Threads,
			ContextSize: cfg.ContextSize,
		},
		Seed: cfg.Seed,
	}, m, tmpl, session.WithObserver(met))
	srv := server.New(server.Config{Host: cfg.Host, Port: cfg.Port}, server.Deps{
		Handler:  h,
		Sched:    s,
		Registry: server.NewRegistry(),
		Log:      logging.Component(log, "server"),
		Observer: met,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx) })
	if a.ready != nil {
		g.Go(func() error {
			select {
			case <-srv.Ready():
				a.ready(srv.Addr())
			case <-gctx.Done():
			}
			return nil
		})
	}
	if cfg.AdminAddr != "" {
		st := &httpapi.Status{Model: info, Server: srv, Sched: s, Started: started}
		mux := httpapi.NewMux(st, httpapi.Options{
			CORSOrigins: cfg.CORSOrigins,
			Metrics:     met,
			Log:         logging.Component(log, "admin"),
		})
		g.Go(func() error {
			if err := httpapi.Run(gctx, cfg.AdminAddr, mux, logging.Component(log, "admin")); err != nil {
				return fmt.Errorf("admin http: %w", err)
			}
			return nil
		})
	}
	err = g.Wait()
	log.Info().Msg("shutdown complete")
	return err
}

func samplingParams(s config.Sampling) model.SamplingParams {
	return model.SamplingParams{
		TopK:          s.TopK,
		TopP:          float32(s.TopP),
		Temperature:   float32(s.Temperature),
		RepeatPenalty: float32(s.RepeatPenalty),
		RepeatLastN:   s.RepeatLastN,
		MaxTokens:     s.MaxTokens,
	}
}
