package main

import (
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/cesarabad/muffinmanager/pkg/codec"
	"github.com/cesarabad/muffinmanager/pkg/config"
	"github.com/cesarabad/muffinmanager/pkg/constants"
	"github.com/cesarabad/muffinmanager/pkg/crud"
	"github.com/cesarabad/muffinmanager/pkg/i18n"
	"github.com/cesarabad/muffinmanager/pkg/logger"
	"github.com/cesarabad/muffinmanager/pkg/resources"
	"github.com/cesarabad/muffinmanager/pkg/session"
)

// app is the runtime shared by every command.
type app struct {
	cfg       *config.Config
	log       logger.Logger
	closeLog  func() error
	sessions  *session.Store
	transport *crud.Transport
	registry  *resources.Registry
	metrics   *prometheus.Registry
	t         i18n.TranslateFunc
	out       io.Writer
}

func newApp(cmd *cli.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	errOut := cmd.Root().ErrWriter
	if errOut == nil {
		errOut = os.Stderr
	}
	log, closeLog, err := config.SetupLogger(cfg, errOut)
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore()
	if cfg.Token != "" {
		if err := sessions.SetToken(cfg.Token); err != nil {
			if errors.Is(err, constants.ErrSessionExpired) {
				_ = closeLog()
				return nil, err
			}
			log.Debug("token is not a JWT, using it as an opaque credential", "error", err)
			sessions.Set(session.Session{Token: cfg.Token})
		}
	}

	bundle, err := i18n.Load(log)
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	metrics := prometheus.NewRegistry()
	transport, err := crud.NewTransport(crud.Config{
		BaseURL:     cfg.APIURL,
		HTTPClient:  &http.Client{Timeout: cfg.HTTPTimeout},
		Codec:       codec.ByName(cfg.Codec),
		Credentials: sessions,
		Logger:      log,
		Metrics:     crud.NewMetrics(metrics),
	})
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}
	return &app{
		cfg:       cfg,
		log:       log,
		closeLog:  closeLog,
		sessions:  sessions,
		transport: transport,
		registry:  resources.NewRegistry(transport),
		metrics:   metrics,
		t:         bundle.Func(i18n.Match(cfg.Locale, os.Getenv("LANG"))),
		out:       out,
	}, nil
}

func (a *app) Close() {
	if mfs, err := a.metrics.Gather(); err == nil {
		for _, mf := range mfs {
			for _, m := range mf.GetMetric() {
				if c := m.GetCounter(); c != nil {
					a.log.Debug("request summary", "metric", mf.GetName(), "labels", m.GetLabel(), "value", c.GetValue())
				}
			}
		}
	}
	_ = a.closeLog()
}

// run loads the runtime, calls fn and releases the runtime.
func run(cmd *cli.Command, fn func(a *app) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
