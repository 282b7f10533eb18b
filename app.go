package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-authgate/qbo-bridge/extract"
	"github.com/go-authgate/qbo-bridge/qbo"
	"github.com/go-authgate/qbo-bridge/server"
	"github.com/go-authgate/qbo-bridge/tokens"
)

// app wires the configured components together.
type app struct {
	cfg       *Config
	logger    *slog.Logger
	store     tokens.Store
	closer    io.Closer
	exchanger *qbo.Exchanger
	session   *qbo.Session
	api       *qbo.API
	vendors   *qbo.Vendors
	bills     *qbo.Bills
	extractor *extract.Client
}

func newApp(ctx context.Context, cfg *Config, logger *slog.Logger) (*app, error) {
	if err := cfg.requireClient(); err != nil {
		return nil, err
	}

	plain, reads, err := newHTTPClients()
	if err != nil {
		return nil, err
	}

	exchanger, err := qbo.NewExchanger(qbo.ExchangerConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		AuthURL:      cfg.AuthURL,
		TokenURL:     cfg.TokenURL,
		RedirectURI:  cfg.RedirectURI,
		Scopes:       strings.Fields(cfg.Scope),
		Timeout:      cfg.HTTPTimeout,
	}, qbo.WithHTTPClient(plain), qbo.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	var extractor *extract.Client
	if cfg.ExtractURL != "" {
		extractor, err = extract.NewClient(extract.Config{
			URL:     cfg.ExtractURL,
			APIKey:  cfg.ExtractAPIKey,
			Timeout: cfg.ExtractTimeout,
		}, plain, logger)
		if err != nil {
			return nil, err
		}
	}

	store, closer, err := tokens.Open(ctx, cfg.storeConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	session := qbo.NewSession(store, exchanger,
		qbo.WithSessionLogger(logger),
		qbo.WithRefreshSkew(cfg.RefreshSkew))
	api := qbo.NewAPI(qbo.APIConfig{
		BaseURL:      cfg.APIHost,
		MinorVersion: cfg.MinorVersion,
		Timeout:      cfg.HTTPTimeout,
	}, reads, plain)
	vendors := qbo.NewVendors(session, api, logger)
	bills := qbo.NewBills(session, api, vendors, qbo.BillsConfig{
		APAccountID:      cfg.APAccountID,
		ExpenseAccountID: cfg.ExpenseAccountID,
		Sandbox:          cfg.sandbox(),
	}, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		closer:    closer,
		exchanger: exchanger,
		session:   session,
		api:       api,
		vendors:   vendors,
		bills:     bills,
		extractor: extractor,
	}, nil
}

func (a *app) serverDeps() server.Deps {
	deps := server.Deps{
		Session:    a.session,
		Authorizer: a.exchanger,
		API:        a.api,
		Vendors:    a.vendors,
		Bills:      a.bills,
	}
	// keep the interface nil rather than holding a nil *extract.Client
	if a.extractor != nil {
		deps.Extractor = a.extractor
	}
	return deps
}

func (a *app) Close() error {
	return a.closer.Close()
}
