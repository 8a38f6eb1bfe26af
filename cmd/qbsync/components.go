package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/application/qbwc"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/catalog"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/config"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/journal"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/ledger"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/qbxml"
)

// closer collects shutdown hooks in the order resources were opened
type closer []func() error

func (c closer) Close(log *zap.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			log.Warn("Error releasing resource", zap.Error(err))
		}
	}
}

func newLedgerClient(cfg config.LedgerConfig, log *zap.Logger) *ledger.Client {
	var transport ledger.Transport
	switch cfg.Transport {
	case "http":
		transport = ledger.NewHTTPTransport(ledger.HTTPConfig{
			BaseURL: cfg.BaseURL,
			Token:   cfg.Token,
			Timeout: cfg.Timeout,
		})
	default:
		cliCfg := ledger.CLIConfig{
			Command: cfg.Command,
			EnvFile: cfg.EnvFile,
			Prod:    cfg.Prod,
			Dir:     cfg.Dir,
			Timeout: cfg.Timeout,
		}
		if cfg.Command == "npx" {
			cliCfg.Args = []string{"convex", "run"}
		}
		transport = ledger.NewCLITransport(cliCfg)
	}
	log.Info("Ledger transport configured", zap.String("transport", cfg.Transport))
	return ledger.NewClient(transport, ledger.WithLogger(log.Named("ledger")))
}

// newCatalogCache wires the snapshot source and mirrors for the configured mode
func newCatalogCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (*catalog.Cache, closer, error) {
	mode, err := catalog.ParseMode(cfg.Catalog.Source)
	if err != nil {
		return nil, nil, err
	}

	opts := []catalog.Option{
		catalog.WithRefreshInterval(cfg.Catalog.RefreshInterval),
		catalog.WithLogger(log.Named("catalog")),
	}
	var release closer

	if mode == catalog.ModeSnapshot {
		if catalog.IsS3URI(cfg.Catalog.Path) {
			src, err := catalog.NewS3Source(ctx, cfg.Catalog.Path, catalog.S3Config{
				Region:       cfg.Catalog.S3.Region,
				Endpoint:     cfg.Catalog.S3.Endpoint,
				AccessKey:    cfg.Catalog.S3.AccessKey,
				SecretKey:    cfg.Catalog.S3.SecretKey,
				UsePathStyle: cfg.Catalog.S3.UsePathStyle,
			})
			if err != nil {
				return nil, nil, fmt.Errorf("catalog source: %w", err)
			}
			opts = append(opts, catalog.WithSource(src))
		} else {
			opts = append(opts, catalog.WithSource(catalog.NewFileSource(cfg.Catalog.Path)))
		}
	}

	var mirrors catalog.Mirrors
	if cfg.Catalog.MirrorPath != "" {
		mirrors = append(mirrors, catalog.NewFileMirror(cfg.Catalog.MirrorPath))
	}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("Redis mirror unreachable, continuing without it",
				zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = client.Close()
		} else {
			mirrors = append(mirrors, catalog.NewRedisMirror(client, cfg.Redis.Key))
			release = append(release, client.Close)
		}
	}
	if len(mirrors) > 0 {
		opts = append(opts, catalog.WithMirror(mirrors))
	}

	log.Info("Catalog cache configured",
		zap.String("mode", cfg.Catalog.Source),
		zap.String("path", cfg.Catalog.Path),
		zap.Int("mirrors", len(mirrors)),
	)
	return catalog.NewCache(mode, opts...), release, nil
}

func openJournal(cfg config.JournalConfig, log *zap.Logger) (*journal.GormRepository, closer, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}
	db, err := journal.Open(journal.Config{
		Driver:   cfg.Driver,
		DSN:      cfg.DSN,
		LogLevel: cfg.LogLevel,
	}, log.Named("journal"))
	if err != nil {
		return nil, nil, err
	}
	log.Info("Request journal opened", zap.String("driver", cfg.Driver))
	return journal.NewGormRepository(db.DB), closer{db.Close}, nil
}

// serviceConfig maps file and environment settings onto the engine's config
func serviceConfig(cfg *config.Config) (qbwc.Config, error) {
	version, err := qbxml.ParseVersion(cfg.QBWC.QBXMLVersion)
	if err != nil {
		return qbwc.Config{}, err
	}
	queryMode, err := qbxml.ParseQueryMode(cfg.Catalog.QueryMode)
	if err != nil {
		return qbwc.Config{}, err
	}

	return qbwc.Config{
		Username:          cfg.QBWC.Username,
		Password:          cfg.QBWC.Password,
		PasswordHash:      cfg.QBWC.PasswordHash,
		CompanyFile:       cfg.QBWC.CompanyFile,
		ServerVersion:     cfg.QBWC.ServerVersion,
		MinClientVersion:  cfg.QBWC.MinClientVersion,
		QBXMLVersion:      version,
		AdjustmentAccount: cfg.Sync.AdjustmentAccount,
		BatchSize:         cfg.Sync.BatchSize,
		AutoCreateItems:   cfg.Sync.AutoCreateItems,
		ItemAccounts: qbwc.ItemAccounts{
			Income: cfg.Sync.IncomeAccount,
			COGS:   cfg.Sync.COGSAccount,
			Asset:  cfg.Sync.AssetAccount,
		},
		PageSize:         cfg.Catalog.PageSize,
		QueryMode:        queryMode,
		FallbackHResults: cfg.Catalog.FallbackHResults,
		SessionTTL:       cfg.QBWC.SessionTTL,
	}, nil
}
