package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/application/qbwc"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/catalog"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/config"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/qbxml"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{Host: "0.0.0.0", Port: 8085},
		QBWC: config.QBWCConfig{
			Username:      "qbuser",
			Password:      "secret",
			CompanyFile:   `C:\Company\190.QBW`,
			ServerVersion: "190Group-QBWC-0.1.0",
			QBXMLVersion:  "13.0",
			SessionTTL:    30 * time.Minute,
		},
		Sync: config.SyncConfig{
			AdjustmentAccount: "Inventory Adjustments",
			BatchSize:         10,
			AutoCreateItems:   true,
			IncomeAccount:     "Sales:Retail",
			COGSAccount:       "Cost of Goods Sold",
			AssetAccount:      "Inventory Asset",
		},
		Catalog: config.CatalogConfig{
			Source:           "snapshot",
			Path:             filepath.Join(dir, "items.csv"),
			PageSize:         500,
			QueryMode:        "compat",
			FallbackHResults: []string{"0x80040400"},
		},
		Journal: config.JournalConfig{Driver: "sqlite", DSN: filepath.Join(dir, "journal.db")},
		QWC: config.QWCConfig{
			AppName:         "190 Group QB Sync",
			OwnerID:         "{57F3B9B1-86F1-4fcc-B1EE-566DE1813D20}",
			RunEveryMinutes: 15,
			Output:          filepath.Join(dir, "sync.qwc"),
		},
	}
}

func TestServiceConfig(t *testing.T) {
	cfg := testConfig(t)

	got, err := serviceConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, qbxml.Version{Major: 13, Minor: 0}, got.QBXMLVersion)
	assert.Equal(t, qbxml.QueryModeCompat, got.QueryMode)
	assert.Equal(t, "qbuser", got.Username)
	assert.Equal(t, `C:\Company\190.QBW`, got.CompanyFile)
	assert.Equal(t, 10, got.BatchSize)
	assert.Equal(t, 500, got.PageSize)
	assert.True(t, got.AutoCreateItems)
	assert.Equal(t, qbwc.ItemAccounts{Income: "Sales:Retail", COGS: "Cost of Goods Sold", Asset: "Inventory Asset"}, got.ItemAccounts)
	assert.Equal(t, []string{"0x80040400"}, got.FallbackHResults)
	assert.Equal(t, 30*time.Minute, got.SessionTTL)
}

func TestServiceConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "qbxml version", mutate: func(c *config.Config) { c.QBWC.QBXMLVersion = "thirteen" }},
		{name: "query mode", mutate: func(c *config.Config) { c.Catalog.QueryMode = "sideways" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			_, err := serviceConfig(cfg)
			require.Error(t, err)
		})
	}
}

func TestCloser_ReleasesInReverseOrder(t *testing.T) {
	var order []string
	c := closer{
		func() error { order = append(order, "first"); return nil },
		func() error { order = append(order, "second"); return errors.New("boom") },
	}
	c.Close(zap.NewNop())
	assert.Equal(t, []string{"second", "first"}, order)

	var empty closer
	assert.NotPanics(t, func() { empty.Close(zap.NewNop()) })
}

func TestNewCatalogCache(t *testing.T) {
	t.Run("snapshot file", func(t *testing.T) {
		cfg := testConfig(t)
		require.NoError(t, os.WriteFile(cfg.Catalog.Path, []byte("Type,Sku\nInventory Part,POT-9\nService,Labor\n"), 0o600))

		cache, release, err := newCatalogCache(t.Context(), cfg, zap.NewNop())
		require.NoError(t, err)
		defer release.Close(zap.NewNop())

		assert.Equal(t, catalog.ModeSnapshot, cache.Mode())
		keys, err := cache.EnsureReady(t.Context())
		require.NoError(t, err)
		assert.True(t, keys.Has("POT-9"))
		assert.False(t, keys.Has("Labor"))
	})

	t.Run("live mode starts empty", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Catalog.Source = "live"
		cfg.Catalog.MirrorPath = filepath.Join(t.TempDir(), "mirror.csv")

		cache, _, err := newCatalogCache(t.Context(), cfg, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, catalog.ModeLive, cache.Mode())
		_, err = cache.EnsureReady(t.Context())
		assert.ErrorIs(t, err, catalog.ErrCacheUnavailable)
	})

	t.Run("unknown mode", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Catalog.Source = "ftp"
		_, _, err := newCatalogCache(t.Context(), cfg, zap.NewNop())
		require.Error(t, err)
	})
}

func TestOpenJournal(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		repo, release, err := openJournal(config.JournalConfig{}, zap.NewNop())
		require.NoError(t, err)
		assert.Nil(t, repo)
		assert.Empty(t, release)
	})

	t.Run("sqlite file", func(t *testing.T) {
		cfg := testConfig(t).Journal
		cfg.Enabled = true
		repo, release, err := openJournal(cfg, zap.NewNop())
		require.NoError(t, err)
		defer release.Close(zap.NewNop())
		assert.NotNil(t, repo)
	})
}

func TestNewLedgerClient(t *testing.T) {
	for _, transport := range []string{"cli", "http"} {
		t.Run(transport, func(t *testing.T) {
			client := newLedgerClient(config.LedgerConfig{
				Transport: transport,
				Command:   "npx",
				BaseURL:   "https://ledger.example.test",
				Timeout:   time.Second,
			}, zap.NewNop())
			assert.NotNil(t, client)
		})
	}
}

func TestCatalogCommand(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Catalog.Path, []byte("Type,Sku\nInventory Part,POT-9\nInventory Part,MIX-40\n"), 0o600))

	cmd := NewCatalogCommand(&RootOptions{cfg: cfg, log: zap.NewNop()})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--sample", "5"})
	require.NoError(t, cmd.ExecuteContext(t.Context()))

	var status catalog.Status
	require.NoError(t, json.Unmarshal(out.Bytes(), &status))
	assert.True(t, status.Ready)
	assert.Equal(t, 2, status.ItemCount)
	assert.Equal(t, []string{"MIX-40", "POT-9"}, status.Items)
}

func TestQWCCommand(t *testing.T) {
	t.Run("stdout defaults the app url", func(t *testing.T) {
		cfg := testConfig(t)
		cmd := NewQWCCommand(&RootOptions{cfg: cfg, log: zap.NewNop()})
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--stdout"})
		require.NoError(t, cmd.ExecuteContext(t.Context()))

		assert.Contains(t, out.String(), "<AppURL>http://localhost:8085/qbwc</AppURL>")
		assert.Contains(t, out.String(), "<UserName>qbuser</UserName>")
	})

	t.Run("writes the configured file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.QWC.AppURL = "https://sync.example.test/qbwc"
		cmd := NewQWCCommand(&RootOptions{cfg: cfg, log: zap.NewNop()})
		cmd.SetArgs([]string{})
		require.NoError(t, cmd.ExecuteContext(t.Context()))

		data, err := os.ReadFile(cfg.QWC.Output)
		require.NoError(t, err)
		assert.Contains(t, string(data), "<AppURL>https://sync.example.test/qbwc</AppURL>")
	})
}

func TestVersionCommand(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "qbsync dev (none) "))
}
