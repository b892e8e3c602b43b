package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/podmatch/internal/config"
	"github.com/ignite/podmatch/internal/sheets"
)

func TestNew_WithoutBackendsLeavesComponentsNil(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Type = "local"
	cfg.Storage.LocalPath = t.TempDir()

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	d := a.Deps()
	assert.Nil(t, d.Backfill)
	assert.Nil(t, d.Scorer)
	assert.Nil(t, d.Cache)
	assert.Nil(t, d.Profiles)
	assert.Nil(t, d.Mailer)
	assert.Nil(t, d.Events)
	assert.NotNil(t, d.Runs)
	assert.Nil(t, a.Feeds)
}

func TestNew_RejectsBadRedisURL(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.LocalPath = t.TempDir()
	cfg.Redis.URL = "not a url"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestSheetsOptions_ReadMode(t *testing.T) {
	cfg := config.Default()
	opts, err := sheetsOptions(cfg.Sheets)
	require.NoError(t, err)
	assert.Equal(t, sheets.ReadCached, opts.ReadMode)
	assert.Equal(t, "Podcasts", opts.Tab)

	cfg.Sheets.ReadMode = "cache_only"
	opts, err = sheetsOptions(cfg.Sheets)
	require.NoError(t, err)
	assert.Equal(t, sheets.ReadCacheOnly, opts.ReadMode)

	cfg.Sheets.ReadMode = "fresh"
	opts, err = sheetsOptions(cfg.Sheets)
	require.NoError(t, err)
	assert.Equal(t, sheets.ReadFresh, opts.ReadMode)

	cfg.Sheets.ReadMode = "never"
	_, err = sheetsOptions(cfg.Sheets)
	assert.Error(t, err)
}
