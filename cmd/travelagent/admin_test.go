package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sehgal-vip/travel-agent/handler"
	"github.com/sehgal-vip/travel-agent/memory"
	"github.com/sehgal-vip/travel-agent/pkg/logging"
)

func staleManager(t *testing.T) *memory.Manager {
	t.Helper()
	ctx := context.Background()
	m := memory.NewManager(t.TempDir(), memory.WithLogger(logging.Discard()))
	for _, id := range []string{"idle", "active"} {
		_, err := m.Persist(ctx, id, handler.Cost, id)
		require.NoError(t, err)
	}
	old := time.Now().Add(-200 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(m.BaseDir(), "idle", handler.Cost+".md"), old, old))
	return m
}

func TestCleanupDryRunListsCandidates(t *testing.T) {
	m := staleManager(t)
	var out bytes.Buffer

	require.NoError(t, runCleanup(context.Background(), &out, m, 90*24*time.Hour, true))
	var got struct {
		DataDir     string   `json:"data_dir"`
		MaxAge      string   `json:"max_age"`
		WouldRemove []string `json:"would_remove"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, m.BaseDir(), got.DataDir)
	assert.Equal(t, "2160h0m0s", got.MaxAge)
	assert.Equal(t, []string{"idle"}, got.WouldRemove)

	_, err := os.Stat(filepath.Join(m.BaseDir(), "idle"))
	assert.NoError(t, err)
}

func TestCleanupRemovesStale(t *testing.T) {
	m := staleManager(t)
	var out bytes.Buffer

	require.NoError(t, runCleanup(context.Background(), &out, m, 90*24*time.Hour, false))
	assert.Equal(t, "removed idle\n1 conversation(s) cleaned up\n", out.String())
	_, err := os.Stat(filepath.Join(m.BaseDir(), "idle"))
	assert.True(t, os.IsNotExist(err))
}
