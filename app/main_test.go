package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/offlinebay/offlinebay/app/notify"
	"github.com/offlinebay/offlinebay/app/prefs"
)

func Test_makeHostName(t *testing.T) {
	opts.Notify.HostName = "test"
	assert.Equal(t, "test", makeHostName())

	opts.Notify.HostName = ""
	exp, err := os.Hostname()
	require.NoError(t, err)
	assert.Equal(t, exp, makeHostName())
}

func Test_makeRelay(t *testing.T) {
	opts.Notify.Webhook = ""
	assert.Nil(t, makeRelay(), "no webhook, no relay")

	opts.Notify.Webhook = "http://127.0.0.1:8080/hook"
	opts.Notify.HostName = "box"
	relay := makeRelay()
	require.NotNil(t, relay)
	r, ok := relay.(*notify.Relay)
	require.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:8080/hook", r.Destination)
	assert.Equal(t, "box", r.HostName)
	opts.Notify.Webhook, opts.Notify.HostName = "", ""
}

func Test_makeRemote(t *testing.T) {
	opts.Update.Timeout = 5 * time.Second
	opts.Update.Attempts = 2
	c := makeRemote()
	require.NotNil(t, c.HTTP)
	assert.Equal(t, 5*time.Second, c.HTTP.Timeout)
	assert.NotNil(t, c.Repeater)
}

func Test_setupLogsWithLogsDisabled(t *testing.T) {
	opts.Log.Enabled = false
	assert.Equal(t, os.Stdout, setupLogs())
}

func Test_setupLogsToFile(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	opts.Log.Enabled = true
	opts.Log.Filename = tmpfile.Name()
	opts.Log.MaxSize = 100
	opts.Log.MaxBackups = 7
	opts.Log.MaxAge = 0
	opts.Log.EnabledCompress = false
	defer func() { opts.Log.Enabled, opts.Log.Filename = false, "" }()

	out := setupLogs()
	assert.IsType(t, &lumberjack.Logger{}, out)

	logger := out.(*lumberjack.Logger)
	assert.Equal(t, tmpfile.Name(), logger.Filename)
	assert.Equal(t, 100, logger.MaxSize)
	assert.Equal(t, 7, logger.MaxBackups)
	assert.Equal(t, 0, logger.MaxAge)
	assert.False(t, logger.Compress)
}

func Test_runStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	workers := filepath.Join(dir, "workers.yml")
	require.NoError(t, os.WriteFile(workers, []byte("workers:\n  search:\n    command: [\"/bin/true\"]\n"), 0o600))

	opts.DB = filepath.Join(dir, "offlinebay.db")
	opts.Workers = workers
	opts.WorkersUpdate = 0
	opts.Dumps = dir
	opts.Web.Address = "127.0.0.1:0"
	opts.Web.Backlog = 10
	opts.Update.Schedule = "@every 1h"
	opts.Update.Timeout = time.Second
	opts.Update.Attempts = 1

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, os.Stdout) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop")
	}

	// preferences flushed on the way out
	store, err := prefs.NewSQLiteStore(opts.DB)
	require.NoError(t, err)
	defer store.Close()
	fields, err := store.Load(context.Background(), prefs.CategorySearch)
	require.NoError(t, err)
	assert.NotEmpty(t, fields)
}

func Test_runFailsWithoutWorkers(t *testing.T) {
	dir := t.TempDir()
	opts.DB = filepath.Join(dir, "offlinebay.db")
	opts.Workers = filepath.Join(dir, "missing.yml")
	err := run(context.Background(), os.Stdout)
	require.Error(t, err)
}
