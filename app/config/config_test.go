package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinebay/offlinebay/app/job"
)

const workersYaml = `
workers:
  import:
    command: ["/usr/lib/offlinebay/import", "--batch", "1000"]
    dir: /var/lib/offlinebay
    env:
      OB_DB: /var/lib/offlinebay/dump.db
      LANG: C
  search:
    command: ["/usr/lib/offlinebay/search"]
  SCRAPE:
    command: ["/usr/lib/offlinebay/scrape"]
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "workers.yml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))
	return file
}

func TestLoader_Load(t *testing.T) {
	l := New(writeFile(t, workersYaml), time.Hour)
	f, err := l.Load()
	require.NoError(t, err)
	assert.Len(t, f.Workers, 3)
	assert.Equal(t, []job.Kind{job.KindImport, job.KindSearch, job.KindScrape}, f.Kinds())
	assert.Equal(t, []string{"update"}, f.Missing())

	spec, err := l.Command(job.KindImport)
	require.NoError(t, err)
	assert.Equal(t, job.Spec{
		Command: []string{"/usr/lib/offlinebay/import", "--batch", "1000"},
		Dir:     "/var/lib/offlinebay",
		Env:     []string{"LANG=C", "OB_DB=/var/lib/offlinebay/dump.db"},
	}, spec)

	spec, err = l.Command(job.KindScrape)
	require.NoError(t, err, "kind names are case insensitive")
	assert.Equal(t, []string{"/usr/lib/offlinebay/scrape"}, spec.Command)

	_, err = l.Command(job.KindUpdate)
	assert.EqualError(t, err, "update worker not defined in "+l.String())
}

func TestLoader_LoadErrors(t *testing.T) {
	_, err := New("/no/such/workers.yml", time.Hour).Load()
	assert.ErrorContains(t, err, "can't read workers file")

	_, err = New(writeFile(t, "workers: [bad"), time.Hour).Load()
	assert.ErrorContains(t, err, "can't parse workers file")

	l := New(writeFile(t, "workers:\n  index:\n    command: [x]\n"), time.Hour)
	_, err = l.Load()
	assert.ErrorContains(t, err, `worker "index": unknown job kind "index"`)
	_, err = l.Command(job.KindImport)
	assert.Error(t, err, "nothing loaded")
}

func TestVerify(t *testing.T) {
	tbl := []struct {
		name string
		file File
		err  string
	}{
		{name: "valid", file: File{Workers: map[string]Worker{"import": {Command: []string{"imp"}}}}},
		{name: "empty", file: File{}, err: "at least one worker is required"},
		{name: "no command", file: File{Workers: map[string]Worker{"search": {}}}, err: `worker "search": command is required`},
		{name: "blank command", file: File{Workers: map[string]Worker{"search": {Command: []string{" "}}}},
			err: `worker "search": command is required`},
		{name: "duplicate kind", file: File{Workers: map[string]Worker{
			"scrape": {Command: []string{"a"}}, "Scrape": {Command: []string{"b"}}}},
			err: `worker "scrape": scrape worker already defined as "Scrape"`},
		{name: "bad env", file: File{Workers: map[string]Worker{
			"update": {Command: []string{"upd"}, Env: map[string]string{"A=B": "c"}}}},
			err: `worker "update": invalid env name "A=B"`},
	}

	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.file)
			if tt.err == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.err)
		})
	}
}

func TestSchema(t *testing.T) {
	var embedded map[string]any
	require.NoError(t, json.Unmarshal(Schema(), &embedded))
	defs, ok := embedded["$defs"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, defs, "File")
	assert.Contains(t, defs, "Worker")

	generated := GenerateSchema()
	require.NotNil(t, generated)
	require.NotNil(t, generated.Definitions["Worker"])
	assert.Equal(t, []string{"command"}, generated.Definitions["Worker"].Required)
}

func TestLoader_Changes(t *testing.T) {
	file := writeFile(t, workersYaml)
	l := New(file, 50*time.Millisecond)
	_, err := l.Load()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := l.Changes(ctx)
	require.NoError(t, err)

	// broken content is skipped, the previous one stays
	require.NoError(t, os.WriteFile(file, []byte("workers: {}"), 0o600))
	past := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(file, past, past))
	time.Sleep(200 * time.Millisecond)
	_, err = l.Command(job.KindSearch)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(file, []byte("workers:\n  update:\n    command: [/bin/upd]\n"), 0o600))
	past = past.Add(-time.Minute)
	require.NoError(t, os.Chtimes(file, past, past))

	select {
	case f := <-ch:
		assert.Equal(t, []job.Kind{job.KindUpdate}, f.Kinds())
	case <-time.After(2 * time.Second):
		t.Fatal("no change detected")
	}
	spec, err := l.Command(job.KindUpdate)
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/upd"}, spec.Command)
	_, err = l.Command(job.KindSearch)
	assert.Error(t, err)

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, time.Second, 10*time.Millisecond)

	_, err = New("/no/such/file.yml", time.Second).Changes(ctx)
	assert.Error(t, err)
}
