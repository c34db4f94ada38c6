// Package config loads worker definitions from a yaml file and watches it for changes.
// Worker commands are resolved at spawn time, so an edited file applies to the next spawn.
package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"
	"gopkg.in/yaml.v3"

	"github.com/offlinebay/offlinebay/app/job"
)

// File is the workers file content
type File struct {
	Workers map[string]Worker `yaml:"workers" json:"workers" jsonschema:"required,description=worker definition per job kind (import\\, search\\, scrape\\, update)"`
}

// Worker defines how to start a worker of some kind
type Worker struct {
	Command []string          `yaml:"command" json:"command" jsonschema:"required,minItems=1,description=executable and its arguments\\, spawn args are appended"`
	Dir     string            `yaml:"dir,omitempty" json:"dir,omitempty" jsonschema:"description=working directory"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty" jsonschema:"description=environment added to the parent one"`
}

// Loader reads the workers file, thread safe
type Loader struct {
	file        string
	updInterval time.Duration

	lock    sync.RWMutex
	current File
}

// New makes Loader for file, doesn't read it yet
func New(file string, updInterval time.Duration) *Loader {
	log.Printf("[INFO] workers file %s, check for updates every %v", file, updInterval)
	return &Loader{file: file, updInterval: updInterval}
}

func (l *Loader) String() string { return l.file }

// Load reads and verifies the file. Verified content becomes current.
func (l *Loader) Load() (File, error) {
	data, err := os.ReadFile(l.file)
	if err != nil {
		return File{}, fmt.Errorf("can't read workers file %s: %w", l.file, err)
	}
	var f File
	if err = yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("can't parse workers file %s: %w", l.file, err)
	}
	if err = Verify(f); err != nil {
		return File{}, fmt.Errorf("invalid workers file %s: %w", l.file, err)
	}
	l.lock.Lock()
	l.current = f
	l.lock.Unlock()
	return f, nil
}

// Command returns spec of the kind's worker from the current content
func (l *Loader) Command(kind job.Kind) (job.Spec, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	for name, w := range l.current.Workers {
		k, err := job.ParseKind(name)
		if err != nil || k != kind {
			continue
		}
		return w.Spec(), nil
	}
	return job.Spec{}, fmt.Errorf("%s worker not defined in %s", kind, l.file)
}

// Spec converts worker definition to job.Spec with env as sorted KEY=VALUE pairs
func (w Worker) Spec() job.Spec {
	res := job.Spec{Command: append([]string{}, w.Command...), Dir: w.Dir}
	for k, v := range w.Env {
		res.Env = append(res.Env, k+"="+v)
	}
	sort.Strings(res.Env)
	return res
}

// Changes reloads the file each time its modification time changed and sends the new content.
// A change has to be at least half of the interval old, so intermediate saves are skipped.
// Broken content is logged and the previous one stays current.
func (l *Loader) Changes(ctx context.Context) (<-chan File, error) {
	mtime := func() (time.Time, error) {
		st, err := os.Stat(l.file)
		if err != nil {
			return time.Time{}, fmt.Errorf("can't stat workers file %s: %w", l.file, err)
		}
		return st.ModTime(), nil
	}

	lastMtime, err := mtime()
	if err != nil {
		return nil, err
	}

	ch := make(chan File)
	go func() {
		ticker := time.NewTicker(l.updInterval)
		defer ticker.Stop()
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m, err := mtime()
				if err != nil {
					log.Printf("[WARN] %v", err)
					continue
				}
				if m.Equal(lastMtime) || time.Since(m) < l.updInterval/2 {
					continue
				}
				lastMtime = m
				f, err := l.Load()
				if err != nil {
					log.Printf("[WARN] workers file not reloaded, %v", err)
					continue
				}
				log.Printf("[INFO] workers file %s reloaded, %d workers", l.file, len(f.Workers))
				select {
				case ch <- f:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// Kinds lists job kinds defined in f, sorted
func (f File) Kinds() []job.Kind {
	res := []job.Kind{}
	for name := range f.Workers {
		if k, err := job.ParseKind(name); err == nil {
			res = append(res, k)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// Missing lists job kinds without a worker, such requests will fail on spawn
func (f File) Missing() []string {
	defined := map[job.Kind]bool{}
	for _, k := range f.Kinds() {
		defined[k] = true
	}
	res := []string{}
	for _, k := range job.Kinds() {
		if !defined[k] {
			res = append(res, k.String())
		}
	}
	return res
}
