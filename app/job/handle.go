package job

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"
)

const (
	maxMessageSize = 4 * 1024 * 1024
	waitDelay      = 2 * time.Second // stderr kept open by a leftover child is closed after this
)

// Handle is a running worker owned by the supervisor's registry
type Handle interface {
	ID() string
	Kind() Kind
	Args() []string
	PID() int
	StartedAt() time.Time
	Terminate() error
}

// Spec describes how to start a worker of some kind
type Spec struct {
	Command []string
	Dir     string
	Env     []string // KEY=VALUE pairs added to the parent environment
}

// CommandProvider returns the current worker spec for a kind
type CommandProvider interface {
	Command(kind Kind) (Spec, error)
}

// ProcSpawner starts workers as child processes. Spawn args are appended to the configured command.
// Worker stdout carries wire messages, stderr is copied to LogWriter with "{kind}" prefix.
type ProcSpawner struct {
	Commands    CommandProvider
	KillTimeout time.Duration // grace period after terminate before SIGKILL, 0 disables escalation
	LogWriter   io.Writer
	MaxLogLines int // stderr lines kept for the exit report
}

// Spawn starts a worker and returns its handle. All events of the worker go to sink,
// with the exit event sent exactly once and last.
func (p *ProcSpawner) Spawn(kind Kind, args []string, sink chan<- Event) (Handle, error) {
	spec, err := p.Commands.Command(kind)
	if err != nil {
		return nil, fmt.Errorf("no command for %s worker: %w", kind, err)
	}
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("empty command for %s worker", kind)
	}

	cmdArgs := append(append([]string{}, spec.Command[1:]...), args...)
	cmd := exec.Command(spec.Command[0], cmdArgs...) // nolint gosec
	cmd.Dir = spec.Dir
	cmd.WaitDelay = waitDelay
	isolate(cmd)
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	logWriter := p.LogWriter
	if logWriter == nil {
		logWriter = os.Stderr
	}
	prefixer := NewLogPrefixer(logWriter, kind)
	tail := NewStderrTail(p.MaxLogLines)
	cmd.Stderr = io.MultiWriter(tail, prefixer)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("can't make stdout pipe for %s worker: %w", kind, err)
	}
	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("can't start %s worker: %w", kind, err)
	}

	proc := &Process{
		id:          uuid.NewString(),
		kind:        kind,
		args:        append([]string{}, args...),
		cmd:         cmd,
		startedAt:   time.Now(),
		killTimeout: p.KillTimeout,
		stdout:      stdout,
		exited:      make(chan struct{}),
	}
	log.Printf("[INFO] %s worker started, pid %d, args %q", kind, cmd.Process.Pid, args)

	go proc.watch(stdout, sink, prefixer, tail)
	return proc, nil
}

// Process is a Handle backed by os/exec
type Process struct {
	id          string
	kind        Kind
	args        []string
	cmd         *exec.Cmd
	startedAt   time.Time
	killTimeout time.Duration
	stdout      io.Closer

	exited    chan struct{}
	termOnce  sync.Once
	timerLock sync.Mutex
	killTimer *time.Timer
}

// ID returns unique handle id
func (p *Process) ID() string { return p.id }

// Kind returns worker kind
func (p *Process) Kind() Kind { return p.kind }

// Args returns spawn arguments
func (p *Process) Args() []string { return append([]string{}, p.args...) }

// PID returns os process id
func (p *Process) PID() int { return p.cmd.Process.Pid }

// StartedAt returns spawn time
func (p *Process) StartedAt() time.Time { return p.startedAt }

// Terminate asks worker and its children to stop with SIGINT. With KillTimeout set, a worker still
// alive after the grace period gets its process group killed. Safe to call many times and after exit.
func (p *Process) Terminate() error {
	select {
	case <-p.exited:
		return nil
	default:
	}

	var err error
	p.termOnce.Do(func() {
		log.Printf("[DEBUG] terminate %s worker, pid %d", p.kind, p.PID())
		if err = signalGroup(p.cmd.Process, syscall.SIGINT); err != nil {
			if errors.Is(err, os.ErrProcessDone) {
				err = nil
				return
			}
			err = fmt.Errorf("can't interrupt %s worker: %w", p.kind, err)
			return
		}
		if p.killTimeout > 0 {
			p.timerLock.Lock()
			p.killTimer = time.AfterFunc(p.killTimeout, p.kill)
			p.timerLock.Unlock()
		}
	})
	return err
}

func (p *Process) kill() {
	select {
	case <-p.exited:
		return
	default:
	}
	log.Printf("[WARN] %s worker, pid %d, still running %v after interrupt, killing", p.kind, p.PID(), p.killTimeout)
	if err := signalGroup(p.cmd.Process, syscall.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
		log.Printf("[WARN] can't kill %s worker: %v", p.kind, err)
	}

	// a child which left the group may still hold stdout, stop reading it after one more grace period
	p.timerLock.Lock()
	p.killTimer = time.AfterFunc(p.killTimeout, func() {
		select {
		case <-p.exited:
			return
		default:
		}
		log.Printf("[WARN] %s worker, pid %d, output still open after kill, detaching", p.kind, p.PID())
		_ = p.stdout.Close()
	})
	p.timerLock.Unlock()
}

// watch reads worker messages until stdout closes, then waits for the process and reports exit
func (p *Process) watch(stdout io.Reader, sink chan<- Event, prefixer *LogPrefixer, stderr *StderrTail) {
	err := readLines(stdout, maxMessageSize, func(line []byte) {
		msg, err := Decode(line)
		if err != nil {
			log.Printf("[DEBUG] %s worker, skip output %q: %v", p.kind, string(line), err)
			return
		}
		sink <- Event{Kind: p.kind, HandleID: p.id, Type: EventMessage, Message: msg}
	}, func(size int) {
		log.Printf("[WARN] %s worker, skip output line longer than %d bytes (%d)", p.kind, maxMessageSize, size)
	})
	if err != nil {
		log.Printf("[WARN] %s worker, stdout read failed: %v", p.kind, err)
	}

	waitErr := p.cmd.Wait()
	close(p.exited)
	p.timerLock.Lock()
	if p.killTimer != nil {
		p.killTimer.Stop()
	}
	p.timerLock.Unlock()

	if err := prefixer.Flush(); err != nil {
		log.Printf("[DEBUG] %s worker, can't flush log: %v", p.kind, err)
	}
	exitCode := p.cmd.ProcessState.ExitCode()
	if tail := stderr.String(); tail != "" && exitCode != 0 {
		log.Printf("[DEBUG] %s worker exited with %d, last output:\n%s", p.kind, exitCode, tail)
	}
	sink <- Event{Kind: p.kind, HandleID: p.id, Type: EventExit, ExitCode: exitCode, Err: waitErr}
}

// readLines calls fn for every non-empty line of r without the line break. Lines longer than limit
// are reported to skip with their size and dropped, reading goes on with the next line.
func readLines(r io.Reader, limit int, fn func(line []byte), skip func(size int)) error {
	br := bufio.NewReaderSize(r, 64*1024)
	line := make([]byte, 0, 64*1024)
	size := 0
	for {
		chunk, err := br.ReadSlice('\n')
		size += len(chunk)
		if size <= limit+1 { // +1 for the line break
			line = append(line, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		switch trimmed := bytes.TrimRight(line, "\r\n"); {
		case size > limit+1:
			skip(size)
		case len(trimmed) > 0:
			fn(trimmed)
		}
		line, size = line[:0], 0

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
