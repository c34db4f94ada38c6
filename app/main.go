package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/go-pkgz/syncs"
	"github.com/robfig/cron/v3"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/offlinebay/offlinebay/app/config"
	"github.com/offlinebay/offlinebay/app/job"
	"github.com/offlinebay/offlinebay/app/notify"
	"github.com/offlinebay/offlinebay/app/picker"
	"github.com/offlinebay/offlinebay/app/prefs"
	"github.com/offlinebay/offlinebay/app/remote"
	"github.com/offlinebay/offlinebay/app/schedule"
	"github.com/offlinebay/offlinebay/app/supervisor"
	"github.com/offlinebay/offlinebay/app/web"
)

var opts struct {
	DB            string        `long:"db" env:"OFFLINEBAY_DB" default:"offlinebay.db" description:"preferences database file"`
	Workers       string        `short:"w" long:"workers" env:"OFFLINEBAY_WORKERS" default:"workers.yml" description:"workers definition file"`
	WorkersUpdate time.Duration `long:"workers-update" env:"OFFLINEBAY_WORKERS_UPDATE" default:"10s" description:"workers file check interval, 0 disables"`
	Dumps         string        `long:"dumps" env:"OFFLINEBAY_DUMPS" description:"directory with dump files to import"`
	KillTimeout   time.Duration `long:"kill-timeout" env:"OFFLINEBAY_KILL_TIMEOUT" default:"10s" description:"grace period before killing terminated worker, 0 disables"`
	MaxLogLines   int           `long:"max-log" env:"OFFLINEBAY_MAX_LOG" default:"100" description:"worker output lines kept for exit report"`
	DumpSchema    bool          `long:"dump-schema" description:"print workers file json schema and exit"`
	Dbg           bool          `long:"dbg" env:"OFFLINEBAY_DEBUG" description:"debug mode"`

	Web struct {
		Address     string  `long:"address" env:"ADDRESS" default:"127.0.0.1:8085" description:"ui bridge listen address"`
		AuthHash    string  `long:"auth-hash" env:"AUTH_HASH" description:"bcrypt hash of ui bridge password"`
		AllowOrigin string  `long:"allow-origin" env:"ALLOW_ORIGIN" description:"websocket origin allowed besides same host"`
		CommandRate float64 `long:"command-rate" env:"COMMAND_RATE" default:"10" description:"commands per second per client ip"`
		Backlog     int     `long:"backlog" env:"BACKLOG" default:"100" description:"events kept while no ui connected"`
	} `group:"web" namespace:"web" env-namespace:"OFFLINEBAY_WEB"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"enable logging"`
		Filename        string `long:"filename" env:"FILENAME" description:"file to write logs to, stdout if empty"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"max log file size in megabytes"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"max number of rotated files"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"max days to keep rotated files, 0 keeps all"`
		EnabledCompress bool   `long:"enabled-compress" env:"ENABLED_COMPRESS" description:"compress rotated files"`
	} `group:"log" namespace:"log" env-namespace:"OFFLINEBAY_LOG"`

	Update struct {
		Schedule string        `long:"schedule" env:"SCHEDULE" default:"@every 6h" description:"dump update check schedule"`
		Timeout  time.Duration `long:"timeout" env:"TIMEOUT" default:"30s" description:"http timeout of update and trackers requests"`
		Attempts int           `long:"attempts" env:"ATTEMPTS" default:"1" description:"how many times to try a failed request"`
		Duration time.Duration `long:"duration" env:"DURATION" default:"1s" description:"initial retry delay"`
		Factor   float64       `long:"factor" env:"FACTOR" default:"3" description:"retry backoff factor"`
	} `group:"update" namespace:"update" env-namespace:"OFFLINEBAY_UPDATE"`

	Notify struct {
		Webhook  string        `long:"webhook" env:"WEBHOOK" description:"webhook url for danger notifications"`
		Timeout  time.Duration `long:"timeout" env:"TIMEOUT" default:"10s" description:"webhook timeout"`
		HostName string        `long:"host" env:"HOSTNAME" description:"host name reported in relayed notifications"`
	} `group:"notify" namespace:"notify" env-namespace:"OFFLINEBAY_NOTIFY"`
}

var revision = "unknown"

func main() {
	fmt.Printf("offlinebay %s\n", revision)

	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(2)
	}
	if opts.DumpSchema {
		_, _ = os.Stdout.Write(config.Schema())
		return
	}
	logWriter := setupLogs()

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	signals(cancel) // handle SIGQUIT, SIGTERM and SIGINT
	if err := run(ctx, logWriter); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

// run wires everything and blocks until the supervisor terminated
func run(ctx context.Context, logWriter io.Writer) error {
	store, err := prefs.NewSQLiteStore(opts.DB)
	if err != nil {
		return fmt.Errorf("can't open preferences: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("[WARN] can't close preferences store, %v", err)
		}
	}()
	preferences, loadErr := prefs.Load(ctx, store)

	loader := config.New(opts.Workers, opts.WorkersUpdate)
	workers, err := loader.Load()
	if err != nil {
		return err
	}
	if missing := workers.Missing(); len(missing) > 0 {
		log.Printf("[WARN] no workers defined for %v, such requests will fail", missing)
	}

	hub := web.NewHub(opts.Web.Backlog)
	sup := supervisor.New(supervisor.Opts{
		Spawner: &job.ProcSpawner{
			Commands:    loader,
			KillTimeout: opts.KillTimeout,
			LogWriter:   logWriter,
			MaxLogLines: opts.MaxLogLines,
		},
		UI:      hub,
		Store:   store,
		Prefs:   preferences,
		LoadErr: loadErr,
		Picker:  picker.Newest{Dir: opts.Dumps},
		Remote:  makeRemote(),
		Relay:   makeRelay(),
	})

	srv, err := web.New(web.Config{
		Hub:          hub,
		Supervisor:   sup,
		Version:      revision,
		PasswordHash: opts.Web.AuthHash,
		CommandRate:  opts.Web.CommandRate,
		AllowOrigin:  opts.Web.AllowOrigin,
	})
	if err != nil {
		return err
	}

	// services live until the supervisor finished, not until the signal
	svcCtx, svcCancel := context.WithCancel(context.Background())
	gr := syncs.NewSizedGroup(3, syncs.Context(svcCtx))
	gr.Go(func(ctx context.Context) {
		if err := srv.Run(ctx, opts.Web.Address); err != nil {
			log.Printf("[ERROR] %v", err)
		}
	})
	gr.Go(func(ctx context.Context) {
		updater := schedule.Updater{Cron: cron.New(), Spec: opts.Update.Schedule, Dispatcher: sup}
		if err := updater.Run(ctx); err != nil {
			log.Printf("[WARN] update checks disabled, %v", err)
		}
	})
	if opts.WorkersUpdate > 0 {
		gr.Go(func(ctx context.Context) {
			ch, err := loader.Changes(ctx)
			if err != nil {
				log.Printf("[WARN] workers file updates disabled, %v", err)
				return
			}
			for f := range ch {
				log.Printf("[DEBUG] workers updated, %v", f.Kinds())
			}
		})
	}

	err = sup.Run(ctx)
	svcCancel()
	gr.Wait()
	return err
}

func makeRemote() *remote.Client {
	rptr := repeater.New(&strategy.Backoff{
		Repeats:  opts.Update.Attempts,
		Duration: opts.Update.Duration,
		Factor:   opts.Update.Factor,
		Jitter:   true,
	})
	return &remote.Client{HTTP: &http.Client{Timeout: opts.Update.Timeout}, Repeater: rptr}
}

func makeRelay() supervisor.Relay {
	if opts.Notify.Webhook == "" {
		return nil
	}
	return notify.NewWebhookRelay(opts.Notify.Webhook, makeHostName(), opts.Notify.Timeout)
}

func makeHostName() string {
	if opts.Notify.HostName != "" {
		return opts.Notify.HostName
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

// setupLogs configures lgr and returns the writer worker output goes to
func setupLogs() io.Writer {
	if !opts.Log.Enabled {
		log.Setup(log.Out(io.Discard), log.Err(io.Discard))
		return os.Stdout
	}

	var out io.Writer = os.Stdout
	if opts.Log.Filename != "" {
		out = &lumberjack.Logger{
			Filename:   opts.Log.Filename,
			MaxSize:    opts.Log.MaxSize,
			MaxBackups: opts.Log.MaxBackups,
			MaxAge:     opts.Log.MaxAge,
			Compress:   opts.Log.EnabledCompress,
		}
	}

	if opts.Dbg {
		log.Setup(log.Out(out), log.Err(out), log.Debug, log.Msec, log.CallerFunc, log.CallerPkg, log.CallerFile)
		return out
	}
	log.Setup(log.Out(out), log.Err(out), log.Msec, log.LevelBraces)
	return out
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			log.Printf("[INFO] %v received", sig)
			cancel() // shutdown on SIGTERM and SIGINT, repeated signals are no-op
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
}
