// Package web implements http and websocket bridge between the UI and the supervisor
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/didip/tollbooth/v8/limiter"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"
	"github.com/gorilla/websocket"

	"github.com/offlinebay/offlinebay/app/job"
	"github.com/offlinebay/offlinebay/app/supervisor"
)

// Supervisor defines what the bridge needs from the supervisor
type Supervisor interface {
	Dispatch(cmd supervisor.Command) error
	Jobs() []supervisor.Slot
	Phase() supervisor.Phase
}

// Config defines web server parameters
type Config struct {
	Hub          *Hub
	Supervisor   Supervisor
	Version      string
	PasswordHash string  // bcrypt hash for basic auth, empty disables auth
	CommandRate  float64 // commands per second allowed from a single ip
	AllowOrigin  string  // websocket origin allowed in addition to same host, "*" allows any
	Stats        func(pid int) (job.Stats, error)
}

// Server is the UI bridge
type Server struct {
	hub          *Hub
	sup          Supervisor
	version      string
	passwordHash string
	commandRate  float64
	stats        func(pid int) (job.Stats, error)
	upgrader     websocket.Upgrader
}

// New makes web server
func New(cfg Config) (*Server, error) {
	if cfg.Hub == nil || cfg.Supervisor == nil {
		return nil, errors.New("web server initialization failed: hub and supervisor are required")
	}
	if cfg.CommandRate <= 0 {
		cfg.CommandRate = 10
	}
	if cfg.Stats == nil {
		cfg.Stats = job.ProcessStats
	}
	s := &Server{
		hub:          cfg.Hub,
		sup:          cfg.Supervisor,
		version:      cfg.Version,
		passwordHash: cfg.PasswordHash,
		commandRate:  cfg.CommandRate,
		stats:        cfg.Stats,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin(cfg.AllowOrigin),
	}
	return s, nil
}

// Run starts the web server and blocks until ctx is done
func (s *Server) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.hub.Close() // hijacked websocket connections are not closed by Shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown server: %v", err)
		}
	}()

	log.Printf("[INFO] starting web server on %s", address)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// routes returns the http.Handler with all routes configured
func (s *Server) routes() http.Handler {
	router := routegroup.New(http.NewServeMux())

	router.Use(
		rest.RealIP,
		rest.Recoverer(log.Default()),
		rest.Throttle(1000),
		rest.AppInfo("offlinebay", "offlinebay", s.version),
		rest.Ping,
		rest.SizeLimit(64*1024),
	)

	if s.passwordHash != "" {
		log.Printf("[INFO] authentication enabled for ui bridge")
		router.Use(s.authMiddleware)
	}

	reqLogger := logger.New(logger.Log(log.Default()), logger.Prefix("[DEBUG]")).Handler
	router.Mount("/api/v1").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache)
		// websocket handler needs the raw ResponseWriter for hijacking, no request logger here
		api.HandleFunc("GET /events", s.handleEvents)
		api.With(reqLogger, tollbooth.HTTPMiddleware(s.commandLimiter())).HandleFunc("POST /command", s.handleCommand)
		api.With(reqLogger).HandleFunc("GET /jobs", s.handleJobs)
	})

	return router
}

func (s *Server) commandLimiter() *limiter.Limiter {
	lmt := tollbooth.NewLimiter(s.commandRate, &limiter.ExpirableOptions{DefaultExpirationTTL: time.Hour})
	lmt.SetBurst(max(1, int(s.commandRate)))
	lmt.SetIPLookup(limiter.IPLookup{Name: "RemoteAddr", IndexFromRight: 0})
	lmt.SetMessage(`{"error":"too many commands"}`)
	lmt.SetMessageContentType("application/json")
	return lmt
}

// checkOrigin allows same host origin, configured origin and clients without origin header
func (s *Server) checkOrigin(allowed string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed == "*" || origin == allowed {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}
