package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/gorilla/websocket"

	"github.com/offlinebay/offlinebay/app/supervisor"
)

// APIJobsResponse is the JSON response for /api/v1/jobs
type APIJobsResponse struct {
	Jobs      []APIJob  `json:"jobs"`
	Phase     string    `json:"phase"`
	Clients   int       `json:"clients"`
	Timestamp time.Time `json:"timestamp"`
}

// APIJob represents a running worker in JSON API response
type APIJob struct {
	Kind       string    `json:"kind"`
	ID         string    `json:"id"`
	PID        int       `json:"pid"`
	Args       []string  `json:"args"`
	StartedAt  time.Time `json:"started_at"`
	CPUPercent float64   `json:"cpu_percent"`
	RSS        uint64    `json:"rss"`
	Threads    int32     `json:"threads"`
}

// handleJobs returns running workers with process stats
func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	slots := s.sup.Jobs()
	jobs := make([]APIJob, 0, len(slots))
	for _, sl := range slots {
		j := APIJob{Kind: sl.Kind.String(), ID: sl.ID, PID: sl.PID, Args: sl.Args, StartedAt: sl.StartedAt}
		if st, err := s.stats(sl.PID); err == nil {
			j.CPUPercent, j.RSS, j.Threads = st.CPUPercent, st.RSS, st.Threads
		} else {
			log.Printf("[DEBUG] no stats for %s worker, pid %d: %v", sl.Kind, sl.PID, err)
		}
		jobs = append(jobs, j)
	}
	s.writeJSON(w, http.StatusOK, APIJobsResponse{
		Jobs:      jobs,
		Phase:     s.sup.Phase().String(),
		Clients:   s.hub.Clients(),
		Timestamp: time.Now(),
	})
}

// handleCommand accepts a single UI command
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd supervisor.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid command")
		return
	}
	if cmd.Name == "" {
		s.writeJSONError(w, http.StatusBadRequest, "command name required")
		return
	}
	if err := s.sup.Dispatch(cmd); err != nil {
		if errors.Is(err, supervisor.ErrTerminated) {
			s.writeJSONError(w, http.StatusServiceUnavailable, "shutting down")
			return
		}
		log.Printf("[WARN] can't dispatch %s: %v", cmd.Name, err)
		s.writeJSONError(w, http.StatusInternalServerError, "can't dispatch command")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleEvents upgrades to websocket, pushes hub events and reads commands from the client
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WARN] failed to upgrade websocket connection: %v", err)
		return
	}
	c := s.hub.register(conn)
	go c.writePump()
	defer s.hub.unregister(c)

	conn.SetReadLimit(64 * 1024)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WARN] websocket client %s: %v", c.id, err)
			}
			return
		}
		var cmd supervisor.Command
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.Name == "" {
			log.Printf("[WARN] bad command from client %s: %q", c.id, string(data))
			continue
		}
		if err := s.sup.Dispatch(cmd); err != nil {
			log.Printf("[DEBUG] command %s from client %s not dispatched, %v", cmd.Name, c.id, err)
		}
	}
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[WARN] failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes a JSON error response
func (s *Server) writeJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
