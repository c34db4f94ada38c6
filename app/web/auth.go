package web

import (
	"net/http"

	log "github.com/go-pkgz/lgr"
	"golang.org/x/crypto/bcrypt"
)

const authUser = "offlinebay"

// authMiddleware checks basic auth against the bcrypt password hash
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if ok && username == authUser {
			if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err == nil {
				next.ServeHTTP(w, r)
				return
			}
			log.Printf("[WARN] wrong password from %s", r.RemoteAddr)
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="OfflineBay"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}
