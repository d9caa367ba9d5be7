// Package statusapi implements the localhost-only status/control HTTP
// API SPEC_FULL.md adds on top of spec.md: a read surface for the
// current session state, connected peer, and pairing history, plus a
// control endpoint to trigger a reconnect.
// It is ambient, not part of the synchronization core (spec.md's
// Non-goals exclude a UI, not a way to see what the core is doing).
//
// Grounded on server-control.go's local-only-guard convention (reject
// any request whose RemoteAddr isn't 127.0.0.1/::1) and its
// mux-wrapped-in-a-guard-handler shape, and on legacy-keysaver/auth.go's
// bearer-token AuthMiddleware, adapted to guard the control endpoints
// (an optional token; read endpoints stay open to any local caller).
package statusapi

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"

	"clipshare-node/internal/pairinglog"
)

// State is the minimal view of supervisor.State this package needs,
// kept decoupled so statusapi does not import supervisor.
type State interface {
	String() string
}

// StatusProvider is whatever can report the supervisor's current
// session state and connected peer endpoint. *supervisor.Supervisor
// satisfies this directly through its SessionState and PeerEndpoint
// methods.
type StatusProvider interface {
	SessionState() State
	PeerEndpoint() string
}

// Reconnector can be asked to drop the current session so the
// supervisor's own reconnect loop immediately retries.
type Reconnector interface {
	TriggerReconnect()
}

// Server is the localhost status/control HTTP API.
type Server struct {
	Addr        string
	Provider    StatusProvider
	Ledger      *pairinglog.Ledger
	Reconnector Reconnector
	// ControlToken, if non-empty, is required as a bearer token on
	// mutating (/control/*) endpoints. Read endpoints are always open
	// to local callers, matching server-control.go's status/peers split.
	ControlToken string

	srv *http.Server
}

// Handler builds the full mux, wrapped in the local-only guard.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/pairings", s.handlePairings)
	mux.Handle("/control/reconnect", s.controlAuth(http.HandlerFunc(s.handleReconnect)))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, _ := net.SplitHostPort(r.RemoteAddr)
		if host != "127.0.0.1" && host != "::1" {
			http.Error(w, `{"error":"local-only"}`, http.StatusForbidden)
			return
		}
		log.Printf("[statusapi] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}

// controlAuth requires a valid bearer token on control endpoints when
// ControlToken is configured, mirroring legacy-keysaver's
// AuthMiddleware (open access when no token is configured).
func (s *Server) controlAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.ControlToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] != s.ControlToken {
			http.Error(w, `{"error":"invalid or missing token"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins serving in the background and returns immediately.
func (s *Server) Start() error {
	s.srv = &http.Server{Addr: s.Addr, Handler: s.Handler()}
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[statusapi] serve error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the API down.
func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	resp := map[string]any{"state": "UNKNOWN", "peer": ""}
	if s.Provider != nil {
		resp["state"] = s.Provider.SessionState().String()
		resp["peer"] = s.Provider.PeerEndpoint()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePairings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	if s.Ledger == nil {
		writeJSON(w, http.StatusOK, []pairinglog.Attempt{})
		return
	}
	deviceID := r.URL.Query().Get("device_id")
	var (
		attempts []pairinglog.Attempt
		err      error
	)
	if deviceID != "" {
		attempts, err = s.Ledger.ListByDevice(deviceID)
	} else {
		attempts, err = s.Ledger.List()
	}
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	if s.Reconnector == nil {
		http.Error(w, `{"error":"reconnect unsupported"}`, http.StatusServiceUnavailable)
		return
	}
	s.Reconnector.TriggerReconnect()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reconnecting"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
