package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/SkynetNext/mc-proxy/internal/logger"
	"github.com/SkynetNext/mc-proxy/internal/session"
)

// playerView is one entry of GET /players
type playerView struct {
	UUID      string    `json:"uuid"`
	Username  string    `json:"username"`
	Backend   string    `json:"backend"`
	Dimension string    `json:"dimension,omitempty"`
	GameMode  int8      `json:"game_mode"`
	Premium   bool      `json:"premium"`
	LoginTime time.Time `json:"login_time"`
}

// adminHandler serves health probes, metrics and the player admin endpoints
func (p *Proxy) adminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", p.healthHandler)
	mux.HandleFunc("/ready", p.readyHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /players", p.playersHandler)
	mux.HandleFunc("POST /players/{uuid}/switch", p.switchHandler)
	return mux
}

// startAdminServer binds the admin port and serves it in the background
func (p *Proxy) startAdminServer() error {
	port := p.getConfig().Server.HealthCheckPort
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	p.adminServer = &http.Server{
		Handler:           p.adminHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := p.adminServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Error("Admin server error", zap.Error(err))
		}
	}()

	logger.L.Info("Admin server started", zap.Int("port", port))
	return nil
}

func (p *Proxy) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (p *Proxy) readyHandler(w http.ResponseWriter, r *http.Request) {
	if p.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("Draining"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func (p *Proxy) playersHandler(w http.ResponseWriter, r *http.Request) {
	players := p.presence.Players()
	views := make([]playerView, 0, len(players))
	for _, pl := range players {
		views = append(views, playerView{
			UUID:      pl.UUID.String(),
			Username:  pl.Username,
			Backend:   pl.Backend,
			Dimension: pl.Dimension,
			GameMode:  pl.GameMode,
			Premium:   pl.Premium,
			LoginTime: pl.LoginTime,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}

// switchHandler moves a player: POST /players/{uuid}/switch?backend=name.
// Without a backend the player goes to the other one.
func (p *Proxy) switchHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		http.Error(w, "invalid uuid", http.StatusBadRequest)
		return
	}
	pl, ok := p.presence.Get(id)
	if !ok {
		http.Error(w, "player not online", http.StatusNotFound)
		return
	}

	target := r.URL.Query().Get("backend")
	if target == "" {
		other, err := p.router.Other(pl.Backend)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		target = other.Name
	}

	// a switch that started must not be abandoned when the admin client goes away
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 30*time.Second)
	defer cancel()
	err = p.sessions.RequestSwitch(ctx, id, target)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("Switching"))
	case errors.Is(err, session.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrUnknownBackend), errors.Is(err, ErrSameBackend):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrSwitchInProgress), errors.Is(err, ErrNotInPlay):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}
