// Package httpapi implements the service's HTTP surface: the REST
// bootstrap endpoints for room creation and lookup, the static
// intro.js greeting, and the WebSocket upgrade for the persistent
// session, with per-IP rate limiting on the endpoints a client can hit
// before it has a live session.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/collabtext/collabd/internal/registry"
)

// Server is the collabd HTTP surface: a *registry.Registry handle
// (passed in explicitly, never read from an ambient global) plus the
// routing and rate limiting around it.
type Server struct {
	registry  *registry.Registry
	logger    *slog.Logger
	introText string
	bootLimit *ipRateLimiter
	wsLimit   *ipRateLimiter
	mux       *http.ServeMux
}

// New builds a Server wired to reg. rateLimitPerSec/rateLimitBurst apply
// independently to the bootstrap endpoints and to new WebSocket upgrades
// — a burst of room creates doesn't starve a legitimate attempt to open
// a session, and vice versa.
func New(reg *registry.Registry, logger *slog.Logger, introText string, rateLimitPerSec float64, rateLimitBurst int) *Server {
	s := &Server{
		registry:  reg,
		logger:    logger,
		introText: introText,
		bootLimit: newIPRateLimiter(rateLimitPerSec, rateLimitBurst),
		wsLimit:   newIPRateLimiter(rateLimitPerSec, rateLimitBurst),
		mux:       http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /resource/room", s.bootLimit.rateLimited(s.handleRoomCreate))
	s.mux.HandleFunc("GET /resource/room/{roomId}", s.bootLimit.rateLimited(s.handleRoomGet))
	s.mux.HandleFunc("GET /resource/intro.js", s.handleIntro)
	s.mux.HandleFunc("GET /resource/room/{roomId}/ws", s.wsLimit.rateLimited(s.handleSession))

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// StartLimiterEviction begins background eviction of stale per-IP
// limiter entries, stopping when ctx is canceled.
func (s *Server) StartLimiterEviction(ctx context.Context) {
	s.bootLimit.startEviction(ctx, time.Minute, 10*time.Minute)
	s.wsLimit.startEviction(ctx, time.Minute, 10*time.Minute)
}
