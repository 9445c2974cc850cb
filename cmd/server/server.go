package server

import (
	"context"
	"net/http"
	"time"

	"example.com/socialgraph/internal/broker"
	"example.com/socialgraph/internal/cascade"
	"example.com/socialgraph/internal/graph"
	"example.com/socialgraph/internal/identity"
	config "example.com/socialgraph/internal/init"
	"example.com/socialgraph/internal/logger"
	"example.com/socialgraph/internal/middleware"
	"example.com/socialgraph/internal/ratelimit"
	"example.com/socialgraph/internal/store"
)

type Server struct {
	store       store.StoreInterface
	kafkaWriter broker.EventWriter
	limiter     *ratelimit.Limiter
	identity    *identity.Service
	graph       *graph.Manager
	cascade     *cascade.Orchestrator
}

var logg = logger.New()

func newServer(st store.StoreInterface, writer broker.EventWriter, limiter *ratelimit.Limiter, usernameMaxLen int, ownerID int64) *Server {
	g := graph.New(st)
	return &Server{
		store:       st,
		kafkaWriter: writer,
		limiter:     limiter,
		identity:    identity.New(st, usernameMaxLen),
		graph:       g,
		cascade:     cascade.New(st, g, ownerID),
	}
}

// routes wires every endpoint. Signup and login stay public; everything else
// requires a valid JWT. Every mutating endpoint passes the rate limiter
// before any other validation, token checks included.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Public endpoints, abuse rate limited per client address
	mux.Handle("/signup", s.rateLimit("signup", http.HandlerFunc(s.signupHandler)))
	mux.Handle("/login", s.rateLimit("login", http.HandlerFunc(s.loginHandler)))

	// Protected endpoints with JWT authentication middleware
	mux.Handle("/follow", s.rateLimit("follow", middleware.JWTAuth(http.HandlerFunc(s.followHandler))))
	mux.Handle("/unfollow", s.rateLimit("unfollow", middleware.JWTAuth(http.HandlerFunc(s.unfollowHandler))))
	mux.Handle("/like", s.rateLimit("like", middleware.JWTAuth(http.HandlerFunc(s.likeHandler))))
	mux.Handle("/unlike", s.rateLimit("unlike", middleware.JWTAuth(http.HandlerFunc(s.unlikeHandler))))
	mux.Handle("/posts", s.rateLimit("posts", middleware.JWTAuth(http.HandlerFunc(s.createPostHandler))))
	mux.Handle("/comments", s.rateLimit("comments", middleware.JWTAuth(http.HandlerFunc(s.createCommentHandler))))
	mux.Handle("/settings", s.rateLimit("settings", middleware.JWTAuth(http.HandlerFunc(s.settingsHandler))))
	mux.Handle("/notifications", middleware.JWTAuth(http.HandlerFunc(s.notificationsHandler)))
	mux.Handle("/account/delete", s.rateLimit("delete", middleware.JWTAuth(http.HandlerFunc(s.deleteAccountHandler))))

	return mux
}

// rateLimit gates a mutating endpoint behind the abuse limiter. A saturated
// (action, origin) window rejects with 429 before the request is looked at;
// otherwise the weighted outcome is recorded from the response status.
func (s *Server) rateLimit(action string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := clientIP(r)
		if !s.limiter.Admit(action, origin) {
			logg.Info("http/"+action, "Rate limit exceeded (origin anonymized)")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.limiter.RecordOutcome(action, origin, sw.status < http.StatusBadRequest)
	})
}

// statusWriter captures the status code a handler wrote.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Run starts the HTTPS server with JWT-protected routes and graceful shutdown.
func Run(ctx context.Context, st store.StoreInterface, writer broker.EventWriter, cfg *config.Config) {
	limiter := ratelimit.New(ratelimit.DefaultRules(cfg.RateLimitWindow))
	go limiter.Sweep(ctx, cfg.RateLimitSweep)

	s := newServer(st, writer, limiter, cfg.UsernameMaxLen, cfg.OwnerAccountID)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second, // prevent slowloris attacks
		WriteTimeout: 10 * time.Second,
	}

	// --- Start server in a goroutine ---
	go func() {
		logg.Info("server", "Starting HTTPS server on "+cfg.ServerAddr)
		// TLS: cert.pem and key.pem should be valid certificates in specified paths
		if err := srv.ListenAndServeTLS("/certs/cert.pem", "/certs/key.pem"); err != nil && err != http.ErrServerClosed {
			logg.Error("server", "Server stopped unexpectedly", err)
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
	} else {
		logg.Info("server", "Server stopped gracefully")
	}
}
