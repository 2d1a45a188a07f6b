package http

import (
	stdhttp "net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"quillcast/app/internal/account"
	"quillcast/app/internal/discover"
	"quillcast/app/internal/studio"
	"quillcast/app/internal/voice"
)

// Options configures the HTTP server wiring.
type Options struct {
	VoiceService    voice.Service
	StudioService   studio.Service
	DiscoverService discover.Service
	Accounts        account.Repository
	Database        *gorm.DB
	Logger          *logrus.Logger
	SentryHub       *sentry.Hub
	RateLimiter     RateLimiterSettings
}

// RateLimiterSettings configures the HTTP rate limiter behaviour.
type RateLimiterSettings struct {
	RequestsPerSecond float64
	Burst             int
	ClientTTL         time.Duration
}

// Server wires the JSON API transport layer via Huma.
type Server struct {
	api         huma.API
	mux         *stdhttp.ServeMux
	voice       voice.Service
	studio      studio.Service
	discover    discover.Service
	accounts    account.Repository
	logger      *logrus.Logger
	sentry      *sentry.Hub
	db          *gorm.DB
	rateLimiter *RateLimiter
}

// NewServer constructs the HTTP server.
func NewServer(opts Options) (*Server, error) {
	if opts.VoiceService == nil {
		return nil, eris.New("voice service is required")
	}
	if opts.StudioService == nil {
		return nil, eris.New("studio service is required")
	}
	if opts.DiscoverService == nil {
		return nil, eris.New("discover service is required")
	}
	if opts.Accounts == nil {
		return nil, eris.New("account repository is required")
	}
	if opts.Database == nil {
		return nil, eris.New("database is required")
	}

	mux := stdhttp.NewServeMux()
	config := huma.DefaultConfig("Quillcast", "1.0.0")

	api := humago.New(mux, config)

	srv := &Server{
		api:      api,
		mux:      mux,
		voice:    opts.VoiceService,
		studio:   opts.StudioService,
		discover: opts.DiscoverService,
		accounts: opts.Accounts,
		logger:   opts.Logger,
		sentry:   opts.SentryHub,
		db:       opts.Database,
	}

	settings := opts.RateLimiter
	if settings.Burst <= 0 {
		return nil, eris.New("rate limiter burst must be greater than zero")
	}
	if settings.RequestsPerSecond <= 0 {
		return nil, eris.New("rate limiter requests per second must be greater than zero")
	}
	if settings.ClientTTL <= 0 {
		return nil, eris.New("rate limiter client TTL must be greater than zero")
	}

	srv.rateLimiter = NewRateLimiter(settings.Burst, settings.RequestsPerSecond, settings.ClientTTL)

	srv.registerMiddlewares()
	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the underlying HTTP handler for wiring into the application.
func (s *Server) Handler() stdhttp.Handler {
	return s.mux
}

// API exposes the underlying Huma API instance.
func (s *Server) API() huma.API {
	return s.api
}

func (s *Server) registerMiddlewares() {
	s.api.UseMiddleware(
		s.sentryMiddleware(),
		s.recoveryMiddleware(),
		s.requestIDMiddleware(),
		s.authMiddleware(),
		s.rateLimitMiddleware(),
		s.loggingMiddleware(),
	)
}

func (s *Server) registerRoutes() {
	s.registerPersonaRoutes()
	s.registerVoiceRoutes()
	s.registerStudioRoutes()
	s.registerDiscoverRoutes()
	s.registerHealthRoute()
}

func (s *Server) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	s.mux.ServeHTTP(w, r)
}
