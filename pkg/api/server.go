// Package api exposes the FaultMaven HTTP surface: case lifecycle, the
// async message endpoint, investigation state reads, the consulting
// transition, and the WebSocket event stream.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/faultmaven/faultmaven/pkg/config"
	"github.com/faultmaven/faultmaven/pkg/database"
	"github.com/faultmaven/faultmaven/pkg/engine"
	"github.com/faultmaven/faultmaven/pkg/events"
	"github.com/faultmaven/faultmaven/pkg/masking"
	"github.com/faultmaven/faultmaven/pkg/queue"
	"github.com/faultmaven/faultmaven/pkg/services"
)

// Server wires HTTP routes to the service layer. Construct with NewServer,
// inject optional collaborators with the setters, then Start.
type Server struct {
	cfg            *config.Config
	db             *database.Client
	caseService    *services.CaseService
	messageService *services.MessageService
	turnService    *services.TurnService
	leaseService   *services.LeaseService
	stateStore     *services.EntStateStore
	executor       *queue.TurnExecutor
	connManager    *events.ConnectionManager

	// Optional. Handlers that need a missing collaborator answer 503
	// (transition engine) or degrade quietly (publisher, masker).
	transitionEngine *engine.Engine
	eventPublisher   *events.EventPublisher
	masker           *masking.Service
	llmConn          ConnStateReporter

	router     *gin.Engine
	httpServer *http.Server
}

// NewServer creates the API server and registers all routes. Domain
// services are built from the database client; executor and connManager
// are shared with the rest of the process.
func NewServer(
	cfg *config.Config,
	db *database.Client,
	executor *queue.TurnExecutor,
	connManager *events.ConnectionManager,
) *Server {
	s := &Server{
		cfg:            cfg,
		db:             db,
		caseService:    services.NewCaseService(db.Client),
		messageService: services.NewMessageService(db.Client),
		turnService:    services.NewTurnService(db.Client),
		leaseService:   services.NewLeaseService(db.Client, cfg.Queue.LeaseTTL.Std()),
		stateStore:     services.NewEntStateStore(db.Client),
		executor:       executor,
		connManager:    connManager,
	}
	s.router = s.buildRouter()
	return s
}

// SetTransitionEngine injects the engine used by the transition
// propose/confirm endpoints. Its state store must persist saves.
func (s *Server) SetTransitionEngine(e *engine.Engine) {
	s.transitionEngine = e
}

// SetEventPublisher injects the publisher for API-originated events
// (status changes from confirm and close).
func (s *Server) SetEventPublisher(p *events.EventPublisher) {
	s.eventPublisher = p
}

// SetMasker injects the masking service applied to user-submitted text.
func (s *Server) SetMasker(m *masking.Service) {
	s.masker = m
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), securityHeaders())

	r.GET("/health", s.healthHandler)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", s.healthHandler)

		v1.POST("/cases", s.createCaseHandler)
		v1.GET("/cases", s.listCasesHandler)
		v1.GET("/cases/:id", s.getCaseHandler)
		v1.POST("/cases/:id/close", s.closeCaseHandler)

		v1.POST("/cases/:id/messages", s.sendMessageHandler)
		v1.GET("/cases/:id/messages", s.listMessagesHandler)

		v1.GET("/cases/:id/state", s.getCaseStateHandler)
		v1.GET("/cases/:id/turns", s.listTurnsHandler)

		v1.POST("/cases/:id/transition/propose", s.proposeTransitionHandler)
		v1.POST("/cases/:id/transition/confirm", s.confirmTransitionHandler)

		v1.GET("/ws", s.wsHandler)
	}

	return r
}

// Handler returns the HTTP handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr and blocks until the listener closes.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
