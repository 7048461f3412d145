// Package api serves the dashboard's JSON API over gin.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"verax/internal/collection"
	"verax/internal/logger"
	"verax/internal/payout"
	"verax/internal/storage"
	"verax/internal/store"
	"verax/pkg/models"
)

// Deps are the services the handlers call.
type Deps struct {
	Store       store.Store
	Payouts     *payout.Service
	Collector   *collection.Reconciler
	Uploader    storage.Uploader
	DefaultTerm models.InsurerTerm
	Now         func() time.Time
}

// Server is the HTTP API server
type Server struct {
	deps   Deps
	router *gin.Engine
	log    zerolog.Logger
}

// NewServer wires the routes.
func NewServer(deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := &Server{
		deps:   deps,
		router: gin.New(),
		log:    logger.WithComponent("api"),
	}
	s.router.Use(gin.Recovery(), RequestLogger(s.log))

	s.router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := s.router.Group("/api")
	{
		api.GET("/invoices", s.handleListInvoices)
		api.GET("/invoices/overdue", s.handleOverdueInvoices)
		api.GET("/invoices/:id", s.handleGetInvoice)
		api.PATCH("/invoices/:id", s.handlePatchInvoice)
		api.DELETE("/invoices/:id", s.handleDeleteInvoice)

		api.GET("/analysts/:uid/eligible", s.handleEligible)

		api.GET("/payouts", s.handleListPayouts)
		api.POST("/payouts", s.handleSubmitPayout)
		api.GET("/payouts/:id", s.handleGetPayout)
		api.POST("/payouts/:id/approve", s.handleApprovePayout)
		api.POST("/payouts/:id/reject", s.handleRejectPayout)
		api.POST("/payouts/:id/receipt", s.handleUploadReceipt)
		api.POST("/payouts/:id/paid", s.handleMarkPaid)

		api.POST("/collections/preview", s.handleCollectionPreview)
		api.POST("/collections/confirm", s.handleCollectionConfirm)

		api.POST("/liquidations", s.handleUploadLiquidation)

		api.GET("/events/invoices", s.handleInvoiceEvents)
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts end with ctx so open event streams close on shutdown
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info().Msg("Shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}
