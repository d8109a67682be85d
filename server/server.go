// Package server is the HTTP surface over the forum core. It owns request
// decoding, the mapping from core sentinel errors to transport status codes,
// and the moderator event websocket; everything with real invariants lives
// below it.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"

	"github.com/whisperwall/whisperwall/crypt"
	"github.com/whisperwall/whisperwall/events"
	"github.com/whisperwall/whisperwall/export"
	"github.com/whisperwall/whisperwall/identity"
	"github.com/whisperwall/whisperwall/moderation"
	"github.com/whisperwall/whisperwall/store"
)

type Config struct {
	// AdminToken guards the /admin surface. Empty disables it entirely;
	// real authentication is the deployment's reverse proxy's job.
	AdminToken string
}

type Server struct {
	echo     *echo.Echo
	logger   *slog.Logger
	store    *store.Store
	ids      *identity.Directory
	mod      *moderation.Service
	events   *events.EventManager
	exporter *export.Exporter
	config   Config
}

func NewServer(st *store.Store, ids *identity.Directory, mod *moderation.Service, evtman *events.EventManager, exporter *export.Exporter, logger *slog.Logger, config Config) *Server {
	s := &Server{
		logger:   logger.With("component", "server"),
		store:    st,
		ids:      ids,
		mod:      mod,
		events:   evtman,
		exporter: exporter,
		config:   config,
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(s.logger))
	e.Use(middleware.Recover())

	e.GET("/health", s.handleHealthcheck)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.Any("/debug/pprof/*", echo.WrapHandler(http.DefaultServeMux))

	e.POST("/identities", s.handleRegisterIdentity)
	e.GET("/identities/:uuid", s.handleGetIdentity)

	e.POST("/publications", s.handleCreatePublication)
	e.GET("/publications", s.handleListPublications)
	e.GET("/publications/:uuid", s.handleGetPublication)
	e.PUT("/publications/:uuid", s.handleUpdatePublication)
	e.DELETE("/publications/:uuid", s.handleDeletePublication)
	e.POST("/publications/:uuid/report", s.handleReportPublication)
	e.POST("/publications/:uuid/like", s.handleToggleLike)
	e.GET("/publications/:uuid/likes", s.handleListLikes)
	e.POST("/publications/:uuid/comments", s.handleCreateComment)
	e.GET("/publications/:uuid/comments", s.handleListComments)
	e.DELETE("/comments/:uuid", s.handleDeleteComment)

	admin := e.Group("/admin", s.adminAuth)
	admin.GET("/reports", s.handleListAllReports)
	admin.GET("/publications/:uuid/reports", s.handleListPublicationReports)
	admin.POST("/publications/:uuid/dismiss", s.handleDismiss)
	admin.POST("/publications/:uuid/confirm", s.handleConfirm)
	admin.DELETE("/comments/:uuid", s.handleAdminDeleteComment)
	admin.POST("/identities/:uuid/status", s.handleUpdateIdentityStatus)
	admin.GET("/export/data.json", s.handleExportJSON)
	admin.GET("/export/publications.xlsx", s.handleExportXLSX)
	admin.GET("/events", s.handleModerationEvents)

	s.echo = e
	return s
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router, mostly so tests can drive it directly.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) handleHealthcheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) adminAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.config.AdminToken == "" || c.Request().Header.Get("X-Admin-Token") != s.config.AdminToken {
			return echo.NewHTTPError(http.StatusForbidden, "admin access denied")
		}
		return next(c)
	}
}

// mapError translates core sentinels into stable transport responses. The
// core never downgrades its own errors; anything unrecognized is a 500.
func (s *Server) mapError(err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return err
	}

	switch {
	case errors.Is(err, moderation.ErrAlreadyReported):
		return echo.NewHTTPError(http.StatusConflict, "you already reported this publication")
	case errors.Is(err, moderation.ErrInvalidStateTransition):
		return echo.NewHTTPError(http.StatusConflict, "publication is not in the required state")
	case errors.Is(err, moderation.ErrNoSuchPublication),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, identity.ErrNoSuchIdentity):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrNotOwner):
		return echo.NewHTTPError(http.StatusForbidden, "not the owner")
	case errors.Is(err, store.ErrIdentityNotActive):
		return echo.NewHTTPError(http.StatusForbidden, "identity is not active")
	case errors.Is(err, store.ErrEmptyContent), errors.Is(err, identity.ErrInvalidStatus):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, crypt.ErrDecrypt):
		// already logged with the record id by the store
		return echo.NewHTTPError(http.StatusInternalServerError, "stored content unavailable")
	default:
		s.logger.Error("request failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
