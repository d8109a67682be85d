package server

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/whisperwall/whisperwall/models"
	"github.com/whisperwall/whisperwall/moderation"
)

type ReportListResponse struct {
	Data       []models.Report `json:"data"`
	Pagination Pagination      `json:"pagination"`
}

func (s *Server) handleListAllReports(c echo.Context) error {
	page, pageSize := paginate(c)
	reps, total, err := s.mod.Ledger().ListAllReports(c.Request().Context(), page, pageSize)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, ReportListResponse{
		Data:       reps,
		Pagination: pagination(total, page, pageSize),
	})
}

func (s *Server) handleListPublicationReports(c echo.Context) error {
	// surface a 404 rather than an empty page for unknown publications
	if _, err := s.store.GetPublication(c.Request().Context(), c.Param("uuid")); err != nil {
		return s.mapError(err)
	}

	page, pageSize := paginate(c)
	reps, total, err := s.mod.Ledger().ListReports(c.Request().Context(), c.Param("uuid"), page, pageSize)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, ReportListResponse{
		Data:       reps,
		Pagination: pagination(total, page, pageSize),
	})
}

func (s *Server) handleDismiss(c echo.Context) error {
	if err := s.mod.Moderate(c.Request().Context(), c.Param("uuid"), moderation.DecisionDismiss); err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": models.PublicationActive})
}

func (s *Server) handleConfirm(c echo.Context) error {
	if err := s.mod.Moderate(c.Request().Context(), c.Param("uuid"), moderation.DecisionConfirm); err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": models.PublicationRemoved})
}

func (s *Server) handleAdminDeleteComment(c echo.Context) error {
	if err := s.store.DeleteComment(c.Request().Context(), c.Param("uuid"), "", true); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type UpdateIdentityStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateIdentityStatus(c echo.Context) error {
	var req UpdateIdentityStatusRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	if err := s.ids.UpdateStatus(c.Request().Context(), c.Param("uuid"), req.Status); err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": req.Status})
}

func (s *Server) handleExportJSON(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c.Response().WriteHeader(http.StatusOK)
	if err := s.exporter.WriteJSON(c.Request().Context(), c.Response()); err != nil {
		// headers are gone; all we can do is log and cut the stream
		s.logger.Error("export failed mid-stream", "error", err)
		return err
	}
	return nil
}

func (s *Server) handleExportXLSX(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="whisperwall-export.xlsx"`)
	c.Response().WriteHeader(http.StatusOK)
	if err := s.exporter.WriteXLSX(c.Request().Context(), c.Response()); err != nil {
		s.logger.Error("export failed mid-stream", "error", err)
		return err
	}
	return nil
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleModerationEvents streams flagged/removed transitions to a moderator
// client as JSON frames. Delivery is best effort: this layer does not manage
// retries or replay.
func (s *Server) handleModerationEvents(c echo.Context) error {
	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	sub := s.events.Subscribe(nil)
	defer s.events.Unsubscribe(sub)

	s.logger.Info("moderator event channel connected", "remote", c.RealIP())

	// read loop exists only to detect disconnects
	disconnected := make(chan struct{})
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				close(disconnected)
				return
			}
		}
	}()

	for {
		select {
		case <-disconnected:
			s.logger.Info("moderator event channel disconnected", "remote", c.RealIP())
			return nil
		case evt, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := ws.WriteJSON(evt); err != nil {
				s.logger.Info("moderator event channel write error", "error", err)
				return nil
			}
		}
	}
}
