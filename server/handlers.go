package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/whisperwall/whisperwall/models"
	"github.com/whisperwall/whisperwall/store"
)

// Pagination is the envelope metadata on every list response.
type Pagination struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Pages    int64 `json:"pages"`
}

func paginate(c echo.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.QueryParam("pageSize"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}

func pagination(total int64, page, pageSize int) Pagination {
	pages := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		pages++
	}
	return Pagination{Total: total, Page: page, PageSize: pageSize, Pages: pages}
}

type RegisterIdentityRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRegisterIdentity(c echo.Context) error {
	var req RegisterIdentityRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	ident, err := s.ids.Register(c.Request().Context(), req.Name)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusCreated, store.IdentityRef{Uuid: ident.Uuid, Name: ident.Name})
}

func (s *Server) handleGetIdentity(c echo.Context) error {
	ident, err := s.ids.GetByUuid(c.Request().Context(), c.Param("uuid"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"uuid":      ident.Uuid,
		"name":      ident.Name,
		"status":    ident.Status,
		"createdAt": ident.CreatedAt,
	})
}

type CreatePublicationRequest struct {
	Content string  `json:"content"`
	Author  *string `json:"author,omitempty"`
}

func (s *Server) handleCreatePublication(c echo.Context) error {
	var req CreatePublicationRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	view, err := s.store.CreatePublication(c.Request().Context(), req.Content, req.Author)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusCreated, view)
}

type PublicationListResponse struct {
	Data       []*store.PublicationView `json:"data"`
	Pagination Pagination               `json:"pagination"`
}

func (s *Server) handleListPublications(c echo.Context) error {
	page, pageSize := paginate(c)
	status := c.QueryParam("status")
	switch status {
	case "", models.PublicationActive, models.PublicationFlagged, models.PublicationRemoved:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status filter")
	}

	views, total, err := s.store.ListPublications(c.Request().Context(), page, pageSize, status)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, PublicationListResponse{
		Data:       views,
		Pagination: pagination(total, page, pageSize),
	})
}

func (s *Server) handleGetPublication(c echo.Context) error {
	view, err := s.store.GetPublication(c.Request().Context(), c.Param("uuid"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, view)
}

type UpdatePublicationRequest struct {
	Content string `json:"content"`
	Author  string `json:"author"`
}

func (s *Server) handleUpdatePublication(c echo.Context) error {
	var req UpdatePublicationRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	view, err := s.store.UpdateContent(c.Request().Context(), c.Param("uuid"), req.Author, req.Content)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleDeletePublication(c echo.Context) error {
	if err := s.mod.Remove(c.Request().Context(), c.Param("uuid")); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type ReportRequest struct {
	Reporter string `json:"reporter"`
}

type ReportResponse struct {
	Report      string `json:"report"`
	ReportCount int64  `json:"reportCount"`
	Flagged     bool   `json:"flagged"`
}

func (s *Server) handleReportPublication(c echo.Context) error {
	var req ReportRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Reporter == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reporter is required")
	}

	receipt, err := s.mod.ReportPublication(c.Request().Context(), c.Param("uuid"), req.Reporter)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusCreated, ReportResponse{
		Report:      receipt.Report.Uuid,
		ReportCount: receipt.ReportCount,
		Flagged:     receipt.Flagged,
	})
}

type LikeRequest struct {
	Identity string `json:"identity"`
}

func (s *Server) handleToggleLike(c echo.Context) error {
	var req LikeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Identity == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "identity is required")
	}

	liked, err := s.store.ToggleLike(c.Request().Context(), c.Param("uuid"), req.Identity)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"liked": liked})
}

type LikeListResponse struct {
	Data       []*store.LikeView `json:"data"`
	Pagination Pagination        `json:"pagination"`
}

func (s *Server) handleListLikes(c echo.Context) error {
	page, pageSize := paginate(c)
	likes, total, err := s.store.ListLikes(c.Request().Context(), c.Param("uuid"), page, pageSize)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, LikeListResponse{
		Data:       likes,
		Pagination: pagination(total, page, pageSize),
	})
}

type CreateCommentRequest struct {
	Content string  `json:"content"`
	Author  *string `json:"author,omitempty"`
}

func (s *Server) handleCreateComment(c echo.Context) error {
	var req CreateCommentRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	view, err := s.store.CreateComment(c.Request().Context(), c.Param("uuid"), req.Content, req.Author)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusCreated, view)
}

type CommentListResponse struct {
	Data       []*store.CommentView `json:"data"`
	Pagination Pagination           `json:"pagination"`
}

func (s *Server) handleListComments(c echo.Context) error {
	page, pageSize := paginate(c)
	cmts, total, err := s.store.ListComments(c.Request().Context(), c.Param("uuid"), page, pageSize)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, CommentListResponse{
		Data:       cmts,
		Pagination: pagination(total, page, pageSize),
	})
}

type DeleteCommentRequest struct {
	Author string `json:"author"`
}

func (s *Server) handleDeleteComment(c echo.Context) error {
	var req DeleteCommentRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	if err := s.store.DeleteComment(c.Request().Context(), c.Param("uuid"), req.Author, false); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
