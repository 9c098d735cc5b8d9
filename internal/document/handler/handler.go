package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopdesk/docs-service/internal/document"
	"github.com/shopdesk/docs-service/internal/document/lock"
	"github.com/shopdesk/docs-service/internal/document/service"
	"github.com/shopdesk/docs-service/pkg/logger"
	"github.com/shopdesk/docs-service/pkg/middleware"
)

// Handler exposes the document service over HTTP.
type Handler struct {
	svc *service.Service
}

// RegisterDocumentRoutes mounts the document API on r. When auth is not nil
// it guards every write route and the token identity becomes the author.
func RegisterDocumentRoutes(r gin.IRouter, svc *service.Service, auth gin.HandlerFunc) {
	h := &Handler{svc: svc}
	write := []gin.HandlerFunc{}
	if auth != nil {
		write = append(write, auth)
	}
	with := func(fn gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, write...), fn)
	}

	g := r.Group("/api/documents")
	g.GET("", h.list)
	g.POST("", with(h.create)...)
	g.GET("/:id", h.get)
	g.PATCH("/:id", with(h.save)...)
	g.GET("/:id/transitions", h.nextStatuses)
	g.POST("/:id/transitions", with(h.transition)...)
	g.POST("/:id/revert", with(h.revert)...)
	g.GET("/:id/history", h.history)
	g.GET("/:id/versions/:version", h.version)
	g.POST("/:id/versions/:version/export", with(h.export)...)
}

func (h *Handler) list(c *gin.Context) {
	f := service.ListFilter{Category: c.Query("category")}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		st, err := document.ParseStatus(raw)
		if err != nil {
			writeError(c, err)
			return
		}
		f.Status = st
	}
	docs, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *Handler) create(c *gin.Context) {
	var in service.CreateInput
	if !bind(c, &in) {
		return
	}
	in.Author = author(c, in.Author)
	doc, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Location", "/api/documents/"+doc.ID)
	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) get(c *gin.Context) {
	doc, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) save(c *gin.Context) {
	var in service.SaveInput
	if !bind(c, &in) {
		return
	}
	in.Author = author(c, in.Author)
	doc, v, err := h.svc.Save(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": doc, "version": v})
}

type transitionRequest struct {
	Status string `json:"status"`
	Author string `json:"author"`
}

func (h *Handler) transition(c *gin.Context) {
	var req transitionRequest
	if !bind(c, &req) {
		return
	}
	target := strings.TrimSpace(req.Status)
	if target == "" {
		writeError(c, document.NewValidationError(map[string]string{"status": "is required"}))
		return
	}
	st, err := document.ParseStatus(target)
	if err != nil {
		writeError(c, err)
		return
	}
	doc, err := h.svc.Transition(c.Request.Context(), c.Param("id"), st, author(c, req.Author))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

type nextStatus struct {
	Status  document.Status  `json:"status"`
	Trigger document.Trigger `json:"trigger"`
}

func (h *Handler) nextStatuses(c *gin.Context) {
	doc, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	next := []nextStatus{}
	for _, s := range document.NextStatuses(doc.Status) {
		t, _ := document.TriggerFor(doc.Status, s)
		next = append(next, nextStatus{Status: s, Trigger: t})
	}
	c.JSON(http.StatusOK, gin.H{"status": doc.Status, "next": next})
}

type revertRequest struct {
	Version int    `json:"version"`
	Author  string `json:"author"`
}

func (h *Handler) revert(c *gin.Context) {
	var req revertRequest
	if !bind(c, &req) {
		return
	}
	doc, v, err := h.svc.RevertTo(c.Request.Context(), c.Param("id"), req.Version, author(c, req.Author))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": doc, "version": v})
}

func (h *Handler) history(c *gin.Context) {
	vs, err := h.svc.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, vs)
}

func (h *Handler) version(c *gin.Context) {
	n, ok := versionParam(c)
	if !ok {
		return
	}
	v, err := h.svc.Version(c.Request.Context(), c.Param("id"), n)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) export(c *gin.Context) {
	n, ok := versionParam(c)
	if !ok {
		return
	}
	url, err := h.svc.Export(c.Request.Context(), c.Param("id"), n)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// author prefers the token identity over the body field.
func author(c *gin.Context, fromBody string) string {
	if a := middleware.Author(c); a != "" {
		return a
	}
	return fromBody
}

func bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func versionParam(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.Param("version"))
	if err != nil {
		writeError(c, document.NewValidationError(map[string]string{"version": "must be an integer"}))
		return 0, false
	}
	return n, true
}

// StatusFor maps a service error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, document.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, document.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, document.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrSnapshotsDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, lock.ErrTimeout):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	code := StatusFor(err)
	body := gin.H{"error": err.Error()}
	var ve *document.ValidationError
	if errors.As(err, &ve) && len(ve.Fields) > 0 {
		body["fields"] = ve.Fields
	}
	if code == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	if code == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		body["error"] = "internal error"
	}
	c.AbortWithStatusJSON(code, body)
}
