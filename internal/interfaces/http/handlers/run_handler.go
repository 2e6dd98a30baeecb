package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/MorphoScreen/internal/application/runs"
	"github.com/turtacn/MorphoScreen/internal/domain/screen"
	"github.com/turtacn/MorphoScreen/pkg/errors"
	"github.com/turtacn/MorphoScreen/pkg/types/common"
)

// RunService is the slice of the run application service the HTTP layer
// depends on.
type RunService interface {
	Submit(ctx context.Context, req runs.SubmitRequest) (*screen.Run, error)
	Get(ctx context.Context, id common.ID) (*screen.Run, error)
	List(ctx context.Context, screenName string, p common.Pagination) ([]*screen.Run, int64, error)
	Ranking(ctx context.Context, id common.ID) (*screen.Ranking, error)
	Hits(ctx context.Context, id common.ID, n int) ([]screen.CompoundScore, error)
	CompoundRank(ctx context.Context, id common.ID, compound common.CompoundID) (int, error)
}

// RunHandler serves run submission and inspection.
type RunHandler struct {
	svc RunService
}

// NewRunHandler creates a RunHandler.
func NewRunHandler(svc RunService) *RunHandler {
	return &RunHandler{svc: svc}
}

// Create accepts a run submission and enqueues it for execution.
// POST /api/v1/runs
func (h *RunHandler) Create(c *gin.Context) {
	var req runs.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "malformed run submission"))
		return
	}
	run, err := h.svc.Submit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, run)
}

// Get returns one run.
// GET /api/v1/runs/:id
func (h *RunHandler) Get(c *gin.Context) {
	run, err := h.svc.Get(c.Request.Context(), common.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// List returns runs, optionally filtered by screen, newest first.
// GET /api/v1/runs?screen=...&page=...&page_size=...
func (h *RunHandler) List(c *gin.Context) {
	p := paginationFromQuery(c)
	items, total, err := h.svc.List(c.Request.Context(), c.Query("screen"), p)
	if err != nil {
		respondError(c, err)
		return
	}
	p.Total = total
	if items == nil {
		items = []*screen.Run{}
	}
	c.JSON(http.StatusOK, listResponse{Items: items, Pagination: p})
}
