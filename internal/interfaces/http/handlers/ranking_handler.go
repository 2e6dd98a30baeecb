package handlers

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/MorphoScreen/pkg/errors"
	"github.com/turtacn/MorphoScreen/pkg/types/common"
)

const defaultHitCount = 10

// RankingHandler serves the terminal ranking artifacts of completed runs.
type RankingHandler struct {
	svc RunService
}

// NewRankingHandler creates a RankingHandler.
func NewRankingHandler(svc RunService) *RankingHandler {
	return &RankingHandler{svc: svc}
}

// Get returns the full ranking of a completed run. With format=csv the
// body is the same CSV artifact the CLI writes.
// GET /api/v1/runs/:id/ranking?format=json|csv
func (h *RankingHandler) Get(c *gin.Context) {
	id := common.ID(c.Param("id"))
	ranking, err := h.svc.Ranking(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if c.DefaultQuery("format", "json") == "csv" {
		var buf bytes.Buffer
		if err := ranking.WriteCSV(&buf); err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="ranking-`+string(id)+`.csv"`)
		c.Data(http.StatusOK, "text/csv", buf.Bytes())
		return
	}
	c.JSON(http.StatusOK, ranking)
}

// Hits returns the top n ranked compounds of a completed run.
// GET /api/v1/runs/:id/hits?n=10
func (h *RankingHandler) Hits(c *gin.Context) {
	n := defaultHitCount
	if v, err := atoiQuery(c, "n"); err == nil {
		if v < 1 {
			respondError(c, errors.Newf(errors.ErrCodeBadRequest, "n must be >= 1, got %d", v))
			return
		}
		n = v
	}
	hits, err := h.svc.Hits(c.Request.Context(), common.ID(c.Param("id")), n)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hits": hits})
}

// CompoundRank returns the 1-based rank of one compound within a run.
// GET /api/v1/runs/:id/compounds/:compound/rank
func (h *RankingHandler) CompoundRank(c *gin.Context) {
	rank, err := h.svc.CompoundRank(c.Request.Context(),
		common.ID(c.Param("id")), common.CompoundID(c.Param("compound")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"compound": c.Param("compound"),
		"rank":     rank,
	})
}
