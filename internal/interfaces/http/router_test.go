package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MorphoScreen/internal/application/runs"
	"github.com/turtacn/MorphoScreen/internal/domain/screen"
	"github.com/turtacn/MorphoScreen/internal/interfaces/http/handlers"
	"github.com/turtacn/MorphoScreen/pkg/errors"
	"github.com/turtacn/MorphoScreen/pkg/types/common"
)

type fakeRunService struct {
	run     *screen.Run
	ranking *screen.Ranking
	err     error
}

func (f *fakeRunService) Submit(_ context.Context, _ runs.SubmitRequest) (*screen.Run, error) {
	return f.run, f.err
}

func (f *fakeRunService) Get(_ context.Context, id common.ID) (*screen.Run, error) {
	if f.run != nil && f.run.ID == id {
		return f.run, nil
	}
	return nil, errors.Newf(errors.ErrCodeRunNotFound, "run %s not found", id)
}

func (f *fakeRunService) List(_ context.Context, _ string, p common.Pagination) ([]*screen.Run, int64, error) {
	if f.run == nil {
		return nil, 0, nil
	}
	return []*screen.Run{f.run}, 1, nil
}

func (f *fakeRunService) Ranking(_ context.Context, id common.ID) (*screen.Ranking, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ranking, nil
}

func (f *fakeRunService) Hits(ctx context.Context, id common.ID, n int) ([]screen.CompoundScore, error) {
	ranking, err := f.Ranking(ctx, id)
	if err != nil {
		return nil, err
	}
	return ranking.Hits(n), nil
}

func (f *fakeRunService) CompoundRank(_ context.Context, _ common.ID, compound common.CompoundID) (int, error) {
	if f.ranking == nil {
		return 0, errors.New(errors.ErrCodeNotFound, "not ranked")
	}
	for _, e := range f.ranking.Entries {
		if e.Compound == compound {
			return e.Rank, nil
		}
	}
	return 0, errors.New(errors.ErrCodeNotFound, "not ranked")
}

type okCheck struct{}

func (okCheck) HealthCheck(context.Context) error { return nil }

type badCheck struct{}

func (badCheck) HealthCheck(context.Context) error {
	return errors.New(errors.ErrCodeDatabaseError, "connection refused")
}

func testRouter(svc handlers.RunService, checks map[string]handlers.HealthChecker) *gin.Engine {
	return NewRouter(RouterConfig{
		Mode:     gin.TestMode,
		Health:   handlers.NewHealthHandler(checks),
		Runs:     handlers.NewRunHandler(svc),
		Rankings: handlers.NewRankingHandler(svc),
	})
}

func sampleRanking(runID common.ID) *screen.Ranking {
	return &screen.Ranking{
		RunID:    runID,
		Strategy: "weighted_sum",
		Entries: []screen.CompoundScore{
			{RunID: runID, Compound: "cmpd-a", OnScore: 0.1, OffScore: 0.2, Rank: 1},
			{RunID: runID, Compound: "cmpd-b", OnScore: 1.5, OffScore: 0.3, Rank: 2},
			{RunID: runID, Compound: "cmpd-c", Excluded: true, Reason: "no clusters found (all points labelled noise)"},
		},
	}
}

func TestHealthz(t *testing.T) {
	r := testRouter(&fakeRunService{}, map[string]handlers.HealthChecker{"db": okCheck{}})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyzDegraded(t *testing.T) {
	r := testRouter(&fakeRunService{}, map[string]handlers.HealthChecker{
		"db":    okCheck{},
		"redis": badCheck{},
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["db"])
	assert.Contains(t, body.Checks["redis"], "connection refused")
}

func TestCreateRunAccepted(t *testing.T) {
	id := common.NewID()
	svc := &fakeRunService{run: &screen.Run{ID: id, Status: screen.RunStatusPending}}
	r := testRouter(svc, nil)

	body, _ := json.Marshal(runs.SubmitRequest{
		Screen:        "neuro-rescreen",
		ProfileObject: "profiles/plate-007.csv",
		GroupColumn:   "group",
		CompoundCol:   "compound",
		Reference:     "disease",
		Control:       "healthy",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	var got screen.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, id, got.ID)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCreateRunValidationError(t *testing.T) {
	svc := &fakeRunService{err: errors.New(errors.ErrCodeValidation, "missing required fields: screen")}
	r := testRouter(svc, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body struct {
		Error common.ErrorDetail `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "COMMON_005", body.Error.Code)
	assert.Contains(t, body.Error.Message, "missing required fields")
}

func TestGetRunNotFound(t *testing.T) {
	r := testRouter(&fakeRunService{}, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetRankingJSON(t *testing.T) {
	id := common.NewID()
	svc := &fakeRunService{ranking: sampleRanking(id)}
	r := testRouter(svc, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+string(id)+"/ranking", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var got screen.Ranking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, id, got.RunID)
	assert.Len(t, got.Entries, 3)
}

func TestGetRankingCSV(t *testing.T) {
	id := common.NewID()
	svc := &fakeRunService{ranking: sampleRanking(id)}
	r := testRouter(svc, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+string(id)+"/ranking?format=csv", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "rank,compound,on_score,off_score,excluded,reason", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,cmpd-a,"))
}

func TestHits(t *testing.T) {
	id := common.NewID()
	svc := &fakeRunService{ranking: sampleRanking(id)}
	r := testRouter(svc, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+string(id)+"/hits?n=1", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Hits []screen.CompoundScore `json:"hits"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Hits, 1)
	assert.Equal(t, common.CompoundID("cmpd-a"), body.Hits[0].Compound)
}

func TestHitsRejectsBadCount(t *testing.T) {
	r := testRouter(&fakeRunService{ranking: sampleRanking(common.NewID())}, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/x/hits?n=0", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCompoundRank(t *testing.T) {
	id := common.NewID()
	svc := &fakeRunService{ranking: sampleRanking(id)}
	r := testRouter(svc, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+string(id)+"/compounds/cmpd-b/rank", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Compound string `json:"compound"`
		Rank     int    `json:"rank"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "cmpd-b", body.Compound)
	assert.Equal(t, 2, body.Rank)
}
