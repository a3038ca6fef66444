package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/api/types"
	"github.com/clipforge/clipforge/internal/models"
	jobsService "github.com/clipforge/clipforge/internal/services/jobs"
)

// stubService implements jobs.Service backed by an in-memory job list.
type stubService struct {
	jobsService.Service
	byPlan  map[string]*models.RenderJob
	byAsset map[string][]*models.RenderJob
	err     error
}

func (s *stubService) GetJobByPlanID(_ context.Context, planID string) (*models.RenderJob, error) {
	if s.err != nil {
		return nil, s.err
	}
	job, ok := s.byPlan[planID]
	if !ok {
		return nil, jobsService.ErrJobNotFound
	}
	return job, nil
}

func (s *stubService) GetJobsByAsset(_ context.Context, assetID string, limit int) ([]*models.RenderJob, error) {
	if s.err != nil {
		return nil, s.err
	}
	jobs := s.byAsset[assetID]
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func testRouter(svc jobsService.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	RegisterRoutes(engine.Group("/api/v1"), &types.Dependencies{JobService: svc})
	return engine
}

func doRequest(t *testing.T, engine *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestGetByPlanID(t *testing.T) {
	job := &models.RenderJob{
		PlanID:     "plan-1",
		AssetID:    "asset-1",
		State:      models.JobStateDone,
		Seq:        3,
		RetryCount: 1,
		Result:     models.JobCheckpoint{"video_path": "/out/asset-1/plan-1.mp4"},
	}
	job.ID = 42
	now := time.Now()
	job.StartedAt = &now
	job.CompletedAt = &now

	engine := testRouter(&stubService{byPlan: map[string]*models.RenderJob{"plan-1": job}})

	w, body := doRequest(t, engine, "/api/v1/jobs/plan-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(42), body["job_id"])
	assert.Equal(t, "plan-1", body["plan_id"])
	assert.Equal(t, "done", body["state"])
	assert.Equal(t, float64(3), body["seq"])
	assert.Contains(t, body, "started_at")
	assert.Contains(t, body, "completed_at")
	assert.NotContains(t, body, "error")

	result, ok := body["result"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "/out/asset-1/plan-1.mp4", result["video_path"])
}

func TestGetByPlanIDNotFound(t *testing.T) {
	engine := testRouter(&stubService{byPlan: map[string]*models.RenderJob{}})

	w, body := doRequest(t, engine, "/api/v1/jobs/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, body["error"], "missing")
}

func TestGetByPlanIDServiceError(t *testing.T) {
	engine := testRouter(&stubService{err: assert.AnError})

	w, _ := doRequest(t, engine, "/api/v1/jobs/plan-1")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetByPlanIDIncludesErrorTaxonomy(t *testing.T) {
	job := &models.RenderJob{
		PlanID:       "plan-1",
		AssetID:      "asset-1",
		State:        models.JobStateFailed,
		Error:        "plan failed validation",
		ErrorKind:    "validation",
		ErrorCode:    "plan_invalid",
		ErrorDetails: "2 violations",
		Violations: models.JobCheckpoint{
			"violations": []interface{}{map[string]interface{}{"field": "cuts", "rule": "order"}},
		},
	}
	job.ID = 7

	engine := testRouter(&stubService{byPlan: map[string]*models.RenderJob{"plan-1": job}})

	w, body := doRequest(t, engine, "/api/v1/jobs/plan-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "failed", body["state"])

	errBody, ok := body["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "validation", errBody["kind"])
	assert.Equal(t, "plan_invalid", errBody["code"])
	assert.Equal(t, "plan failed validation", errBody["message"])
	assert.Contains(t, body, "violations")
}

func TestListByAsset(t *testing.T) {
	newer := &models.RenderJob{PlanID: "plan-2", AssetID: "asset-1", State: models.JobStateQueued, Seq: 2}
	newer.ID = 2
	older := &models.RenderJob{PlanID: "plan-1", AssetID: "asset-1", State: models.JobStateCancelled, Seq: 1}
	older.ID = 1

	engine := testRouter(&stubService{
		byAsset: map[string][]*models.RenderJob{"asset-1": {newer, older}},
	})

	w, body := doRequest(t, engine, "/api/v1/assets/asset-1/jobs")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "asset-1", body["asset_id"])
	assert.Equal(t, float64(2), body["count"])

	items, ok := body["jobs"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 2)
	first := items[0].(map[string]interface{})
	assert.Equal(t, "plan-2", first["plan_id"])
}

func TestListByAssetRespectsLimit(t *testing.T) {
	var jobs []*models.RenderJob
	for i := 0; i < 5; i++ {
		job := &models.RenderJob{PlanID: "plan", AssetID: "asset-1", Seq: int64(i)}
		job.ID = uint(i + 1)
		jobs = append(jobs, job)
	}

	engine := testRouter(&stubService{byAsset: map[string][]*models.RenderJob{"asset-1": jobs}})

	w, body := doRequest(t, engine, "/api/v1/assets/asset-1/jobs?limit=2")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["count"])
}

func TestListByAssetRejectsBadLimit(t *testing.T) {
	engine := testRouter(&stubService{})

	for _, limit := range []string{"0", "101", "abc"} {
		w, _ := doRequest(t, engine, "/api/v1/assets/asset-1/jobs?limit="+limit)
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", limit)
	}
}

func TestListByAssetEmpty(t *testing.T) {
	engine := testRouter(&stubService{byAsset: map[string][]*models.RenderJob{}})

	w, body := doRequest(t, engine, "/api/v1/assets/asset-1/jobs")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["count"])
}
