package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/api/types"
	"github.com/clipforge/clipforge/internal/database"
)

func getHealth(t *testing.T, deps *types.Dependencies) map[string]interface{} {
	t.Helper()

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	RegisterRoutes(engine, deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthWithoutDatabase(t *testing.T) {
	body := getHealth(t, &types.Dependencies{})

	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "timestamp")

	dbStatus, ok := body["database"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "not configured", dbStatus["status"])
}

func TestHealthWithDatabase(t *testing.T) {
	db, err := database.Initialize(filepath.Join(t.TempDir(), "health.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	body := getHealth(t, &types.Dependencies{DB: db})

	assert.Equal(t, "ok", body["status"])
	dbStatus, ok := body["database"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "healthy", dbStatus["status"])
}
