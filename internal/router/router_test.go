package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"hearcheck-go/internal/config"
	"hearcheck-go/internal/database"
	"hearcheck-go/internal/repository"
	"hearcheck-go/internal/screening"
	"hearcheck-go/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestRouter(t *testing.T, rateLimit uint) *gin.Engine {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := services.NewScreeningService(repository.NewSQLiteRepository(db), screening.DefaultProtocol(), zap.NewNop())
	conf := &config.Config{Server: config.ServerConfig{
		Mode:              gin.TestMode,
		SessionSecret:     "test-secret",
		RegisterRateLimit: rateLimit,
	}}
	r, err := Setup(zap.NewNop(), conf, svc)
	require.NoError(t, err)
	return r
}

func do(r http.Handler, method, target string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func registerUser(t *testing.T, r http.Handler) (uint, []*http.Cookie) {
	t.Helper()
	w := do(r, http.MethodPost, "/register", gin.H{"name": "Ada", "surname": "Lovelace", "age_group": "18-30", "gender": "female"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	id := decode(t, w)["user_id"].(float64)
	return uint(id), w.Result().Cookies()
}

func userQuery(path string, id uint) string {
	return path + "?user_id=" + strconv.FormatUint(uint64(id), 10)
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t, 100)

	w := do(r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))

	id, _ := registerUser(t, r)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/start_test", gin.H{"user_id": id}).Code)

	w = do(r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hearcheck_screening_tests_started_total")
}

func TestRegister_Validation(t *testing.T) {
	r := newTestRouter(t, 100)

	tests := []struct {
		name string
		body any
	}{
		{"missing name", gin.H{"surname": "Lovelace"}},
		{"digits in name", gin.H{"name": "R2D2", "surname": "Lovelace"}},
		{"control chars in label", gin.H{"name": "Ada", "surname": "Lovelace", "gender": "a\nb"}},
		{"not json", "just a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/register", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestRegister_RateLimited(t *testing.T) {
	r := newTestRouter(t, 1)

	registerUser(t, r)
	w := do(r, http.MethodPost, "/register", gin.H{"name": "Ada", "surname": "Lovelace"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestUserIDResolution(t *testing.T) {
	r := newTestRouter(t, 100)
	id, cookies := registerUser(t, r)

	w := do(r, http.MethodGet, "/get_user_info", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "no id and no session")

	w = do(r, http.MethodGet, "/get_user_info?user_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, userQuery("/get_user_info", id+99), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, userQuery("/get_user_info", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ada", decode(t, w)["name"])

	w = do(r, http.MethodGet, "/get_user_info", nil, cookies...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Lovelace", decode(t, w)["surname"])

	// The cookie session also serves a bodyless start.
	w = do(r, http.MethodPost, "/start_test", nil, cookies...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Same with a chunked empty body, whose length is unknown up front.
	req := httptest.NewRequest(http.MethodPost, "/start_test", io.NopCloser(strings.NewReader("")))
	req.Header.Set("Content-Type", "application/json")
	require.Equal(t, int64(-1), req.ContentLength)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodPost, "/start_test", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "empty body without a session")
}

func TestScreeningFlow(t *testing.T) {
	r := newTestRouter(t, 100)
	id, _ := registerUser(t, r)

	w := do(r, http.MethodGet, userQuery("/next_test", id), nil)
	assert.Equal(t, http.StatusConflict, w.Code, "no test started")
	w = do(r, http.MethodPost, "/submit_response", gin.H{"user_id": id, "heard": true})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodPost, "/start_test", gin.H{"user_id": id})
	require.Equal(t, http.StatusOK, w.Code)
	desc := decode(t, w)
	assert.Equal(t, 5000.0, desc["freq"])
	assert.Equal(t, "left", desc["ear"])
	assert.Equal(t, 40.0, desc["level"])
	assert.Equal(t, 0.0, desc["progress"])
	assert.Equal(t, 1.0, desc["test_number"])
	assert.Equal(t, 12.0, desc["total_tests"])
	assert.Equal(t, 1.0, desc["volume"])

	w = do(r, http.MethodPost, "/submit_response", gin.H{"user_id": id})
	assert.Equal(t, http.StatusBadRequest, w.Code, "heard is required")

	w = do(r, http.MethodGet, userQuery("/summary", id), nil)
	assert.Equal(t, http.StatusConflict, w.Code, "summary before completion")

	completed := false
	for i := 0; i < 72; i++ {
		w = do(r, http.MethodPost, "/submit_response", gin.H{"user_id": id, "heard": true})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		ack := decode(t, w)
		assert.Equal(t, true, ack["success"])
		completed = ack["test_completed"].(bool)
	}
	assert.True(t, completed)

	w = do(r, http.MethodGet, userQuery("/next_test", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	assert.Equal(t, true, res["completed"])
	assert.Equal(t, -10.0, res["left_avg"])
	assert.Equal(t, 0.0, res["dissimilarity"])
	left := res["thresholds"].(map[string]any)["left"].(map[string]any)
	assert.Equal(t, -10.0, left["250"])

	w = do(r, http.MethodPost, "/submit_response", gin.H{"user_id": id, "heard": true})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodGet, userQuery("/summary", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, -10.0, decode(t, w)["right_avg"])

	w = do(r, http.MethodGet, userQuery("/audiogram", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	audio := decode(t, w)
	assert.Equal(t, -10.0, audio["left_avg"])
	assert.Equal(t, 0.0, audio["dissimilarity"])

	w = do(r, http.MethodGet, userQuery("/audiogram/chart", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Left ear")
	assert.Contains(t, w.Body.String(), "series")

	w = do(r, http.MethodGet, userQuery("/audiogram/history", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Dissimilarity")
}

func TestAudiogram_BeforeCompletion(t *testing.T) {
	r := newTestRouter(t, 100)
	id, _ := registerUser(t, r)

	w := do(r, http.MethodGet, userQuery("/audiogram", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode(t, w)["left_avg"])

	w = do(r, http.MethodGet, userQuery("/audiogram/chart", id), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTone(t *testing.T) {
	r := newTestRouter(t, 100)

	w := do(r, http.MethodGet, "/tone", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/wav", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "RIFF"))

	w = do(r, http.MethodGet, "/tone?freq=500&duration=0.1&volume=0.5&channel=left", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 44+int(44100*0.1)*4, w.Body.Len())

	for _, q := range []string{"freq=abc", "freq=10", "duration=9", "volume=2", "channel=middle"} {
		w = do(r, http.MethodGet, "/tone?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}
