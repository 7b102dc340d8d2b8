package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/draft-staging-api/internal/api"
	"github.com/draft-staging-api/internal/config"
	"github.com/draft-staging-api/internal/deploy"
	"github.com/draft-staging-api/internal/mocks"
	"github.com/draft-staging-api/internal/repository"
	"github.com/draft-staging-api/internal/service"
	"github.com/draft-staging-api/internal/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminToken = "s3cret"

type testEnv struct {
	router *gin.Engine
	store  *mocks.MockStore
	static *mocks.MockStaticStore
	hook   *mocks.MockDeployTrigger
}

func setupTestRouter(t *testing.T, env string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	te := &testEnv{
		store:  mocks.NewMockStore(),
		static: mocks.NewMockStaticStore(),
		hook:   mocks.NewMockDeployTrigger("https://hooks.example/deploy"),
	}

	cfg := &config.Config{
		Env:    env,
		Server: config.ServerConfig{Port: "8080"},
		Auth:   config.AuthConfig{AdminToken: adminToken},
	}

	log := zerolog.Nop()
	metrics := telemetry.New()
	repos := repository.New(te.store, log)
	services := service.NewServices(repos, te.static, te.hook, cfg, metrics, log)
	te.router = api.NewRouter(services, cfg, log, api.Options{
		Metrics: metrics,
		Now:     func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) },
	})
	return te
}

func (te *testEnv) do(method, path, body string, admin bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}
	w := httptest.NewRecorder()
	te.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return response
}

const createBody = `{"title":"Hello, World!","description":"First post","content":"# Hi","publishedAt":"2024-01-15","tags":["go"],"sendAsNewsletter":false}`

func TestHealthEndpoint(t *testing.T) {
	te := setupTestRouter(t, "development")

	w := te.do("GET", "/health", "", false)
	require.Equal(t, http.StatusOK, w.Code)

	response := decode(t, w)
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "draft-staging-api", response["service"])
}

func TestMetricsEndpoint(t *testing.T) {
	te := setupTestRouter(t, "development")
	te.do("GET", "/health", "", false)

	w := te.do("GET", "/metrics", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `content_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	te := setupTestRouter(t, "development")

	w := te.do("GET", "/v1/admin/posts", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest("GET", "/v1/admin/posts", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	te.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = te.do("GET", "/v1/admin/posts", "", true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreatePost(t *testing.T) {
	te := setupTestRouter(t, "development")

	w := te.do("POST", "/v1/admin/posts", createBody, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	post := decode(t, w)["post"].(map[string]interface{})
	assert.Equal(t, "hello-world", post["slug"])
	assert.Equal(t, "draft", post["status"])
	assert.Nil(t, post["newsletterSentAt"])

	w = te.do("GET", "/v1/admin/posts/hello-world", "", true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreatePost_Conflict(t *testing.T) {
	te := setupTestRouter(t, "development")
	require.Equal(t, http.StatusCreated, te.do("POST", "/v1/admin/posts", createBody, true).Code)

	w := te.do("POST", "/v1/admin/posts", createBody, true)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "a record with this title already exists", decode(t, w)["error"])
}

func TestCreatePost_ValidationListsEveryError(t *testing.T) {
	te := setupTestRouter(t, "development")

	w := te.do("POST", "/v1/admin/posts", `{"title":"","tags":"nope"}`, true)
	require.Equal(t, http.StatusBadRequest, w.Code)

	errs := decode(t, w)["errors"].([]interface{})
	fields := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.(map[string]interface{})["field"].(string))
	}
	assert.ElementsMatch(t, []string{"title", "description", "content", "publishedAt", "tags", "sendAsNewsletter"}, fields)
}

func TestCreatePost_StorageUnavailable(t *testing.T) {
	te := setupTestRouter(t, "development")
	te.store.SetDown(true)

	w := te.do("POST", "/v1/admin/posts", createBody, true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListPosts_OutageServesEmptyListing(t *testing.T) {
	te := setupTestRouter(t, "development")
	require.Equal(t, http.StatusCreated, te.do("POST", "/v1/admin/posts", createBody, true).Code)
	te.store.SetDown(true)

	w := te.do("GET", "/v1/admin/posts", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	response := decode(t, w)
	assert.Equal(t, []interface{}{}, response["posts"])
	assert.Equal(t, float64(0), response["total"])
}

func TestSavePost_RenameAndOverride(t *testing.T) {
	te := setupTestRouter(t, "development")
	require.Equal(t, http.StatusCreated, te.do("POST", "/v1/admin/posts", createBody, true).Code)

	w := te.do("PUT", "/v1/admin/posts/hello-world", `{"title":"Goodbye World"}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	post := decode(t, w)["post"].(map[string]interface{})
	assert.Equal(t, "goodbye-world", post["slug"])
	assert.Equal(t, http.StatusNotFound, te.do("GET", "/v1/admin/posts/hello-world", "", true).Code)

	te.static.Seed("archived", "---\ntitle: 'Archived'\ndescription: 'd'\npublishedAt: '2020-01-01'\ntags: []\nsendAsNewsletter: false\nnewsletterSentAt: null\n---\n\nbody\n")
	w = te.do("PUT", "/v1/admin/posts/archived", `{"content":"new body"}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	post = decode(t, w)["post"].(map[string]interface{})
	assert.Equal(t, "archived", post["slug"])
	assert.Equal(t, "new body", post["content"])

	w = te.do("PUT", "/v1/admin/posts/missing", `{"content":"x"}`, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = te.do("PUT", "/v1/admin/posts/archived", `{"newsletterSentAt":"soon"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeletePost(t *testing.T) {
	te := setupTestRouter(t, "development")
	require.Equal(t, http.StatusCreated, te.do("POST", "/v1/admin/posts", createBody, true).Code)
	te.static.Seed("archived", "---\ntitle: 'Archived'\ndescription: 'd'\npublishedAt: '2020-01-01'\ntags: []\nsendAsNewsletter: false\nnewsletterSentAt: null\n---\n\nbody\n")

	w := te.do("DELETE", "/v1/admin/posts/hello-world", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "draft", decode(t, w)["outcome"])

	w = te.do("DELETE", "/v1/admin/posts/archived", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "marked", decode(t, w)["outcome"])
	assert.True(t, te.static.Has("archived"), "static files go at the next materialization")

	w = te.do("DELETE", "/v1/admin/posts/nothing-here", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublishFlowAndPublicCatalog(t *testing.T) {
	te := setupTestRouter(t, "development")
	require.Equal(t, http.StatusCreated, te.do("POST", "/v1/admin/posts", createBody, true).Code)

	assert.Equal(t, http.StatusNotFound, te.do("GET", "/v1/articles/hello-world", "", false).Code)

	w := te.do("POST", "/v1/admin/posts/hello-world/publish", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "published", decode(t, w)["post"].(map[string]interface{})["status"])

	w = te.do("GET", "/v1/articles/hello-world", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# Hi", decode(t, w)["post"].(map[string]interface{})["content"])

	w = te.do("GET", "/v1/articles", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total"])

	w = te.do("POST", "/v1/admin/posts/hello-world/unpublish", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusNotFound, te.do("GET", "/v1/articles/hello-world", "", false).Code)

	assert.Equal(t, http.StatusNotFound, te.do("POST", "/v1/admin/posts/ghost/publish", "", true).Code)
}

func TestPreviewPost(t *testing.T) {
	te := setupTestRouter(t, "development")

	w := te.do("POST", "/v1/admin/posts/new/preview", `{"content":"# Title\n\n**bold**"}`, true)
	require.Equal(t, http.StatusOK, w.Code)

	p := decode(t, w)["preview"].(map[string]interface{})
	assert.Equal(t, "Untitled", p["title"])
	assert.Equal(t, "2024-03-09", p["publishedAt"])
	assert.Contains(t, p["content"], "<strong>bold</strong>")

	w = te.do("POST", "/v1/admin/posts/new/preview", `{"title":"x"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMaterializeEndpoint(t *testing.T) {
	te := setupTestRouter(t, "development")
	require.Equal(t, http.StatusCreated, te.do("POST", "/v1/admin/posts", createBody, true).Code)

	w := te.do("POST", "/v1/admin/build/materialize", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.Equal(t, float64(1), response["processed"])
	assert.Equal(t, []interface{}{}, response["errors"])
	assert.True(t, strings.HasPrefix(string(te.static.Files["hello-world"]), "---\ntitle: 'Hello, World!'"))

	w = te.do("POST", "/v1/admin/build/materialize", "", true)
	response = decode(t, w)
	assert.Equal(t, float64(0), response["processed"])
}

func TestTriggerEndpoint(t *testing.T) {
	t.Run("production calls hook", func(t *testing.T) {
		te := setupTestRouter(t, "production")
		w := te.do("POST", "/v1/admin/build/trigger", "", true)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://deploy.example/builds/1", decode(t, w)["deploymentUrl"])
		assert.Equal(t, 1, te.hook.Calls())
	})

	t.Run("hook failure is a bad gateway", func(t *testing.T) {
		te := setupTestRouter(t, "production")
		te.hook.TriggerFunc = func(_ context.Context) (*deploy.Response, error) {
			return nil, deploy.ErrHookFailed
		}
		w := te.do("POST", "/v1/admin/build/trigger", "", true)
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestNightlyAndStats(t *testing.T) {
	te := setupTestRouter(t, "production")

	w := te.do("GET", "/v1/cron/nightly-build", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["triggered"])

	require.Equal(t, http.StatusCreated, te.do("POST", "/v1/admin/posts", createBody, true).Code)

	w = te.do("GET", "/stats", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	pending := decode(t, w)["pending"].(map[string]interface{})
	assert.Equal(t, float64(1), pending["tempPosts"])
	assert.Equal(t, float64(0), pending["deletions"])

	w = te.do("GET", "/v1/cron/nightly-build", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.Equal(t, true, response["triggered"])
	assert.Equal(t, float64(1), response["tempPosts"])
}

func TestStaticTokenAuthorizer(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		header string
		ok     bool
	}{
		{"matching token", "abc", "Bearer abc", true},
		{"wrong token", "abc", "Bearer abd", false},
		{"missing header", "abc", "", false},
		{"basic scheme", "abc", "Basic abc", false},
		{"unset token rejects all", "", "Bearer ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			err := api.NewStaticTokenAuthorizer(tt.token).Authorize(req)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, api.ErrUnauthorized)
			}
		})
	}
}

func TestHealthEndpoint_BackendDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := mocks.NewMockStore()
	cfg := &config.Config{Env: "development"}
	services := service.NewServices(repository.New(store, zerolog.Nop()), mocks.NewMockStaticStore(), nil, cfg, nil, zerolog.Nop())
	router := api.NewRouter(services, cfg, zerolog.Nop(), api.Options{
		HealthCheck: func(context.Context) error { return errors.New("connection refused") },
	})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", decode(t, w)["status"])
}
