package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopdesk/docs-service/internal/document"
	"github.com/shopdesk/docs-service/internal/document/lock"
	"github.com/shopdesk/docs-service/internal/document/repository"
	"github.com/shopdesk/docs-service/internal/document/service"
	"github.com/shopdesk/docs-service/pkg/middleware"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func newRouter(svc *service.Service, auth gin.HandlerFunc) *gin.Engine {
	g := gin.New()
	RegisterDocumentRoutes(g, svc, auth)
	return g
}

func do(t *testing.T, g *gin.Engine, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func create(t *testing.T, g *gin.Engine, content string) document.Document {
	t.Helper()
	w := do(t, g, http.MethodPost, "/api/documents", gin.H{
		"title": "Shipping Policy", "category": "legal", "content": content, "author": "admin",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var d document.Document
	decode(t, w, &d)
	return d
}

func TestDocumentLifecycle(t *testing.T) {
	g := newRouter(service.NewMemoryService(), nil)
	d := create(t, g, "v1 text")
	require.Equal(t, document.StatusDraft, d.Status)
	require.Equal(t, 1, d.CurrentVersionNumber)

	for _, content := range []string{"v2 text", "v3 text"} {
		w := do(t, g, http.MethodPatch, "/api/documents/"+d.ID, gin.H{"content": content, "author": "admin"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := do(t, g, http.MethodPost, "/api/documents/"+d.ID+"/revert", gin.H{"version": 1, "author": "admin"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rev struct {
		Document document.Document `json:"document"`
		Version  document.Version  `json:"version"`
	}
	decode(t, w, &rev)
	require.Equal(t, 4, rev.Version.VersionNumber)
	require.Equal(t, "v1 text", rev.Version.Content)
	require.Equal(t, 1, rev.Version.Metadata.RevertedFrom)
	require.Equal(t, document.StatusDraft, rev.Document.Status)

	w = do(t, g, http.MethodGet, "/api/documents/"+d.ID+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hist []document.Version
	decode(t, w, &hist)
	require.Len(t, hist, 4)
	require.Equal(t, 4, hist[0].VersionNumber)

	w = do(t, g, http.MethodGet, "/api/documents/"+d.ID+"/versions/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var v2 document.Version
	decode(t, w, &v2)
	require.Equal(t, "v2 text", v2.Content)

	w = do(t, g, http.MethodGet, "/api/documents/"+d.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var head document.Document
	decode(t, w, &head)
	require.Equal(t, 4, head.CurrentVersionNumber)
}

func TestTransitions(t *testing.T) {
	g := newRouter(service.NewMemoryService(), nil)
	d := create(t, g, "v1 text")

	w := do(t, g, http.MethodGet, "/api/documents/"+d.ID+"/transitions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var next struct {
		Status document.Status `json:"status"`
		Next   []nextStatus    `json:"next"`
	}
	decode(t, w, &next)
	require.Equal(t, document.StatusDraft, next.Status)
	require.Equal(t, []nextStatus{
		{Status: document.StatusPublished, Trigger: document.TriggerPublish},
		{Status: document.StatusReview, Trigger: document.TriggerSubmitForReview},
	}, next.Next)

	for _, s := range []string{"review", "published", "archived"} {
		w = do(t, g, http.MethodPost, "/api/documents/"+d.ID+"/transitions", gin.H{"status": s, "author": "admin"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = do(t, g, http.MethodPost, "/api/documents/"+d.ID+"/transitions", gin.H{"status": "review", "author": "admin"})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), `\"archived\"`)

	w = do(t, g, http.MethodPost, "/api/documents/"+d.ID+"/transitions", gin.H{"author": "admin"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransitionUnknownStatus(t *testing.T) {
	g := newRouter(service.NewMemoryService(), nil)
	d := create(t, g, "v1 text")

	w := do(t, g, http.MethodPost, "/api/documents/"+d.ID+"/transitions", gin.H{"status": "deleted", "author": "admin"})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	decode(t, w, &body)
	require.Equal(t, `unknown status "deleted"`, body.Fields["status"])

	w = do(t, g, http.MethodGet, "/api/documents/"+d.ID, nil)
	var got document.Document
	decode(t, w, &got)
	require.Equal(t, 1, got.CurrentVersionNumber)

	w = do(t, g, http.MethodGet, "/api/documents?status=%20draft%20", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var drafts []document.Document
	decode(t, w, &drafts)
	require.Len(t, drafts, 1)
}

func TestErrorMapping(t *testing.T) {
	g := newRouter(service.NewMemoryService(), nil)

	w := do(t, g, http.MethodGet, "/api/documents/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, g, http.MethodPost, "/api/documents", gin.H{"title": "x", "content": "   "})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	decode(t, w, &body)
	require.Equal(t, "is required", body.Fields["content"])
	require.Equal(t, "is required", body.Fields["author"])

	w = do(t, g, http.MethodPost, "/api/documents", "{not json")
	require.Equal(t, http.StatusBadRequest, w.Code)

	d := create(t, g, "v1 text")
	w = do(t, g, http.MethodGet, "/api/documents/"+d.ID+"/versions/abc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, g, http.MethodGet, "/api/documents/"+d.ID+"/versions/7", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, g, http.MethodPost, "/api/documents/"+d.ID+"/revert", gin.H{"version": 7, "author": "admin"})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, g, http.MethodGet, "/api/documents?status=deleted", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusNotFound, StatusFor(&document.NotFoundError{DocumentID: "x"}))
	require.Equal(t, http.StatusConflict, StatusFor(&document.InvalidTransitionError{From: "published", To: "draft"}))
	require.Equal(t, http.StatusBadRequest, StatusFor(document.NewValidationError(map[string]string{"a": "b"})))
	require.Equal(t, http.StatusNotImplemented, StatusFor(service.ErrSnapshotsDisabled))
	require.Equal(t, http.StatusServiceUnavailable, StatusFor(fmt.Errorf("lock: %w", lock.ErrTimeout)))
	require.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}

func TestListFilters(t *testing.T) {
	g := newRouter(service.NewMemoryService(), nil)
	a := create(t, g, "a")
	create(t, g, "b")
	w := do(t, g, http.MethodPost, "/api/documents/"+a.ID+"/transitions", gin.H{"status": "published", "author": "admin"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, g, http.MethodGet, "/api/documents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all []document.Document
	decode(t, w, &all)
	require.Len(t, all, 2)

	w = do(t, g, http.MethodGet, "/api/documents?status=published", nil)
	var pub []document.Document
	decode(t, w, &pub)
	require.Len(t, pub, 1)
	require.Equal(t, a.ID, pub[0].ID)
}

type stubVerifier struct{}

type stubToken map[string]interface{}

func (s stubToken) Claims(v interface{}) error {
	p, ok := v.(*map[string]interface{})
	if !ok {
		return errors.New("unsupported")
	}
	*p = s
	return nil
}

func (stubVerifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	if raw != "editor" {
		return nil, errors.New("bad token")
	}
	return stubToken{"sub": "u-7", "email": "editor@shop.test"}, nil
}

func TestAuthorFromToken(t *testing.T) {
	g := newRouter(service.NewMemoryService(), middleware.AuthMiddleware(stubVerifier{}))

	body := gin.H{"title": "Terms", "content": "t1", "author": "spoofed"}
	w := do(t, g, http.MethodPost, "/api/documents", body)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, g, http.MethodPost, "/api/documents", body, "Authorization", "Bearer editor")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var d document.Document
	decode(t, w, &d)

	// reads stay public
	w = do(t, g, http.MethodGet, "/api/documents/"+d.ID+"/versions/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var v document.Version
	decode(t, w, &v)
	require.Equal(t, "editor@shop.test", v.Metadata.Author)
}

type urlSnapshots struct{}

func (urlSnapshots) PutSnapshot(ctx context.Context, v *document.Version) (string, error) {
	return fmt.Sprintf("documents/%s/v%d.lz4", v.DocumentID, v.VersionNumber), nil
}

func (urlSnapshots) PresignSnapshot(ctx context.Context, id string, n int, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://objects.test/%s/v%d", id, n), nil
}

func TestExport(t *testing.T) {
	g := newRouter(service.NewMemoryService(), nil)
	d := create(t, g, "v1 text")
	w := do(t, g, http.MethodPost, "/api/documents/"+d.ID+"/versions/1/export", nil)
	require.Equal(t, http.StatusNotImplemented, w.Code)

	svc := service.New(repository.NewMemoryRepo(), nil, service.Options{Snapshots: urlSnapshots{}})
	g = newRouter(svc, nil)
	d = create(t, g, "v1 text")
	w = do(t, g, http.MethodPost, "/api/documents/"+d.ID+"/versions/1/export", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out map[string]string
	decode(t, w, &out)
	require.Equal(t, "https://objects.test/"+d.ID+"/v1", out["url"])
}
