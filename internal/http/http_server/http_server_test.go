package http_server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"chatrelay/internal/services/chatstore"
	"chatrelay/internal/services/moderation"
	"chatrelay/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nameStore struct {
	chatstore.IChatStore
}

func (nameStore) AllUsernames(context.Context) ([]string, error) {
	return []string{"alice"}, nil
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>chat</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "script.js"), []byte("// js"), 0o644))

	store := nameStore{}
	wsSrv := ws.NewWsServer(ws.NewHub(), store, moderation.NewDefault(), ws.DefaultOptions())
	return NewHttpServer(context.Background(), 8000, dir, wsSrv, store).Routes()
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRoutes(t *testing.T) {
	h := newTestServer(t)

	w := get(h, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(h, "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<h1>chat</h1>")

	w = get(h, "/static/script.js")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(h, "/users")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"type":"users","online":[],"all":["alice"]}`, w.Body.String())
}

func TestWsRouteRejectsPlainGet(t *testing.T) {
	w := get(newTestServer(t), "/ws")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
