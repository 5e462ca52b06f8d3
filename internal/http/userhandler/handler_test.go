package userhandler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatrelay/internal/services/chatstore"
	"chatrelay/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	chatstore.IChatStore
	names    map[string]string
	appended []chatstore.Message
	err      error
}

func (f *fakeStore) GetUsername(_ context.Context, device string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	n, ok := f.names[device]
	return n, ok, nil
}

func (f *fakeStore) SetUsername(_ context.Context, device, name string) error {
	if f.err != nil {
		return f.err
	}
	f.names[device] = name
	return nil
}

func (f *fakeStore) AppendMessage(_ context.Context, room, username, text string) error {
	f.appended = append(f.appended, chatstore.Message{Room: room, Username: username, Text: text})
	return nil
}

type fakePresence struct {
	snap ws.UsersPayload
	err  error
}

func (f fakePresence) Snapshot(context.Context) (ws.UsersPayload, error) { return f.snap, f.err }

func newEngine(store *fakeStore, presence PresenceSource) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(store, presence).Register(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSetUsername(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantBody string
	}{
		{"ok", `{"device":"d1","name":"alice_01"}`, http.StatusOK, `{"success":"True"}`},
		{"bad json", `{"device":`, http.StatusBadRequest, `{"error":"Invalid JSON"}`},
		{"missing name", `{"device":"d1"}`, http.StatusBadRequest, `{"error":"Missing fields"}`},
		{"missing device", `{"name":"alice"}`, http.StatusBadRequest, `{"error":"Missing fields"}`},
		{"too short", `{"device":"d1","name":"al"}`, http.StatusBadRequest, `{"error":"Username must be 3 - 20 characters"}`},
		{"too long", `{"device":"d1","name":"abcdefghijklmnopqrstu"}`, http.StatusBadRequest, `{"error":"Username must be 3 - 20 characters"}`},
		{"bad chars", `{"device":"d1","name":"al ice"}`, http.StatusBadRequest, `{"error":"Username must be 3 - 20 characters"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{names: map[string]string{}}
			w := do(newEngine(store, fakePresence{}), http.MethodPost, "/set_username", tt.body)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestSetUsernamePersists(t *testing.T) {
	store := &fakeStore{names: map[string]string{}}
	w := do(newEngine(store, fakePresence{}), http.MethodPost, "/set_username", `{"device":"d1","name":"bob"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob", store.names["d1"])
}

func TestSetUsernameStoreError(t *testing.T) {
	store := &fakeStore{names: map[string]string{}, err: errors.New("db down")}
	w := do(newEngine(store, fakePresence{}), http.MethodPost, "/set_username", `{"device":"d1","name":"bob"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSendMessage(t *testing.T) {
	store := &fakeStore{names: map[string]string{"d1": "alice"}}
	r := newEngine(store, fakePresence{})

	w := do(r, http.MethodPost, "/send_message", `{"device":"d1","room":"global","message":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	w = do(r, http.MethodPost, "/send_message", `{"device":"nope","room":"AB12CD","message":"yo"}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []chatstore.Message{
		{Room: "global", Username: "alice", Text: "hi"},
		{Room: "AB12CD", Username: "Anonymous", Text: "yo"},
	}, store.appended)
}

func TestSendMessageValidation(t *testing.T) {
	store := &fakeStore{names: map[string]string{}}
	w := do(newEngine(store, fakePresence{}), http.MethodPost, "/send_message", `{"device":"d1","room":"global"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Missing fields"}`, w.Body.String())
	assert.Empty(t, store.appended)
}

func TestUsers(t *testing.T) {
	presence := fakePresence{snap: ws.NewUsersPayload([]string{"alice"}, []string{"alice", "bob"})}
	w := do(newEngine(&fakeStore{}, presence), http.MethodGet, "/users", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"type":"users","online":["alice"],"all":["alice","bob"]}`, w.Body.String())
}

func TestUsersError(t *testing.T) {
	w := do(newEngine(&fakeStore{}, fakePresence{err: errors.New("db down")}), http.MethodGet, "/users", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
