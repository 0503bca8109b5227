// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/kadirpekel/codegate/pkg/models"
	"github.com/kadirpekel/codegate/pkg/notifications"
	"github.com/kadirpekel/codegate/pkg/storage"
)

type fakeLister struct {
	mu    sync.Mutex
	names []string
	err   error
	calls int
}

func (f *fakeLister) Models(_ context.Context, _ models.ProviderType, _, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.names, nil
}

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int    { return 3 }
func (f *fakeEmbedder) ModelName() string { return "fake-embedder" }
func (f *fakeEmbedder) Close() error      { return nil }

type fakeSyncer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSyncer) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakeSyncer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testServer struct {
	*Server
	handler  http.Handler
	lister   *fakeLister
	embedder *fakeEmbedder
	syncer   *fakeSyncer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := storage.Open("sqlite", filepath.Join(t.TempDir(), "codegate.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	workspaces := storage.NewWorkspaceService(store)
	if err := workspaces.EnsureDefault(context.Background()); err != nil {
		t.Fatalf("EnsureDefault() error = %v", err)
	}

	lister := &fakeLister{names: []string{"gpt-4o", "gpt-4o-mini"}}
	embedder := &fakeEmbedder{}
	syncer := &fakeSyncer{}
	broadcaster := notifications.NewBroadcaster()
	t.Cleanup(broadcaster.Close)

	s := &Server{
		Workspaces: workspaces,
		Providers:  storage.NewProviderService(store),
		Muxes:      storage.NewMuxService(store),
		Personas:   storage.NewPersonaService(store),
		Records:    storage.NewRecordService(store),
		Upstream:   lister,
		Embedder:   embedder,
		Alerts:     broadcaster,
		Rules:      syncer,
		Version:    "test",
	}
	return &testServer{
		Server:   s,
		handler:  s.Routes(),
		lister:   lister,
		embedder: embedder,
		syncer:   syncer,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestVersionEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/version", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /version = %d, want 200", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["version"] != "test" {
		t.Errorf("version = %q, want test", body["version"])
	}
}

func TestSchemaEndpointServesJSONSchema(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/schema", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /schema = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if !strings.Contains(rec.Body.String(), "properties") {
		t.Error("schema body has no properties object")
	}
}

func TestInternalErrorsHideDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	respondError(rec, req, io.ErrUnexpectedEOF)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "unexpected EOF") {
		t.Error("internal error detail leaked into the response body")
	}
}
