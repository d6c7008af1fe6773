package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"

	"drydock/internal/config"
	"drydock/internal/db"
	"drydock/internal/domain"
	"drydock/internal/engine"
	"drydock/internal/migrate"
	"drydock/internal/render"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(), render.NewJSONRenderer(filepath.Join(workspace, "reports")))
	ctx := context.Background()
	for _, a := range []domain.Actor{
		{ID: "root", Username: "root", Role: "admin", Active: true, CreatedAt: "2026-03-01T00:00:00Z"},
		{ID: "pm1", Username: "pm1", Role: "project_manager", Active: true, CreatedAt: "2026-03-01T00:00:00Z"},
		{ID: "pm2", Username: "pm2", Role: "project_manager", Active: true, CreatedAt: "2026-03-01T00:00:00Z"},
		{ID: "eng1", Username: "eng1", Role: "engineer", Active: true, CreatedAt: "2026-03-01T00:00:00Z"},
	} {
		if err := e.Repo.InsertActor(ctx, nil, a); err != nil {
			t.Fatalf("seed actor %s: %v", a.ID, err)
		}
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asActor(id string) map[string]string {
	return map[string]string{"X-Actor-Id": id}
}

func TestHealthIsOpen(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
}

func TestDevLoginBearerFlow(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{"actor_id": "pm1"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, data)
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("unmarshal token: %v (%s)", err, data)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, data)
	}
	var me WhoAmIResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	// the role comes from the actors table, not the token
	if me.ActorID != "pm1" || me.Role != "project_manager" {
		t.Fatalf("unexpected identity: %+v", me)
	}
}

func TestMissingAndScopedOutAreIdentical(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"id":   "p1",
		"name": "Retrofit p1",
	}, asActor("pm1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, data)
	}

	// pm2 reads pm1's project and a project that does not exist
	resScoped, bodyScoped := doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/p1", nil, asActor("pm2"))
	resMissing, bodyMissing := doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/nope", nil, asActor("pm2"))
	if resScoped.StatusCode != http.StatusNotFound || resMissing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404/404, got %d/%d", resScoped.StatusCode, resMissing.StatusCode)
	}
	if !bytes.Equal(bodyScoped, bodyMissing) {
		t.Fatalf("envelopes differ:\n%s\n%s", bodyScoped, bodyMissing)
	}
}

func TestInvalidTransitionEnvelope(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"id": "p1", "name": "Retrofit p1",
	}, asActor("pm1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/p1/tasks", map[string]any{
		"name": "paint hull", "status": "completed",
	}, asActor("pm1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, data)
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+task.ID+"/status", map[string]any{
		"status": "pending",
	}, asActor("root"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %q", envelope.Error.Code)
	}
}

func TestPermissionDeniedEnvelope(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"name": "forbidden",
	}, asActor("eng1"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "permission_denied" {
		t.Fatalf("expected permission_denied, got %q", envelope.Error.Code)
	}
}

func TestInventoryLowStockFilter(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	for _, item := range []map[string]any{
		{"name": "zinc anode", "quantity": 2, "reorder_level": 5},
		{"name": "hull paint", "quantity": 40, "reorder_level": 5},
	} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/inventory", item, asActor("root"))
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create item: %d %s", res.StatusCode, data)
		}
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/inventory?low_stock=true", nil, asActor("eng1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", res.StatusCode, data)
	}
	var items []InventoryItemResponse
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(items) != 1 || items[0].Name != "zinc anode" || !items[0].LowStock {
		t.Fatalf("unexpected low-stock listing: %+v", items)
	}
}
