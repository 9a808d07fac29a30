package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"flatpack/internal/config"
	"flatpack/internal/db"
	"flatpack/internal/engine"
	"flatpack/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
		},
		DevLogin: true,
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
	return testSrv, func() { testSrv.Close() }
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

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("decode error envelope %s: %v", data, err)
	}
	return envelope.Error.Code
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", res.StatusCode)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list status = %d body=%s", res.StatusCode, data)
	}
}

func TestDevLoginAndMe(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "alice",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status = %d body=%s", res.StatusCode, data)
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("dev login body %s: %v", data, err)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d body=%s", res.StatusCode, data)
	}
	var me ProfileResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.ActorID != "alice" {
		t.Fatalf("me actor = %s", me.ActorID)
	}
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	// bob registers as an assembler
	res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/me", map[string]any{
		"is_assembler": true,
	}, asActor("bob"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("register assembler status = %d body=%s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"title":          "Assemble bookshelf",
		"furniture_type": "bookshelf",
		"budget":         80,
	}, asActor("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status = %d body=%s", res.StatusCode, data)
	}
	var p ProjectResponse
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("decode project: %v", err)
	}
	if p.Status != "open" || p.CreatorID != "alice" {
		t.Fatalf("created project = %+v", p)
	}

	// only the creator can assign
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/assign", map[string]any{
		"assigned_to": "bob",
	}, asActor("mallory"))
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "forbidden" {
		t.Fatalf("assign by stranger: status=%d body=%s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/assign", map[string]any{
		"assigned_to": "bob",
	}, asActor("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assign status = %d body=%s", res.StatusCode, data)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("decode assigned project: %v", err)
	}
	if p.Status != "in_progress" || p.AssignedTo == nil || *p.AssignedTo != "bob" {
		t.Fatalf("assigned project = %+v", p)
	}

	// an in_progress project cannot be assigned again
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/assign", map[string]any{
		"assigned_to": "ghost",
	}, asActor("alice"))
	if res.StatusCode != http.StatusUnprocessableEntity || errorCode(t, data) != "invalid_transition" {
		t.Fatalf("re-assign in_progress: status=%d body=%s", res.StatusCode, data)
	}

	// the assignee cannot complete
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/status", map[string]any{
		"status": "completed",
	}, asActor("bob"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("complete by assignee: status=%d body=%s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/status", map[string]any{
		"status": "completed",
	}, asActor("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status = %d body=%s", res.StatusCode, data)
	}

	// terminal: any further transition is rejected
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/status", map[string]any{
		"status": "cancelled",
	}, asActor("alice"))
	if res.StatusCode != http.StatusUnprocessableEntity || errorCode(t, data) != "invalid_transition" {
		t.Fatalf("cancel completed: status=%d body=%s", res.StatusCode, data)
	}

	// unknown status token
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/status", map[string]any{
		"status": "finished",
	}, asActor("alice"))
	if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "invalid_status" {
		t.Fatalf("bogus status: status=%d body=%s", res.StatusCode, data)
	}

	// reviews: once per reviewer per project, aggregate recomputed
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/reviews", map[string]any{
		"project_id":  p.ID,
		"reviewee_id": "bob",
		"rating":      4,
	}, asActor("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create review status = %d body=%s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/reviews", map[string]any{
		"project_id":  p.ID,
		"reviewee_id": "bob",
		"rating":      5,
	}, asActor("alice"))
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "duplicate_review" {
		t.Fatalf("duplicate review: status=%d body=%s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/reviews", map[string]any{
		"project_id":  p.ID,
		"reviewee_id": "bob",
		"rating":      5,
	}, asActor("mallory"))
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "not_a_participant" {
		t.Fatalf("review by stranger: status=%d body=%s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/users/bob", nil, asActor("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get user status = %d body=%s", res.StatusCode, data)
	}
	var bob ProfileResponse
	if err := json.Unmarshal(data, &bob); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if bob.AverageRating != 4.0 {
		t.Fatalf("bob average = %v, want 4.0", bob.AverageRating)
	}
}

func TestMessagingOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	// provision bob so he can receive
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, asActor("bob"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("provision bob status = %d body=%s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/messages", map[string]any{
		"receiver_id": "bob",
		"content":     "hello bob",
	}, asActor("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("send status = %d body=%s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/messages", map[string]any{
		"receiver_id": "ghost",
		"content":     "anyone there",
	}, asActor("alice"))
	if res.StatusCode != http.StatusNotFound || errorCode(t, data) != "not_found" {
		t.Fatalf("send to unknown: status=%d body=%s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/messages/conversations", nil, asActor("bob"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("conversations status = %d body=%s", res.StatusCode, data)
	}
	var convos []ConversationResponse
	if err := json.Unmarshal(data, &convos); err != nil {
		t.Fatalf("decode conversations: %v", err)
	}
	if len(convos) != 1 || convos[0].CounterpartID != "alice" || convos[0].UnreadCount != 1 {
		t.Fatalf("conversations = %+v", convos)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/messages/with/alice", nil, asActor("bob"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d body=%s", res.StatusCode, data)
	}
	var msgs []MessageResponse
	if err := json.Unmarshal(data, &msgs); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(msgs) != 1 || !msgs[0].IsRead {
		t.Fatalf("history = %+v", msgs)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/messages/conversations", nil, asActor("bob"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("conversations status = %d body=%s", res.StatusCode, data)
	}
	if err := json.Unmarshal(data, &convos); err != nil {
		t.Fatalf("decode conversations: %v", err)
	}
	if convos[0].UnreadCount != 0 {
		t.Fatalf("unread after viewing = %d", convos[0].UnreadCount)
	}
}

func TestServicesOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/services", map[string]any{
		"title":       "Flatpack assembly",
		"hourly_rate": 30,
	}, asActor("bob"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create service status = %d body=%s", res.StatusCode, data)
	}
	var s ServiceResponse
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("decode service: %v", err)
	}
	if !s.IsAvailable || s.ProviderID != "bob" {
		t.Fatalf("service = %+v", s)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/services/"+s.ID, map[string]any{
		"hourly_rate": 45,
	}, asActor("mallory"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("update by stranger: status=%d body=%s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/services?available=true", nil, asActor("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list services status = %d body=%s", res.StatusCode, data)
	}
	var page ServiceListResponse
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("decode services: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("services = %+v", page)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/services/"+s.ID, nil, asActor("bob"))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d body=%s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/services/"+s.ID, nil, asActor("bob"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted: status=%d body=%s", res.StatusCode, data)
	}
}
