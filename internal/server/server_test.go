package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"inkline/internal/jobs"
	"inkline/internal/orchestrator"
	"inkline/internal/registry"
	"inkline/internal/store"
)

const testSecret = "test-secret"

type testServer struct {
	URL     string
	client  *http.Client
	orc     *orchestrator.Orchestrator
	manager *jobs.Manager
	close   func()
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	reg, err := registry.New([]registry.AgentDefinition{
		{AgentID: "seed", Name: "Seed", Layer: 0, Type: registry.TypeCreative, Outputs: []string{"premise"}},
		{AgentID: "draft", Name: "Draft", Layer: 1, Type: registry.TypeGeneration, Outputs: []string{"chapters"}, Dependencies: []string{"seed"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	quiet := log.New(&strings.Builder{}, "", 0)
	orc := orchestrator.New(reg, nil, quiet)
	projects, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	jobStore, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	manager := jobs.NewManager(jobs.Options{
		Orchestrator:      orc,
		JobStore:          jobStore,
		ProjectStore:      projects,
		HeartbeatInterval: time.Second,
		Logger:            quiet,
	})
	handler, err := New(Config{
		Orchestrator: orc,
		Jobs:         manager,
		ProjectStore: projects,
		BasePath:     "/v1",
		Auth:         AuthConfig{JWTSecret: testSecret, AllowLegacyActorHeader: true, Logger: quiet},
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
	ts := &testServer{
		URL:     "http://" + ln.Addr().String(),
		client:  &http.Client{},
		orc:     orc,
		manager: manager,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			manager.Wait()
		},
	}
	t.Cleanup(ts.close)
	return ts
}

func actorHeaders() map[string]string {
	return map[string]string{"X-Actor-Id": "tester"}
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

func waitForJob(t *testing.T, srv *testServer, jobID string) JobResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/jobs/"+jobID, nil, actorHeaders())
		if res.StatusCode != http.StatusOK {
			t.Fatalf("get job status %d: %s", res.StatusCode, string(data))
		}
		var job JobResponse
		if err := json.Unmarshal(data, &job); err != nil {
			t.Fatalf("unmarshal job: %v", err)
		}
		if job.Status != "running" && job.Status != "queued" {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not finish in time")
	return JobResponse{}
}

func TestPipelineEndToEnd(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"title":       "Harbor Lights",
		"constraints": map[string]any{"genre": "mystery"},
	}, actorHeaders())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var created ProjectSummaryResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if created.ProjectID == "" || created.Status != "initialized" {
		t.Fatalf("unexpected project: %+v", created)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+created.ProjectID+"/jobs", map[string]any{}, actorHeaders())
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("start job status %d: %s", res.StatusCode, string(data))
	}
	var job JobResponse
	if err := json.Unmarshal(data, &job); err != nil {
		t.Fatalf("unmarshal job: %v", err)
	}

	final := waitForJob(t, srv, job.JobID)
	if final.Status != "succeeded" {
		t.Fatalf("job ended %s: %s", final.Status, final.Error)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+created.ProjectID+"/status", nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var status orchestrator.ProjectStatus
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.Status != "completed" {
		t.Fatalf("project status = %s", status.Status)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+created.ProjectID+"/manuscript", nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("manuscript status %d: %s", res.StatusCode, string(data))
	}
	var manuscript map[string]any
	if err := json.Unmarshal(data, &manuscript); err != nil {
		t.Fatalf("unmarshal manuscript: %v", err)
	}
	if manuscript["title"] != "Harbor Lights" {
		t.Fatalf("manuscript = %v", manuscript)
	}

	// Second job for the same, already-completed project finishes immediately.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+created.ProjectID+"/jobs", map[string]any{}, actorHeaders())
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("second job status %d: %s", res.StatusCode, string(data))
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token accepted: %d", res.StatusCode)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "tester",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("jwt rejected: %d %s", res.StatusCode, string(data))
	}

	// Health stays open.
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv := newTestServer(t)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects/nope/status", nil, actorHeaders())
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("error code = %q", envelope.Error.Code)
	}
}

func TestExecuteAndResetAgent(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{"title": "T"}, actorHeaders())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created ProjectSummaryResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatal(err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+created.ProjectID+"/agents/seed/execute", nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("execute status %d: %s", res.StatusCode, string(data))
	}
	var exec AgentExecutionResponse
	if err := json.Unmarshal(data, &exec); err != nil {
		t.Fatal(err)
	}
	if !exec.GatePassed || exec.Status != "passed" {
		t.Fatalf("execution = %+v", exec)
	}

	// Resetting a passed agent is a validation error, not a crash.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+created.ProjectID+"/agents/seed/reset", nil, actorHeaders())
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("reset status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+created.ProjectID+"/agents/available", nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("available status %d: %s", res.StatusCode, string(data))
	}
	var avail AvailableAgentsResponse
	if err := json.Unmarshal(data, &avail); err != nil {
		t.Fatal(err)
	}
	if len(avail.Agents) != 1 || avail.Agents[0] != "draft" {
		t.Fatalf("available = %v", avail.Agents)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{"title": "Round Trip"}, actorHeaders())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created ProjectSummaryResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatal(err)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+created.ProjectID+"/export", nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("export status %d: %s", res.StatusCode, string(data))
	}
	var exported map[string]any
	if err := json.Unmarshal(data, &exported); err != nil {
		t.Fatal(err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/import", exported, actorHeaders())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("import status %d: %s", res.StatusCode, string(data))
	}
	var imported ProjectSummaryResponse
	if err := json.Unmarshal(data, &imported); err != nil {
		t.Fatal(err)
	}
	if imported.ProjectID != created.ProjectID || imported.Title != "Round Trip" {
		t.Fatalf("imported = %+v", imported)
	}
}
