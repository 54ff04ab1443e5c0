package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/atriumhq/atrium/internal/api"
	"github.com/atriumhq/atrium/internal/api/handlers"
	"github.com/atriumhq/atrium/internal/api/middleware"
	"github.com/atriumhq/atrium/internal/auth"
	"github.com/atriumhq/atrium/internal/chat"
	"github.com/atriumhq/atrium/internal/config"
	"github.com/atriumhq/atrium/internal/llm"
	"github.com/atriumhq/atrium/internal/objectstore"
	"github.com/atriumhq/atrium/internal/retrieval"
	"github.com/atriumhq/atrium/internal/store"
	"github.com/atriumhq/atrium/pkg/models"
)

const testSecret = "router-test-secret"

// echoGenerator streams the user message back in two fragments.
type echoGenerator struct{}

func (echoGenerator) Stream(_ context.Context, req llm.GenerationRequest, emit func(string) error) error {
	if err := emit("echo: "); err != nil {
		return err
	}
	return emit(req.Message)
}

// fixedEmbedder keeps retrieval deterministic without a live model.
type fixedEmbedder struct{}

func (fixedEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type fixture struct {
	handler http.Handler
	store   store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := config.Load()
	cfg.Auth.JWTSecret = testSecret

	s := store.NewMemoryStore(t.TempDir())
	t.Cleanup(func() { s.Close() })

	objects := objectstore.NewMemoryObjectStore()
	index := retrieval.NewCorpusIndex()
	retriever := retrieval.NewCorpusRetriever(fixedEmbedder{}, index)
	ingester := retrieval.NewIngester(s, objects, fixedEmbedder{}, index)
	orchestrator := chat.NewOrchestrator(s, retriever, echoGenerator{})

	verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		t.Fatalf("NewJWTVerifier() error = %v", err)
	}
	authenticator := middleware.NewAuthenticator(verifier, auth.NewProvisioner(s))

	h := handlers.New(s, objects, index, ingester, orchestrator, cfg)
	return &fixture{handler: api.NewRouter(cfg, h, authenticator), store: s}
}

func (f *fixture) token(t *testing.T, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   subject,
		"email": subject + "@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// do performs a request with an optional bearer subject.
func (f *fixture) do(t *testing.T, method, path, subject string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if subject != "" {
		req.Header.Set("Authorization", "Bearer "+f.token(t, subject))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// admin provisions the bootstrap admin by doing a throwaway authed call.
func (f *fixture) admin(t *testing.T) string {
	t.Helper()
	if rec := f.do(t, http.MethodGet, "/api/users/me", "admin-user", nil); rec.Code != http.StatusOK {
		t.Fatalf("bootstrap admin login status = %d", rec.Code)
	}
	return "admin-user"
}

func (f *fixture) createAgent(t *testing.T, adminSubject string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/agents", adminSubject, map[string]string{"name": "Support Bot"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create agent status = %d, body %s", rec.Code, rec.Body)
	}
	var agent models.Agent
	if err := json.Unmarshal(rec.Body.Bytes(), &agent); err != nil {
		t.Fatalf("decode agent: %v", err)
	}
	return agent.ID
}

// ─── Auth ────────────────────────────────────────────────────

func TestPublicEndpointsSkipAuth(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/health", "/version"} {
		if rec := f.do(t, http.MethodGet, path, "", nil); rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, rec.Code)
		}
	}
}

func TestMissingBearerIs401(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/agents", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestGarbageTokenIs401(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestStandardUserCannotAdminister(t *testing.T) {
	f := newFixture(t)
	f.admin(t) // claims the bootstrap admin slot

	rec := f.do(t, http.MethodPost, "/api/agents", "ordinary-user", map[string]string{"name": "Nope"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("create agent as standard user status = %d, want 403", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/users", "ordinary-user", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("list users as standard user status = %d, want 403", rec.Code)
	}
}

func TestMeReflectsProvisionedRole(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/users/me", "first", nil)
	var first models.User
	json.Unmarshal(rec.Body.Bytes(), &first)
	if first.Role != models.RoleAdmin {
		t.Errorf("first user role = %q, want admin", first.Role)
	}

	rec = f.do(t, http.MethodGet, "/api/users/me", "second", nil)
	var second models.User
	json.Unmarshal(rec.Body.Bytes(), &second)
	if second.Role != models.RoleStandard {
		t.Errorf("second user role = %q, want user", second.Role)
	}
}

// ─── Agents ──────────────────────────────────────────────────

func TestAgentCRUDOverHTTP(t *testing.T) {
	f := newFixture(t)
	admin := f.admin(t)
	agentID := f.createAgent(t, admin)

	rec := f.do(t, http.MethodGet, "/api/agents/"+agentID, admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get agent status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodPatch, "/api/agents/"+agentID, admin, map[string]string{"name": "Renamed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch agent status = %d, body %s", rec.Code, rec.Body)
	}
	var updated models.Agent
	json.Unmarshal(rec.Body.Bytes(), &updated)
	if updated.Name != "Renamed" {
		t.Errorf("patched name = %q, want Renamed", updated.Name)
	}

	rec = f.do(t, http.MethodDelete, "/api/agents/"+agentID, admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete agent status = %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/agents/"+agentID, admin, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get deleted agent status = %d, want 404", rec.Code)
	}
}

func TestCreateAgentValidation(t *testing.T) {
	f := newFixture(t)
	admin := f.admin(t)

	rec := f.do(t, http.MethodPost, "/api/agents", admin, map[string]string{"name": ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty name status = %d, want 400", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/api/agents", admin, map[string]string{"name": strings.Repeat("x", 101)})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("oversized name status = %d, want 400", rec.Code)
	}
}

// ─── Documents ───────────────────────────────────────────────

func TestUploadValidationAndBatchResults(t *testing.T) {
	f := newFixture(t)
	admin := f.admin(t)
	agentID := f.createAgent(t, admin)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	good, _ := mw.CreateFormFile("files", "notes.txt")
	good.Write([]byte("refund policy: 30 days"))
	bad, _ := mw.CreateFormFile("files", "malware.exe")
	bad.Write([]byte("nope"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/agents/"+agentID+"/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+f.token(t, admin))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Results []struct {
			FileName string `json:"file_name"`
			Status   string `json:"status"`
			Error    string `json:"error"`
		} `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(resp.Results))
	}
	if resp.Results[0].Status != "uploaded" {
		t.Errorf("txt upload status = %q, want uploaded", resp.Results[0].Status)
	}
	if resp.Results[1].Status != "rejected" || resp.Results[1].Error == "" {
		t.Errorf("exe upload = %+v, want rejected with reason", resp.Results[1])
	}
}

func TestDocumentDownloadReturnsURL(t *testing.T) {
	f := newFixture(t)
	admin := f.admin(t)
	agentID := f.createAgent(t, admin)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("files", "notes.txt")
	part.Write([]byte("hello"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/agents/"+agentID+"/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+f.token(t, admin))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rec.Code)
	}

	var resp struct {
		Results []struct {
			DocumentID string `json:"document_id"`
		} `json:"results"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	docID := resp.Results[0].DocumentID

	rec2 := f.do(t, http.MethodGet, "/api/agents/"+agentID+"/documents/"+docID+"/download", admin, nil)
	if rec2.Code != http.StatusOK {
		t.Fatalf("download status = %d, body %s", rec2.Code, rec2.Body)
	}
	var dl map[string]string
	json.Unmarshal(rec2.Body.Bytes(), &dl)
	if dl["downloadUrl"] == "" {
		t.Error("downloadUrl missing from response")
	}
}

// ─── Chat ────────────────────────────────────────────────────

func TestChatStreamFraming(t *testing.T) {
	f := newFixture(t)
	admin := f.admin(t)
	agentID := f.createAgent(t, admin)

	rec := f.do(t, http.MethodPost, "/api/agents/"+agentID+"/chat/stream", admin,
		models.ChatRequest{Message: "hello there"})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d, body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	var eventNames []string
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventNames = append(eventNames, strings.TrimPrefix(line, "event: "))
		}
	}

	want := []string{"retrieval", "content", "content", "citations", "done"}
	if strings.Join(eventNames, ",") != strings.Join(want, ",") {
		t.Errorf("event sequence = %v, want %v", eventNames, want)
	}
}

func TestChatValidation(t *testing.T) {
	f := newFixture(t)
	admin := f.admin(t)
	agentID := f.createAgent(t, admin)

	rec := f.do(t, http.MethodPost, "/api/agents/"+agentID+"/chat/stream", admin,
		models.ChatRequest{Message: ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty message status = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/agents/"+agentID+"/chat/stream", admin,
		models.ChatRequest{Message: strings.Repeat("x", 4001)})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("oversized message status = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/agents/ghost/chat/stream", admin,
		models.ChatRequest{Message: "hi"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown agent status = %d, want 404 before stream opens", rec.Code)
	}
}

func TestClearHistoryIdempotent(t *testing.T) {
	f := newFixture(t)
	admin := f.admin(t)
	agentID := f.createAgent(t, admin)

	// No history yet: still a success.
	rec := f.do(t, http.MethodDelete, "/api/agents/"+agentID+"/chat/history", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear empty history status = %d, want 200", rec.Code)
	}

	if rec := f.do(t, http.MethodPost, "/api/agents/"+agentID+"/chat/stream", admin,
		models.ChatRequest{Message: "hi"}); rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d", rec.Code)
	}
	rec = f.do(t, http.MethodDelete, "/api/agents/"+agentID+"/chat/history", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear history status = %d, want 200", rec.Code)
	}
}
