package services

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/veridoc-bot/veridoc_api/dto"
)

type commentStore struct {
	mu       sync.Mutex
	comments []string
}

func (s *commentStore) add(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = append(s.comments, body)
}

func (s *commentStore) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.comments...)
}

func (s *commentStore) waitFor(t *testing.T, n int, timeout time.Duration) []string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if got := s.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	got := s.snapshot()
	t.Fatalf("Expected %d comments within %v, got %d: %v", n, timeout, len(got), got)
	return nil
}

const testDocument = "# Guide\n\nThe capital of France has been Paris since the tenth century. Short."

// newGithubFake serves the minimal GitHub API surface the pipeline touches.
// filesDelay stalls the file listing to exercise the fetch deadline.
func newGithubFake(store *commentStore, filesDelay time.Duration) *httptest.Server {
	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/repos/octo/docs/pulls/7/files", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(filesDelay)
		files := []map[string]string{
			{"filename": "guide.md", "status": "modified", "raw_url": server.URL + "/raw/guide.md"},
			{"filename": "main.go", "status": "modified", "raw_url": server.URL + "/raw/main.go"},
		}
		json.NewEncoder(w).Encode(files)
	})
	mux.HandleFunc("/raw/guide.md", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, testDocument)
	})
	mux.HandleFunc("/repos/octo/docs/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload struct {
			Body string `json:"body"`
		}
		json.Unmarshal(body, &payload)
		store.add(payload.Body)
		w.WriteHeader(http.StatusCreated)
	})

	server = httptest.NewServer(mux)
	return server
}

func newAnalysisFake() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "Looks accurate overall."}},
			},
		})
	})
	return httptest.NewServer(mux)
}

func newSearchFake() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(dto.SearchResponse{
			Web: &dto.ResultCategory{Results: []dto.SearchResult{
				{Title: "Encyclopedia entry", URL: "https://ref.example/paris", Description: "Paris, capital of France."},
			}},
			Mixed: &dto.MixedRanking{Main: []dto.RankEntry{{Type: "web", Index: 0}}},
		})
	})
	return httptest.NewServer(mux)
}

// buildTestApp wires the full pipeline against fake upstreams.
func buildTestApp(t *testing.T, githubURL, analysisURL, searchURL string, fetchTimeout time.Duration) *HttpService {
	t.Helper()

	gh := &GithubService{
		httpClient: &http.Client{},
		apiURL:     githubURL,
		token:      "test-token",
	}

	clientConfig := openai.DefaultConfig("test-key")
	clientConfig.BaseURL = analysisURL
	analysis := &AnalysisService{
		client: openai.NewClientWithConfig(clientConfig),
		model:  "gpt-4o-mini",
	}

	search := &SearchService{
		httpClient: &http.Client{},
		apiURL:     searchURL,
		apiKey:     "test-key",
	}

	orch := &OrchestratorService{
		githubSvc:       gh,
		analysisSvc:     analysis,
		factCheckSvc:    &FactCheckService{search: search},
		triggerToken:    "/fact-check",
		fetchTimeout:    fetchTimeout,
		upstreamTimeout: 10 * time.Second,
	}

	return &HttpService{
		validatorSvc:    newTestValidator(&fakeLimiter{decision: dto.RateLimitDecision{Allowed: true}}),
		orchestratorSvc: orch,
	}
}

func webhookPayload(t *testing.T, githubURL, commentBody string) string {
	t.Helper()
	event := dto.WebhookEvent{
		Action: "created",
		Issue: dto.Issue{
			Number:      7,
			PullRequest: &dto.PullRequestRef{URL: githubURL + "/repos/octo/docs/pulls/7"},
		},
		Comment: dto.Comment{
			Body:      commentBody,
			CreatedAt: time.Now().Add(-2 * time.Second),
			User:      dto.User{Login: "octocat"},
		},
		Repository: dto.Repository{FullName: "octo/docs"},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	return string(payload)
}

func signedWebhookRequest(body string) *http.Request {
	req := httptest.NewRequest("POST", "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "issue_comment")
	req.Header.Set("X-Hub-Signature-256", signBody(body, "test-secret"))
	return req
}

func TestWebhook_EndToEndSuccess(t *testing.T) {
	comments := &commentStore{}
	github := newGithubFake(comments, 100*time.Millisecond)
	defer github.Close()
	analysis := newAnalysisFake()
	defer analysis.Close()
	search := newSearchFake()
	defer search.Close()

	httpSvc := buildTestApp(t, github.URL, analysis.URL, search.URL, 5*time.Second)
	app := httpSvc.buildApp()

	body := webhookPayload(t, github.URL, "Please run /fact-check on this")
	resp, err := app.Test(signedWebhookRequest(body), 15000)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	respBody, _ := io.ReadAll(resp.Body)
	if string(respBody) != "Article check complete" {
		t.Errorf("Expected confirmation body, got %q", string(respBody))
	}

	got := comments.waitFor(t, 2, 3*time.Second)
	if len(got) != 2 {
		t.Fatalf("Expected exactly 2 comments (ack + report), got %d", len(got))
	}
	if !strings.Contains(got[0], "Checking your document") {
		t.Errorf("First comment should be the acknowledgment, got %q", got[0])
	}
	report := got[1]
	if !strings.Contains(report, "Document Check Report") {
		t.Errorf("Second comment should be the report, got %q", report)
	}
	if !strings.Contains(report, "Looks accurate overall.") {
		t.Errorf("Report missing analysis text: %q", report)
	}
	if !strings.Contains(report, "https://ref.example/paris") {
		t.Errorf("Report missing fact-check reference: %q", report)
	}
	if !strings.Contains(report, "Processed in") {
		t.Errorf("Report missing processing duration: %q", report)
	}
}

func TestWebhook_ContentFetchTimeout(t *testing.T) {
	comments := &commentStore{}
	github := newGithubFake(comments, 500*time.Millisecond)
	defer github.Close()
	analysis := newAnalysisFake()
	defer analysis.Close()
	search := newSearchFake()
	defer search.Close()

	httpSvc := buildTestApp(t, github.URL, analysis.URL, search.URL, 50*time.Millisecond)
	app := httpSvc.buildApp()

	body := webhookPayload(t, github.URL, "Please run /fact-check on this")
	resp, err := app.Test(signedWebhookRequest(body), 15000)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != 500 {
		t.Fatalf("Expected 500, got %d", resp.StatusCode)
	}

	var errBody struct {
		Error string `json:"error"`
	}
	respBody, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(respBody, &errBody); err != nil {
		t.Fatalf("Error body is not JSON: %v (%q)", err, string(respBody))
	}
	if errBody.Error != "Timeout" {
		t.Errorf("Expected error \"Timeout\", got %q", errBody.Error)
	}

	// Ack and error comment are both best-effort; wait for the error comment.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, c := range comments.snapshot() {
			if strings.Contains(c, "Timeout") {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("Expected a posted error comment containing \"Timeout\", got %v", comments.snapshot())
}

func TestWebhook_NonMatchingEventIsBenign(t *testing.T) {
	comments := &commentStore{}
	github := newGithubFake(comments, 0)
	defer github.Close()
	analysis := newAnalysisFake()
	defer analysis.Close()
	search := newSearchFake()
	defer search.Close()

	httpSvc := buildTestApp(t, github.URL, analysis.URL, search.URL, 5*time.Second)
	app := httpSvc.buildApp()

	// Trigger token absent from the comment body.
	body := webhookPayload(t, github.URL, "Nice work!")
	resp, err := app.Test(signedWebhookRequest(body), 15000)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected 200 for non-matching event, got %d", resp.StatusCode)
	}
	respBody, _ := io.ReadAll(resp.Body)
	if string(respBody) != "Event processed" {
		t.Errorf("Expected benign confirmation, got %q", string(respBody))
	}

	time.Sleep(200 * time.Millisecond)
	if got := comments.snapshot(); len(got) != 0 {
		t.Errorf("Expected no comments for non-matching event, got %v", got)
	}
}

func TestWebhook_MalformedPayload(t *testing.T) {
	comments := &commentStore{}
	github := newGithubFake(comments, 0)
	defer github.Close()
	analysis := newAnalysisFake()
	defer analysis.Close()
	search := newSearchFake()
	defer search.Close()

	httpSvc := buildTestApp(t, github.URL, analysis.URL, search.URL, 5*time.Second)
	app := httpSvc.buildApp()

	body := "this is not json"
	resp, err := app.Test(signedWebhookRequest(body), 15000)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != 500 {
		t.Fatalf("Expected 500 for malformed payload, got %d", resp.StatusCode)
	}

	respBody, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(respBody), "json") || strings.Contains(string(respBody), "unmarshal") {
		t.Errorf("Response must not leak parse internals: %q", string(respBody))
	}
	if !strings.Contains(string(respBody), "Malformed payload") {
		t.Errorf("Expected generic malformed payload message, got %q", string(respBody))
	}
}

func TestWebhook_Ping(t *testing.T) {
	httpSvc := &HttpService{
		validatorSvc:    newTestValidator(&fakeLimiter{decision: dto.RateLimitDecision{Allowed: true}}),
		orchestratorSvc: &OrchestratorService{},
	}
	app := httpSvc.buildApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Expected 200 from /ping, got %d", resp.StatusCode)
	}
}
