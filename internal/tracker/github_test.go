package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type countingTokenSource struct {
	calls int
}

func (s *countingTokenSource) Token(ctx context.Context) (string, time.Time, error) {
	s.calls++
	return "tok-abc", time.Now().Add(time.Hour), nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc, tokens TokenSource) (*GitHubClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewGitHubClient("acme", "alerts", tokens)
	client.baseURL = server.URL
	return client, server
}

func TestCreateIssue(t *testing.T) {
	var gotPath, gotAuth string
	var gotRequest createIssueRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]int{"number": 1234})
	}, StaticTokenSource{Value: "tok-abc"})

	number, err := client.CreateIssue(context.Background(), "High CPU", "details", []string{"alert", "team/platform"})
	if err != nil {
		t.Fatalf("CreateIssue returned error: %v", err)
	}
	if number != 1234 {
		t.Errorf("Expected issue number 1234, got %d", number)
	}
	if gotPath != "/repos/acme/alerts/issues" {
		t.Errorf("Unexpected request path %q", gotPath)
	}
	if gotAuth != "Bearer tok-abc" {
		t.Errorf("Unexpected authorization header %q", gotAuth)
	}
	if gotRequest.Title != "High CPU" || len(gotRequest.Labels) != 2 {
		t.Errorf("Unexpected request payload: %+v", gotRequest)
	}
}

func TestCreateIssue_APIErrorIncludesSnippet(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message": "Validation Failed"}`))
	}, StaticTokenSource{Value: "tok-abc"})

	_, err := client.CreateIssue(context.Background(), "t", "b", nil)
	if err == nil {
		t.Fatal("Expected error for 422 response, got nil")
	}
	if !strings.Contains(err.Error(), "422") || !strings.Contains(err.Error(), "Validation Failed") {
		t.Errorf("Error lacks status or body snippet: %v", err)
	}
}

func TestCreateIssue_TokenCachedAcrossCalls(t *testing.T) {
	tokens := &countingTokenSource{}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]int{"number": 1})
	}, tokens)

	for i := 0; i < 3; i++ {
		if _, err := client.CreateIssue(context.Background(), "t", "b", nil); err != nil {
			t.Fatalf("CreateIssue returned error: %v", err)
		}
	}
	if tokens.calls != 1 {
		t.Errorf("Expected 1 token mint across 3 calls, got %d", tokens.calls)
	}
}

func TestCreateIssue_UnauthorizedInvalidatesToken(t *testing.T) {
	tokens := &countingTokenSource{}
	status := http.StatusUnauthorized
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if status == http.StatusCreated {
			json.NewEncoder(w).Encode(map[string]int{"number": 7})
		}
	}, tokens)

	if _, err := client.CreateIssue(context.Background(), "t", "b", nil); err == nil {
		t.Fatal("Expected error for 401 response, got nil")
	}

	status = http.StatusCreated
	if _, err := client.CreateIssue(context.Background(), "t", "b", nil); err != nil {
		t.Fatalf("CreateIssue after recovery returned error: %v", err)
	}
	if tokens.calls != 2 {
		t.Errorf("Expected a fresh token mint after 401, got %d mints", tokens.calls)
	}
}

func TestStaticTokenSource_EmptyTokenErrors(t *testing.T) {
	_, _, err := StaticTokenSource{}.Token(context.Background())
	if err == nil {
		t.Error("Expected error for empty static token, got nil")
	}
}
