package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func doJSON(t *testing.T, ts *httptest.Server, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()

	var req *http.Request
	var err error
	if body == "" {
		req, err = http.NewRequest(method, ts.URL+path, nil)
	} else {
		req, err = http.NewRequest(method, ts.URL+path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func TestStatusReady(t *testing.T) {
	srv := newTestServer(t, &fakeKB{ready: true})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, out := doJSON(t, ts, "GET", "/api/kb/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status code = %d, want 200", resp.StatusCode)
	}
	if out["status"] != "ok" || out["ready"] != true {
		t.Errorf("body = %v, want ok/ready", out)
	}
}

func TestStatusNotReady(t *testing.T) {
	srv := newTestServer(t, &fakeKB{ready: false})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, out := doJSON(t, ts, "GET", "/api/kb/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status code = %d, want 200 (status endpoint never 503s)", resp.StatusCode)
	}
	if out["status"] != "disabled" {
		t.Errorf("status = %v, want disabled", out["status"])
	}
}

func TestNotReadyReturns503(t *testing.T) {
	kb := &fakeKB{ready: false}
	srv := newTestServer(t, kb)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		method, path, body string
	}{
		{"POST", "/api/kb/search", `{"query":"x"}`},
		{"POST", "/api/kb/find", `{"query":"x"}`},
		{"POST", "/api/kb/add", `{"path":"/tmp/x"}`},
		{"POST", "/api/kb/memory", `{"content":"x"}`},
		{"POST", "/api/kb/sessions", `{"title":"x"}`},
		{"GET", "/api/kb/ls", ""},
		{"GET", "/api/kb/read?uri=x", ""},
		{"GET", "/api/kb/abstract?uri=x", ""},
		{"GET", "/api/kb/sessions", ""},
		{"POST", "/api/kb/retrieve", `{"query":"x"}`},
	}

	for _, tt := range tests {
		resp, out := doJSON(t, ts, tt.method, tt.path, tt.body)
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s %s: status = %d, want 503", tt.method, tt.path, resp.StatusCode)
		}
		if out["error"] == "" {
			t.Errorf("%s %s: missing error message", tt.method, tt.path)
		}
	}

	// Nothing reached the facade.
	if len(kb.calls) != 0 {
		t.Errorf("facade calls = %v, want none", kb.calls)
	}
}

func TestSearchHappyPath(t *testing.T) {
	kb := &fakeKB{ready: true}
	srv := newTestServer(t, kb)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, out := doJSON(t, ts, "POST", "/api/kb/search", `{"query":"failover","limit":7}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if out["result"] != "search:failover:7-result" {
		t.Errorf("result = %v", out["result"])
	}
}

func TestSearchDefaultLimit(t *testing.T) {
	kb := &fakeKB{ready: true}
	srv := newTestServer(t, kb)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	_, out := doJSON(t, ts, "POST", "/api/kb/search", `{"query":"failover"}`)
	if out["result"] != "search:failover:5-result" {
		t.Errorf("result = %v, want default limit 5", out["result"])
	}

	_, out = doJSON(t, ts, "POST", "/api/kb/find", `{"query":"failover"}`)
	if out["result"] != "find:failover:10-result" {
		t.Errorf("result = %v, want default limit 10", out["result"])
	}
}

func TestSearchValidation(t *testing.T) {
	srv := newTestServer(t, &fakeKB{ready: true})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, _ := doJSON(t, ts, "POST", "/api/kb/search", `not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid JSON: status = %d, want 400", resp.StatusCode)
	}

	resp, _ = doJSON(t, ts, "POST", "/api/kb/search", `{"limit":5}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing query: status = %d, want 400", resp.StatusCode)
	}
}

func TestAddRequiresPath(t *testing.T) {
	srv := newTestServer(t, &fakeKB{ready: true})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, _ := doJSON(t, ts, "POST", "/api/kb/add", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	resp, out := doJSON(t, ts, "POST", "/api/kb/add", `{"path":"/tmp/doc.md"}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if out["result"] != "add:/tmp/doc.md-result" {
		t.Errorf("result = %v", out["result"])
	}
}

func TestAddMemoryRequiresContent(t *testing.T) {
	srv := newTestServer(t, &fakeKB{ready: true})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, _ := doJSON(t, ts, "POST", "/api/kb/memory", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	resp, out := doJSON(t, ts, "POST", "/api/kb/memory", `{"content":"standby region is us-east-2"}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if out["result"] != "memory:standby region is us-east-2-result" {
		t.Errorf("result = %v", out["result"])
	}
}

func TestRecordSessionRequiresTitle(t *testing.T) {
	srv := newTestServer(t, &fakeKB{ready: true})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, _ := doJSON(t, ts, "POST", "/api/kb/sessions", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	resp, out := doJSON(t, ts, "POST", "/api/kb/sessions", `{"title":"incident review"}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if out["result"] != "session:incident review-result" {
		t.Errorf("result = %v", out["result"])
	}
}

func TestListDirectoryPassesURI(t *testing.T) {
	kb := &fakeKB{ready: true}
	srv := newTestServer(t, kb)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	uri := "lode://resources/docs/"
	_, out := doJSON(t, ts, "GET", "/api/kb/ls?uri="+url.QueryEscape(uri), "")
	if out["result"] != "ls:"+uri+"-result" {
		t.Errorf("result = %v", out["result"])
	}

	// Missing uri is allowed: the facade falls back to the root.
	resp, _ := doJSON(t, ts, "GET", "/api/kb/ls", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestReadRequiresURI(t *testing.T) {
	srv := newTestServer(t, &fakeKB{ready: true})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, _ := doJSON(t, ts, "GET", "/api/kb/read", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	resp, out := doJSON(t, ts, "GET", "/api/kb/read?uri=lode%3A%2F%2Fresources%2Fa.md", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if out["result"] != "read:lode://resources/a.md-result" {
		t.Errorf("result = %v", out["result"])
	}
}

func TestSessions(t *testing.T) {
	srv := newTestServer(t, &fakeKB{ready: true})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	_, out := doJSON(t, ts, "GET", "/api/kb/sessions", "")
	if out["result"] != "sessions-result" {
		t.Errorf("result = %v", out["result"])
	}
}

func TestRetrieveContextMayBeEmpty(t *testing.T) {
	kb := &fakeKB{ready: true}
	srv := newTestServer(t, kb)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, out := doJSON(t, ts, "POST", "/api/kb/retrieve", `{"query":"anything"}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	got, ok := out["context"]
	if !ok {
		t.Fatal("response missing context field")
	}
	if got != "" {
		t.Errorf("context = %v, want empty", got)
	}
	if len(kb.calls) != 1 || kb.calls[0] != "retrieve:anything:3" {
		t.Errorf("calls = %v, want single retrieve with default limit", kb.calls)
	}
}
