package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveWithOrigin(allowed []string, method, origin string) *httptest.ResponseRecorder {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	req := httptest.NewRequest(method, "/process-text", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp := httptest.NewRecorder()
	CORS(allowed)(next).ServeHTTP(resp, req)
	return resp
}

func TestCORSWildcard(t *testing.T) {
	resp := serveWithOrigin([]string{"*"}, http.MethodPost, "chrome-extension://abc")
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "chrome-extension://abc" {
		t.Fatalf("expected origin echoed, got %q", got)
	}
	if resp.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Fatal("wildcard must not enable credentials")
	}
	if resp.Code != http.StatusTeapot {
		t.Fatalf("expected request to pass through, got %d", resp.Code)
	}
}

func TestCORSExplicitOrigin(t *testing.T) {
	resp := serveWithOrigin([]string{"https://app.example"}, http.MethodPost, "https://app.example")
	if resp.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("expected credentials for explicit origin")
	}

	resp = serveWithOrigin([]string{"https://app.example"}, http.MethodPost, "https://evil.example")
	if resp.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("expected unknown origin to be refused")
	}
}

func TestCORSPreflight(t *testing.T) {
	resp := serveWithOrigin([]string{"*"}, http.MethodOptions, "https://app.example")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for preflight, got %d", resp.Code)
	}
}
