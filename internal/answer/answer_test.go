package answer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPClient_Answer_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/answer" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Question != "how do I reset my password?" {
			t.Fatalf("unexpected question: %q", req.Question)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{
			Answer:     "Use the reset link on the login page.",
			Confidence: 0.92,
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "", 2*time.Second)
	resp, err := client.Answer(context.Background(), Request{Question: "how do I reset my password?"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if resp.Confidence != 0.92 {
		t.Fatalf("unexpected confidence: %v", resp.Confidence)
	}
}

func TestHTTPClient_Answer_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "", 2*time.Second)
	_, err := client.Answer(context.Background(), Request{Question: "x"})
	if err == nil {
		t.Fatal("expected error on 500")
	}
}
