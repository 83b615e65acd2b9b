package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestEmbedSuccessAndErrors(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[1,2,3]}]}`))
	}))
	defer good.Close()

	c, _ := NewClient(Config{APIKey: "k", Timeout: time.Second, BaseURL: good.URL})
	vec, err := c.Embed(context.Background(), "hi", "")
	if err != nil || len(vec) != 3 {
		t.Fatalf("embed good: %v %v", err, vec)
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer empty.Close()
	c, _ = NewClient(Config{APIKey: "k", Timeout: time.Second, BaseURL: empty.URL})
	if _, err := c.Embed(context.Background(), "hi", ""); err == nil {
		t.Fatalf("expected error")
	}

	malformed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{"))
	}))
	defer malformed.Close()
	c, _ = NewClient(Config{APIKey: "k", Timeout: time.Second, BaseURL: malformed.URL})
	if _, err := c.Embed(context.Background(), "hi", ""); err == nil {
		t.Fatalf("expected decode error")
	}
}
