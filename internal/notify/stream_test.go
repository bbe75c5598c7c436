package notify

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func readDataLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "data:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func TestServeStream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := startedHub(4)
	r := gin.New()
	r.GET("/stream", func(c *gin.Context) { ServeStream(c, hub, "u1", time.Hour) })
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected event stream, got %q", ct)
	}
	br := bufio.NewReader(resp.Body)
	if got := readDataLine(t, br); got != `{"type":"connected"}` {
		t.Fatalf("expected connected frame, got %s", got)
	}

	hub.Publish("u1", Event{ID: "n1", Type: "reminder", Message: "soon"})
	if got := readDataLine(t, br); !strings.Contains(got, `"id":"n1"`) {
		t.Fatalf("expected event n1, got %s", got)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers("u1") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription not released after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServeStreamHubStopped(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(1)
	r := gin.New()
	r.GET("/stream", func(c *gin.Context) { ServeStream(c, hub, "u1", 0) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
