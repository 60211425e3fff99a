package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	HandleHealth(context.Background()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d got %d", http.StatusOK, rec.Code)
	}
}

func TestServeHTTP(t *testing.T) {
	t.Parallel()

	srv, err := New("0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	mux := http.NewServeMux()
	mux.Handle("/health", HandleHealth(ctx))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ServeHTTP(ctx, &http.Server{Handler: mux})
	}()

	resp, err := http.Get("http://127.0.0.1:" + srv.Port() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	if string(body) != `{"status": "ok"}` {
		t.Errorf("unexpected body %q", body)
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("serve: %v", err)
	}
}
