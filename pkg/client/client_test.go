package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newAPIServer(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/servers", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]ServerStatus{
			{Key: "alpha@1.0.0", Name: "alpha", Version: "1.0.0", Type: "local", Status: "stopped"},
		})
	})
	mux.HandleFunc("POST /api/refresh", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("POST /api/start", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("key") {
		case "alpha@1.0.0":
			_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		case "busy@1.0.0":
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "cannot start server busy@1.0.0 while starting"})
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unknown server"})
		}
	})
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"key": r.URL.Query().Get("key"), "status": "running",
		})
	})
	mux.HandleFunc("PATCH /api/servers/setting", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Key     string         `json:"key"`
			Setting map[string]any `json:"setting"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "missing key"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, New(Config{BaseURL: srv.URL + "/api"})
}

func TestList(t *testing.T) {
	_, c := newAPIServer(t)
	list, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "alpha@1.0.0" || list[0].Status != "stopped" {
		t.Fatalf("list = %+v", list)
	}
}

func TestStartAndErrors(t *testing.T) {
	_, c := newAPIServer(t)
	ctx := context.Background()

	if err := c.Start(ctx, "alpha@1.0.0"); err != nil {
		t.Fatalf("start: %v", err)
	}

	err := c.Start(ctx, "busy@1.0.0")
	if err == nil {
		t.Fatal("conflict not surfaced")
	}
	// The daemon's error message is carried through.
	if got := err.Error(); !strings.Contains(got, "while starting") {
		t.Fatalf("error = %q", got)
	}

	if err := c.Start(ctx, "ghost@1.0.0"); err == nil {
		t.Fatal("unknown key not surfaced")
	}
}

func TestStatusAndUpdateSetting(t *testing.T) {
	_, c := newAPIServer(t)
	ctx := context.Background()

	st, err := c.Status(ctx, "alpha@1.0.0")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st != "running" {
		t.Fatalf("status = %q", st)
	}

	if err := c.UpdateSetting(ctx, "alpha@1.0.0", map[string]any{"port": 9100}); err != nil {
		t.Fatalf("update setting: %v", err)
	}
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
}

func TestUnreachableDaemon(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1/api"})
	if _, err := c.List(context.Background()); err == nil {
		t.Fatal("expected connection error")
	}
}
