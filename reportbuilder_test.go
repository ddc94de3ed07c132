package reportbuilder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-reportbuilder/pkg/artifact"
	"github.com/goliatone/go-reportbuilder/pkg/model"
	"github.com/goliatone/go-reportbuilder/pkg/settings"
	"github.com/goliatone/go-reportbuilder/pkg/state"
)

type backend struct {
	mu       sync.Mutex
	requests []model.GenerateRequest
}

func (b *backend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"config":{"slide_number":2,"replacements":{"NAME":"Acme"}},"slide_text":"Hello {{NAME}}"}`))
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req model.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.requests = append(b.requests, req)
		b.mu.Unlock()
		w.Header().Set("Content-Type", artifact.ContentType)
		_, _ = w.Write([]byte{0x50, 0x4B, 0x03, 0x04})
	})
	return mux
}

func newTestSession(t *testing.T, b *backend) (*Session, *artifact.DirSink) {
	t.Helper()
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)

	cfg, err := settings.Parse(map[string]string{"API_BASE": srv.URL})
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	sink, err := artifact.NewDirSink(t.TempDir())
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	clock := func() time.Time { return time.Date(2024, 6, 1, 9, 30, 15, 0, time.UTC) }
	s, err := NewSession(cfg, sink, WithClock(clock))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s, sink
}

func TestSessionHappyPath(t *testing.T) {
	b := &backend{}
	s, sink := newTestSession(t, b)

	if err := s.LoadConfig(context.Background()); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if diff := cmp.Diff([]string{"NAME"}, s.Snapshot().Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	if err := s.SetReplacement("NAME", "Globex"); err != nil {
		t.Fatalf("SetReplacement: %v", err)
	}
	a, err := s.GenerateReport(context.Background())
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}

	want := []model.GenerateRequest{{SlideNumber: 2, Replacements: map[string]string{"NAME": "Globex"}}}
	if diff := cmp.Diff(want, b.requests); diff != "" {
		t.Fatalf("requests mismatch (-want +got):\n%s", diff)
	}
	if a.Filename != "report_20240601T093015.pptx" {
		t.Fatalf("filename = %q", a.Filename)
	}
	data, err := os.ReadFile(filepath.Join(sink.Dir(), a.Filename))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(data) != "PK\x03\x04" {
		t.Fatalf("unexpected artifact bytes %q", data)
	}
	snap := s.Snapshot()
	if snap.Success != state.MessageGenerateSucceeded || snap.Error != "" {
		t.Fatalf("unexpected banners: %+v", snap)
	}
}

func TestGenerateWithOverrides(t *testing.T) {
	b := &backend{}
	s, _ := newTestSession(t, b)

	if _, err := Generate(context.Background(), s, map[string]string{"NAME": "Initech"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := b.requests[0].Replacements["NAME"]; got != "Initech" {
		t.Fatalf("override not applied, got %q", got)
	}

	if _, err := Generate(context.Background(), s, map[string]string{"MISSING": "x"}); !errors.Is(err, state.ErrUnknownPlaceholder) {
		t.Fatalf("expected ErrUnknownPlaceholder, got %v", err)
	}
}

func TestNewSessionRejectsBadBase(t *testing.T) {
	cfg := settings.Settings{APIBase: "ftp://nowhere", RequestTimeout: time.Second}
	sink, err := artifact.NewDirSink(t.TempDir())
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	if _, err := NewSession(cfg, sink); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestParseAssignments(t *testing.T) {
	got, err := ParseAssignments([]string{"NAME=Acme", "EXPR=a=b", "EMPTY="})
	if err != nil {
		t.Fatalf("ParseAssignments: %v", err)
	}
	want := map[string]string{"NAME": "Acme", "EXPR": "a=b", "EMPTY": ""}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	for _, bad := range []string{"novalue", "=x"} {
		if _, err := ParseAssignments([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
