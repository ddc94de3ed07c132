package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	theme "github.com/goliatone/go-theme"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/goliatone/go-reportbuilder/pkg/artifact"
	"github.com/goliatone/go-reportbuilder/pkg/model"
	"github.com/goliatone/go-reportbuilder/pkg/state"
	"github.com/goliatone/go-reportbuilder/pkg/workflow"
)

var fixedNow = time.Date(2024, 6, 1, 9, 30, 15, 0, time.UTC)

type fakeBackend struct {
	mu        sync.Mutex
	resp      model.ConfigResponse
	configErr error
	genErr    error
	requests  []model.GenerateRequest
}

func (f *fakeBackend) FetchConfig(context.Context) (model.ConfigResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.configErr != nil {
		return model.ConfigResponse{}, f.configErr
	}
	resp := f.resp
	resp.Config = resp.Config.Clone()
	return resp, nil
}

func (f *fakeBackend) Generate(_ context.Context, req model.GenerateRequest) (model.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.genErr != nil {
		return model.Artifact{}, f.genErr
	}
	return model.Artifact{Data: []byte{0x50, 0x4B, 0x03, 0x04}}, nil
}

func (f *fakeBackend) setConfigErr(err error) {
	f.mu.Lock()
	f.configErr = err
	f.mu.Unlock()
}

type fixture struct {
	backend *fakeBackend
	session *workflow.Controller
	server  *Server
	http    *httptest.Server
	client  *http.Client
}

func newFixture(t *testing.T, load bool, opts ...Option) *fixture {
	t.Helper()
	backend := &fakeBackend{resp: model.ConfigResponse{
		Config: model.TemplateConfig{
			SlideNumber:  2,
			Replacements: map[string]string{"{{NAME}}": "Acme"},
		},
		SlideText: "Hello {{NAME}}",
	}}
	downloads := NewDownloads()
	session, err := workflow.New(
		workflow.WithBackend(backend),
		workflow.WithSink(downloads),
		workflow.WithClock(func() time.Time { return fixedNow }),
	)
	if err != nil {
		t.Fatalf("workflow.New: %v", err)
	}
	if load {
		if err := session.LoadConfig(context.Background()); err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
	}
	server, err := New(session, append([]Option{WithDownloads(downloads)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return &fixture{
		backend: backend,
		session: session,
		server:  server,
		http:    srv,
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, header map[string]string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, f.http.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(data)
}

func form(values url.Values) (io.Reader, map[string]string) {
	return strings.NewReader(values.Encode()), map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
}

var jsonHeader = map[string]string{"Accept": "application/json"}

func TestIndexRendersLoadedState(t *testing.T) {
	f := newFixture(t, true)
	resp, body := f.do(t, http.MethodGet, "/", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, want := range []string{`name="r:{{NAME}}"`, `value="Acme"`, "Slide 2", "<svg", "Hello Acme", "--accent: #0b5cad"} {
		if !strings.Contains(body, want) {
			t.Fatalf("page missing %q", want)
		}
	}
}

func TestIndexBeforeLoad(t *testing.T) {
	f := newFixture(t, false)
	_, body := f.do(t, http.MethodGet, "/", nil, nil)
	if !strings.Contains(body, "No template configuration loaded.") {
		t.Fatalf("expected empty-state notice")
	}
	if strings.Contains(body, "Generate Report") {
		t.Fatalf("generate must not be offered without a configuration")
	}
}

func TestIndexEscapesValues(t *testing.T) {
	f := newFixture(t, true)
	if err := f.session.SetReplacement("{{NAME}}", `"><script>alert(1)</script>`); err != nil {
		t.Fatalf("SetReplacement: %v", err)
	}
	_, body := f.do(t, http.MethodGet, "/", nil, nil)
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Fatalf("replacement value rendered unescaped")
	}
}

func TestGenerateDownloadsOnce(t *testing.T) {
	f := newFixture(t, true)
	body, header := form(url.Values{"r:{{NAME}}": {"Globex"}, "r:{{OTHER}}": {"ignored"}})
	resp, _ := f.do(t, http.MethodPost, "/generate", body, header)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	token := loc.Query().Get("download")
	if token == "" {
		t.Fatalf("expected download token in %q", loc)
	}

	want := []model.GenerateRequest{{SlideNumber: 2, Replacements: map[string]string{"{{NAME}}": "Globex"}}}
	if diff := cmp.Diff(want, f.backend.requests); diff != "" {
		t.Fatalf("requests mismatch (-want +got):\n%s", diff)
	}

	_, page := f.do(t, http.MethodGet, "/?download="+token, nil, nil)
	if !strings.Contains(page, "/downloads/"+token) || !strings.Contains(page, state.MessageGenerateSucceeded) {
		t.Fatalf("page should link the pending download and show success")
	}

	resp, data := f.do(t, http.MethodGet, "/downloads/"+token, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", resp.StatusCode)
	}
	if data != "PK\x03\x04" {
		t.Fatalf("unexpected payload %q", data)
	}
	if got := resp.Header.Get("Content-Type"); got != artifact.ContentType {
		t.Fatalf("content type = %q", got)
	}
	if got := resp.Header.Get("Content-Disposition"); !strings.Contains(got, "report_20240601T093015.pptx") {
		t.Fatalf("content disposition = %q", got)
	}

	resp, _ = f.do(t, http.MethodGet, "/downloads/"+token, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second download status = %d, want 404", resp.StatusCode)
	}
	if f.server.Downloads().Len() != 0 {
		t.Fatalf("claimed artifact should be revoked")
	}
}

func TestGenerateJSON(t *testing.T) {
	f := newFixture(t, true)
	resp, body := f.do(t, http.MethodPost, "/generate", nil, jsonHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body=%s", resp.StatusCode, body)
	}
	var got generateResponse
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Filename != "report_20240601T093015.pptx" || !strings.HasPrefix(got.Download, "/downloads/") {
		t.Fatalf("unexpected response %+v", got)
	}
	if got.State.Success != state.MessageGenerateSucceeded || got.State.Error != "" {
		t.Fatalf("unexpected banners %+v", got.State)
	}
}

func TestGenerateJSONFailure(t *testing.T) {
	f := newFixture(t, true)
	f.backend.genErr = errors.New("500 from backend")
	resp, body := f.do(t, http.MethodPost, "/generate", nil, jsonHeader)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got generateResponse
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Download != "" || got.State.Error != state.MessageGenerateFailed || got.State.Success != "" {
		t.Fatalf("unexpected response %+v", got)
	}
	if f.server.Downloads().Len() != 0 {
		t.Fatalf("failed generate must not park an artifact")
	}
}

func TestGenerateBeforeLoad(t *testing.T) {
	f := newFixture(t, false)
	resp, _ := f.do(t, http.MethodPost, "/generate", nil, jsonHeader)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	if len(f.backend.requests) != 0 {
		t.Fatalf("no request should be sent before load")
	}
}

func TestAPIReplacement(t *testing.T) {
	f := newFixture(t, true)

	resp, body := f.do(t, http.MethodPost, "/api/replacements", strings.NewReader(`{"key":"{{NAME}}","value":"Initech"}`), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body=%s", resp.StatusCode, body)
	}
	var view StateView
	if err := json.Unmarshal([]byte(body), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Replacements["{{NAME}}"] != "Initech" || view.Preview != "Hello Initech" {
		t.Fatalf("unexpected view %+v", view)
	}

	resp, _ = f.do(t, http.MethodPost, "/api/replacements", strings.NewReader(`{"key":"{{NEW}}","value":"x"}`), nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unknown key status = %d", resp.StatusCode)
	}
	if _, ok := f.session.Snapshot().Replacements["{{NEW}}"]; ok {
		t.Fatalf("unknown key must not be added")
	}

	resp, _ = f.do(t, http.MethodPost, "/api/replacements", strings.NewReader(`not json`), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad body status = %d", resp.StatusCode)
	}
}

func TestFormReplacements(t *testing.T) {
	f := newFixture(t, true)
	body, header := form(url.Values{"r:{{NAME}}": {""}})
	resp, _ := f.do(t, http.MethodPost, "/replacements", body, header)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got, ok := f.session.Snapshot().Replacements["{{NAME}}"]; !ok || got != "" {
		t.Fatalf("expected empty value to be stored, got %q (present=%v)", got, ok)
	}
}

func TestResetFailurePreservesData(t *testing.T) {
	f := newFixture(t, true)
	if err := f.session.SetReplacement("{{NAME}}", "Edited"); err != nil {
		t.Fatalf("SetReplacement: %v", err)
	}
	f.backend.setConfigErr(errors.New("connection refused"))

	resp, body := f.do(t, http.MethodPost, "/reset", nil, jsonHeader)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var view StateView
	if err := json.Unmarshal([]byte(body), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Error != state.MessageLoadFailed || !view.Ready || view.Replacements["{{NAME}}"] != "Edited" {
		t.Fatalf("unexpected view %+v", view)
	}

	f.backend.setConfigErr(nil)
	resp, _ = f.do(t, http.MethodPost, "/reset", nil, nil)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	snap := f.session.Snapshot()
	if snap.Error != "" || snap.Replacements["{{NAME}}"] != "Acme" {
		t.Fatalf("reset should restore served values, got %+v", snap)
	}
}

func TestPreviewSVG(t *testing.T) {
	f := newFixture(t, true)
	resp, body := f.do(t, http.MethodGet, "/preview.svg", nil, nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/svg+xml" {
		t.Fatalf("status = %d type = %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(body, "Hello Acme") {
		t.Fatalf("preview missing substituted text")
	}

	empty := newFixture(t, false)
	resp, _ = empty.do(t, http.MethodGet, "/preview.svg", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status before load = %d", resp.StatusCode)
	}
}

func TestStateAndHealth(t *testing.T) {
	f := newFixture(t, true)
	_, body := f.do(t, http.MethodGet, "/api/state", nil, nil)
	var view StateView
	if err := json.Unmarshal([]byte(body), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := StateView{
		Ready:        true,
		SlideNumber:  2,
		SlideText:    "Hello {{NAME}}",
		Preview:      "Hello Acme",
		Keys:         []string{"{{NAME}}"},
		Replacements: map[string]string{"{{NAME}}": "Acme"},
	}
	if diff := cmp.Diff(want, view); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}

	resp, body := f.do(t, http.MethodGet, "/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"ok"`) {
		t.Fatalf("health = %d %s", resp.StatusCode, body)
	}
}

func TestHealthChecksBackend(t *testing.T) {
	var backendErr error
	f := newFixture(t, true, WithHealthCheck(func(context.Context) error { return backendErr }))

	resp, body := f.do(t, http.MethodGet, "/healthz", nil, nil)
	var view healthView
	if err := json.Unmarshal([]byte(body), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || view.Backend != "healthy" {
		t.Fatalf("health = %d %+v", resp.StatusCode, view)
	}

	backendErr = errors.New("connection refused")
	resp, body = f.do(t, http.MethodGet, "/healthz", nil, nil)
	view = healthView{}
	if err := json.Unmarshal([]byte(body), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := healthView{Status: "unavailable", Backend: "unhealthy", Error: "connection refused"}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if diff := cmp.Diff(want, view); diff != "" {
		t.Fatalf("health mismatch (-want +got):\n%s", diff)
	}
}

func TestUnresolvedPlaceholdersFlagged(t *testing.T) {
	f := newFixture(t, false)
	f.backend.resp = model.ConfigResponse{
		Config: model.TemplateConfig{
			SlideNumber:  1,
			Replacements: map[string]string{"{{NAME}}": "Acme", "{{GHOST}}": ""},
		},
		SlideText: "Hello {{NAME}}",
	}
	if err := f.session.LoadConfig(context.Background()); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	_, body := f.do(t, http.MethodGet, "/api/state", nil, nil)
	var view StateView
	if err := json.Unmarshal([]byte(body), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff([]string{"{{GHOST}}"}, view.Unresolved); diff != "" {
		t.Fatalf("unresolved mismatch (-want +got):\n%s", diff)
	}

	_, page := f.do(t, http.MethodGet, "/", nil, nil)
	if strings.Count(page, "not found on slide") != 1 {
		t.Fatalf("expected one flagged field in page:\n%s", page)
	}
}

func TestDownloadRejectsBadToken(t *testing.T) {
	f := newFixture(t, true)
	for _, token := range []string{"not-a-uuid", "6f1c1a3e-8f7e-4b5e-9d62-6a3f1a7e2b10"} {
		resp, _ := f.do(t, http.MethodGet, "/downloads/"+token, nil, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("token %q status = %d", token, resp.StatusCode)
		}
	}
}

func TestWSStreamsState(t *testing.T) {
	f := newFixture(t, true)
	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first StateView
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if !first.Ready || first.Replacements["{{NAME}}"] != "Acme" {
		t.Fatalf("unexpected initial view %+v", first)
	}

	if err := f.session.SetReplacement("{{NAME}}", "Streamed"); err != nil {
		t.Fatalf("SetReplacement: %v", err)
	}
	for {
		var next StateView
		if err := conn.ReadJSON(&next); err != nil {
			t.Fatalf("read update: %v", err)
		}
		if next.Replacements["{{NAME}}"] == "Streamed" {
			if next.Preview != "Hello Streamed" {
				t.Fatalf("unexpected preview %q", next.Preview)
			}
			return
		}
	}
}

func TestDownloadsExpire(t *testing.T) {
	now := fixedNow
	d := NewDownloads(WithDownloadTTL(time.Minute), WithDownloadClock(func() time.Time { return now }))
	ctx, receipt := WithReceipt(context.Background())
	if err := d.Deliver(ctx, model.Artifact{Filename: "a.pptx", Data: []byte("x")}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	token := receipt.Token()
	if !d.Pending(token) {
		t.Fatalf("expected token to be pending")
	}
	now = now.Add(2 * time.Minute)
	if d.Pending(token) {
		t.Fatalf("expected token to expire")
	}
	if _, ok := d.Take(token); ok {
		t.Fatalf("expired token must not be served")
	}
	if err := d.Deliver(context.Background(), model.Artifact{}); !errors.Is(err, artifact.ErrEmptyArtifact) {
		t.Fatalf("expected ErrEmptyArtifact, got %v", err)
	}
}

func TestThemes(t *testing.T) {
	themes, err := NewThemes()
	if err != nil {
		t.Fatalf("NewThemes: %v", err)
	}
	sel, err := themes.Select(DefaultThemeName, "dark")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	cfg := RendererConfig(sel)
	if cfg == nil {
		t.Fatalf("expected renderer config")
	}
	if cfg.Theme != DefaultThemeName || cfg.Variant != "dark" {
		t.Fatalf("unexpected selection %s/%s", cfg.Theme, cfg.Variant)
	}
	if cfg.Tokens["bg"] != "#111827" || cfg.CSSVars["--bg"] != "#111827" {
		t.Fatalf("dark variant not merged over base: %v", cfg.CSSVars)
	}
	if cfg.CSSVars["--radius"] != "6px" {
		t.Fatalf("base token missing from variant selection: %v", cfg.CSSVars)
	}

	sel, err = themes.Select(DefaultThemeName, "")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := RendererConfig(sel).CSSVars["--bg"]; got != "#f4f6f8" {
		t.Fatalf("base palette --bg = %q", got)
	}

	empty, err := NewThemes(&theme.Manifest{Name: "other", Version: "1.0.0"})
	if err != nil {
		t.Fatalf("NewThemes: %v", err)
	}
	if _, err := empty.Select("missing", ""); !errors.Is(err, ErrThemeNotFound) {
		t.Fatalf("expected ErrThemeNotFound, got %v", err)
	}

	style := cssVarsStyle(map[string]string{"--b": "2", "--a": "1;}</style>"})
	if style != "--a: 1/style; --b: 2;" {
		t.Fatalf("unexpected style %q", style)
	}
}
