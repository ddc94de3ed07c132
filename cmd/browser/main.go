//go:build js && wasm

// Browser WASM entry point. Exposes the editing session to JavaScript and
// delivers reports through a transient object URL.
package main

import (
	"context"
	"encoding/json"
	"syscall/js"

	"github.com/goliatone/go-reportbuilder"
	"github.com/goliatone/go-reportbuilder/pkg/artifact"
	"github.com/goliatone/go-reportbuilder/pkg/model"
	"github.com/goliatone/go-reportbuilder/pkg/settings"
	"github.com/goliatone/go-reportbuilder/pkg/state"
	"github.com/goliatone/go-reportbuilder/pkg/web"
)

var session *reportbuilder.Session

func main() {
	cfg := settings.Settings{
		APIBase:          apiBase(),
		RequestTimeout:   settings.DefaultRequestTimeout,
		ValidateContract: true,
	}
	s, err := reportbuilder.NewSession(cfg, artifact.SinkFunc(download))
	if err != nil {
		js.Global().Get("console").Call("error", "reportbuilder: "+err.Error())
		return
	}
	session = s

	js.Global().Set("reportbuilder", js.ValueOf(map[string]any{
		"version":        js.FuncOf(version),
		"loadConfig":     js.FuncOf(loadConfig),
		"setReplacement": js.FuncOf(setReplacement),
		"generateReport": js.FuncOf(generateReport),
		"state":          js.FuncOf(currentState),
	}))

	// Keep alive
	select {}
}

// apiBase reads window.API_BASE, falling back to the page origin.
func apiBase() string {
	if v := js.Global().Get("API_BASE"); v.Type() == js.TypeString && v.String() != "" {
		return v.String()
	}
	return js.Global().Get("location").Get("origin").String()
}

func version(this js.Value, args []js.Value) any {
	return "reportbuilder-wasm " + reportbuilder.Version
}

// loadConfig fetches the template configuration.
// Usage: reportbuilder.loadConfig() -> Promise<state JSON>
func loadConfig(this js.Value, args []js.Value) any {
	return promise(func() (string, error) {
		err := session.LoadConfig(context.Background())
		return stateJSON(session.Snapshot()), err
	})
}

// setReplacement edits one placeholder.
// Usage: reportbuilder.setReplacement(key, value) -> state JSON
func setReplacement(this js.Value, args []js.Value) any {
	if len(args) < 2 {
		return errorResult("usage: setReplacement(key, value)")
	}
	if err := session.SetReplacement(args[0].String(), args[1].String()); err != nil {
		return errorResult(err.Error())
	}
	return stateJSON(session.Snapshot())
}

// generateReport submits the current values and downloads the result.
// Usage: reportbuilder.generateReport() -> Promise<state JSON>
func generateReport(this js.Value, args []js.Value) any {
	return promise(func() (string, error) {
		_, err := session.GenerateReport(context.Background())
		return stateJSON(session.Snapshot()), err
	})
}

func currentState(this js.Value, args []js.Value) any {
	return stateJSON(session.Snapshot())
}

// download hands the bytes to the browser and revokes the object URL at once.
func download(_ context.Context, a model.Artifact) error {
	data := js.Global().Get("Uint8Array").New(len(a.Data))
	js.CopyBytesToJS(data, a.Data)
	blob := js.Global().Get("Blob").New([]any{data}, map[string]any{"type": a.ContentType})

	urls := js.Global().Get("URL")
	href := urls.Call("createObjectURL", blob)
	defer urls.Call("revokeObjectURL", href)

	doc := js.Global().Get("document")
	anchor := doc.Call("createElement", "a")
	anchor.Set("href", href)
	anchor.Set("download", a.Filename)
	body := doc.Get("body")
	body.Call("appendChild", anchor)
	anchor.Call("click")
	body.Call("removeChild", anchor)
	return nil
}

// promise runs fn off the event loop. The state is resolved even when fn
// fails, since failures are reported through its banners.
func promise(fn func() (string, error)) js.Value {
	handler := js.FuncOf(func(this js.Value, promiseArgs []js.Value) any {
		resolve := promiseArgs[0]
		go func() {
			out, _ := fn()
			resolve.Invoke(out)
		}()
		return nil
	})
	return js.Global().Get("Promise").New(handler)
}

// stateJSON encodes a snapshot with the same keys the HTTP API serves.
func stateJSON(s state.WorkingState) string {
	b, _ := json.Marshal(web.NewStateView(s))
	return string(b)
}

func errorResult(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}
