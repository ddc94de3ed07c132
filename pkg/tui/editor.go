// Package tui drives a report editing session from the terminal: it shows the
// slide text with the current values substituted, and offers a menu to edit a
// placeholder, reset to the served configuration, or generate and download
// the report.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/goliatone/go-reportbuilder/pkg/model"
	"github.com/goliatone/go-reportbuilder/pkg/preview"
	"github.com/goliatone/go-reportbuilder/pkg/state"
	"github.com/goliatone/go-reportbuilder/pkg/workflow"
)

// Session is the part of the workflow controller the editor drives.
type Session interface {
	Snapshot() state.WorkingState
	LoadConfig(ctx context.Context) error
	SetReplacement(key, value string) error
	GenerateReport(ctx context.Context) (model.Artifact, error)
}

// Menu labels.
const (
	LabelEdit     = "Edit placeholder"
	LabelReset    = "Reset to template defaults"
	LabelGenerate = "Generate & download"
	LabelRetry    = "Retry loading"
	LabelQuit     = "Quit"
	labelBack     = "« Back"
)

type action int

const (
	actionEdit action = iota
	actionReset
	actionGenerate
	actionQuit
)

// Editor is the interactive terminal loop.
type Editor struct {
	session      Session
	driver       PromptDriver
	logger       *zap.Logger
	theme        Theme
	confirmReset bool
}

// New constructs an editor with defaults (survey driver, no-op logger).
func New(session Session, options ...Option) (*Editor, error) {
	if session == nil {
		return nil, ErrNoSession
	}
	e := &Editor{
		session: session,
		logger:  zap.NewNop(),
		theme:   DefaultTheme(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(e)
	}
	if e.driver == nil {
		e.driver = newSurveyDriver()
	}
	return e, nil
}

// Run loads the configuration if needed and loops until the operator quits
// or aborts. Backend failures are shown as banners and never end the loop.
func (e *Editor) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("tui: context is required")
	}
	if !e.session.Snapshot().Ready() {
		e.load(ctx)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		snap := e.session.Snapshot()
		if err := e.driver.Info(ctx, e.Render(snap)); err != nil {
			return err
		}

		labels, actions := menu(snap)
		idx, err := e.driver.Select(ctx, SelectConfig{
			Message: "What next?",
			Options: labels,
		})
		if err != nil {
			return err
		}
		if idx < 0 || idx >= len(actions) {
			continue
		}

		switch actions[idx] {
		case actionEdit:
			err = e.edit(ctx, snap)
		case actionReset:
			err = e.reset(ctx, snap)
		case actionGenerate:
			e.generate(ctx)
		case actionQuit:
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// unresolvedMark flags placeholders that do not occur in the slide text.
const unresolvedMark = "(not found on slide)"

// Render formats the status block shown before every menu.
func (e *Editor) Render(snap state.WorkingState) string {
	var b strings.Builder
	if snap.Loading {
		fmt.Fprintf(&b, "%s Loading...\n", e.theme.InfoPrefix)
	}
	if snap.Error != "" {
		fmt.Fprintf(&b, "%s %s\n", e.theme.ErrorPrefix, snap.Error)
	}
	if snap.Success != "" {
		fmt.Fprintf(&b, "%s %s\n", e.theme.SuccessPrefix, snap.Success)
	}
	if !snap.Ready() {
		b.WriteString("No template configuration loaded.")
		return strings.TrimRight(b.String(), "\n")
	}

	fmt.Fprintf(&b, "Slide %d\n", snap.Config.SlideNumber)
	if snap.SlideText != "" {
		b.WriteString("\n")
		for _, line := range strings.Split(preview.Substitute(snap.SlideText, snap.Replacements), "\n") {
			fmt.Fprintf(&b, "  │ %s\n", line)
		}
		b.WriteString("\n")
	}
	keys := snap.Keys()
	if len(keys) == 0 {
		b.WriteString("No placeholders defined.")
	}
	missing := make(map[string]bool)
	for _, key := range preview.Unresolved(snap.SlideText, snap.Replacements) {
		missing[key] = true
	}
	for _, key := range keys {
		mark := ""
		if missing[key] {
			mark = "  " + unresolvedMark
		}
		fmt.Fprintf(&b, "  %s = %q%s\n", key, snap.Replacements[key], mark)
	}
	return strings.TrimRight(b.String(), "\n")
}

func menu(snap state.WorkingState) ([]string, []action) {
	if !snap.Ready() {
		return []string{LabelRetry, LabelQuit}, []action{actionReset, actionQuit}
	}
	labels := []string{}
	actions := []action{}
	if len(snap.Replacements) > 0 {
		labels = append(labels, LabelEdit)
		actions = append(actions, actionEdit)
	}
	labels = append(labels, LabelReset)
	actions = append(actions, actionReset)
	if !snap.Loading {
		labels = append(labels, LabelGenerate)
		actions = append(actions, actionGenerate)
	}
	labels = append(labels, LabelQuit)
	actions = append(actions, actionQuit)
	return labels, actions
}

func (e *Editor) edit(ctx context.Context, snap state.WorkingState) error {
	keys := snap.Keys()
	options := append(append([]string{}, keys...), labelBack)
	idx, err := e.driver.Select(ctx, SelectConfig{
		Message:  "Placeholder",
		Options:  options,
		PageSize: 12,
	})
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(keys) {
		return nil
	}

	key := keys[idx]
	value, err := e.driver.Input(ctx, InputConfig{
		Message: key,
		Default: snap.Replacements[key],
	})
	if err != nil {
		return err
	}
	if err := e.session.SetReplacement(key, value); err != nil {
		// The key came from the snapshot; a concurrent reload may have removed it.
		e.logger.Warn("replacement rejected", zap.String("key", key), zap.Error(err))
		return e.driver.Info(ctx, fmt.Sprintf("%s %v", e.theme.ErrorPrefix, err))
	}
	return nil
}

func (e *Editor) reset(ctx context.Context, snap state.WorkingState) error {
	if e.confirmReset && snap.Ready() && dirty(snap) {
		ok, err := e.driver.Confirm(ctx, ConfirmConfig{
			Message: "Discard local edits and reload the template?",
		})
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	e.load(ctx)
	return nil
}

func (e *Editor) load(ctx context.Context) {
	err := e.session.LoadConfig(ctx)
	if err != nil && !errors.Is(err, workflow.ErrSuperseded) {
		e.logger.Debug("load finished with error", zap.Error(err))
	}
}

func (e *Editor) generate(ctx context.Context) {
	a, err := e.session.GenerateReport(ctx)
	if err != nil {
		e.logger.Debug("generate finished with error", zap.Error(err))
		return
	}
	e.logger.Info("report delivered", zap.String("filename", a.Filename), zap.Int("bytes", a.Size()))
}

func dirty(snap state.WorkingState) bool {
	served := snap.Config.Replacements
	if len(served) != len(snap.Replacements) {
		return true
	}
	for k, v := range snap.Replacements {
		if sv, ok := served[k]; !ok || sv != v {
			return true
		}
	}
	return false
}
