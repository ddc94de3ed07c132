// Package state holds the client's working state and the pure transitions
// that move it between load and generate outcomes. Transitions never perform
// I/O; the workflow controller sequences them around network calls.
package state

import (
	"errors"

	"github.com/goliatone/go-reportbuilder/pkg/model"
)

// Messages surfaced to the operator. The underlying cause is logged, not shown.
const (
	MessageLoadFailed        = "Failed to load configuration"
	MessageGenerateFailed    = "Failed to generate report"
	MessageGenerateSucceeded = "Report generated and downloaded successfully!"
)

// ErrUnknownPlaceholder is returned when an edit targets a key that the loaded
// configuration does not define.
var ErrUnknownPlaceholder = errors.New("state: unknown placeholder")

// WorkingState is the client-owned view of one editing session.
type WorkingState struct {
	// Config is nil until the first successful load.
	Config       *model.TemplateConfig
	SlideText    string
	Replacements map[string]string
	Loading      bool
	Error        string
	Success      string
}

// Ready reports whether a configuration has been loaded.
func (s WorkingState) Ready() bool {
	return s.Config != nil
}

// Keys returns the editable placeholder names in display order.
func (s WorkingState) Keys() []string {
	return model.SortedKeys(s.Replacements)
}

// Clone returns a deep copy of the state.
func (s WorkingState) Clone() WorkingState {
	out := s
	if s.Config != nil {
		cfg := s.Config.Clone()
		out.Config = &cfg
	}
	if s.Replacements != nil {
		out.Replacements = model.CloneReplacements(s.Replacements)
	}
	return out
}

// ApplyLoadStart marks a configuration fetch as pending.
func ApplyLoadStart(s WorkingState) WorkingState {
	s.Loading = true
	return s
}

// ApplyLoadSuccess replaces the configuration, slide text and replacements
// from resp. Replacements is a fresh copy, never the response's map.
func ApplyLoadSuccess(s WorkingState, resp model.ConfigResponse) WorkingState {
	cfg := resp.Config.Clone()
	s.Config = &cfg
	s.SlideText = resp.SlideText
	s.Replacements = model.CloneReplacements(resp.Config.Replacements)
	s.Error = ""
	s.Loading = false
	return s
}

// ApplyLoadFailure records a failed fetch. Previously loaded data is kept.
func ApplyLoadFailure(s WorkingState) WorkingState {
	s.Error = MessageLoadFailed
	s.Success = ""
	s.Loading = false
	return s
}

// SetReplacementValue replaces the value for key and leaves every other field
// untouched.
func SetReplacementValue(s WorkingState, key, value string) (WorkingState, error) {
	if _, ok := s.Replacements[key]; !ok {
		return s, ErrUnknownPlaceholder
	}
	next := model.CloneReplacements(s.Replacements)
	next[key] = value
	s.Replacements = next
	return s, nil
}

// ApplyGenerateStart marks a generate attempt as pending and clears banners.
func ApplyGenerateStart(s WorkingState) WorkingState {
	s.Loading = true
	s.Error = ""
	s.Success = ""
	return s
}

// ApplyGenerateSuccess records a delivered artifact.
func ApplyGenerateSuccess(s WorkingState) WorkingState {
	s.Success = MessageGenerateSucceeded
	s.Error = ""
	s.Loading = false
	return s
}

// ApplyGenerateFailure records a failed generate attempt.
func ApplyGenerateFailure(s WorkingState) WorkingState {
	s.Error = MessageGenerateFailed
	s.Success = ""
	s.Loading = false
	return s
}
