package tui

import "go.uber.org/zap"

// Theme captures optional prefixes the editor applies when printing status.
type Theme struct {
	InfoPrefix    string
	ErrorPrefix   string
	SuccessPrefix string
}

// DefaultTheme returns the prefixes used when no theme is supplied.
func DefaultTheme() Theme {
	return Theme{
		InfoPrefix:    "…",
		ErrorPrefix:   "✗",
		SuccessPrefix: "✓",
	}
}

// Option configures the Editor.
type Option func(*Editor)

// WithPromptDriver overrides the prompt driver used by the editor.
func WithPromptDriver(driver PromptDriver) Option {
	return func(e *Editor) {
		if driver != nil {
			e.driver = driver
		}
	}
}

// WithLogger sets the logger that receives request failure causes.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Editor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTheme applies optional message prefixes.
func WithTheme(theme Theme) Option {
	return func(e *Editor) {
		e.theme = theme
	}
}

// WithConfirmReset asks before a reset discards local edits.
func WithConfirmReset(enabled bool) Option {
	return func(e *Editor) {
		e.confirmReset = enabled
	}
}
