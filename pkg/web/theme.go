package web

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	theme "github.com/goliatone/go-theme"
)

// DefaultThemeName names the built-in manifest.
const DefaultThemeName = "reportbuilder"

// ErrThemeNotFound is returned by Select for unknown theme names.
var ErrThemeNotFound = errors.New("web: theme not found")

// DefaultManifest is the built-in palette with a dark variant.
func DefaultManifest() *theme.Manifest {
	return &theme.Manifest{
		Name:    DefaultThemeName,
		Version: "1.0.0",
		Tokens: map[string]string{
			"bg":          "#f4f6f8",
			"surface":     "#ffffff",
			"fg":          "#1f2933",
			"muted":       "#616e7c",
			"accent":      "#0b5cad",
			"accent-fg":   "#ffffff",
			"error-bg":    "#fde8e8",
			"error-fg":    "#9b1c1c",
			"success-bg":  "#e3f9e5",
			"success-fg":  "#1b6e2b",
			"radius":      "6px",
			"font-family": "Helvetica, Arial, sans-serif",
		},
		Variants: map[string]theme.Variant{
			"dark": {
				Tokens: map[string]string{
					"bg":         "#111827",
					"surface":    "#1f2937",
					"fg":         "#f3f4f6",
					"muted":      "#9ca3af",
					"accent":     "#60a5fa",
					"accent-fg":  "#111827",
					"error-bg":   "#451a1a",
					"error-fg":   "#fca5a5",
					"success-bg": "#14351f",
					"success-fg": "#86efac",
				},
			},
		},
	}
}

// Themes resolves manifests through a go-theme selector backed by a registry.
type Themes struct {
	selector theme.ThemeSelector
}

// NewThemes registers the supplied manifests. With no manifests the built-in
// one is used.
func NewThemes(manifests ...*theme.Manifest) (*Themes, error) {
	if len(manifests) == 0 {
		manifests = []*theme.Manifest{DefaultManifest()}
	}
	registry := theme.NewRegistry()
	for _, m := range manifests {
		if m == nil {
			continue
		}
		if err := registry.Register(m); err != nil {
			return nil, fmt.Errorf("web: register theme %q: %w", m.Name, err)
		}
	}
	return &Themes{
		selector: &theme.Selector{
			Registry:     registry,
			DefaultTheme: DefaultThemeName,
		},
	}, nil
}

// Select resolves a theme and variant through the registry.
func (t *Themes) Select(name, variant string, opts ...theme.QueryOption) (*theme.Selection, error) {
	if t == nil || t.selector == nil {
		return nil, ErrThemeNotFound
	}
	sel, err := t.selector.Select(name, variant, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrThemeNotFound, name, err)
	}
	if sel == nil || sel.Manifest == nil {
		return nil, fmt.Errorf("%w: %q", ErrThemeNotFound, name)
	}
	return sel, nil
}

// RendererConfig resolves the merged tokens of a selection and exposes them
// as custom properties.
func RendererConfig(sel *theme.Selection) *theme.RendererConfig {
	if sel == nil || sel.Manifest == nil {
		return nil
	}
	tokens := sel.Tokens()
	vars := make(map[string]string, len(tokens))
	for k, v := range tokens {
		vars["--"+k] = v
	}
	return &theme.RendererConfig{
		Theme:   sel.Theme,
		Variant: sel.Variant,
		Tokens:  tokens,
		CSSVars: vars,
	}
}

var cssValueReplacer = strings.NewReplacer(";", "", "{", "", "}", "", "<", "", ">", "")

// cssVarsStyle renders vars as declarations in stable order.
func cssVarsStyle(vars map[string]string) string {
	if len(vars) == 0 {
		return ""
	}
	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, key := range keys {
		b.WriteString(cssValueReplacer.Replace(key))
		b.WriteString(": ")
		b.WriteString(cssValueReplacer.Replace(vars[key]))
		b.WriteString("; ")
	}
	return strings.TrimSpace(b.String())
}
