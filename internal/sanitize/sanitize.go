// Package sanitize rewrites CSS color functions the capture pipeline
// cannot rasterize. Chrome renders oklab()/oklch() natively, but the
// rasterized page is recomposited through canvases that only accept
// rgb()/rgba() strings, so every occurrence is down-leveled before a
// snapshot is taken. The sanitizer only ever touches a captured copy of
// the page's CSS; the browser host applies the rewritten text as a
// temporary override and removes it after the capture.
package sanitize

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// fallbackGray replaces occurrences that parse to fewer than 3 channels.
const fallbackGray = "rgb(128, 128, 128)"

var colorFn = regexp.MustCompile(`(?i)\b(oklab|oklch)\(([^)]*)\)`)

// Text is one body of CSS gathered from the page: a stylesheet rule, a
// <style> element, or an element's inline style attribute. Ref is the
// host-side handle used to apply the rewritten text back as an override.
type Text struct {
	Ref     string
	CSS     string
	Changed bool
}

// Document is the captured CSS of a page, the only thing the sanitizer
// is allowed to mutate.
type Document struct {
	Rules  []Text
	Styles []Text
	Inline []Text
}

// Sanitizer down-levels unsupported color functions in a Document.
type Sanitizer struct {
	logger *slog.Logger
}

// New creates a Sanitizer.
func New(logger *slog.Logger) *Sanitizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sanitizer{logger: logger}
}

// Apply rewrites every oklab()/oklch() occurrence in the document.
// A failure in one text body is logged and skipped; it never aborts the
// snapshot.
func (s *Sanitizer) Apply(doc *Document) {
	if doc == nil {
		return
	}
	for _, group := range [][]Text{doc.Rules, doc.Styles, doc.Inline} {
		for i := range group {
			s.applyOne(&group[i])
		}
	}
}

func (s *Sanitizer) applyOne(t *Text) {
	// One bad rule must not take the whole snapshot down.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("sanitize: skipping css text", "ref", t.Ref, "panic", r)
		}
	}()

	rewritten, changed := RewriteText(t.CSS)
	if changed {
		t.CSS = rewritten
		t.Changed = true
	}
}

// RewriteText replaces every oklab()/oklch() function in css with an
// rgb()/rgba() equivalent. It reports whether anything changed.
func RewriteText(css string) (string, bool) {
	if !strings.Contains(strings.ToLower(css), "okl") {
		return css, false
	}
	changed := false
	out := colorFn.ReplaceAllStringFunc(css, func(match string) string {
		sub := colorFn.FindStringSubmatch(match)
		repl := rewriteFunction(strings.ToLower(sub[1]), sub[2])
		if repl != match {
			changed = true
		}
		return repl
	})
	return out, changed
}

// rewriteFunction converts a single color function body. Fewer than 3
// recoverable channels falls back to neutral gray.
func rewriteFunction(name, body string) string {
	channels, alpha, hasAlpha := parseChannels(name, body)
	if len(channels) < 3 {
		return fallbackGray
	}

	var r, g, b uint8
	if name == "oklch" {
		r, g, b = OklchToRGB(channels[0], channels[1], channels[2])
	} else {
		r, g, b = OklabToRGB(channels[0], channels[1], channels[2])
	}

	if hasAlpha && alpha < 1 {
		return fmt.Sprintf("rgba(%d, %d, %d, %s)", r, g, b,
			strconv.FormatFloat(alpha, 'g', 4, 64))
	}
	return fmt.Sprintf("rgb(%d, %d, %d)", r, g, b)
}

// parseChannels splits a function body into 3 numeric channels plus an
// optional alpha. Both space- and comma-separated syntax are accepted,
// alpha either as a `/ a` suffix or a fourth value.
func parseChannels(name, body string) (channels []float64, alpha float64, hasAlpha bool) {
	alpha = 1

	main := body
	if i := strings.IndexByte(body, '/'); i >= 0 {
		main = body[:i]
		if v, ok := parseChannel(name, strings.TrimSpace(body[i+1:]), 3); ok {
			alpha, hasAlpha = v, true
		}
	}

	fields := strings.FieldsFunc(main, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	})
	for _, f := range fields {
		idx := len(channels)
		v, ok := parseChannel(name, f, idx)
		if !ok {
			continue
		}
		if idx >= 3 {
			// Comma syntax carries alpha as a fourth value.
			if !hasAlpha {
				alpha, hasAlpha = v, true
			}
			break
		}
		channels = append(channels, v)
	}
	return channels, alpha, hasAlpha
}

// parseChannel parses one channel token. Percentages are scaled to the
// channel's reference range: 100% is 1.0 for lightness and alpha, 0.4
// for a/b/chroma. The `none` keyword is zero, hue accepts a deg suffix.
func parseChannel(name, tok string, idx int) (float64, bool) {
	tok = strings.TrimSpace(strings.ToLower(tok))
	if tok == "" {
		return 0, false
	}
	if tok == "none" {
		return 0, true
	}
	tok = strings.TrimSuffix(tok, "deg")

	percent := false
	if strings.HasSuffix(tok, "%") {
		percent = true
		tok = strings.TrimSuffix(tok, "%")
	}

	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, false
	}
	if percent {
		switch idx {
		case 0, 3:
			v /= 100
		default:
			v = v * 0.4 / 100
		}
	}
	return v, true
}
