package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"strings"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/loupe/internal/sanitize"
	"github.com/hazyhaar/loupe/internal/snapshot"
)

// cssEntry is the wire form of one gathered CSS text body.
type cssEntry struct {
	Ref string `json:"ref"`
	CSS string `json:"css"`
}

// gatherCSSJS collects every CSS text body that mentions an okl* color
// function: rules from external stylesheets, <style> element contents,
// and inline style attributes. <style> and inline elements get a data
// attribute so the rewritten text can be applied back by reference.
// Cross-origin stylesheets throw on cssRules access and are skipped;
// Chrome renders those natively either way.
const gatherCSSJS = `() => {
	const out = { rules: [], styles: [], inline: [] };
	for (let i = 0; i < document.styleSheets.length; i++) {
		const sheet = document.styleSheets[i];
		const node = sheet.ownerNode;
		if (node && node.tagName === 'STYLE') continue;
		let rules;
		try { rules = sheet.cssRules; } catch (e) { continue; }
		if (!rules) continue;
		for (let j = 0; j < rules.length; j++) {
			const t = rules[j].cssText || '';
			if (t.includes('okl')) out.rules.push({ ref: i + '/' + j, css: t });
		}
	}
	document.querySelectorAll('style').forEach((el, k) => {
		const t = el.textContent || '';
		if (!t.includes('okl')) return;
		el.setAttribute('data-loupe-style', String(k));
		out.styles.push({ ref: String(k), css: t });
	});
	document.querySelectorAll('[style*="okl"]').forEach((el, k) => {
		el.setAttribute('data-loupe-inline', String(k));
		out.inline.push({ ref: String(k), css: el.getAttribute('style') || '' });
	});
	return JSON.stringify(out);
}`

// applyCSSJS installs the rewritten CSS: rule overrides go into one
// appended <style> (later in the cascade, same specificity, so they
// win), <style> and inline texts are swapped in place.
const applyCSSJS = `(overrideCSS, styles, inline) => {
	if (overrideCSS) {
		const s = document.createElement('style');
		s.id = 'loupe-css-override';
		s.textContent = overrideCSS;
		document.head.appendChild(s);
	}
	for (const it of styles) {
		const el = document.querySelector('style[data-loupe-style="' + it.ref + '"]');
		if (el) el.textContent = it.css;
	}
	for (const it of inline) {
		const el = document.querySelector('[data-loupe-inline="' + it.ref + '"]');
		if (el) el.setAttribute('style', it.css);
	}
}`

// restoreCSSJS undoes applyCSSJS with the original texts.
const restoreCSSJS = `(styles, inline) => {
	const o = document.getElementById('loupe-css-override');
	if (o) o.remove();
	for (const it of styles) {
		const el = document.querySelector('style[data-loupe-style="' + it.ref + '"]');
		if (el) el.textContent = it.css;
	}
	for (const it of inline) {
		const el = document.querySelector('[data-loupe-inline="' + it.ref + '"]');
		if (el) el.setAttribute('style', it.css);
	}
}`

// CapturePage rasterizes the full page. When pre is non-nil the page's
// CSS is gathered first, handed to pre for rewriting, and any changed
// text is applied as a temporary override for the duration of the
// screenshot. The overlay element is hidden so it never appears in its
// own source material.
func (h *Host) CapturePage(ctx context.Context, pre func(*sanitize.Document)) (*snapshot.Raster, error) {
	page := h.tab.Page.Context(ctx)

	var restore func()
	if pre != nil {
		doc, err := h.gatherCSS(ctx)
		if err != nil {
			h.logger.Warn("browser: gather css failed, capturing unsanitized", "error", err)
		} else if doc != nil {
			origStyles := originals(doc.Styles)
			origInline := originals(doc.Inline)

			pre(doc)

			override := overrideSheet(doc.Rules)
			styles := changedEntries(doc.Styles)
			inline := changedEntries(doc.Inline)
			if override != "" || len(styles) > 0 || len(inline) > 0 {
				if _, err := page.Eval(applyCSSJS, override, styles, inline); err != nil {
					return nil, fmt.Errorf("browser: apply css override: %w", err)
				}
				restore = func() {
					if _, err := page.Eval(restoreCSSJS,
						keep(origStyles, styles), keep(origInline, inline)); err != nil {
						h.logger.Warn("browser: restore css failed", "error", err)
					}
				}
			}
		}
	}
	if restore != nil {
		defer restore()
	}

	h.setOverlayHidden(ctx, true)
	defer h.setOverlayHidden(ctx, false)

	bin, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: page screenshot: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(bin))
	if err != nil {
		return nil, fmt.Errorf("browser: decode page screenshot: %w", err)
	}
	return snapshot.NewRaster(img, 1), nil
}

// CaptureRegion rasterizes the tracked region element at the given
// scale. Scale > 1 yields a backing raster denser than CSS pixels, so
// the magnified crop stays sharp.
func (h *Host) CaptureRegion(ctx context.Context, id string, scale float64) (*snapshot.Raster, error) {
	page := h.tab.Page.Context(ctx)

	// Has does not wait for the selector; a missing region element must
	// fail the capture immediately, not stall it.
	has, el, err := page.Has("#" + id)
	if err != nil {
		return nil, fmt.Errorf("browser: region element %s: %w", id, err)
	}
	if !has {
		return nil, fmt.Errorf("browser: region element %s: not present", id)
	}
	shape, err := el.Shape()
	if err != nil {
		return nil, fmt.Errorf("browser: region shape %s: %w", id, err)
	}
	box := shape.Box()

	bin, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
		Clip: &proto.PageViewport{
			X:     box.X,
			Y:     box.Y,
			Width: box.Width, Height: box.Height,
			Scale: scale,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("browser: region screenshot %s: %w", id, err)
	}

	img, err := png.Decode(bytes.NewReader(bin))
	if err != nil {
		return nil, fmt.Errorf("browser: decode region screenshot: %w", err)
	}
	return snapshot.NewRaster(img, scale), nil
}

// SampleCanvas reads the canvas element's current pixels via
// toDataURL. A tainted canvas makes toDataURL throw, which surfaces
// here as an error; the compositor turns that into an error frame.
func (h *Host) SampleCanvas(ctx context.Context, id string) (*snapshot.Raster, error) {
	page := h.tab.Page.Context(ctx)

	has, el, err := page.Has("#" + id)
	if err != nil {
		return nil, fmt.Errorf("browser: canvas element %s: %w", id, err)
	}
	if !has {
		return nil, fmt.Errorf("browser: canvas element %s: not present", id)
	}
	res, err := el.Eval(`() => this.toDataURL("image/png")`)
	if err != nil {
		return nil, fmt.Errorf("browser: canvas toDataURL %s: %w", id, err)
	}

	data := res.Value.Str()
	i := strings.IndexByte(data, ',')
	if i < 0 {
		return nil, fmt.Errorf("browser: canvas %s: malformed data URL", id)
	}
	raw, err := base64.StdEncoding.DecodeString(data[i+1:])
	if err != nil {
		return nil, fmt.Errorf("browser: canvas %s: decode base64: %w", id, err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("browser: canvas %s: decode png: %w", id, err)
	}
	return snapshot.NewRaster(img, 1), nil
}

func (h *Host) gatherCSS(ctx context.Context) (*sanitize.Document, error) {
	res, err := h.tab.Page.Context(ctx).Eval(gatherCSSJS)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Rules  []cssEntry `json:"rules"`
		Styles []cssEntry `json:"styles"`
		Inline []cssEntry `json:"inline"`
	}
	if err := json.Unmarshal([]byte(res.Value.Str()), &raw); err != nil {
		return nil, fmt.Errorf("parse gathered css: %w", err)
	}
	return &sanitize.Document{
		Rules:  toTexts(raw.Rules),
		Styles: toTexts(raw.Styles),
		Inline: toTexts(raw.Inline),
	}, nil
}

func toTexts(entries []cssEntry) []sanitize.Text {
	out := make([]sanitize.Text, len(entries))
	for i, e := range entries {
		out[i] = sanitize.Text{Ref: e.Ref, CSS: e.CSS}
	}
	return out
}

// originals snapshots the pre-rewrite text of each body, keyed by ref.
func originals(texts []sanitize.Text) map[string]string {
	m := make(map[string]string, len(texts))
	for _, t := range texts {
		m[t.Ref] = t.CSS
	}
	return m
}

// changedEntries returns only the rewritten bodies, in wire form.
// Always non-nil: the applied JS iterates it.
func changedEntries(texts []sanitize.Text) []cssEntry {
	out := make([]cssEntry, 0, len(texts))
	for _, t := range texts {
		if t.Changed {
			out = append(out, cssEntry{Ref: t.Ref, CSS: t.CSS})
		}
	}
	return out
}

// keep filters orig down to the refs that were actually applied.
func keep(orig map[string]string, applied []cssEntry) []cssEntry {
	out := make([]cssEntry, 0, len(applied))
	for _, e := range applied {
		out = append(out, cssEntry{Ref: e.Ref, CSS: orig[e.Ref]})
	}
	return out
}

// overrideSheet concatenates rewritten stylesheet rules into one
// override sheet.
func overrideSheet(rules []sanitize.Text) string {
	var b strings.Builder
	for _, t := range rules {
		if !t.Changed {
			continue
		}
		b.WriteString(t.CSS)
		b.WriteByte('\n')
	}
	return b.String()
}
