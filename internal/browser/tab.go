package browser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab is one attached page.
type Tab struct {
	ID     string
	URL    string
	Page   *rod.Page
	logger *slog.Logger
}

// OpenTab opens a new tab, navigates to url and waits for the load
// event. When useStealth is set the page gets the stealth setup before
// navigation.
func OpenTab(ctx context.Context, m *Manager, id, url string, useStealth bool) (*Tab, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}

	var (
		page *rod.Page
		err  error
	)
	if useStealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: open tab: %w", err)
	}

	page = page.Context(ctx)

	if err := page.Navigate(url); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("browser: wait load %s: %w", url, err)
	}

	m.cfg.Logger.Info("browser: tab ready", "id", id, "url", url)
	return &Tab{ID: id, URL: url, Page: page, logger: m.cfg.Logger}, nil
}

// AttachTab wraps an already-open page (e.g. the first tab of a remote
// session) without navigating.
func AttachTab(id string, page *rod.Page, logger *slog.Logger) *Tab {
	if logger == nil {
		logger = slog.Default()
	}
	url := ""
	if info, err := page.Info(); err == nil {
		url = info.URL
	}
	return &Tab{ID: id, URL: url, Page: page, logger: logger}
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page == nil {
		return nil
	}
	if err := t.Page.Close(); err != nil {
		return fmt.Errorf("browser: close tab %s: %w", t.ID, err)
	}
	return nil
}
