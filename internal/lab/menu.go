package lab

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/labshot/internal/browser"
)

// Menu drives the main menu bar.
type Menu struct {
	lab *Lab
}

// ClickMenuItem opens a menu path such as "Kernel>Restart Kernel…" and
// clicks its last entry. Labels match with or without a trailing
// ellipsis. If an entry is missing the open menus are closed before the
// error is returned.
func (m *Menu) ClickMenuItem(ctx context.Context, path string) error {
	parts := strings.Split(path, ">")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return fmt.Errorf("menu path %q: empty label", path)
		}
	}
	if len(parts) < 2 {
		return fmt.Errorf("menu path %q: need a menu and an item", path)
	}

	p := m.lab.Page
	if err := p.Click(ctx, browser.CSS(selMenuBarItem).WithText(labelText(parts[0]))); err != nil {
		return err
	}
	for _, label := range parts[1:] {
		if err := p.Click(ctx, browser.CSS(selMenuItem).WithText(labelText(label))); err != nil {
			m.close(ctx)
			return err
		}
	}
	m.lab.logger().Debug("lab: menu", "path", path)
	return nil
}

func (m *Menu) close(ctx context.Context) {
	if err := m.lab.Page.Press(ctx, browser.Locator{}, "Escape"); err != nil {
		m.lab.logger().Warn("lab: close menu", "error", err)
	}
}
