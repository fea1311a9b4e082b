package lab

import (
	"context"
	"strings"

	"github.com/roach88/labshot/internal/browser"
)

// FileBrowser drives the left-hand file browser panel.
type FileBrowser struct {
	lab *Lab
}

// OpenDirectory navigates the file browser to dir, a path relative to the
// server root. An empty dir opens the root.
func (f *FileBrowser) OpenDirectory(ctx context.Context, dir string) error {
	p := f.lab.Page
	if err := p.Click(ctx, browser.CSS(selBreadCrumbHome)); err != nil {
		return err
	}
	if err := p.WaitVisible(ctx, browser.CSS(selDirListing)); err != nil {
		return err
	}

	for _, seg := range strings.Split(strings.Trim(dir, "/"), "/") {
		if seg == "" {
			continue
		}
		if err := p.DoubleClick(ctx, browser.CSS(selDirItemText).WithText(exactText(seg))); err != nil {
			return err
		}
		if err := p.WaitVisible(ctx, browser.CSS(selBreadCrumbItem).WithText(exactText(seg))); err != nil {
			return err
		}
	}
	f.lab.logger().Debug("lab: opened directory", "path", dir)
	return nil
}

// Open double-clicks the entry called name in the current directory.
func (f *FileBrowser) Open(ctx context.Context, name string) error {
	return f.lab.Page.DoubleClick(ctx, browser.CSS(selDirItemText).WithText(exactText(name)))
}
