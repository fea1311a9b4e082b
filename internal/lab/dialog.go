package lab

import (
	"context"

	"github.com/roach88/labshot/internal/browser"
)

// Dialog drives the modal dialog JupyterLab shows for confirmations.
type Dialog struct {
	lab *Lab
}

// Accept waits for a dialog and clicks its accept button.
func (d *Dialog) Accept(ctx context.Context) error {
	return d.click(ctx, selDialogAccept)
}

// Dismiss waits for a dialog and clicks its cancel button.
func (d *Dialog) Dismiss(ctx context.Context) error {
	return d.click(ctx, selDialogReject)
}

// Discard waits for a dialog and clicks its destructive button, e.g.
// "Discard" in the unsaved changes prompt.
func (d *Dialog) Discard(ctx context.Context) error {
	return d.click(ctx, selDialogWarn)
}

// Open reports whether a dialog is currently shown.
func (d *Dialog) Open(ctx context.Context) (bool, error) {
	return d.lab.Page.Has(ctx, browser.CSS(selDialog))
}

func (d *Dialog) click(ctx context.Context, button string) error {
	p := d.lab.Page
	if err := p.WaitVisible(ctx, browser.CSS(selDialog)); err != nil {
		return err
	}
	if err := p.Click(ctx, browser.CSS(button)); err != nil {
		return err
	}
	return p.WaitGone(ctx, browser.CSS(selDialog))
}
