// Package dialog defines the parameter-collection and confirmation UI contract.
package dialog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/action-invoker/pkg/metadata"
)

const logPrefix = "dialog:presenter"

// ParameterDialogResult is what the user entered, or a cancellation.
type ParameterDialogResult struct {
	Cancelled bool
	Values    map[string]interface{}
}

// Presenter collects parameter values and confirmations from the user.
type Presenter interface {
	PresentParameterDialog(ctx context.Context, desc *metadata.Descriptor, defaults map[string]interface{}) (ParameterDialogResult, error)
	PresentConfirmation(ctx context.Context, text string) (bool, error)
}

// Headless answers dialogs without a user. A parameter dialog is accepted
// with the defaults when every parameter has one, and cancelled otherwise.
type Headless struct {
	AutoConfirm bool
}

// PresentParameterDialog implements Presenter.
func (h *Headless) PresentParameterDialog(_ context.Context, desc *metadata.Descriptor, defaults map[string]interface{}) (ParameterDialogResult, error) {
	values := make(map[string]interface{}, len(desc.Parameters))
	for _, p := range desc.Parameters {
		if p.Name == metadata.ActiveEntityParameter {
			continue
		}
		v, ok := defaults[p.Name]
		if !ok {
			slog.Info(fmt.Sprintf("%s - %s needs a value for %s, cancelling", logPrefix, desc.Name, p.Name))
			return ParameterDialogResult{Cancelled: true}, nil
		}
		values[p.Name] = v
	}
	return ParameterDialogResult{Values: values}, nil
}

// PresentConfirmation implements Presenter.
func (h *Headless) PresentConfirmation(_ context.Context, text string) (bool, error) {
	slog.Info(fmt.Sprintf("%s - confirmation %q answered %v", logPrefix, text, h.AutoConfirm))
	return h.AutoConfirm, nil
}
