package picking

import (
	"errors"
	"fmt"

	"github.com/roach88/odoorpc/internal/value"
)

// WizardRequiredError reports a validation that stopped on a wizard this
// package does not know how to complete.
type WizardRequiredError struct {
	PickingID int64
	Model     string
	Action    value.Object
}

func (e *WizardRequiredError) Error() string {
	name, _ := value.AsString(e.Action["name"])
	if name == "" {
		return fmt.Sprintf("validate picking %d: wizard %s requires user input", e.PickingID, e.Model)
	}
	return fmt.Sprintf("validate picking %d: wizard %s (%q) requires user input", e.PickingID, e.Model, name)
}

// IsWizardRequired returns true if err is, or wraps, a WizardRequiredError.
func IsWizardRequired(err error) bool {
	var w *WizardRequiredError
	return errors.As(err, &w)
}
