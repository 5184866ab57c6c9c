package xds

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// newValidator builds the struct validator shared by ApplyConfig and
// ApplyAddresses. A fresh instance per Handler keeps it free of any state
// bleed from the unrelated internal/config validator registration.
func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// formatValidationErrors mirrors internal/config's error formatting so a
// rejected resource's nack reason reads the same way a rejected config file
// does.
func formatValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed validation: %s", e.Namespace(), e.Tag()))
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	return err
}
