package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators is the hook for gateway-specific validation
// rules. GatewayConfig's tags use only built-in rules, so it registers none.
func RegisterCustomValidators(v *validator.Validate) error {
	return nil
}

// Validate validates the GatewayConfig using struct tags and cross-field
// rules, returning an error with actionable, user-friendly messages.
func (c *GatewayConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateWorkloadIdentityPairing(); err != nil {
		return err
	}

	return nil
}

// validateWorkloadIdentityPairing ensures the workload cert and key are
// either both set or both empty: a half-configured pair would otherwise
// fail silently at the first HBONE accept rather than at startup.
func (c *GatewayConfig) validateWorkloadIdentityPairing() error {
	hasCert := c.TLS.WorkloadCert != ""
	hasKey := c.TLS.WorkloadKey != ""
	if hasCert != hasKey {
		return errors.New("tls: workload_cert and workload_key must be set together")
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors into
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
