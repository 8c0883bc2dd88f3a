package application

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-verity/internal/domain"
)

// RegisterConfigValidators adds the providername, orchestrationmode and
// resultstatus tags to v.
func RegisterConfigValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("providername", validateProviderName); err != nil {
		return fmt.Errorf("failed to register providername validator: %w", err)
	}

	if err := v.RegisterValidation("orchestrationmode", validateOrchestrationMode); err != nil {
		return fmt.Errorf("failed to register orchestrationmode validator: %w", err)
	}

	if err := v.RegisterValidation("resultstatus", validateResultStatus); err != nil {
		return fmt.Errorf("failed to register resultstatus validator: %w", err)
	}

	return nil
}

// validateProviderName accepts grounded or completion, case-insensitively.
func validateProviderName(fl validator.FieldLevel) bool {
	return domain.ProviderName(strings.ToLower(fl.Field().String())).Valid()
}

// validateOrchestrationMode accepts direct or delegated, case-insensitively.
func validateOrchestrationMode(fl validator.FieldLevel) bool {
	return domain.OrchestrationMode(strings.ToLower(fl.Field().String())).Valid()
}

// validateResultStatus accepts any verdict spelling that normalizeStatus
// can map onto a known ResultStatus.
func validateResultStatus(fl validator.FieldLevel) bool {
	_, ok := normalizeStatus(fl.Field().String())
	return ok
}
