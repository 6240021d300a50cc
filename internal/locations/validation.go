package locations

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

func (s *Service) validate(l Location) error {
	err := s.validator.Struct(formFrom(l))
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return shared.Detail(shared.ErrValidation, fieldMessage(fieldErrs[0]))
	}
	return fmt.Errorf("locations: validate: %v: %w", err, shared.ErrValidation)
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return "location " + field + " is required"
	case "email":
		return "location email is invalid"
	case "max":
		return "location " + field + " must be at most " + fe.Param() + " characters"
	default:
		return "location " + field + " is invalid"
	}
}
