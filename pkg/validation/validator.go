package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	// socketSchemes are the transports a token socket address may name.
	socketSchemes = []string{"tcp://", "ipc://", "inproc://", "ws://"}
)

func init() {
	validate = validator.New()
	if err := validate.RegisterValidation("sockaddr", validSocketAddr); err != nil {
		panic(err)
	}
}

// validSocketAddr accepts scheme://rest for the supported socket transports.
func validSocketAddr(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	for _, scheme := range socketSchemes {
		if strings.HasPrefix(addr, scheme) && len(addr) > len(scheme) {
			return true
		}
	}
	return false
}

// Struct validates v using its `validate` struct tags.
func Struct(v any) error {
	if v == nil {
		return errors.New("value cannot be nil")
	}
	if err := validate.Struct(v); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// Return the first validation error in a user-friendly format
	for _, e := range validationErrs {
		field := e.Namespace()
		param := e.Param()

		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min", "gte":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max", "lte":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s]", field, param)
		case "sockaddr":
			return fmt.Errorf("%s: %q is not a socket address (want one of %v)", field, e.Value(), socketSchemes)
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}

	return err
}
