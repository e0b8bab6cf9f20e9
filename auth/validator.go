package auth

import (
	"dm-lab/errors"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidatePayload checks the `validate` tags of a decoded payload and
// reports the failing fields as a validation error.
func ValidatePayload(payload any) error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !stderrors.As(err, &fieldErrors) {
		return errors.Validation("%v", err)
	}
	messages := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		messages = append(messages, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
	}
	return errors.Validation("%s", strings.Join(messages, ", "))
}
