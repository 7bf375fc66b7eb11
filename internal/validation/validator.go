package validation

import (
	"errors"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a validator. Callers register their own struct-level rules on it.
func New() *validatorv10.Validate {
	return validatorv10.New()
}

// Fields flattens validation errors into namespace -> message.
func Fields(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.StructNamespace()] = fe.Error() // simple message
		}
	} else if err != nil {
		out["error"] = err.Error()
	}
	return out
}
