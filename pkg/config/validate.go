package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags on cfg (required, gt=0, ...) and returns a
// combined error naming every failing field.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		msg := "invalid configuration:"
		for _, fe := range verrs {
			msg += fmt.Sprintf(" %s failed %q;", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}
