package serialshare

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("baudrate", func(fl validator.FieldLevel) bool {
		return isValidBaudRate(int(fl.Field().Int()))
	})
	_ = v.RegisterValidation("portname", func(fl validator.FieldLevel) bool {
		return isValidPortPattern(fl.Field().String())
	})
	return v
}

// ValidateConfig validates serial port configuration parameters
func ValidateConfig(cfg *SessionConfig) error {
	if cfg == nil {
		return errors.New("serial config has not been set")
	}

	// Security: Prevent path traversal attacks
	if strings.Contains(cfg.PortName, "..") {
		return fmt.Errorf("invalid port name: contains path traversal")
	}

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s value %v (rule %q)", fe.Field(), fe.Value(), fe.Tag())
		}
		return err
	}
	return nil
}
