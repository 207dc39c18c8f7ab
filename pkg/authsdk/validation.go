package authsdk

import (
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Second-factor codes are numeric TOTP codes or alphanumeric backup codes.
var codePattern = regexp.MustCompile(`^[A-Za-z0-9-]{4,32}$`)

func invalidInput(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

func validateEmail(email string) error {
	return invalidInput(validation.Errors{
		"email": validation.Validate(email, validation.Required, validation.Length(3, 254), is.Email),
	}.Filter())
}

// Validate checks the login body before it is sent.
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 1024)),
	)
}

// Validate checks the registration body before it is sent.
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 1024)),
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.OrganizationID, validation.Length(0, 200)),
	)
}

func validateToken(name, token string) error {
	return invalidInput(validation.Errors{
		name: validation.Validate(token, validation.Required, validation.Length(1, 4096)),
	}.Filter())
}

func validateCode(code string) error {
	return invalidInput(validation.Errors{
		"code": validation.Validate(code, validation.Required, validation.Match(codePattern)),
	}.Filter())
}
