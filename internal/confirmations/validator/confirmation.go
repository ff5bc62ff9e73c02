package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"rideshare/pkg/logger"
	"rideshare/pkg/model"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	messages := make([]string, 0, len(v))
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type ConfirmationValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewConfirmationValidator(log *logger.Logger) *ConfirmationValidator {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)

	if err := v.RegisterValidation("listing_kind", validateListingKind); err != nil {
		log.Fatal("Failed to register 'listing_kind' validator", "error", err)
	}

	return &ConfirmationValidator{validate: v, logger: log}
}

func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

func validateListingKind(fl validator.FieldLevel) bool {
	_, ok := model.ParseKind(fl.Field().String())
	return ok
}

// ValidateRequest checks the passenger's input before any storage lookup.
func (v *ConfirmationValidator) ValidateRequest(req *model.ConfirmationRequest) error {
	return v.translate(v.validate.Struct(req))
}

// Validate checks a row about to be written, including the listing xor.
func (v *ConfirmationValidator) Validate(c *model.Confirmation) error {
	if err := v.translate(v.validate.Struct(c)); err != nil {
		return err
	}
	if _, err := c.Ref(); err != nil {
		return ValidationErrors{{Field: "ride_id", Message: err.Error()}}
	}
	return nil
}

func (v *ConfirmationValidator) translate(err error) error {
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	var out ValidationErrors
	for _, fe := range validationErrs {
		message := fe.Error()
		switch fe.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", fe.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
		case "mongodb":
			message = fmt.Sprintf("%s must be a valid id", fe.Field())
		case "uuid":
			message = fmt.Sprintf("%s must be a valid user id", fe.Field())
		case "nefield":
			message = "you cannot request a seat on your own listing"
		case "oneof", "listing_kind":
			message = fmt.Sprintf("%s must be one of [%s]", fe.Field(), "ride trip")
		}
		out = append(out, ValidationError{Field: fe.Field(), Message: message})
	}
	return out
}
