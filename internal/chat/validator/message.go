package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	chaterrors "rideshare/internal/chat/errors"
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
	messages := make([]string, 0, len(v))
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: [%s]", strings.Join(messages, "; "))
}

type MessageValidator struct {
	validate *validator.Validate
}

func NewMessageValidator() *MessageValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		return name
	})
	return &MessageValidator{validate: v}
}

func (v *MessageValidator) Validate(msg *model.ChatMessage) error {
	err := v.validate.Struct(msg)
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
		case "required", "min":
			message = fmt.Sprintf("%s is required", fe.Field())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
		case "uuid":
			message = fmt.Sprintf("%s must be a valid user id", fe.Field())
		case "nefield":
			message = "you cannot send a message to yourself"
		}
		out = append(out, ValidationError{Field: fe.Field(), Message: message})
	}
	return out
}

// ValidateUserID checks the other side of a conversation.
func (v *MessageValidator) ValidateUserID(id string) error {
	if err := v.validate.Var(id, "required,uuid"); err != nil {
		return fmt.Errorf("%w: %q", chaterrors.ErrInvalidParticipant, id)
	}
	return nil
}
