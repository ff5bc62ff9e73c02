package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"rideshare/pkg/logger"
	"rideshare/pkg/model"

	"github.com/go-playground/validator/v10"
)

const MaxRideSeats = 8

var airportCodeRegex = regexp.MustCompile(`^[A-Z]{3}$`)

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

type ListingValidator struct {
	validate *validator.Validate
}

func NewListingValidator(log *logger.Logger) *ListingValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("airport_code", validateAirportCode); err != nil {
		log.Fatal("Failed to register 'airport_code' validator", "error", err)
	}

	return &ListingValidator{validate: v}
}

func validateAirportCode(fl validator.FieldLevel) bool {
	return airportCodeRegex.MatchString(fl.Field().String())
}

// Validate checks a new listing against the struct tags and the rules that
// depend on its kind and on now.
func (v *ListingValidator) Validate(l *model.Listing, now time.Time) error {
	var out ValidationErrors

	if err := v.validate.Struct(l); err != nil {
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) {
			return err
		}
		out = append(out, translate(validationErrs)...)
	}
	out = append(out, businessRules(l, now)...)

	if len(out) > 0 {
		return out
	}
	return nil
}

func businessRules(l *model.Listing, now time.Time) ValidationErrors {
	var out ValidationErrors

	if !l.ScheduledAt.IsZero() && l.IsExpired(now) {
		out = append(out, ValidationError{Field: "scheduled_at", Message: "scheduled_at must be in the future"})
	}

	switch l.Kind {
	case model.KindRide:
		if l.SeatsAvailable < 1 || l.SeatsAvailable > MaxRideSeats {
			out = append(out, ValidationError{
				Field:   "seats_available",
				Message: fmt.Sprintf("a ride must offer between 1 and %d seats", MaxRideSeats),
			})
		}
		if l.Trip != nil {
			out = append(out, ValidationError{Field: "trip", Message: "trip details are only allowed on trips"})
		}
	case model.KindTrip:
		if l.Trip == nil {
			out = append(out, ValidationError{Field: "trip", Message: "trip details are required"})
		}
	}

	if l.Price > 0 && l.Currency == "" {
		out = append(out, ValidationError{Field: "currency", Message: "currency is required when a price is set"})
	}
	return out
}

func translate(errs validator.ValidationErrors) ValidationErrors {
	out := make(ValidationErrors, 0, len(errs))
	for _, fe := range errs {
		message := fe.Error()
		switch fe.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", fe.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
		case "airport_code":
			message = fmt.Sprintf("%s must be a 3-letter IATA code", fe.Field())
		case "iso4217":
			message = fmt.Sprintf("%s must be an ISO 4217 currency code", fe.Field())
		case "uuid":
			message = fmt.Sprintf("%s must be a valid user id", fe.Field())
		}
		out = append(out, ValidationError{Field: fe.Field(), Message: message})
	}
	return out
}
