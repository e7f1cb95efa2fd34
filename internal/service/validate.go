package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/model"
)

var clientNameRegex = regexp.MustCompile(`^[A-Za-z .]+$`)

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// ValidationErrors is returned when a request fails input validation.
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

// Validator checks request payloads before they reach the store.
type Validator struct {
	validate *validator.Validate
}

// NewValidator builds a Validator with the booking-specific tags registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("clientname", validateClientName); err != nil {
		panic(fmt.Sprintf("register clientname validator: %v", err))
	}

	return &Validator{validate: v}
}

func validateClientName(fl validator.FieldLevel) bool {
	return clientNameRegex.MatchString(fl.Field().String())
}

// Book validates a booking request. Fields must already be normalised.
func (v *Validator) Book(req model.BookRequest) error {
	return v.check(req)
}

// CreateClass validates a new class. The start must lie after now.
func (v *Validator) CreateClass(req model.CreateClassRequest, now time.Time) error {
	if err := v.check(req); err != nil {
		return err
	}
	if !req.StartTime.After(now) {
		return ValidationErrors{{Field: "start_time", Message: "start_time must be in the future"}}
	}
	return nil
}

// Email validates a lookup address.
func (v *Validator) Email(email string) error {
	if err := v.validate.Var(email, "required,max=254,email"); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			out := translate(errs)
			for i := range out {
				out[i].Field = "email"
				out[i].Message = strings.Replace(out[i].Message, "value", "email", 1)
			}
			return out
		}
		return err
	}
	return nil
}

func (v *Validator) check(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			return translate(errs)
		}
		return err
	}
	return nil
}

func translate(errs validator.ValidationErrors) ValidationErrors {
	out := make(ValidationErrors, 0, len(errs))
	for _, err := range errs {
		field := err.Field()
		if field == "" {
			field = "value"
		}

		message := err.Error()
		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", field)
		case "min":
			message = fmt.Sprintf("%s must be at least %s", field, err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", field, err.Param())
			if err.Kind() == reflect.Int {
				message = fmt.Sprintf("%s must be at most %s", field, err.Param())
			}
		case "email":
			message = fmt.Sprintf("%s must be a valid email address", field)
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", field, err.Param())
		case "clientname":
			message = fmt.Sprintf("%s may only contain letters, spaces and periods", field)
		}

		out = append(out, ValidationError{Field: field, Message: message})
	}
	return out
}
