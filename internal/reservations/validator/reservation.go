package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"courtq/internal/reservations/slotkey"
	"courtq/pkg/logger"
	"courtq/pkg/model"

	"github.com/go-playground/validator/v10"
)

var (
	resourceIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)
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
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// ToDetails renders the errors as the details map of an AppError.
func (v ValidationErrors) ToDetails() map[string]any {
	fields := make(map[string]any, len(v))
	for _, err := range v {
		fields[err.Field] = err.Message
	}
	return map[string]any{"fields": fields}
}

type ReservationValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewReservationValidator(log *logger.Logger) *ReservationValidator {
	v := validator.New()

	custom := map[string]validator.Func{
		"resource_id": validateResourceID,
		"slot_date":   validateSlotDate,
		"slot_time":   validateSlotTime,
	}
	for tag, fn := range custom {
		if err := v.RegisterValidation(tag, fn); err != nil {
			log.Fatal("Failed to register reservation validator",
				"tag", tag,
				"error", err,
			)
		}
	}

	log.Debug("Reservation validator initialized")

	return &ReservationValidator{
		validate: v,
		logger:   log,
	}
}

func validateResourceID(fl validator.FieldLevel) bool {
	return resourceIDRegex.MatchString(fl.Field().String())
}

func validateSlotDate(fl validator.FieldLevel) bool {
	_, err := slotkey.NewResolver(time.UTC).NormalizeDate(fl.Field().String())
	return err == nil
}

func validateSlotTime(fl validator.FieldLevel) bool {
	_, err := slotkey.NormalizeTime(fl.Field().String())
	return err == nil
}

// Validate checks the shape of a request. Slot ordering and the past-date
// rule are enforced by the slot key resolver.
func (v *ReservationValidator) Validate(req *model.ReservationRequest) error {
	return v.validateStruct(req)
}

func (v *ReservationValidator) ValidateCancel(req *model.CancelRequest) error {
	return v.validateStruct(req)
}

func (v *ReservationValidator) validateStruct(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *ReservationValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s characters", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		case "resource_id":
			message = fmt.Sprintf("%s may contain only letters, digits and _.:-", err.Field())
		case "slot_date":
			message = fmt.Sprintf("%s must be a calendar date (YYYY-MM-DD)", err.Field())
		case "slot_time":
			message = fmt.Sprintf("%s must be a time of day (HH:MM)", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
