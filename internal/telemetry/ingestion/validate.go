package ingestion

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var eventTypeRe = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z0-9_]+)*$`)

// newValidator returns a validator that understands the event_type tag
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// registration only fails for an empty tag name
	_ = v.RegisterValidation("event_type", func(fl validator.FieldLevel) bool {
		return eventTypeRe.MatchString(fl.Field().String())
	})
	return v
}
