package enrollment

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/academia-dev/academia/core"
)

var (
	decisionTag  = "decision"
	decisionText = "status must be one of approved or rejected"
)

// InitValidators registers the enrollment package's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(decisionTag, decisionValidation)
	core.RegisterCustomTranslation(validate, translator, decisionTag, decisionText)
}

// decisionValidation only allows the two terminal application statuses.
func decisionValidation(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == StatusApproved || s == StatusRejected
}
