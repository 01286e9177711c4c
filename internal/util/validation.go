package util

import (
	"errors"
	"reflect"
	"strings"

	"exam_platform_backend/internal/model"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var validationMessages = map[string]string{
	"required": "ValidationRequired",
	"min":      "ValidationMin",
	"max":      "ValidationMax",
	"gte":      "ValidationMin",
	"lte":      "ValidationMax",
	"oneof":    "ValidationOneOf",
	"email":    "ValidationEmail",
	"choice":   "ValidationChoice",
}

// RegisterValidators wires the custom tags into gin's validator engine and
// makes error fields use their json names.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected validator engine")
	}
	return setupValidator(v)
}

func setupValidator(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v.RegisterValidation("choice", func(fl validator.FieldLevel) bool {
		return model.AnswerChoice(fl.Field().String()).Valid()
	})
}

// BindingFieldErrors converts a validator error into field errors.
// It returns nil when err is not a validator error.
func BindingFieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Namespace()
		if i := strings.Index(name, "."); i >= 0 {
			name = name[i+1:]
		}
		msgID, ok := validationMessages[fe.Tag()]
		if !ok {
			msgID = "ValidationInvalid"
		}
		fields = append(fields, NewFieldError(name, msgID, map[string]any{
			"Field": name,
			"Param": fe.Param(),
		}))
	}
	return fields
}
