package server

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// requestValidator checks request DTOs and renders the first failure as an
// English sentence naming the JSON field.
type requestValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	english := en.New()
	uni := ut.New(english, english)
	translator, found := uni.GetTranslator("en")
	if !found {
		panic("translator en not found")
	}
	if err := en_translations.RegisterDefaultTranslations(v, translator); err != nil {
		panic(err)
	}

	rv := &requestValidator{validate: v, translator: translator}
	rv.addCustomTranslations()
	return rv
}

func (rv *requestValidator) addCustomTranslations() {
	_ = rv.validate.RegisterTranslation("required", rv.translator, func(ut ut.Translator) error {
		return ut.Add("required", "{0} required", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("required", fe.Field())
		return t
	})

	_ = rv.validate.RegisterTranslation("max", rv.translator, func(ut ut.Translator) error {
		return ut.Add("max", "{0} must be at most {1} characters", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("max", fe.Field(), fe.Param())
		return t
	})
}

// Struct reports whether s is valid. When it is not, the message of the first
// invalid field is returned.
func (rv *requestValidator) Struct(s any) (string, bool) {
	err := rv.validate.Struct(s)
	if err == nil {
		return "", true
	}

	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		return fieldErrors[0].Translate(rv.translator), false
	}
	return err.Error(), false
}
