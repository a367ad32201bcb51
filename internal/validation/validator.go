// Package validation checks request payloads with go-playground/validator and
// renders failures as user-facing messages.
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

var (
	reMobile  = regexp.MustCompile(`^09\d{9}$`)
	reOTPCode = regexp.MustCompile(`^\d{4}$`)
)

// ErrTranslatorNotFound indicates the requested translator is unavailable.
var ErrTranslatorNotFound = errors.New("translator not found")

// FieldError is the first failing field of a payload.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func New() (*Validator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	enLang := en.New()
	uni := ut.New(enLang, enLang)
	trans, ok := uni.GetTranslator("en")
	if !ok {
		return nil, ErrTranslatorNotFound
	}

	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	if err := registerRules(validate, trans); err != nil {
		return nil, err
	}

	return &Validator{
		validate:   validate,
		translator: trans,
	}, nil
}

// Struct validates data and returns a *FieldError for the first failure.
func (v *Validator) Struct(data any) error {
	err := v.validate.Struct(data)
	if err == nil {
		return nil
	}

	var validateErrs validator.ValidationErrors
	if !errors.As(err, &validateErrs) || len(validateErrs) == 0 {
		return err
	}

	fe := validateErrs[0]
	return &FieldError{
		Field:   fe.Field(),
		Message: fe.Translate(v.translator),
	}
}

// IsMobile reports whether s is an 11-digit mobile number starting with 09.
func IsMobile(s string) bool {
	return reMobile.MatchString(s)
}

// IsOTPCode reports whether s is exactly four decimal digits.
func IsOTPCode(s string) bool {
	return reOTPCode.MatchString(s)
}

type rule struct {
	tag     string
	fn      validator.Func
	message string
}

func registerRules(validate *validator.Validate, trans ut.Translator) error {
	rules := []rule{
		{
			tag:     "mobile",
			fn:      func(fl validator.FieldLevel) bool { return IsMobile(fl.Field().String()) },
			message: "شماره موبایل باید با 09 شروع شود و 11 رقم باشد",
		},
		{
			tag:     "otpcode",
			fn:      func(fl validator.FieldLevel) bool { return IsOTPCode(fl.Field().String()) },
			message: "کد تایید باید 4 رقم باشد",
		},
	}

	for _, r := range rules {
		if err := validate.RegisterValidation(r.tag, r.fn); err != nil {
			return err
		}

		message := r.message
		err := validate.RegisterTranslation(r.tag, trans,
			func(ut ut.Translator) error {
				return ut.Add(r.tag, message, true)
			},
			func(ut ut.Translator, fe validator.FieldError) string {
				t, _ := ut.T(fe.Tag(), fe.Field())
				return t
			},
		)
		if err != nil {
			return err
		}
	}

	return validate.RegisterTranslation("required", trans,
		func(ut ut.Translator) error {
			return ut.Add("required", "{0} الزامی است", true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(fe.Tag(), fe.Field())
			return t
		},
	)
}
