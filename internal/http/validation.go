package http

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/huandu/xstrings"
)

type ValidationError struct {
	Errors map[string][]string
}

func (e *ValidationError) Error() string {
	return "The request is invalid"
}

type ensureForm struct {
	Username string
}

type skinForm struct {
	Invoker  string
	Owner    string
	SkinId   string
	KeepSkin string
}

type permissionsForm struct {
	Invoker  string
	Receiver string
	Owner    string
	SkinId   string
	SkinPerm string
	Op       string
}

func createValidator() *validator.Validate {
	validate := validator.New()

	regexUuidAny := regexp.MustCompile("(?i)^[a-f0-9]{8}-?[a-f0-9]{4}-?[a-f0-9]{4}-?[a-f0-9]{4}-?[a-f0-9]{12}$")
	_ = validate.RegisterValidation("uuid_any", func(fl validator.FieldLevel) bool {
		return regexUuidAny.MatchString(fl.Field().String())
	})

	regexUsername := regexp.MustCompile(`^\w{2,16}$`)
	_ = validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return regexUsername.MatchString(fl.Field().String())
	})

	validate.RegisterStructValidationMapRules(map[string]string{
		"Username": "required,username",
	}, ensureForm{})

	validate.RegisterStructValidationMapRules(map[string]string{
		"Invoker":  "required,uuid_any",
		"Owner":    "required_without=SkinId,omitempty,uuid_any",
		"SkinId":   "omitempty,number",
		"KeepSkin": "omitempty,boolean",
	}, skinForm{})

	validate.RegisterStructValidationMapRules(map[string]string{
		"Invoker":  "required,uuid_any",
		"Receiver": "required,uuid_any",
		"Owner":    "required_without=SkinId,omitempty,uuid_any",
		"SkinId":   "omitempty,number",
		"SkinPerm": "omitempty,boolean",
		"Op":       "omitempty,boolean",
	}, permissionsForm{})

	return validate
}

func validateForm(validate *validator.Validate, form any) *ValidationError {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return &ValidationError{map[string][]string{
			"body": {err.Error()},
		}}
	}

	resultErr := &ValidationError{make(map[string][]string)}
	for _, e := range validationErrors {
		// Form fields are named the same as the struct fields, but start with the lowercased letter
		resultErr.Errors[xstrings.FirstRuneToLower(e.Field())] = []string{formatValidationErr(e)}
	}

	return resultErr
}

func formatValidationErr(err validator.FieldError) string {
	field := xstrings.FirstRuneToLower(err.Field())
	switch err.Tag() {
	case "required", "required_without":
		return fmt.Sprintf("%s is a required field", field)
	case "username":
		return fmt.Sprintf("%s must be a valid username", field)
	case "uuid_any":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "number":
		return fmt.Sprintf("%s must be a number", field)
	case "boolean":
		return fmt.Sprintf("%s must be a boolean", field)
	default:
		return fmt.Sprintf(`Field validation for "%s" failed on the "%s" tag`, field, err.Tag())
	}
}
