package httpcontroller

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/oncoderma/oncoderma-go/internal/errors"
)

// registerForm mirrors the registration page fields.
type registerForm struct {
	Username        string `form:"username" validate:"required,max=150"`
	Password        string `form:"password" validate:"required"`
	ConfirmPassword string `form:"confirmPassword"`
}

// loginForm mirrors the login page fields.
type loginForm struct {
	Username string `form:"username"`
	Password string `form:"password"`
	Next     string `form:"next"`
}

// uploadForm holds the text fields of an upload; the image is read separately.
type uploadForm struct {
	PatientName string `form:"patient_name" validate:"required,max=100"`
	ScanType    string `form:"scan_type" validate:"required,max=50"`
}

// profileForm holds the editable user and profile fields.
type profileForm struct {
	FirstName             string `form:"first_name" validate:"max=150"`
	LastName              string `form:"last_name" validate:"max=150"`
	Email                 string `form:"email" validate:"omitempty,email,max=254"`
	Phone                 string `form:"phone" validate:"max=20"`
	Institution           string `form:"institution" validate:"max=255"`
	EmailNotifications    bool   `form:"-"` // checkbox, read with checkboxValue
	ResearchParticipation bool   `form:"-"`
}

// chatRequest is the JSON body of POST /chat. scan_id may be a number or a
// numeric string.
type chatRequest struct {
	Message string     `json:"message"`
	ScanID  flexibleID `json:"scan_id"`
}

// newValidator returns a validator that reports fields by their form name.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("form"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// validateForm checks form and returns a field name to message map, or nil.
func (s *Server) validateForm(form any) map[string]string {
	err := s.validate.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"form": "Invalid form"}
	}

	fieldErrors := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fieldErrors[fe.Field()] = fieldMessage(fe)
	}
	return fieldErrors
}

// fieldMessage renders a validation failure the way the form labels read.
func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return "Ensure this value has at most " + fe.Param() + " characters."
	case "email":
		return "Enter a valid email address."
	default:
		return "Invalid value."
	}
}

// trimFields trims surrounding whitespace from every string field of a form pointer.
func trimFields(form any) {
	v := reflect.ValueOf(form)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return
	}
	v = v.Elem()
	for i := range v.NumField() {
		if f := v.Field(i); f.Kind() == reflect.String && f.CanSet() {
			f.SetString(strings.TrimSpace(f.String()))
		}
	}
}

// parseRecordID parses a positive database id. Values above math.MaxInt64
// fail with strconv.ErrRange since no stored row can carry them.
func parseRecordID(raw string) (uint, error) {
	n, err := strconv.ParseUint(raw, 10, 63)
	if err != nil {
		return 0, err
	}
	return uint(n), nil
}

// flexibleID accepts a JSON number or a numeric string. Anything else
// decodes to zero, which callers treat as missing. A numeric id too large
// to exist sets tooLarge.
type flexibleID struct {
	value    uint
	tooLarge bool
}

func (id *flexibleID) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	n, err := parseRecordID(raw)
	*id = flexibleID{value: n, tooLarge: errors.Is(err, strconv.ErrRange)}
	return nil
}

// missing reports whether no usable id was supplied.
func (id flexibleID) missing() bool {
	return id.value == 0 && !id.tooLarge
}
