package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

// ValidationErrorDetail describes a single rejected field.
type ValidationErrorDetail struct {
	Field    string `json:"field"`
	Message  string `json:"message"`
	Expected string `json:"expected"`
	Received any    `json:"received,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. On failure the 400
// response has already been written and false is returned.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeValidation(w, decodeErrors(err))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeValidation(w, fieldErrors(verrs))
			return false
		}
		writeValidation(w, []ValidationErrorDetail{{Field: "body", Message: err.Error(), Expected: "valid request"}})
		return false
	}
	return true
}

// decodeOptional is decode for endpoints whose body may be empty.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		if err := validate.Struct(dst); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				writeValidation(w, fieldErrors(verrs))
				return false
			}
		}
		return true
	}
	return decode(w, r, dst)
}

func writeValidation(w http.ResponseWriter, details []ValidationErrorDetail) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "validation_failed",
		Message: "Invalid request parameters",
		Errors:  details,
	})
}

func decodeErrors(err error) []ValidationErrorDetail {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return []ValidationErrorDetail{{
			Field:    typeErr.Field,
			Message:  fmt.Sprintf("Field '%s' has invalid type", typeErr.Field),
			Expected: typeErr.Type.String(),
			Received: typeErr.Value,
		}}
	}
	if strings.HasPrefix(err.Error(), "json: unknown field ") {
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return []ValidationErrorDetail{{Field: field, Message: fmt.Sprintf("Field '%s' is not allowed", field), Expected: "known field"}}
	}
	return []ValidationErrorDetail{{
		Field:    "body",
		Message:  "Malformed JSON or invalid request body",
		Expected: "valid JSON",
		Received: "invalid",
	}}
}

func fieldErrors(errs validator.ValidationErrors) []ValidationErrorDetail {
	details := make([]ValidationErrorDetail, 0, len(errs))
	for _, e := range errs {
		d := ValidationErrorDetail{
			Field:    e.Field(),
			Message:  fmt.Sprintf("Field validation for '%s' failed on the '%s' tag", e.Field(), e.Tag()),
			Expected: e.Param(),
			Received: e.Value(),
		}
		if d.Expected == "" {
			d.Expected = e.Tag()
		}
		switch e.Tag() {
		case "required":
			d.Message = fmt.Sprintf("Field '%s' is required", e.Field())
			d.Expected = "not null"
			d.Received = nil
		case "email":
			d.Message = fmt.Sprintf("Field '%s' must be a valid email address", e.Field())
			d.Expected = "email format"
		case "min":
			d.Message = fmt.Sprintf("Field '%s' must be at least %s", e.Field(), e.Param())
			d.Expected = "min " + e.Param()
		case "max":
			d.Message = fmt.Sprintf("Field '%s' must be at most %s", e.Field(), e.Param())
			d.Expected = "max " + e.Param()
		case "oneof":
			d.Message = fmt.Sprintf("Field '%s' must be one of: %s", e.Field(), e.Param())
		}
		if strings.Contains(strings.ToLower(e.Field()), "password") {
			d.Received = nil
		}
		details = append(details, d)
	}
	return details
}
