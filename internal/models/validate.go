// internal/models/validate.go
package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationIssue is one entry of a 400 {errors:[...]} body.
type ValidationIssue struct {
	Param string `json:"param"`
	Msg   string `json:"msg"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks v against its validate tags and returns one issue per
// failing field. A nil slice means v is valid.
func Validate(v interface{}) []ValidationIssue {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationIssue{{Param: "", Msg: "Invalid request body"}}
	}

	issues := make([]ValidationIssue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, ValidationIssue{
			Param: paramPath(fe.Namespace()),
			Msg:   issueMessage(fe),
		})
	}
	return issues
}

// paramPath drops the root struct name: "ChatRequest.messages[0].role" -> "messages[0].role".
func paramPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func issueMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s cannot be empty", field)
	case "oneof":
		return fmt.Sprintf("Invalid %s", field)
	case "gte", "lte":
		if field == "temperature" {
			return "Temperature must be between 0 and 1"
		}
		return fmt.Sprintf("%s is out of range", field)
	case "max":
		return fmt.Sprintf("%s is too long", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
