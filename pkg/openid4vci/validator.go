package openid4vci

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// CheckSimple validates v against its `validate` struct tags, reporting
// field errors by their JSON name rather than their Go field name.
func CheckSimple(v any) error {
	return validate.Struct(v)
}
