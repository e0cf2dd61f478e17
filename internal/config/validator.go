// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `internal/config/loader.go` calls `validateStruct` immediately after it
// unmarshals the merged Koanf tree.  Any failure aborts startup.
//
// Besides the built-in rules, one custom rule is registered:
//
//   - dsn_template – the string contains exactly one `%s` verb and no other
//     formatting verbs, so Database.BuildDSN cannot produce a garbled DSN.

package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

//
// validator instance (package-level singleton)
//

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	_ = val.RegisterValidation("dsn_template", func(fl validator.FieldLevel) bool {
		s := strings.ReplaceAll(fl.Field().String(), "%%", "")
		return strings.Count(s, "%s") == 1 && strings.Count(s, "%") == 1
	})
	return val
}

//
// public API
//

// validateStruct returns the validation errors, or nil on success.
func validateStruct(c *Config) error {
	return v.Struct(c)
}
