package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"

	"github.com/tinytelemetry/sigex/internal/domain"
	"github.com/tinytelemetry/sigex/internal/logsource"
	"github.com/tinytelemetry/sigex/internal/rx"
)

//go:embed schema.json
var schemaJSON []byte

var (
	validate     = newValidator()
	schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)
)

func newValidator() *validator.Validate {
	v := validator.New()
	must := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}
	must("regexp2", func(fl validator.FieldLevel) bool {
		_, err := rx.Compile(fl.Field().String())
		return err == nil
	})
	must("domainbase", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseBase(fl.Field().String())
		return err == nil
	})
	must("charset", func(fl validator.FieldLevel) bool {
		_, err := logsource.LookupCharset(fl.Field().String())
		return err == nil
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		c := sl.Current().Interface().(CSV)
		if slices.Contains(c.Delimiters, "other") && c.Separator == "" {
			sl.ReportError(c.Separator, "Separator", "separator", "required_with_other", "")
		}
	}, CSV{})
	return v
}

// describe flattens validator errors into one line.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Profile.")
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s fails %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s fails %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// checkSchema validates a decoded YAML document against the profile schema.
func checkSchema(doc any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: schema: %w", ErrInvalidProfile, err)
	}
	if result.Valid() {
		return nil
	}
	var b bytes.Buffer
	for i, desc := range result.Errors() {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", desc.Field(), desc.Description())
	}
	return fmt.Errorf("%w: %s", ErrInvalidProfile, b.String())
}
