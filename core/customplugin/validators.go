package customplugin

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/asaskevich/govalidator"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/iancoleman/strcase"
	"github.com/volatiletech/strmangle"

	"github.com/cwarwicker/elbp/core"
)

var (
	attrTypeTag  = "attr_type"
	attrTypeText = "unknown attribute type"

	dateLayout = "2006-01-02"
)

// InitValidators registers the custom plugin validations & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(attrTypeTag, attrTypeValidation)
	core.RegisterCustomTranslation(validate, translator, attrTypeTag, attrTypeText)
}

func attrTypeValidation(fl validator.FieldLevel) bool {
	return attrTypes[fl.Field().String()]
}

// normalizeAttributes derives missing names/labels and rejects duplicate names.
func normalizeAttributes(attrs []Attribute) ([]Attribute, error) {
	out := make([]Attribute, 0, len(attrs))
	seen := make(map[string]bool, len(attrs))
	var fields []core.FieldError
	for i, attr := range attrs {
		attr.Label = core.CleanString(attr.Label)
		name := core.CleanString(attr.Name)
		if name == "" {
			name = attr.Label
		}
		attr.Name = strcase.ToSnake(name)
		if attr.Label == "" {
			attr.Label = strmangle.TitleCase(attr.Name)
		}
		if attr.Zone == "" {
			attr.Zone = ZoneMain
		}
		if attr.Type == TypeNumber {
			attr.Rules.Numeric = true
		}

		field := fmt.Sprintf("attributes[%d].name", i)
		switch {
		case attr.Name == "":
			fields = append(fields, core.FieldError{Field: field, Error: "this field is required"})
		case seen[attr.Name]:
			fields = append(fields, core.FieldError{Field: field, Error: fmt.Sprintf("%s is used twice", attr.Name)})
		}
		if attr.Rules.MaxLength > 0 && attr.Rules.MinLength > attr.Rules.MaxLength {
			fields = append(fields, core.FieldError{Field: fmt.Sprintf("attributes[%d].rules", i), Error: "min_length is above max_length"})
		}
		seen[attr.Name] = true
		out = append(out, attr)
	}
	if len(fields) > 0 {
		return nil, core.NewValidationError(fmt.Errorf("invalid attributes"), fields...)
	}
	return out, nil
}

// ValidateValues checks values against the schema, applying attribute defaults.
// Unknown fields are rejected.
func ValidateValues(attrs []Attribute, values map[string]string) (map[string]string, error) {
	known := make(map[string]Attribute, len(attrs))
	for _, attr := range attrs {
		known[attr.Name] = attr
	}

	var fields []core.FieldError
	unknown := make([]string, 0)
	for name := range values {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		fields = append(fields, core.FieldError{Field: name, Error: "unknown field"})
	}

	cleaned := make(map[string]string, len(attrs))
	for _, attr := range attrs {
		val, ok := values[attr.Name]
		if attr.Type != TypeTextarea {
			val = strings.TrimSpace(val)
		}
		if (!ok || val == "") && attr.Default != "" {
			val = attr.Default
		}
		if msg := validateValue(attr, val); msg != "" {
			fields = append(fields, core.FieldError{Field: attr.Name, Error: msg})
			continue
		}
		if val != "" {
			cleaned[attr.Name] = val
		}
	}

	if len(fields) > 0 {
		return nil, core.NewValidationError(fmt.Errorf("invalid values"), fields...)
	}
	return cleaned, nil
}

func validateValue(attr Attribute, val string) string {
	if val == "" {
		if attr.Rules.Required {
			return "this field is required"
		}
		return ""
	}

	n := utf8.RuneCountInString(val)
	if attr.Rules.MinLength > 0 && n < attr.Rules.MinLength {
		return fmt.Sprintf("must be at least %d characters", attr.Rules.MinLength)
	}
	if attr.Rules.MaxLength > 0 && n > attr.Rules.MaxLength {
		return fmt.Sprintf("must be at most %d characters", attr.Rules.MaxLength)
	}
	if (attr.Rules.Numeric || attr.Type == TypeNumber) && !govalidator.IsFloat(val) {
		return "must be a number"
	}
	if (attr.Rules.Email || attr.Type == TypeEmail) && !govalidator.IsEmail(val) {
		return "must be a valid email address"
	}
	if (attr.Rules.URL || attr.Type == TypeURL) && !govalidator.IsURL(val) {
		return "must be a valid URL"
	}
	if attr.Rules.Date || attr.Type == TypeDate {
		if _, err := time.Parse(dateLayout, val); err != nil {
			return "must be a date (YYYY-MM-DD)"
		}
	}

	switch attr.Type {
	case TypeSelect:
		for _, opt := range attr.Options {
			if opt == val {
				return ""
			}
		}
		return "must be one of the options"
	case TypeCheckbox:
		if val != "0" && val != "1" {
			return "must be 0 or 1"
		}
	case TypeFile:
		if len(val) != 32 || !govalidator.IsHexadecimal(val) {
			return "must be a file code"
		}
	}
	return ""
}
