package validation

import (
	"fmt"
	"net/mail"
	"reflect"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fixgsm/fixgsm-server/internal/models"
)

// FieldError describes the first rule a field failed
type FieldError struct {
	Field string
	Rule  string
	Param string
}

func (e *FieldError) Error() string {
	switch e.Rule {
	case "required":
		return fmt.Sprintf("Câmpul %s este obligatoriu", e.Field)
	case "email":
		return fmt.Sprintf("Câmpul %s nu este o adresă de email validă", e.Field)
	case "min":
		return fmt.Sprintf("Câmpul %s trebuie să aibă cel puțin %s caractere", e.Field, e.Param)
	case "max":
		return fmt.Sprintf("Câmpul %s poate avea cel mult %s caractere", e.Field, e.Param)
	case "oneof":
		return fmt.Sprintf("Câmpul %s trebuie să fie unul dintre: %s", e.Field, strings.ReplaceAll(e.Param, " ", ", "))
	case "hexcolor":
		return fmt.Sprintf("Câmpul %s trebuie să fie o culoare hex (#rrggbb)", e.Field)
	case "gte":
		return fmt.Sprintf("Câmpul %s trebuie să fie cel puțin %s", e.Field, e.Param)
	}
	return fmt.Sprintf("Câmpul %s este invalid", e.Field)
}

// Validator validates structs using `validate` tags. Nil pointers skip every
// rule except required, which lets partial-update requests share the tags.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates a struct
func (v *Validator) Validate(s interface{}) error {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("validate expects a struct")
	}

	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		tag := fieldType.Tag.Get("validate")

		if tag == "" {
			continue
		}

		if err := v.validateField(field, fieldName(fieldType), tag); err != nil {
			return err
		}
	}

	return nil
}

// fieldName prefers the JSON name the client sent
func fieldName(f reflect.StructField) string {
	if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" && name != "-" {
		return name
	}
	return f.Name
}

// validateField validates a single field
func (v *Validator) validateField(field reflect.Value, name, tag string) error {
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			if strings.Contains(","+tag+",", ",required,") {
				return &FieldError{Field: name, Rule: "required"}
			}
			return nil
		}
		field = field.Elem()
	}

	for _, rule := range strings.Split(tag, ",") {
		ruleName, param, _ := strings.Cut(rule, "=")

		switch ruleName {
		case "required":
			if isBlank(field) {
				return &FieldError{Field: name, Rule: ruleName}
			}

		case "email":
			if field.Kind() == reflect.String && field.String() != "" {
				addr, err := mail.ParseAddress(field.String())
				if err != nil || addr.Address != strings.TrimSpace(field.String()) {
					return &FieldError{Field: name, Rule: ruleName}
				}
			}

		case "min", "max":
			n, err := strconv.Atoi(param)
			if err != nil || field.Kind() != reflect.String {
				continue
			}
			length := len([]rune(strings.TrimSpace(field.String())))
			if (ruleName == "min" && length < n) || (ruleName == "max" && length > n) {
				return &FieldError{Field: name, Rule: ruleName, Param: param}
			}

		case "oneof":
			if field.Kind() != reflect.String || field.String() == "" {
				continue
			}
			if !contains(strings.Fields(param), field.String()) {
				return &FieldError{Field: name, Rule: ruleName, Param: param}
			}

		case "hexcolor":
			if field.Kind() == reflect.String && field.String() != "" && !models.IsHexColor(field.String()) {
				return &FieldError{Field: name, Rule: ruleName}
			}

		case "gte":
			if !gte(field, param) {
				return &FieldError{Field: name, Rule: ruleName, Param: param}
			}
		}
	}

	return nil
}

// isBlank treats whitespace-only strings as missing
func isBlank(field reflect.Value) bool {
	if field.Kind() == reflect.String {
		return strings.TrimSpace(field.String()) == ""
	}
	return field.IsZero()
}

func gte(field reflect.Value, param string) bool {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		min, err := decimal.NewFromString(param)
		return err != nil || d.GreaterThanOrEqual(min)
	}
	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		min, err := strconv.ParseInt(param, 10, 64)
		return err != nil || field.Int() >= min
	case reflect.Float32, reflect.Float64:
		min, err := strconv.ParseFloat(param, 64)
		return err != nil || field.Float() >= min
	}
	return true
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
