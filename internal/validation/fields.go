package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/williamcotton/webdsl/internal/ast"
)

// formatCheckers is the closed format vocabulary. Each checker receives
// an already-string-typed value and reports whether it matches the named
// format.
var formatCheckers = map[string]func(string) bool{
	"email": emailFormatRe.MatchString,
	"url":   isValidURL,
	"date":  dateFormatRe.MatchString,
	"time":  isValidTime,
	"phone": isValidPhone,
	"uuid":  uuidFormatRe.MatchString,
	"ipv4":  ipv4FormatRe.MatchString,
}

var (
	emailFormatRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	dateFormatRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeFormatRe  = regexp.MustCompile(`^\d{2}:\d{2}(:\d{2})?$`)
	uuidFormatRe  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	ipv4FormatRe  = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)
	phoneDigitsRe = regexp.MustCompile(`^[0-9+\-. ()]{7,20}$`)
)

func isValidURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func isValidTime(s string) bool {
	return timeFormatRe.MatchString(s)
}

func isValidPhone(s string) bool {
	if !phoneDigitsRe.MatchString(s) {
		return false
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 7 && digits <= 15
}

// ValidateField evaluates one field's declared constraints against value
// in a fixed order: required, type, length, format, numeric range,
// pattern. It returns "" (valid) or a human-readable message for the
// first constraint that fails.
func ValidateField(field *ast.ApiField, value any, present bool) string {
	if !present || value == nil || value == "" {
		if field.Required {
			return fmt.Sprintf("%s is required", field.Name)
		}
		return ""
	}

	switch field.Type {
	case ast.FieldString:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("%s must be a string", field.Name)
		}
		if field.Length.Set {
			if len(s) < field.Length.Min || len(s) > field.Length.Max {
				return fmt.Sprintf("%s must be between %d and %d characters", field.Name, field.Length.Min, field.Length.Max)
			}
		}
		if field.Format != "" {
			check, ok := formatCheckers[field.Format]
			if ok && !check(s) {
				return fmt.Sprintf("%s must be a valid %s", field.Name, field.Format)
			}
		}
		if field.Pattern != "" {
			re, err := regexp.Compile(field.Pattern)
			if err != nil || !re.MatchString(s) {
				return fmt.Sprintf("%s does not match the required pattern", field.Name)
			}
		}
		return ""
	case ast.FieldNumber:
		n, ok := toNumber(value)
		if !ok {
			return fmt.Sprintf("%s must be a number", field.Name)
		}
		if field.Numeric.Set {
			if n < field.Numeric.Min || n > field.Numeric.Max {
				return fmt.Sprintf("%s must be between %v and %v", field.Name, field.Numeric.Min, field.Numeric.Max)
			}
		}
		return ""
	default:
		return ""
	}
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		trimmed := strings.TrimSpace(t)
		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// ValidateFields is the batch variant: it evaluates every declared field
// against data and, on any failure, returns the field->message error map
// alongside the echoed input values so a re-rendered form can retain
// them. A nil errors map means validation passed.
func ValidateFields(fields []*ast.ApiField, data map[string]any) (errors map[string]string, values map[string]any) {
	values = make(map[string]any, len(data))
	for k, v := range data {
		values[k] = v
	}

	for _, f := range fields {
		v, present := data[f.Name]
		if msg := ValidateField(f, v, present); msg != "" {
			if errors == nil {
				errors = make(map[string]string)
			}
			errors[f.Name] = msg
		}
	}
	return errors, values
}
