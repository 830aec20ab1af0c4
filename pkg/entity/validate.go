package entity

import (
	"encoding/base64"
	"fmt"
	"math"
	"net/http"
	"net/mail"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/cesarabad/muffinmanager/pkg/i18n"
)

// ValidationError is a failed field constraint. It is shown inline and
// never sent to the server.
type ValidationError struct {
	Field string
	// Key is the i18n key of the message, Params its placeholders.
	Key    string
	Params i18n.Params
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Key)
}

// Message renders the error with t. The field placeholder is the
// translated field label.
func (e ValidationError) Message(t i18n.TranslateFunc, label string) string {
	params := i18n.Params{"field": t(label, nil)}
	for k, v := range e.Params {
		params[k] = v
	}
	return t(e.Key, params)
}

// Result holds the first failed constraint of each invalid field.
type Result struct {
	errs  map[string]ValidationError
	order []string
}

func (r Result) Valid() bool {
	return len(r.errs) == 0
}

func (r Result) For(field string) (ValidationError, bool) {
	e, ok := r.errs[field]
	return e, ok
}

// Errors lists the failures in field order.
func (r Result) Errors() []ValidationError {
	out := make([]ValidationError, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.errs[name])
	}
	return out
}

// Validate checks every field of item. It has no side effects, so callers
// can run it on every change.
func Validate[T any](fields []Field[T], item *T) Result {
	return ValidateWith(fields, item, nil)
}

// ValidateWith is Validate where rejected holds failures already known for
// some fields, such as input their setter refused. Those take precedence.
func ValidateWith[T any](fields []Field[T], item *T, rejected map[string]ValidationError) Result {
	r := Result{errs: map[string]ValidationError{}}
	for _, f := range fields {
		if e, ok := rejected[f.Name]; ok {
			r.errs[f.Name] = e
			r.order = append(r.order, f.Name)
			continue
		}
		if e, failed := Check(f, item); failed {
			r.errs[f.Name] = e
			r.order = append(r.order, f.Name)
		}
	}
	return r
}

// Check validates one field.
func Check[T any](f Field[T], item *T) (ValidationError, bool) {
	fail := func(key string, params i18n.Params) (ValidationError, bool) {
		return ValidationError{Field: f.Name, Key: key, Params: params}, true
	}

	value := f.Get(item)
	if isEmpty(value) {
		if f.Required {
			return fail("validation.required", nil)
		}
		return ValidationError{}, false
	}

	switch k := f.Kind.(type) {
	case Text:
		s, _ := value.(string)
		n := utf8.RuneCountInString(s)
		if k.MinLength > 0 && n < k.MinLength {
			return fail("validation.minLength", i18n.Params{"min": k.MinLength})
		}
		if k.MaxLength > 0 && n > k.MaxLength {
			return fail("validation.maxLength", i18n.Params{"max": k.MaxLength})
		}
		if k.Email {
			if addr, err := mail.ParseAddress(s); err != nil || addr.Address != s {
				return fail("validation.email", nil)
			}
		}
		if k.Pattern != nil && !k.Pattern.MatchString(s) {
			return fail("validation.pattern", nil)
		}

	case Number:
		v, _ := value.(float64)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fail("validation.number", nil)
		}
		if k.Integer && v != math.Trunc(v) {
			return fail("validation.integer", nil)
		}
		if k.Min != nil && v < *k.Min {
			return fail("validation.min", i18n.Params{"min": *k.Min})
		}
		if k.Max != nil && v > *k.Max {
			return fail("validation.max", i18n.Params{"max": *k.Max})
		}

	case Select:
		s, _ := value.(string)
		if !slices.ContainsFunc(k.Options, func(o Option) bool { return o.Value == s }) {
			return fail("validation.option", nil)
		}

	case Image:
		s, _ := value.(string)
		mediaType, data, ok := decodeImage(s)
		if !ok {
			return fail("validation.imageType", i18n.Params{"types": strings.Join(k.MediaTypes, ", ")})
		}
		if k.MaxBytes > 0 && len(data) > k.MaxBytes {
			return fail("validation.imageSize", i18n.Params{"max": k.MaxBytes})
		}
		if len(k.MediaTypes) > 0 && !slices.Contains(k.MediaTypes, mediaType) {
			return fail("validation.imageType", i18n.Params{"types": strings.Join(k.MediaTypes, ", ")})
		}
	}

	return ValidationError{}, false
}

// isEmpty treats whitespace-only text and a nil reference as absent.
// Numbers are never empty.
func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case *int64:
		return v == nil
	default:
		return false
	}
}

// decodeImage accepts a data URI or bare base64 and returns the media
// type and decoded bytes.
func decodeImage(value string) (string, []byte, bool) {
	payload := value
	declared := ""
	if rest, ok := strings.CutPrefix(value, "data:"); ok {
		meta, encoded, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return "", nil, false
		}
		declared = strings.TrimSuffix(meta, ";base64")
		payload = encoded
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return "", nil, false
	}
	if declared != "" {
		return declared, data, true
	}
	detected, _, _ := strings.Cut(http.DetectContentType(data), ";")
	return detected, data, true
}
