package entity

import "regexp"

// Kind is the input kind of a field. The set is closed: Text, Number,
// Select, Image and Reference.
type Kind interface {
	kind() string
}

// Text is a single-line or multiline text input.
type Text struct {
	MinLength int
	// MaxLength of 0 means unbounded.
	MaxLength int
	// Pattern must match the whole value.
	Pattern   *regexp.Regexp
	Multiline bool
	Email     bool
}

// Number is a numeric input.
type Number struct {
	Min     *float64
	Max     *float64
	Integer bool
}

type Option struct {
	Value string
	// Label is an i18n key.
	Label string
}

// Select restricts a text value to one of Options.
type Select struct {
	Options []Option
}

// Image holds a base64 image, optionally as a data URI.
type Image struct {
	// MaxBytes of 0 means unbounded.
	MaxBytes   int
	MediaTypes []string
}

// Reference picks a related entity of Resource by id. A nil id is the
// one representation of "no selection".
type Reference struct {
	Resource string
}

func (Text) kind() string      { return "text" }
func (Number) kind() string    { return "number" }
func (Select) kind() string    { return "select" }
func (Image) kind() string     { return "image" }
func (Reference) kind() string { return "reference" }

// KindName returns "text", "number", "select", "image" or "reference".
func KindName(k Kind) string {
	if k == nil {
		return ""
	}
	return k.kind()
}

// Pattern compiles expr anchored to the whole value.
func Pattern(expr string) *regexp.Regexp {
	return regexp.MustCompile(`^(?:` + expr + `)$`)
}

// Float returns a pointer to f, for Number bounds.
func Float(f float64) *float64 {
	return &f
}
