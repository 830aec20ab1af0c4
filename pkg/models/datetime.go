package models

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"
	json "github.com/goccy/go-json"
)

// LocalLayout is the zone-less timestamp format the backend exchanges.
const LocalLayout = "2006-01-02T15:04:05"

var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	LocalLayout,
	"2006-01-02",
}

// DateTime embeds time.Time and speaks the backend's local timestamp format.
//
// Besides ISO strings it accepts the array form [yyyy, MM, dd, HH, mm, ss, nanos]
// that some serializers emit for local date-times.
type DateTime struct {
	time.Time
}

// NewDateTime truncates t to whole seconds, matching what a round trip keeps.
func NewDateTime(t time.Time) *DateTime {
	return &DateTime{t.Truncate(time.Second)}
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	if d.Time.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(d.Format(LocalLayout))), nil
}

func (d *DateTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*d = DateTime{}
		return nil
	}

	if data[0] == '[' {
		var parts []int
		if err := json.Unmarshal(data, &parts); err != nil {
			return fmt.Errorf("models.DateTime: %w", err)
		}
		return d.fromParts(parts)
	}

	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("models.DateTime: %w", err)
	}
	return d.parse(s)
}

func (d DateTime) MarshalCBOR() ([]byte, error) {
	if d.Time.IsZero() {
		return cbor.Marshal(nil)
	}
	return cbor.Marshal(d.Format(LocalLayout))
}

func (d *DateTime) UnmarshalCBOR(data []byte) error {
	var raw any
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case nil:
		*d = DateTime{}
		return nil
	case cbor.Tag:
		s, ok := v.Content.(string)
		if !ok {
			return fmt.Errorf("models.DateTime: unexpected tag content %T", v.Content)
		}
		return d.parse(s)
	case string:
		return d.parse(v)
	case time.Time:
		*d = DateTime{v}
		return nil
	default:
		return fmt.Errorf("models.DateTime: unexpected cbor value %T", raw)
	}
}

func (d *DateTime) parse(s string) error {
	if s == "" {
		*d = DateTime{}
		return nil
	}
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*d = DateTime{t}
			return nil
		}
	}
	return fmt.Errorf("models.DateTime: unsupported timestamp %q", s)
}

func (d *DateTime) fromParts(p []int) error {
	if len(p) < 3 {
		return fmt.Errorf("models.DateTime: need at least 3 parts, got %d", len(p))
	}
	at := func(i int) int {
		if i < len(p) {
			return p[i]
		}
		return 0
	}
	*d = DateTime{time.Date(p[0], time.Month(p[1]), p[2], at(3), at(4), at(5), at(6), time.UTC)}
	return nil
}

func (d *DateTime) IsZero() bool {
	return d == nil || d.Time.IsZero()
}

func (d *DateTime) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02 15:04:05")
}
