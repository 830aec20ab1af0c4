package entity

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesarabad/muffinmanager/pkg/i18n"
)

type sample struct {
	Reference string
	Notes     string
	Email     string
	Weight    float64
	Units     int
	Kind      string
	Logo      string
	ParentID  *int64
	Alias     *string
}

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func sampleFields() []Field[sample] {
	return []Field[sample]{
		StringField("reference", "field.reference", true, Text{MinLength: 2, MaxLength: 6, Pattern: Pattern(`[A-Z0-9-]+`)}, func(s *sample) *string { return &s.Reference }),
		StringField("notes", "field.description", false, Text{Multiline: true, MaxLength: 10}, func(s *sample) *string { return &s.Notes }),
		StringField("email", "field.email", false, Text{Email: true}, func(s *sample) *string { return &s.Email }),
		FloatField("weight", "field.weight", true, Number{Min: Float(0.1), Max: Float(100)}, func(s *sample) *float64 { return &s.Weight }),
		IntField("units", "field.unitsPerBox", true, Number{Min: Float(1)}, func(s *sample) *int { return &s.Units }),
		StringField("kind", "field.kind", false, Select{Options: []Option{{Value: "a"}, {Value: "b"}}}, func(s *sample) *string { return &s.Kind }),
		StringField("logo", "field.logo", false, Image{MaxBytes: 64, MediaTypes: []string{"image/png"}}, func(s *sample) *string { return &s.Logo }),
		ReferenceField("parent", "field.product", true, "product", func(s *sample) **int64 { return &s.ParentID }),
		OptionalStringField("alias", "field.aliasVersion", Text{MaxLength: 3}, func(s *sample) **string { return &s.Alias }),
	}
}

func validSample() sample {
	id := int64(7)
	return sample{Reference: "B-01", Weight: 1.5, Units: 12, ParentID: &id}
}

func TestValidateValid(t *testing.T) {
	item := validSample()
	r := Validate(sampleFields(), &item)
	assert.True(t, r.Valid(), r.Errors())
}

func TestValidateConstraints(t *testing.T) {
	png := base64.StdEncoding.EncodeToString(pngHeader)
	big := base64.StdEncoding.EncodeToString(append(pngHeader, make([]byte, 100)...))

	tests := []struct {
		name   string
		mutate func(*sample)
		field  string
		key    string
	}{
		{"required empty", func(s *sample) { s.Reference = "" }, "reference", "validation.required"},
		{"required whitespace", func(s *sample) { s.Reference = "   " }, "reference", "validation.required"},
		{"min length", func(s *sample) { s.Reference = "B" }, "reference", "validation.minLength"},
		{"max length", func(s *sample) { s.Reference = "B-01234" }, "reference", "validation.maxLength"},
		{"pattern", func(s *sample) { s.Reference = "b-01" }, "reference", "validation.pattern"},
		{"multiline max", func(s *sample) { s.Notes = "0123456789x" }, "notes", "validation.maxLength"},
		{"email", func(s *sample) { s.Email = "not-an-email" }, "email", "validation.email"},
		{"number min", func(s *sample) { s.Weight = 0 }, "weight", "validation.min"},
		{"number max", func(s *sample) { s.Weight = 101 }, "weight", "validation.max"},
		{"int min", func(s *sample) { s.Units = 0 }, "units", "validation.min"},
		{"select", func(s *sample) { s.Kind = "c" }, "kind", "validation.option"},
		{"image type", func(s *sample) { s.Logo = "data:image/gif;base64," + png }, "logo", "validation.imageType"},
		{"image size", func(s *sample) { s.Logo = big }, "logo", "validation.imageSize"},
		{"image garbage", func(s *sample) { s.Logo = "%%%" }, "logo", "validation.imageType"},
		{"reference nil", func(s *sample) { s.ParentID = nil }, "parent", "validation.required"},
		{"optional max", func(s *sample) { v := "abcd"; s.Alias = &v }, "alias", "validation.maxLength"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := validSample()
			tt.mutate(&item)
			r := Validate(sampleFields(), &item)
			assert.False(t, r.Valid())
			e, ok := r.For(tt.field)
			require.True(t, ok, r.Errors())
			assert.Equal(t, tt.key, e.Key)
			assert.Len(t, r.Errors(), 1)
		})
	}

	t.Run("image ok", func(t *testing.T) {
		item := validSample()
		item.Logo = "data:image/png;base64," + png
		assert.True(t, Validate(sampleFields(), &item).Valid())
		item.Logo = png
		assert.True(t, Validate(sampleFields(), &item).Valid(), "bare base64 is sniffed")
	})
}

func TestSubmittableIffAllConstraintsHold(t *testing.T) {
	fields := sampleFields()
	item := sample{}
	assert.False(t, Validate(fields, &item).Valid())

	steps := []struct {
		field string
		value any
	}{
		{"reference", "B-01"},
		{"weight", "2.5"},
		{"units", 3},
		{"parent", int64(4)},
	}
	for i, step := range steps {
		f, ok := find(fields, step.field)
		require.True(t, ok)
		require.NoError(t, f.Set(&item, step.value))
		assert.Equal(t, i == len(steps)-1, Validate(fields, &item).Valid(), "after setting %s", step.field)
	}
}

func find(fields []Field[sample], name string) (Field[sample], bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field[sample]{}, false
}

func TestSetConversions(t *testing.T) {
	fields := sampleFields()
	item := validSample()

	parent, _ := find(fields, "parent")
	for _, none := range []any{nil, "", (*int64)(nil)} {
		require.NoError(t, parent.Set(&item, none))
		assert.Nil(t, item.ParentID, "%#v clears the selection", none)
	}
	require.NoError(t, parent.Set(&item, "42"))
	assert.Equal(t, int64(42), *item.ParentID)
	assert.Error(t, parent.Set(&item, 3.5))

	weight, _ := find(fields, "weight")
	assert.Error(t, weight.Set(&item, "heavy"))
	require.NoError(t, weight.Set(&item, 3))
	assert.Equal(t, 3.0, item.Weight)

	alias, _ := find(fields, "alias")
	require.NoError(t, alias.Set(&item, "v2"))
	assert.Equal(t, "v2", *item.Alias)
	require.NoError(t, alias.Set(&item, " "))
	assert.Nil(t, item.Alias)

	ref, _ := find(fields, "reference")
	assert.Error(t, ref.Set(&item, 12))
}

func TestIntFieldRefusesInexactValues(t *testing.T) {
	units, _ := find(sampleFields(), "units")

	tests := []struct {
		value any
		key   string
	}{
		{"2.7", "validation.integer"},
		{2.5, "validation.integer"},
		{"1e30", "validation.max"},
		{"-1e30", "validation.min"},
	}
	for _, tt := range tests {
		item := validSample()
		err := units.Set(&item, tt.value)
		var invalid ValidationError
		require.ErrorAs(t, err, &invalid, "%v", tt.value)
		assert.Equal(t, tt.key, invalid.Key, "%v", tt.value)
		assert.Equal(t, "units", invalid.Field)
		assert.Equal(t, 12, item.Units, "%v leaves the stored value alone", tt.value)
	}

	item := validSample()
	require.NoError(t, units.Set(&item, "3"))
	assert.Equal(t, 3, item.Units)
	require.NoError(t, units.Set(&item, 4.0))
	assert.Equal(t, 4, item.Units)
}

func TestValidateWithRejected(t *testing.T) {
	item := validSample()
	rejected := map[string]ValidationError{"units": {Field: "units", Key: "validation.integer"}}

	r := ValidateWith(sampleFields(), &item, rejected)
	assert.False(t, r.Valid())
	e, ok := r.For("units")
	require.True(t, ok)
	assert.Equal(t, "validation.integer", e.Key)
	assert.True(t, ValidateWith(sampleFields(), &item, nil).Valid())
}

func TestValidationErrorMessage(t *testing.T) {
	b := i18n.NewBundle(nil)
	require.NoError(t, b.LoadMessages("en", []byte(`{"field.reference":"Reference","validation.minLength":"{{field}} must be at least {{min}} characters"}`)))

	item := validSample()
	item.Reference = "B"
	e, ok := Validate(sampleFields(), &item).For("reference")
	require.True(t, ok)
	assert.Equal(t, "Reference must be at least 2 characters", e.Message(b.Func("en"), "field.reference"))
}

func TestDescriptor(t *testing.T) {
	d := Descriptor[sample]{
		Resource: "sample",
		Fields:   sampleFields(),
		New:      func() sample { return sample{Units: 1} },
	}
	assert.Equal(t, "/topic/sample", d.Topic())
	assert.Equal(t, 1, d.Blank().Units)

	f, ok := d.Field("weight")
	require.True(t, ok)
	col := FieldColumn(f)
	assert.Equal(t, "1.5", col.Render(validSample()))

	parent, _ := d.Field("parent")
	assert.Equal(t, "7", FieldColumn(parent).Render(validSample()))
	assert.Equal(t, "reference", KindName(parent.Kind))

	_, ok = d.Field("missing")
	assert.False(t, ok)
}
