package extractor

import (
	"net/url"
	"strings"
)

// Field is one name/value pair of a challenge form.
type Field struct {
	Name  string
	Value string
}

// Fields is an ordered list of form fields.  Order is the order the fields
// appeared in the page markup and is preserved on encoding, because the
// vendor may validate it.
type Fields []Field

// Get returns the value of the first field called name.
func (f Fields) Get(name string) (string, bool) {
	for _, fl := range f {
		if fl.Name == name {
			return fl.Value, true
		}
	}
	return "", false
}

// Set replaces the value of the first field called name, or appends a new
// field when there is none.
func (f *Fields) Set(name, value string) {
	for i := range *f {
		if (*f)[i].Name == name {
			(*f)[i].Value = value
			return
		}
	}
	f.Add(name, value)
}

// Add appends a field, keeping any existing field of the same name.
func (f *Fields) Add(name, value string) {
	*f = append(*f, Field{Name: name, Value: value})
}

// Names returns the field names in order.
func (f Fields) Names() []string {
	names := make([]string, len(f))
	for i, fl := range f {
		names[i] = fl.Name
	}
	return names
}

// Encode returns the fields in application/x-www-form-urlencoded form.
// Unlike url.Values.Encode the original order is kept.
func (f Fields) Encode() string {
	var b strings.Builder
	for i, fl := range f {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(fl.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(fl.Value))
	}
	return b.String()
}

// Values converts the fields into url.Values.  Order is lost.
func (f Fields) Values() url.Values {
	v := make(url.Values, len(f))
	for _, fl := range f {
		v.Add(fl.Name, fl.Value)
	}
	return v
}

// Clone returns a copy that can be modified independently.
func (f Fields) Clone() Fields {
	return append(Fields(nil), f...)
}
