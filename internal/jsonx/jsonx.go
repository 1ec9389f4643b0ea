// Package jsonx holds tolerant JSON types for the server's loose field
// conventions: absent values are encoded as false, numbers may arrive as
// floats, and many2one relations come as an [id, "display name"] pair.
package jsonx

import (
	"bytes"
	"encoding/json"
)

// Int decodes a JSON number, treating false and null as zero.
type Int int

func (i *Int) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("false")) || bytes.Equal(data, []byte("null")) {
		*i = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*i = Int(int(f))
	return nil
}

// Float decodes a JSON number, treating false and null as zero.
type Float float64

func (f *Float) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("false")) || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// String decodes a JSON string, treating false and null as empty.
type String string

func (s *String) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("false")) || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = String(v)
	return nil
}

// ManyOne decodes a many2one relation: [id, "name"], a bare id, or false.
type ManyOne struct {
	ID   int
	Name string
}

func (m *ManyOne) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("false")) || bytes.Equal(data, []byte("null")) {
		*m = ManyOne{}
		return nil
	}
	if data[0] == '[' {
		var pair []json.RawMessage
		if err := json.Unmarshal(data, &pair); err != nil {
			return err
		}
		if len(pair) > 0 {
			var id Int
			if err := json.Unmarshal(pair[0], &id); err != nil {
				return err
			}
			m.ID = int(id)
		}
		if len(pair) > 1 {
			var name String
			if err := json.Unmarshal(pair[1], &name); err != nil {
				return err
			}
			m.Name = string(name)
		}
		return nil
	}
	var id Int
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	*m = ManyOne{ID: int(id)}
	return nil
}
