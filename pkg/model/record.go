package model

import "errors"

// ErrPropertyUnreadable is returned by records whose property lookup failed.
var ErrPropertyUnreadable = errors.New("property unreadable")

// MapRecord is a Record backed by a property map.
// Properties set to an error value report that error from Property.
type MapRecord struct {
	RecordPath string
	RecordName string
	Props      map[string]any
}

func (r *MapRecord) Path() string { return r.RecordPath }
func (r *MapRecord) Name() string { return r.RecordName }

func (r *MapRecord) Property(id string) (any, error) {
	v := r.Props[id]
	if err, ok := v.(error); ok {
		return nil, err
	}
	return v, nil
}
