package models

// Record is one structured log event as produced by the upstream logger
type Record map[string]interface{}

// Clone returns a shallow copy. Nested objects are shared.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Object returns the value at key when it is a JSON object
func (r Record) Object(key string) (map[string]interface{}, bool) {
	switch v := r[key].(type) {
	case map[string]interface{}:
		return v, true
	case Record:
		return v, true
	}
	return nil, false
}

// String returns the value at key when it is a string
func (r Record) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// Truthy mirrors the loose boolean coercion log producers rely on: nil, false,
// zero numbers and empty strings are false, everything else is true.
func Truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case float32:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case int32:
		return t != 0
	case uint:
		return t != 0
	case uint64:
		return t != 0
	case uint32:
		return t != 0
	}
	return true
}
