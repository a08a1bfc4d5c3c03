package jobs

import "encoding/json"

// Data is the flat key-to-primitive parameter map a job serializes to.
// It survives a JSON round trip through the durable job record, so
// numeric values are normalized back to int64 on read.
type Data map[string]any

// Long returns the int64 value stored under key, or 0 when absent.
func (d Data) Long(key string) int64 {
	switch v := d[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Bool returns the boolean value stored under key, or false when absent.
func (d Data) Bool(key string) bool {
	v, _ := d[key].(bool)
	return v
}

// String returns the string value stored under key, or "" when absent.
func (d Data) String(key string) string {
	v, _ := d[key].(string)
	return v
}
