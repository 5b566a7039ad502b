package session

import "strconv"

// Headers is a typed header set. Values are only ever string, int32, int64
// or bool, which every supported broker can carry.
type Headers map[string]any

// String sets a string header. Empty values are skipped.
func (h Headers) String(key, value string) Headers {
	if value != "" {
		h[key] = value
	}
	return h
}

// Int sets a 32-bit integer header. Zero values are skipped.
func (h Headers) Int(key string, value int32) Headers {
	if value != 0 {
		h[key] = value
	}
	return h
}

// Int64 sets a 64-bit integer header. Zero values are skipped.
func (h Headers) Int64(key string, value int64) Headers {
	if value != 0 {
		h[key] = value
	}
	return h
}

// Bool sets a boolean header.
func (h Headers) Bool(key string, value bool) Headers {
	h[key] = value
	return h
}

// Strings renders every value as text, for brokers whose headers are strings.
func (h Headers) Strings() map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		switch t := v.(type) {
		case string:
			out[k] = t
		case int32:
			out[k] = strconv.FormatInt(int64(t), 10)
		case int64:
			out[k] = strconv.FormatInt(t, 10)
		case bool:
			out[k] = strconv.FormatBool(t)
		}
	}
	return out
}

// Merge returns the configured headers overlaid with per-message headers.
func (h Headers) Merge(msg map[string]string) map[string]any {
	out := make(map[string]any, len(h)+len(msg))
	for k, v := range h {
		out[k] = v
	}
	for k, v := range msg {
		out[k] = v
	}
	return out
}
