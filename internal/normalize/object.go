package normalize

import (
	"bytes"
	"encoding/json"
	"time"
)

// object is a lazily decoded JSON object. A nil object answers every lookup
// with the zero value, so lookups can be chained across optional levels.
type object map[string]json.RawMessage

func parseObject(raw json.RawMessage) object {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	var o object
	if err := json.Unmarshal(b, &o); err != nil {
		return nil
	}
	return o
}

func (o object) obj(key string) object {
	if o == nil {
		return nil
	}
	return parseObject(o[key])
}

func (o object) str(key string) string {
	if o == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(o[key], &s); err != nil {
		return ""
	}
	return s
}

func (o object) num(key string) (float64, bool) {
	if o == nil {
		return 0, false
	}
	raw, ok := o[key]
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}

func (o object) array(key string) []json.RawMessage {
	if o == nil {
		return nil
	}
	var out []json.RawMessage
	if err := json.Unmarshal(o[key], &out); err != nil {
		return nil
	}
	return out
}

func (o object) time(key string) (time.Time, bool) {
	s := o.str(key)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// entry is one member of a JSON object, in document order.
type entry struct {
	Key   string
	Value json.RawMessage
}

// orderedEntries returns the members of a JSON object in the order they appear
// in the document. Arrays are accepted too, keyed by position.
func orderedEntries(raw json.RawMessage) []entry {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 {
		return nil
	}

	if b[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(b, &items); err != nil {
			return nil
		}
		out := make([]entry, 0, len(items))
		for _, it := range items {
			out = append(out, entry{Value: it})
		}
		return out
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil
	}

	var out []entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		key, ok := tok.(string)
		if !ok {
			return out
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return out
		}
		out = append(out, entry{Key: key, Value: v})
	}
	return out
}
