// Package concept defines the values answers bind variables to: entities,
// relations, resources and types held by the storage engine.
package concept

import (
	"fmt"
	"strconv"

	"github.com/oklog/ulid/v2"
)

// ID is the storage engine's stable identifier for a concept.
type ID string

// NewID returns a fresh, lexically sortable identifier.
func NewID() ID {
	return ID(ulid.Make().String())
}

// Kind classifies concepts and types.
type Kind int

const (
	KindUnknown Kind = iota
	KindEntity
	KindRelation
	KindResource
	KindType
)

func (k Kind) String() string {
	switch k {
	case KindEntity:
		return "entity"
	case KindRelation:
		return "relation"
	case KindResource:
		return "resource"
	case KindType:
		return "type"
	default:
		return "unknown"
	}
}

// ParseKind maps the textual kind used in knowledge documents.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "entity":
		return KindEntity, nil
	case "relation":
		return KindRelation, nil
	case "resource", "attribute":
		return KindResource, nil
	case "type":
		return KindType, nil
	}
	return KindUnknown, fmt.Errorf("unknown kind %q", s)
}

// Concept is a reference into the graph. Identity is by ID only.
type Concept struct {
	ID    ID
	Kind  Kind
	Type  string
	Value any // literal for resources: string, int64, float64 or bool
}

func (c Concept) String() string {
	if c.Kind == KindResource {
		return fmt.Sprintf("%s(%v)", c.Type, c.Value)
	}
	return fmt.Sprintf("%s:%s", c.Type, c.ID)
}

// NormalizeValue folds the numeric types YAML and SQL produce into int64 or
// float64 so resource values compare consistently.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	}
	return v
}

// EncodeValue renders a literal with a one-letter type tag, used by stores
// that persist values as text.
func EncodeValue(v any) string {
	switch x := NormalizeValue(v).(type) {
	case int64:
		return "i:" + strconv.FormatInt(x, 10)
	case float64:
		return "f:" + strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return "b:" + strconv.FormatBool(x)
	case string:
		return "s:" + x
	default:
		return "s:" + fmt.Sprint(x)
	}
}

// DecodeValue reverses EncodeValue.
func DecodeValue(s string) (any, error) {
	if len(s) < 2 || s[1] != ':' {
		return nil, fmt.Errorf("malformed encoded value %q", s)
	}
	body := s[2:]
	switch s[0] {
	case 'i':
		return strconv.ParseInt(body, 10, 64)
	case 'f':
		return strconv.ParseFloat(body, 64)
	case 'b':
		return strconv.ParseBool(body)
	case 's':
		return body, nil
	}
	return nil, fmt.Errorf("unknown value tag %q", s[0])
}

// Compare orders two literals. Numbers compare numerically, strings
// lexically, false sorts before true. ok is false for incomparable values.
func Compare(a, b any) (cmp int, ok bool) {
	a, b = NormalizeValue(a), NormalizeValue(b)
	if fa, isNum := toFloat(a); isNum {
		fb, bNum := toFloat(b)
		if !bNum {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
