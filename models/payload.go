package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ValueKind is the closed set of kinds a payload value can take.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindObject
)

// Value is one entry of an audit payload. The zero Value is null.
type Value struct {
	kind    ValueKind
	str     string
	num     float64
	boolean bool
	list    []Value
	obj     Payload
}

func Null() Value               { return Value{} }
func String(s string) Value     { return Value{kind: KindString, str: s} }
func Number(f float64) Value    { return Value{kind: KindNumber, num: f} }
func Int(i int) Value           { return Value{kind: KindNumber, num: float64(i)} }
func Bool(b bool) Value         { return Value{kind: KindBool, boolean: b} }
func List(items ...Value) Value { return Value{kind: KindList, list: items} }
func Object(p Payload) Value    { return Value{kind: KindObject, obj: p} }

// Strings builds a list value from a string slice; a nil slice becomes an empty list.
func Strings(ss []string) Value {
	items := make([]Value, 0, len(ss))
	for _, s := range ss {
		items = append(items, String(s))
	}
	return List(items...)
}

// OptionalString is String for non-nil pointers and Null otherwise.
func OptionalString(s *string) Value {
	if s == nil {
		return Null()
	}
	return String(*s)
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) AsString() (string, bool)  { return v.str, v.kind == KindString }
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }
func (v Value) AsBool() (bool, bool)      { return v.boolean, v.kind == KindBool }
func (v Value) AsList() ([]Value, bool)   { return v.list, v.kind == KindList }
func (v Value) AsObject() (Payload, bool) { return v.obj, v.kind == KindObject }

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("payload number %v is not representable", v.num)
		}
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.boolean)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindObject:
		return json.Marshal(v.obj)
	default:
		return nil, fmt.Errorf("unknown payload kind %d", v.kind)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := fromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func fromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case float64:
		return Number(t), nil
	case bool:
		return Bool(t), nil
	case []any:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			v, err := fromAny(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return List(items...), nil
	case map[string]any:
		p := make(Payload, len(t))
		for k, item := range t {
			v, err := fromAny(item)
			if err != nil {
				return Value{}, err
			}
			p[k] = v
		}
		return Object(p), nil
	default:
		return Value{}, fmt.Errorf("unsupported payload value %T", raw)
	}
}

// Payload is the structured body of an audit event. Its JSON encoding is canonical:
// object keys are sorted and a nil payload encodes as {}.
type Payload map[string]Value

func (p Payload) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]Value(p))
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var m map[string]Value
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if m == nil {
		m = map[string]Value{}
	}
	*p = m
	return nil
}

// Canonical returns the single byte form used for hashing.
func (p Payload) Canonical() ([]byte, error) {
	return p.MarshalJSON()
}

func (p Payload) Value() (driver.Value, error) {
	b, err := p.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *Payload) Scan(src any) error {
	switch t := src.(type) {
	case nil:
		*p = Payload{}
		return nil
	case []byte:
		return p.UnmarshalJSON(t)
	case string:
		return p.UnmarshalJSON([]byte(t))
	default:
		return errors.New("payload: unsupported scan source")
	}
}
