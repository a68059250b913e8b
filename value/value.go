package value

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// Kind identifies which variant a Value node holds
type Kind uint8

const (
	Primitive Kind = iota
	Named
	Positional
)

// ScalarKind identifies the payload of a Primitive node
type ScalarKind uint8

const (
	Number ScalarKind = iota
	Text
	Bool
)

// Value is a decoded chain value of unknown schema. A node is either a primitive
// scalar, a composite of named fields, or a composite of positional items.
type Value struct {
	Kind   Kind
	Scalar ScalarKind

	Num  *big.Int
	Str  string
	Flag bool

	Fields []Field
	Items  []*Value
}

// Field is one named child of a Named composite
type Field struct {
	Name  string
	Value *Value
}

func NewNumber(n *big.Int) *Value {
	if n == nil {
		n = new(big.Int)
	}
	return &Value{Kind: Primitive, Scalar: Number, Num: new(big.Int).Set(n)}
}

func NewUint(n uint64) *Value {
	return &Value{Kind: Primitive, Scalar: Number, Num: new(big.Int).SetUint64(n)}
}

func NewText(s string) *Value {
	return &Value{Kind: Primitive, Scalar: Text, Str: s}
}

func NewBool(b bool) *Value {
	return &Value{Kind: Primitive, Scalar: Bool, Flag: b}
}

func NewNamed(fields ...Field) *Value {
	return &Value{Kind: Named, Fields: fields}
}

func NewPositional(items ...*Value) *Value {
	return &Value{Kind: Positional, Items: items}
}

// F is shorthand for building a Field
func F(name string, v *Value) Field {
	return Field{Name: name, Value: v}
}

// NewAccount renders a 32 byte account id the way dynamic decoders do: an
// AccountId32 newtype wrapping a [u8; 32] array.
func NewAccount(id [32]byte) *Value {

	bytes := make([]*Value, len(id))
	for i, b := range id {
		bytes[i] = NewUint(uint64(b))
	}

	return NewPositional(NewPositional(bytes...))
}

// IsComposite reports whether v is a Named or Positional node
func (v *Value) IsComposite() bool {
	return v != nil && (v.Kind == Named || v.Kind == Positional)
}

// Children returns the child nodes of a composite in order, regardless of naming
func (v *Value) Children() []*Value {

	if v == nil {
		return nil
	}

	switch v.Kind {
	case Named:
		out := make([]*Value, len(v.Fields))
		for i, f := range v.Fields {
			out[i] = f.Value
		}
		return out
	case Positional:
		return v.Items
	}

	return nil
}

// String renders v in a debug form similar to the node's dynamic decoder output.
// Used only by the textual matching heuristics.
func (v *Value) String() string {
	var sb strings.Builder
	v.write(&sb)
	return sb.String()
}

func (v *Value) write(sb *strings.Builder) {

	if v == nil {
		sb.WriteString("None")
		return
	}

	switch v.Kind {
	case Primitive:
		switch v.Scalar {
		case Number:
			fmt.Fprintf(sb, "U128(%s)", v.Num.String())
		case Text:
			fmt.Fprintf(sb, "String(%q)", v.Str)
		case Bool:
			fmt.Fprintf(sb, "Bool(%t)", v.Flag)
		}

	case Named:
		sb.WriteString("Composite(Named([")
		for i, f := range v.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(sb, "(%q, ", f.Name)
			f.Value.write(sb)
			sb.WriteString(")")
		}
		sb.WriteString("]))")

	case Positional:
		if b, ok := byteArray(v); ok {
			fmt.Fprintf(sb, "Bytes(0x%s)", hex.EncodeToString(b))
			return
		}

		sb.WriteString("Composite(Unnamed([")
		for i, item := range v.Items {
			if i > 0 {
				sb.WriteString(", ")
			}
			item.write(sb)
		}
		sb.WriteString("]))")
	}
}

// byteArray matches a positional composite of exactly AccountIDLen byte-sized
// numbers, which the debug form prints as hex like the node's decoder does
func byteArray(v *Value) ([]byte, bool) {

	if len(v.Items) != AccountIDLen {
		return nil, false
	}

	out := make([]byte, len(v.Items))
	for i, item := range v.Items {
		n, ok := Uint64(item)
		if !ok || n > 0xff {
			return nil, false
		}
		out[i] = byte(n)
	}

	return out, true
}

// Event is a decoded runtime event. Fields is a composite of the event's fields.
type Event struct {
	Pallet  string
	Variant string
	Fields  *Value
}
