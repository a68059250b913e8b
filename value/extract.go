package value

import (
	"math/big"
)

// AccountIDLen is the byte width of a Substrate AccountId32
const AccountIDLen = 32

var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// NamedField searches one level of a named composite for a field by name
func NamedField(v *Value, name string) (*Value, bool) {

	if v == nil || v.Kind != Named {
		return nil, false
	}

	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value, f.Value != nil
		}
	}

	return nil, false
}

// FirstNamedField returns the first of names present on a named composite
func FirstNamedField(v *Value, names ...string) (*Value, bool) {
	for _, n := range names {
		if f, ok := NamedField(v, n); ok {
			return f, true
		}
	}
	return nil, false
}

// Index returns the i'th child of a composite, named or positional
func Index(v *Value, i int) (*Value, bool) {

	children := v.Children()
	if i < 0 || i >= len(children) || children[i] == nil {
		return nil, false
	}

	return children[i], true
}

// Len returns the number of children of a composite, 0 for anything else
func Len(v *Value) int {
	return len(v.Children())
}

// U128 returns the integer held by a primitive numeric node. Negative numbers and
// numbers wider than 128 bits are not u128 and yield false.
func U128(v *Value) (*big.Int, bool) {

	if v == nil || v.Kind != Primitive || v.Scalar != Number || v.Num == nil {
		return nil, false
	}

	if v.Num.Sign() < 0 || v.Num.Cmp(maxU128) > 0 {
		return nil, false
	}

	return new(big.Int).Set(v.Num), true
}

// Uint64 is U128 restricted to values that fit 64 bits
func Uint64(v *Value) (uint64, bool) {

	n, ok := U128(v)
	if !ok || !n.IsUint64() {
		return 0, false
	}

	return n.Uint64(), true
}

// AccountID interprets a positional composite of exactly 32 byte-sized numbers as
// an account id. Single-child composites are unwrapped first, since runtimes wrap
// the byte array in one or more newtype layers.
func AccountID(v *Value) ([AccountIDLen]byte, bool) {

	var id [AccountIDLen]byte

	for depth := 0; v != nil; depth++ {

		// Arbitrary bound, real values are wrapped at most twice
		if depth > 8 {
			return id, false
		}

		if !v.IsComposite() {
			return id, false
		}

		children := v.Children()

		if len(children) == 1 {
			v = children[0]
			continue
		}

		if v.Kind != Positional || len(children) != AccountIDLen {
			return id, false
		}

		for i, c := range children {
			b, ok := Uint64(c)
			if !ok || b > 0xff {
				return id, false
			}
			id[i] = byte(b)
		}

		return id, true
	}

	return id, false
}

// Numbers flattens every primitive number under v, depth first, in order
func Numbers(v *Value) []*big.Int {

	var out []*big.Int

	var walk func(*Value)
	walk = func(n *Value) {
		if n == nil {
			return
		}
		if n.Kind == Primitive {
			if n.Scalar == Number && n.Num != nil {
				out = append(out, n.Num)
			}
			return
		}
		for _, c := range n.Children() {
			walk(c)
		}
	}
	walk(v)

	return out
}
