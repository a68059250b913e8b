package ctcclient

import (
	"context"
	"fmt"
	"math/big"
	"reflect"
	"regexp"
	"strings"

	"github.com/centrifuge/go-substrate-rpc-client/v4/registry"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/parser"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/pkg/errors"

	"ctcbalance/value"
)

// Field names from metadata are snake_case identifiers. Unnamed fields come back
// named after their type, e.g. "T::AccountId" or "[u8; 32]".
var fieldIdent = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Events returns every event of the block at hash, decoded against that block's
// runtime metadata
func (c *Client) Events(ctx context.Context, at types.Hash) ([]value.Event, error) {

	raw, err := call(ctx, c, "events", func() ([]*parser.Event, error) {
		return c.eventRetriever.GetEvents(at)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to fetch events at %s", at.Hex())
	}

	return liftEvents(raw), nil
}

func liftEvents(raw []*parser.Event) []value.Event {

	events := make([]value.Event, 0, len(raw))
	for _, e := range raw {

		if e == nil {
			continue
		}

		pallet, variant := splitEventName(e.Name)
		events = append(events, value.Event{
			Pallet:  pallet,
			Variant: variant,
			Fields:  liftFields(e.Fields),
		})
	}

	return events
}

// splitEventName splits "Staking.Rewarded"
func splitEventName(name string) (string, string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return name, ""
}

func liftFields(fields registry.DecodedFields) *value.Value {

	named := len(fields) > 0
	for _, f := range fields {
		if f == nil || !fieldIdent.MatchString(f.Name) {
			named = false
			break
		}
	}

	if named {
		out := make([]value.Field, len(fields))
		for i, f := range fields {
			out[i] = value.F(f.Name, lift(f.Value))
		}
		return value.NewNamed(out...)
	}

	items := make([]*value.Value, 0, len(fields))
	for _, f := range fields {
		if f == nil {
			continue
		}
		items = append(items, lift(f.Value))
	}

	return value.NewPositional(items...)
}

// lift converts whatever the registry decoder produced into the value tree.
// Unknown shapes fall back to their printed form so textual matching still works.
func lift(v any) *value.Value {

	switch t := v.(type) {
	case nil:
		return value.NewPositional()
	case *value.Value:
		return t
	case registry.DecodedFields:
		return liftFields(t)
	case []*registry.DecodedField:
		return liftFields(t)
	case []any:
		items := make([]*value.Value, len(t))
		for i, item := range t {
			items[i] = lift(item)
		}
		return value.NewPositional(items...)
	case types.U128:
		return value.NewNumber(t.Int)
	case types.U256:
		return value.NewNumber(t.Int)
	case types.I128:
		return value.NewNumber(t.Int)
	case types.I256:
		return value.NewNumber(t.Int)
	case types.UCompact:
		return value.NewNumber(compactInt(t))
	case *big.Int:
		return value.NewNumber(t)
	case types.Text:
		return value.NewText(string(t))
	}

	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return value.NewUint(rv.Uint())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return value.NewNumber(big.NewInt(rv.Int()))
	case reflect.Bool:
		return value.NewBool(rv.Bool())
	case reflect.String:
		return value.NewText(rv.String())
	case reflect.Slice, reflect.Array:
		items := make([]*value.Value, rv.Len())
		for i := range items {
			items[i] = lift(rv.Index(i).Interface())
		}
		return value.NewPositional(items...)
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return value.NewPositional()
		}
		return lift(rv.Elem().Interface())
	}

	return value.NewText(fmt.Sprint(v))
}
