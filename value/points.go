package value

// PointEntry is one (validator, reward points) pair of an era
type PointEntry struct {
	ID     [AccountIDLen]byte
	Points uint64
}

// RewardPointEntries parses the `individual` member of an era's reward points.
// Some decoders wrap the list of pairs in an extra single-element composite, so a
// lone child that is itself a list of pairs is unwrapped once. Malformed entries
// are skipped.
func RewardPointEntries(individual *Value) []PointEntry {

	list := individual.Children()

	if len(list) == 1 && isPairList(list[0]) {
		list = list[0].Children()
	}

	entries := make([]PointEntry, 0, len(list))
	for _, pair := range list {

		if Len(pair) != 2 {
			continue
		}

		acct, _ := Index(pair, 0)
		pts, _ := Index(pair, 1)

		id, ok := AccountID(acct)
		if !ok {
			continue
		}

		points, ok := Uint64(pts)
		if !ok {
			continue
		}

		entries = append(entries, PointEntry{ID: id, Points: points})
	}

	return entries
}

// isPairList is true for a positional composite whose every child is a two
// element composite ending in a primitive
func isPairList(v *Value) bool {

	if v == nil || v.Kind != Positional || len(v.Items) == 0 {
		return false
	}

	for _, item := range v.Items {
		if Len(item) != 2 {
			return false
		}
		second, _ := Index(item, 1)
		if second == nil || second.Kind != Primitive {
			return false
		}
	}

	return true
}
