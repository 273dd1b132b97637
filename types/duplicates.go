package types

// Duplicates collects the uniqueness keys claimed by the transactions of a
// single block, grouped by kind.
type Duplicates map[string]map[string]int

func NewDuplicates() Duplicates {
	return make(Duplicates)
}

// IsDuplicate reports whether key of the given kind has already been claimed
// maxCount times. If it has not and add is set, the claim is recorded.
func (d Duplicates) IsDuplicate(kind, key string, maxCount int, add bool) bool {
	keys, ok := d[kind]
	if !ok {
		if !add {
			return false
		}
		keys = make(map[string]int)
		d[kind] = keys
	}
	n := keys[key]
	if n >= maxCount {
		return true
	}
	if add {
		keys[key] = n + 1
	}
	return false
}
