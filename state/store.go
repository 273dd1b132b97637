package state

import (
	"bytes"

	"github.com/calehh/hac-ledger/phasing"
	"github.com/cosmos/iavl"
	"github.com/google/btree"
)

type kvItem struct {
	key     string
	value   []byte
	deleted bool
}

func kvItemLess(a, b kvItem) bool {
	return a.key < b.key
}

// writeSet buffers the writes of a block on top of the committed tree.
// Clones share structure copy-on-write, so a snapshot costs O(1).
type writeSet struct {
	tree   *iavl.MutableTree
	writes *btree.BTreeG[kvItem]
}

func newWriteSet(tree *iavl.MutableTree) *writeSet {
	return &writeSet{tree: tree, writes: btree.NewG[kvItem](16, kvItemLess)}
}

func (w *writeSet) clone() *writeSet {
	return &writeSet{tree: w.tree, writes: w.writes.Clone()}
}

func (w *writeSet) Get(key []byte) ([]byte, error) {
	if it, ok := w.writes.Get(kvItem{key: string(key)}); ok {
		if it.deleted {
			return nil, nil
		}
		return it.value, nil
	}
	return w.tree.Get(key)
}

func (w *writeSet) Set(key, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	w.writes.ReplaceOrInsert(kvItem{key: string(key), value: v})
	return nil
}

func (w *writeSet) Delete(key []byte) error {
	w.writes.ReplaceOrInsert(kvItem{key: string(key), deleted: true})
	return nil
}

// Iterate merges buffered writes with the committed tree in key order.
func (w *writeSet) Iterate(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	end := PrefixEndBytes(prefix)
	merged := btree.NewG[kvItem](16, kvItemLess)
	it, err := w.tree.Iterator(prefix, end, true)
	if err != nil {
		return err
	}
	for ; it.Valid(); it.Next() {
		merged.ReplaceOrInsert(kvItem{key: string(it.Key()), value: it.Value()})
	}
	if err := it.Close(); err != nil {
		return err
	}
	visit := func(item kvItem) bool {
		if !bytes.HasPrefix([]byte(item.key), prefix) {
			return false
		}
		merged.ReplaceOrInsert(item)
		return true
	}
	w.writes.AscendGreaterOrEqual(kvItem{key: string(prefix)}, visit)

	var ferr error
	merged.Ascend(func(item kvItem) bool {
		if item.deleted {
			return true
		}
		stop, err := fn([]byte(item.key), item.value)
		if err != nil {
			ferr = err
			return false
		}
		return !stop
	})
	return ferr
}

// flush writes the buffered changes to the working tree in key order.
func (w *writeSet) flush() (err error) {
	w.writes.Ascend(func(item kvItem) bool {
		if item.deleted {
			_, _, err = w.tree.Remove([]byte(item.key))
		} else {
			_, err = w.tree.Set([]byte(item.key), item.value)
		}
		return err == nil
	})
	if err != nil {
		return
	}
	w.writes.Clear(false)
	return
}

var _ phasing.KVStore = (*writeSet)(nil)

func PrefixEndBytes(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}

	end := make([]byte, len(prefix))
	copy(end, prefix)

	for {
		if end[len(end)-1] != byte(255) {
			end[len(end)-1]++
			break
		}

		end = end[:len(end)-1]

		if len(end) == 0 {
			end = nil
			break
		}
	}

	return end
}
