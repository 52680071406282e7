package order

import (
	"fmt"
	"sort"
)

// View is the read side shared by Table and Overlay.
type View interface {
	Count() uint64
	Get(id uint64) (Order, bool)
}

type store interface {
	View
	put(o Order)
	del(id uint64)
}

// Table is the committed order table. Orders are never deleted; ids are
// 1-based and dense.
type Table struct {
	orders []Order
}

func NewTable() *Table {
	return &Table{}
}

func (t *Table) Count() uint64 {
	return uint64(len(t.orders))
}

// Get returns the order with id. Ids outside [1, Count()] are not found.
func (t *Table) Get(id uint64) (Order, bool) {
	if id == 0 || id > t.Count() {
		return Order{}, false
	}
	return t.orders[id-1], true
}

func (t *Table) put(o Order) {
	switch {
	case o.ID == t.Count()+1:
		t.orders = append(t.orders, o)
	case o.ID >= 1 && o.ID <= t.Count():
		t.orders[o.ID-1] = o
	default:
		panic(fmt.Sprintf("order: non-contiguous id %d (count %d)", o.ID, t.Count()))
	}
}

func (t *Table) del(id uint64) {
	if id != t.Count() {
		panic(fmt.Sprintf("order: delete of non-tail id %d (count %d)", id, t.Count()))
	}
	t.orders = t.orders[:id-1]
}

// List returns orders matching f in id order.
func (t *Table) List(f Filter) []Order {
	out := make([]Order, 0)
	for _, o := range t.orders {
		if f == nil || f(o) {
			out = append(out, o)
		}
	}
	return out
}

func (t *Table) Begin() *Overlay {
	return newOverlay(t)
}

// Overlay stages new orders and flag updates over a parent view.
type Overlay struct {
	parent store
	writes map[uint64]Order
	count  uint64
}

func newOverlay(parent store) *Overlay {
	return &Overlay{parent: parent, writes: make(map[uint64]Order), count: parent.Count()}
}

// Begin opens a nested overlay whose Commit flushes into o.
func (o *Overlay) Begin() *Overlay {
	return newOverlay(o)
}

func (o *Overlay) Count() uint64 {
	return o.count
}

func (o *Overlay) Get(id uint64) (Order, bool) {
	if id == 0 || id > o.count {
		return Order{}, false
	}
	if ord, ok := o.writes[id]; ok {
		return ord, true
	}
	return o.parent.Get(id)
}

func (o *Overlay) put(ord Order) {
	o.writes[ord.ID] = ord
	if ord.ID > o.count {
		o.count = ord.ID
	}
}

func (o *Overlay) del(id uint64) {
	delete(o.writes, id)
	o.count = o.parent.Count()
	for id := range o.writes {
		if id > o.count {
			o.count = id
		}
	}
}

// Insert assigns the next id to ord and stages it.
func (o *Overlay) Insert(ord Order) Order {
	ord.ID = o.count + 1
	o.put(ord)
	return ord
}

// Update stages a replacement for an existing order.
func (o *Overlay) Update(ord Order) error {
	if _, ok := o.Get(ord.ID); !ok {
		return fmt.Errorf("order %d not found", ord.ID)
	}
	o.put(ord)
	return nil
}

// Commit flushes staged orders into the parent in id order. The returned func
// restores the parent to its state before the flush.
func (o *Overlay) Commit() (undo func()) {
	ids := make([]uint64, 0, len(o.writes))
	for id := range o.writes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parent := o.parent
	var restore []func()
	for _, id := range ids {
		if old, ok := parent.Get(id); ok {
			restore = append(restore, func() { parent.put(old) })
		} else {
			restore = append(restore, func() { parent.del(id) })
		}
		parent.put(o.writes[id])
	}
	o.writes = make(map[uint64]Order)
	o.count = parent.Count()
	return func() {
		for i := len(restore) - 1; i >= 0; i-- {
			restore[i]()
		}
	}
}
