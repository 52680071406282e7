package order

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	maker = common.HexToAddress("0x1000000000000000000000000000000000000001")
	other = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func newOrder(m common.Address) Order {
	return Order{Maker: m, AmountGet: uint256.NewInt(1), AmountGive: uint256.NewInt(2)}
}

func TestInsertAssignsSequentialIDs(t *testing.T) {
	tbl := NewTable()
	ov := tbl.Begin()
	for want := uint64(1); want <= 3; want++ {
		got := ov.Insert(newOrder(maker))
		if got.ID != want {
			t.Errorf("Insert id = %d, want %d", got.ID, want)
		}
	}
	if tbl.Count() != 0 {
		t.Errorf("table count before commit = %d, want 0", tbl.Count())
	}
	ov.Commit()
	if tbl.Count() != 3 {
		t.Errorf("table count = %d, want 3", tbl.Count())
	}

	next := tbl.Begin().Insert(newOrder(other))
	if next.ID != 4 {
		t.Errorf("next id = %d, want 4", next.ID)
	}
}

func TestDiscardedOverlayDoesNotReuseCommittedIDs(t *testing.T) {
	tbl := NewTable()
	ov := tbl.Begin()
	ov.Insert(newOrder(maker))
	ov.Commit()

	dropped := tbl.Begin()
	dropped.Insert(newOrder(maker))

	if _, ok := tbl.Get(2); ok {
		t.Error("dropped order visible in table")
	}
	if got := tbl.Begin().Insert(newOrder(maker)).ID; got != 2 {
		t.Errorf("id after dropped overlay = %d, want 2", got)
	}
}

func TestGetOutOfRange(t *testing.T) {
	tbl := NewTable()
	ov := tbl.Begin()
	ov.Insert(newOrder(maker))
	ov.Commit()

	tests := []struct {
		id uint64
		ok bool
	}{
		{0, false},
		{1, true},
		{2, false},
		{1 << 40, false},
	}
	for _, tt := range tests {
		if _, ok := tbl.Get(tt.id); ok != tt.ok {
			t.Errorf("Get(%d) ok = %v, want %v", tt.id, ok, tt.ok)
		}
	}
}

func TestUpdateAndNestedCommit(t *testing.T) {
	tbl := NewTable()
	ov := tbl.Begin()
	ov.Insert(newOrder(maker))
	ov.Commit()

	outer := tbl.Begin()
	inner := outer.Begin()
	o, _ := inner.Get(1)
	o.Cancelled = true
	if err := inner.Update(o); err != nil {
		t.Fatal(err)
	}
	if got, _ := outer.Get(1); got.Cancelled {
		t.Error("inner update visible before inner commit")
	}
	inner.Commit()
	if got, _ := outer.Get(1); !got.Cancelled {
		t.Error("inner update not visible after inner commit")
	}
	if got, _ := tbl.Get(1); got.Cancelled {
		t.Error("update visible in table before outer commit")
	}
	outer.Commit()
	if got, _ := tbl.Get(1); got.Status() != StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status())
	}

	if err := tbl.Begin().Update(Order{ID: 9}); err == nil {
		t.Error("Update of missing order should fail")
	}
}

func TestListFilters(t *testing.T) {
	tbl := NewTable()
	ov := tbl.Begin()
	ov.Insert(newOrder(maker))
	a := ov.Insert(newOrder(other))
	c := ov.Insert(newOrder(maker))
	a.Filled = true
	c.Cancelled = true
	ov.Update(a)
	ov.Update(c)
	ov.Commit()

	tests := []struct {
		name string
		f    Filter
		want []uint64
	}{
		{"all", nil, []uint64{1, 2, 3}},
		{"open", ByStatus(StatusOpen), []uint64{1}},
		{"filled", ByStatus(StatusFilled), []uint64{2}},
		{"maker", ByAccount(maker), []uint64{1, 3}},
		{"maker cancelled", All(ByAccount(maker), ByStatus(StatusCancelled)), []uint64{3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tbl.List(tt.f)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("[%d].ID = %d, want %d", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestCommitUndo(t *testing.T) {
	tbl := NewTable()
	ov := tbl.Begin()
	ov.Insert(newOrder(maker))
	ov.Commit()

	ov = tbl.Begin()
	o, _ := ov.Get(1)
	o.Filled = true
	ov.Update(o)
	ov.Insert(newOrder(other))
	ov.Insert(newOrder(other))
	undo := ov.Commit()
	if tbl.Count() != 3 {
		t.Fatalf("count = %d, want 3", tbl.Count())
	}

	undo()
	if tbl.Count() != 1 {
		t.Errorf("count after undo = %d, want 1", tbl.Count())
	}
	if got, _ := tbl.Get(1); got.Filled {
		t.Error("order 1 still filled after undo")
	}
}
