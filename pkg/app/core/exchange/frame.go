package exchange

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/leskodex/pkg/app/core/journal"
	"github.com/uhyunpark/leskodex/pkg/app/core/ledger"
	"github.com/uhyunpark/leskodex/pkg/app/core/order"
)

// frame is the staged state of one exchange call. A collaborator that calls
// back into the exchange with the frame's context runs in a child frame that
// sees the parent's staged balances.
type frame struct {
	ledger  *ledger.Overlay
	orders  *order.Overlay
	events  []Event
	payable *payment
}

// payment is the native inflow a deposit is waiting for.
type payment struct {
	from   common.Address
	amount *uint256.Int
}

type frameKey struct{ ex *Exchange }

func (e *Exchange) frameFrom(ctx context.Context) (*frame, bool) {
	f, ok := ctx.Value(frameKey{e}).(*frame)
	return f, ok
}

func (f *frame) emit(ev Event) {
	f.events = append(f.events, ev)
}

// run executes fn as one atomic exchange operation. Outermost calls are
// serialized and commit into the tables; re-entrant calls commit into their
// parent frame. Any error discards the frame and reverts collaborator state
// recorded in the journal since the call began.
func (e *Exchange) run(ctx context.Context, fn func(context.Context, *frame) error) error {
	if parent, ok := e.frameFrom(ctx); ok {
		return e.runNested(ctx, parent, fn)
	}

	ctx, j, owned := journal.Begin(ctx)
	snap := j.Snapshot()

	e.opMu.Lock()
	f := &frame{ledger: e.ledger.Begin(), orders: e.orders.Begin()}
	if err := fn(context.WithValue(ctx, frameKey{e}, f), f); err != nil {
		e.opMu.Unlock()
		j.RevertTo(snap)
		return err
	}
	e.stateMu.Lock()
	undoLedger := f.ledger.Commit()
	undoOrders := f.orders.Commit()
	e.stateMu.Unlock()
	e.opMu.Unlock()

	j.Undo(func() {
		e.opMu.Lock()
		defer e.opMu.Unlock()
		e.stateMu.Lock()
		defer e.stateMu.Unlock()
		undoOrders()
		undoLedger()
	})
	events := f.events
	j.Defer(func() { e.publish(events) })
	if owned {
		j.Commit()
	}
	return nil
}

func (e *Exchange) runNested(ctx context.Context, parent *frame, fn func(context.Context, *frame) error) error {
	ctx, j, _ := journal.Begin(ctx)
	snap := j.Snapshot()

	f := &frame{ledger: parent.ledger.Begin(), orders: parent.orders.Begin()}
	if err := fn(context.WithValue(ctx, frameKey{e}, f), f); err != nil {
		j.RevertTo(snap)
		return err
	}
	f.ledger.Commit()
	f.orders.Commit()
	parent.events = append(parent.events, f.events...)
	return nil
}
