package lower

import (
	"context"

	"tlog.app/go/errors"

	"github.com/slowlang/lower/compiler/ir"
	"github.com/slowlang/lower/compiler/stmt"
)

type (
	// LandingPads lowers try/catch for unwinders with explicit landing
	// pads. Catch bodies are ordinary blocks entered through an
	// enter-catch runtime call.
	LandingPads struct{}

	// Funclets lowers try/catch for table-based unwinders. All catches
	// of a statement share one dispatching block, each catch body lives
	// in a pad region and leaves it with a catch-ret.
	Funclets struct{}
)

func (LandingPads) Name() string { return "landingpad" }

func (m LandingPads) TryCatch(ctx context.Context, c *Code, x *stmt.TryCatch) error {
	trybb := c.Block()
	endb := c.NewBlock("try.end")
	depth := c.scopes.CleanupDepth()

	fn, err := c.runtime(RTEnterCatch)
	if err != nil {
		return err
	}

	syms := make([]ir.Expr, len(x.Catches))
	bbs := make([]*ir.Block, len(x.Catches))

	// catch bodies come first so a throw inside one of them only sees
	// enclosing handlers, never its own siblings
	for i := len(x.Catches) - 1; i >= 0; i-- {
		cs := x.Catches[i]

		syms[i] = ir.None
		if cs.Type != nil {
			syms[i] = c.constant(ir.TypeSym(c.Types.TypeSym(cs.Type)))
		}

		bbs[i] = c.OpenBlock("catch")

		ld := c.Add(ir.Load{Slot: c.EHSlot()})
		obj := c.Call(fn, ld)

		if cs.Var != nil {
			slot := c.Alloca(cs.Var.Name, c.Types.Machine(cs.Var.Type))
			c.Add(ir.Store{Slot: slot, Val: obj})
		}

		err = c.stmt(ctx, cs.Body)
		if err != nil {
			return errors.Wrap(err, "catch body")
		}

		c.jump(endb)
	}

	// pushed in reverse source order, probed newest first
	for i := len(x.Catches) - 1; i >= 0; i-- {
		c.scopes.PushCatch(syms[i], bbs[i].Label, depth)
	}

	c.SetBlock(trybb)

	err = c.stmt(ctx, x.Body)
	if err != nil {
		return errors.Wrap(err, "try body")
	}

	c.jump(endb)

	for range x.Catches {
		c.scopes.PopCatch()
	}

	c.SetBlock(endb)

	return nil
}

func (Funclets) Name() string { return "funclet" }

func (m Funclets) TryCatch(ctx context.Context, c *Code, x *stmt.TryCatch) error {
	trybb := c.Block()
	endb := c.NewBlock("try.end")
	depth := c.scopes.CleanupDepth()

	dispatch := c.NewBlock("catch.dispatch")

	// propagation target for exceptions none of these catches take,
	// resolved before our own dispatch becomes visible
	var unwind ir.Label = ir.None
	if c.scopes.unwinding() {
		unwind = c.scopes.landingPad(c)
	}

	handlers := make([]ir.Label, len(x.Catches))

	for i, cs := range x.Catches {
		padb := c.OpenBlock("catch.pad")
		handlers[i] = padb.Label

		var sym ir.Expr = ir.None
		if cs.Type != nil {
			sym = c.constant(ir.TypeSym(c.Types.TypeSym(cs.Type)))
		}

		var padSlot, varSlot ir.Expr = ir.None, ir.None

		if cs.Var != nil {
			varSlot = c.Alloca(cs.Var.Name, c.Types.Machine(cs.Var.Type))
			padSlot = varSlot

			// a variable captured by a nested closure cannot live in
			// pad storage, the object lands in a temporary and is
			// copied out right away
			if cs.Var.Nested {
				padSlot = c.Alloca("catch.tmp", c.Types.Machine(cs.Var.Type))
			}
		}

		padv := c.Add(ir.CatchPad{Switch: dispatch.Label, Sym: sym, Slot: padSlot})

		if padSlot != varSlot {
			v := c.Add(ir.Load{Slot: padSlot})
			c.Add(ir.Store{Slot: varSlot, Val: v})
		}

		err := c.stmt(ctx, cs.Body)
		if err != nil {
			return errors.Wrap(err, "catch body")
		}

		if !c.Terminated() {
			c.terminate(ir.CatchRet{Pad: padv, To: endb.Label})
		}
	}

	c.termIn(dispatch, ir.CatchSwitch{Handlers: handlers, Unwind: unwind})

	c.SetBlock(trybb)
	c.scopes.PushCatchDispatch(dispatch.Label, depth)

	err := c.stmt(ctx, x.Body)
	if err != nil {
		return errors.Wrap(err, "try body")
	}

	c.scopes.PopCatch()

	c.jump(endb)
	c.SetBlock(endb)

	return nil
}
