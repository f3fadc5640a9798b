package lower

import (
	"context"

	"tlog.app/go/errors"

	"github.com/slowlang/lower/compiler/ir"
	"github.com/slowlang/lower/compiler/stmt"
)

func (c *Code) whileStmt(ctx context.Context, x *stmt.While) error {
	condb := c.NewBlock("while.cond")
	bodyb := c.NewBlock("while.body")
	endb := c.NewBlock("while.end")

	c.jump(condb)
	c.SetBlock(condb)

	cond, err := c.Exprs.Lower(ctx, c, x.Cond)
	if err != nil {
		return errors.Wrap(err, "while cond")
	}

	c.terminate(ir.BCond{Expr: cond, Then: bodyb.Label, Else: endb.Label})
	c.SetBlock(bodyb)

	c.scopes.pushLoop(x, condb, endb)

	err = c.stmt(ctx, x.Body)
	if err != nil {
		return errors.Wrap(err, "while body")
	}

	c.scopes.popTarget()

	c.jump(condb)
	c.SetBlock(endb)

	return nil
}

func (c *Code) doWhileStmt(ctx context.Context, x *stmt.DoWhile) error {
	bodyb := c.NewBlock("do.body")
	condb := c.NewBlock("do.cond")
	endb := c.NewBlock("do.end")

	c.jump(bodyb)
	c.SetBlock(bodyb)

	c.scopes.pushLoop(x, condb, endb)

	err := c.stmt(ctx, x.Body)
	if err != nil {
		return errors.Wrap(err, "do body")
	}

	c.scopes.popTarget()

	c.jump(condb)
	c.SetBlock(condb)

	cond, err := c.Exprs.Lower(ctx, c, x.Cond)
	if err != nil {
		return errors.Wrap(err, "do cond")
	}

	c.terminate(ir.BCond{Expr: cond, Then: bodyb.Label, Else: endb.Label})
	c.SetBlock(endb)

	return nil
}

func (c *Code) forStmt(ctx context.Context, x *stmt.For) error {
	err := c.stmt(ctx, x.Init)
	if err != nil {
		return errors.Wrap(err, "for init")
	}

	condb := c.NewBlock("for.cond")
	bodyb := c.NewBlock("for.body")
	incb := c.NewBlock("for.inc")
	endb := c.NewBlock("for.end")

	c.jump(condb)
	c.SetBlock(condb)

	if x.Cond != nil {
		cond, err := c.Exprs.Lower(ctx, c, x.Cond)
		if err != nil {
			return errors.Wrap(err, "for cond")
		}

		c.terminate(ir.BCond{Expr: cond, Then: bodyb.Label, Else: endb.Label})
	} else {
		c.terminate(ir.B{Label: bodyb.Label})
	}

	c.SetBlock(bodyb)

	c.scopes.pushLoop(x, incb, endb)

	err = c.stmt(ctx, x.Body)
	if err != nil {
		return errors.Wrap(err, "for body")
	}

	c.scopes.popTarget()

	c.jump(incb)
	c.SetBlock(incb)

	if x.Inc != nil {
		_, err = c.Exprs.Lower(ctx, c, x.Inc)
		if err != nil {
			return errors.Wrap(err, "for inc")
		}
	}

	c.jump(condb)
	c.SetBlock(endb)

	return nil
}

// foreachStmt iterates an aggregate by index. Forward iteration increments
// past the body, reverse iteration decrements before it, so both directions
// share the same condition block shape.
func (c *Code) foreachStmt(ctx context.Context, x *stmt.Foreach) error {
	keyName := "foreach.key"
	if x.Key != nil {
		keyName = x.Key.Name
	}

	key := c.Alloca(keyName, 0)

	aggr, err := c.Exprs.Lower(ctx, c, x.Aggr)
	if err != nil {
		return errors.Wrap(err, "foreach aggregate")
	}

	length := c.Add(ir.Len{Aggr: aggr})
	base := c.Add(ir.Ptr{Aggr: aggr})

	zero := c.constant(ir.Imm(0))
	one := c.constant(ir.Imm(1))

	if x.Op == stmt.Forward {
		c.Add(ir.Store{Slot: key, Val: zero})
	} else {
		c.Add(ir.Store{Slot: key, Val: length})
	}

	condb := c.NewBlock("foreach.cond")
	bodyb := c.NewBlock("foreach.body")
	endb := c.NewBlock("foreach.end")

	var nextb *ir.Block
	if x.Op == stmt.Forward {
		nextb = c.NewBlock("foreach.next")
	}

	c.jump(condb)
	c.SetBlock(condb)

	k := c.Add(ir.Load{Slot: key})

	var cond ir.Expr
	if x.Op == stmt.Forward {
		cond = c.Add(ir.Cmp{Cond: "u<", L: k, R: length})
	} else {
		cond = c.Add(ir.Cmp{Cond: "u>", L: k, R: zero})
	}

	c.terminate(ir.BCond{Expr: cond, Then: bodyb.Label, Else: endb.Label})
	c.SetBlock(bodyb)

	if x.Op == stmt.Reverse {
		k := c.Add(ir.Load{Slot: key})
		dec := c.Add(ir.Sub{L: k, R: one})
		c.Add(ir.Store{Slot: key, Val: dec})
	}

	if x.Value != nil {
		k := c.Add(ir.Load{Slot: key})
		p := c.Add(ir.Index{Base: base, Idx: k})

		slot := c.Alloca(x.Value.Name, c.Types.Machine(x.Value.Type))

		if x.Value.ByRef {
			c.Add(ir.Store{Slot: slot, Val: p})
		} else {
			v := c.Add(ir.Load{Slot: p})
			c.Add(ir.Store{Slot: slot, Val: v})
		}
	}

	cont := condb
	if x.Op == stmt.Forward {
		cont = nextb
	}

	c.scopes.pushLoop(x, cont, endb)

	err = c.stmt(ctx, x.Body)
	if err != nil {
		return errors.Wrap(err, "foreach body")
	}

	c.scopes.popTarget()

	if x.Op == stmt.Forward {
		c.jump(nextb)
		c.SetBlock(nextb)

		k := c.Add(ir.Load{Slot: key})
		inc := c.Add(ir.Add{L: k, R: one})
		c.Add(ir.Store{Slot: key, Val: inc})
	}

	c.jump(condb)
	c.SetBlock(endb)

	return nil
}

func (c *Code) foreachRangeStmt(ctx context.Context, x *stmt.ForeachRange) error {
	key := c.Alloca(x.Key.Name, c.Types.Machine(x.Key.Type))

	lwr, err := c.Exprs.Lower(ctx, c, x.Lwr)
	if err != nil {
		return errors.Wrap(err, "range lower bound")
	}

	upr, err := c.Exprs.Lower(ctx, c, x.Upr)
	if err != nil {
		return errors.Wrap(err, "range upper bound")
	}

	one := c.constant(ir.Imm(1))

	if x.Op == stmt.Forward {
		c.Add(ir.Store{Slot: key, Val: lwr})
	} else {
		c.Add(ir.Store{Slot: key, Val: upr})
	}

	lt, gt := ir.Cond("<"), ir.Cond(">")
	if c.Types.Unsigned(x.Key.Type) {
		lt, gt = "u<", "u>"
	}

	condb := c.NewBlock("forrange.cond")
	bodyb := c.NewBlock("forrange.body")
	endb := c.NewBlock("forrange.end")

	var nextb *ir.Block
	if x.Op == stmt.Forward {
		nextb = c.NewBlock("forrange.next")
	}

	c.jump(condb)
	c.SetBlock(condb)

	k := c.Add(ir.Load{Slot: key})

	var cond ir.Expr
	if x.Op == stmt.Forward {
		cond = c.Add(ir.Cmp{Cond: lt, L: k, R: upr})
	} else {
		cond = c.Add(ir.Cmp{Cond: gt, L: k, R: lwr})
	}

	c.terminate(ir.BCond{Expr: cond, Then: bodyb.Label, Else: endb.Label})
	c.SetBlock(bodyb)

	if x.Op == stmt.Reverse {
		k := c.Add(ir.Load{Slot: key})
		dec := c.Add(ir.Sub{L: k, R: one})
		c.Add(ir.Store{Slot: key, Val: dec})
	}

	cont := condb
	if x.Op == stmt.Forward {
		cont = nextb
	}

	c.scopes.pushLoop(x, cont, endb)

	err = c.stmt(ctx, x.Body)
	if err != nil {
		return errors.Wrap(err, "range body")
	}

	c.scopes.popTarget()

	if x.Op == stmt.Forward {
		c.jump(nextb)
		c.SetBlock(nextb)

		k := c.Add(ir.Load{Slot: key})
		inc := c.Add(ir.Add{L: k, R: one})
		c.Add(ir.Store{Slot: key, Val: inc})
	}

	c.jump(condb)
	c.SetBlock(endb)

	return nil
}

// unrolledStmt is a loop with no back edge: continue moves to the next
// statement of the list, break leaves the whole thing.
func (c *Code) unrolledStmt(ctx context.Context, x *stmt.Unrolled) error {
	if len(x.Stmts) == 0 {
		return nil
	}

	endb := c.NewBlock("unrolled.end")

	for i, s := range x.Stmts {
		nextb := endb
		if i+1 < len(x.Stmts) {
			nextb = c.NewBlock("unrolled.next")
		}

		c.scopes.pushLoop(x, nextb, endb)

		err := c.stmt(ctx, s)
		if err != nil {
			return errors.Wrap(err, "unrolled body")
		}

		c.scopes.popTarget()

		c.jump(nextb)
		c.SetBlock(nextb)
	}

	return nil
}

func (c *Code) breakStmt(ctx context.Context, x *stmt.Break) error {
	if c.Terminated() {
		return nil
	}

	var err error
	if x.Label != "" {
		s, ok := c.labels.labeledStmt(x.Label)
		if !ok {
			return errors.New("break label is not defined: %v", x.Label)
		}

		err = c.scopes.breakStmt(c, s)
	} else {
		err = c.scopes.breakClosest(c)
	}

	if err != nil {
		return err
	}

	c.OpenBlock("afterbreak")

	return nil
}

func (c *Code) continueStmt(ctx context.Context, x *stmt.Continue) error {
	if c.Terminated() {
		return nil
	}

	var err error
	if x.Label != "" {
		s, ok := c.labels.labeledStmt(x.Label)
		if !ok {
			return errors.New("continue label is not defined: %v", x.Label)
		}

		err = c.scopes.continueLoop(c, s)
	} else {
		err = c.scopes.continueClosest(c)
	}

	if err != nil {
		return err
	}

	c.OpenBlock("aftercontinue")

	return nil
}
