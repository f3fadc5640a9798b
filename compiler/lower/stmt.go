package lower

import (
	"context"

	"tlog.app/go/errors"

	"github.com/slowlang/lower/compiler/ir"
	"github.com/slowlang/lower/compiler/stmt"
)

func (c *Code) stmt(ctx context.Context, x stmt.Stmt) error {
	if x == nil {
		return nil
	}

	c.Hooks.StopPoint(c, x.Pos())
	c.Hooks.Coverage(c, x.Pos())
	c.Hooks.Counter(c, x)

	switch x := x.(type) {
	case *stmt.Compound:
		return c.compound(ctx, x)
	case *stmt.Scope:
		return c.stmt(ctx, x.S)
	case *stmt.Exp:
		_, err := c.Exprs.Lower(ctx, c, x.X)
		return err
	case *stmt.Return:
		return c.ret(ctx, x)
	case *stmt.If:
		return c.ifStmt(ctx, x)
	case *stmt.While:
		return c.whileStmt(ctx, x)
	case *stmt.DoWhile:
		return c.doWhileStmt(ctx, x)
	case *stmt.For:
		return c.forStmt(ctx, x)
	case *stmt.Foreach:
		return c.foreachStmt(ctx, x)
	case *stmt.ForeachRange:
		return c.foreachRangeStmt(ctx, x)
	case *stmt.Unrolled:
		return c.unrolledStmt(ctx, x)
	case *stmt.Break:
		return c.breakStmt(ctx, x)
	case *stmt.Continue:
		return c.continueStmt(ctx, x)
	case *stmt.TryFinally:
		return c.tryFinally(ctx, x)
	case *stmt.TryCatch:
		if len(x.Catches) == 0 {
			return c.stmt(ctx, x.Body)
		}

		return c.EH.TryCatch(ctx, c, x)
	case *stmt.Throw:
		return c.throwStmt(ctx, x)
	case *stmt.Switch:
		return c.switchStmt(ctx, x)
	case *stmt.Case:
		return c.caseStmt(ctx, x)
	case *stmt.Default:
		return c.defaultStmt(ctx, x)
	case *stmt.GotoCase:
		return c.gotoCase(ctx, x)
	case *stmt.GotoDefault:
		return c.gotoDefault(ctx, x)
	case *stmt.SwitchError:
		return c.switchError(ctx, x)
	case *stmt.Label:
		return c.labelStmt(ctx, x)
	case *stmt.Goto:
		return c.gotoStmt(ctx, x)
	case *stmt.With:
		return c.withStmt(ctx, x)
	case *stmt.Asm:
		c.Add(ir.Asm{Code: x.Code})
		return nil
	case *stmt.Import:
		return nil
	default:
		return errors.New("statement not implemented: %T", x)
	}
}

func (c *Code) compound(ctx context.Context, x *stmt.Compound) error {
	c.Hooks.BlockStart(c, x.Pos())

	for _, s := range x.Stmts {
		err := c.stmt(ctx, s)
		if err != nil {
			return err
		}
	}

	c.Hooks.BlockEnd(c, x.Pos())

	return nil
}

func (c *Code) ret(ctx context.Context, x *stmt.Return) (err error) {
	var val ir.Expr = ir.None

	if x.X != nil {
		val, err = c.Exprs.Lower(ctx, c, x.X)
		if err != nil {
			return errors.Wrap(err, "return value")
		}
	}

	if c.scopes.CleanupDepth() == 0 {
		c.terminate(ir.Ret{Expr: val})
		c.OpenBlock("afterreturn")

		return nil
	}

	// with cleanups in the way all returns funnel through one shared
	// return block, the value travels through a slot
	if c.retBlock == ir.None {
		rb := c.NewBlock("return")
		c.retBlock = rb.Label

		if val != ir.None {
			c.retSlot = c.Alloca("ret.slot", 0)

			ld := c.Func.Alloc(ir.Load{Slot: c.retSlot})
			rb.Code = append(rb.Code, ld)

			c.termIn(rb, ir.Ret{Expr: ld})
		} else {
			c.termIn(rb, ir.Ret{Expr: ir.None})
		}
	}

	if val != ir.None {
		c.Add(ir.Store{Slot: c.retSlot, Val: val})
	}

	c.scopes.RunCleanups(c, 0, c.retBlock)
	c.OpenBlock("afterreturn")

	return nil
}

func (c *Code) ifStmt(ctx context.Context, x *stmt.If) error {
	cond, err := c.Exprs.Lower(ctx, c, x.Cond)
	if err != nil {
		return errors.Wrap(err, "if cond")
	}

	thenb := c.NewBlock("if.then")

	var elseb *ir.Block
	if x.Else != nil {
		elseb = c.NewBlock("if.else")
	}

	endb := c.NewBlock("if.end")

	els := endb
	if elseb != nil {
		els = elseb
	}

	c.terminate(ir.BCond{Expr: cond, Then: thenb.Label, Else: els.Label})

	c.SetBlock(thenb)

	err = c.stmt(ctx, x.Then)
	if err != nil {
		return errors.Wrap(err, "then")
	}

	c.jump(endb)

	if elseb != nil {
		c.SetBlock(elseb)

		err = c.stmt(ctx, x.Else)
		if err != nil {
			return errors.Wrap(err, "else")
		}

		c.jump(endb)
	}

	c.SetBlock(endb)

	return nil
}

func (c *Code) labelStmt(ctx context.Context, x *stmt.Label) error {
	bb := c.NewBlock("label." + x.Name)

	c.jump(bb)
	c.SetBlock(bb)

	err := c.labels.define(c, x.Name, bb)
	if err != nil {
		return err
	}

	c.labels.labeled(x.Name, unwrapLabeled(x.S))

	return c.stmt(ctx, x.S)
}

// unwrapLabeled digs out the statement a labeled break/continue targets.
func unwrapLabeled(x stmt.Stmt) stmt.Stmt {
	for {
		switch s := x.(type) {
		case *stmt.Scope:
			x = s.S
		case *stmt.Label:
			x = s.S
		default:
			return x
		}
	}
}

func (c *Code) gotoStmt(ctx context.Context, x *stmt.Goto) error {
	err := c.labels.jump(c, x.Label, x.Pos())
	if err != nil {
		return err
	}

	c.OpenBlock("aftergoto")

	return nil
}

func (c *Code) withStmt(ctx context.Context, x *stmt.With) error {
	v, err := c.Exprs.Lower(ctx, c, x.X)
	if err != nil {
		return errors.Wrap(err, "with object")
	}

	if x.Var != nil {
		slot := c.Alloca(x.Var.Name, c.Types.Machine(x.Var.Type))
		c.Add(ir.Store{Slot: slot, Val: v})
	}

	return c.stmt(ctx, x.Body)
}

func (c *Code) throwStmt(ctx context.Context, x *stmt.Throw) error {
	v, err := c.Exprs.Lower(ctx, c, x.X)
	if err != nil {
		return errors.Wrap(err, "thrown value")
	}

	fn, err := c.runtime(RTThrow)
	if err != nil {
		return err
	}

	c.Call(fn, v)

	if !c.Terminated() {
		c.terminate(ir.Unreachable{})
	}

	c.OpenBlock("afterthrow")

	return nil
}

func (c *Code) tryFinally(ctx context.Context, x *stmt.TryFinally) error {
	if x.Finally == nil {
		return c.stmt(ctx, x.Body)
	}
	if x.Body == nil {
		return c.stmt(ctx, x.Finally)
	}

	trybb := c.bb
	mark := c.scopes.CleanupDepth()

	finbb := c.OpenBlock("finally")

	err := c.stmt(ctx, x.Finally)
	if err != nil {
		return errors.Wrap(err, "finally")
	}

	fend := c.bb

	c.SetBlock(trybb)
	c.scopes.PushCleanup(c, finbb, fend)

	err = c.stmt(ctx, x.Body)
	if err != nil {
		return errors.Wrap(err, "try body")
	}

	if !c.Terminated() {
		endb := c.NewBlock("try.success")
		c.scopes.RunCleanups(c, mark, endb.Label)
		c.SetBlock(endb)
	}

	c.scopes.PopCleanups(c, mark)

	return nil
}
