package lower

import (
	"context"
	"sort"

	"tlog.app/go/errors"

	"github.com/slowlang/lower/compiler/ir"
	"github.com/slowlang/lower/compiler/stmt"
)

type (
	caseState struct {
		bb *ir.Block
	}

	switchCtx struct {
		s *stmt.Switch

		cases map[*stmt.Case]*caseState
		def   *caseState

		end *ir.Block

		cleanups Cursor
	}
)

// switchStmt lowers the body first, registering case blocks in a side
// table, then comes back and emits the dispatch in front of it.
func (c *Code) switchStmt(ctx context.Context, x *stmt.Switch) error {
	consts := make([]Const, len(x.Cases))
	useTable := true

	for i, cs := range x.Cases {
		v, ok := c.Exprs.Const(cs.X)
		if !ok {
			useTable = false
			break
		}

		consts[i] = v
	}

	endb := c.NewBlock("switch.end")

	sc := &switchCtx{
		s:        x,
		cases:    map[*stmt.Case]*caseState{},
		end:      endb,
		cleanups: c.scopes.CleanupDepth(),
	}

	for _, cs := range x.Cases {
		sc.cases[cs] = &caseState{}
	}

	if x.Default != nil {
		sc.def = &caseState{}
	}

	c.switches = append(c.switches, sc)
	c.scopes.pushBreak(x, endb)

	oldbb := c.bb

	c.OpenBlock("switch.body")

	err := c.stmt(ctx, x.Body)
	if err != nil {
		return errors.Wrap(err, "switch body")
	}

	c.jump(endb)

	c.scopes.popTarget()
	c.switches = c.switches[:len(c.switches)-1]

	c.SetBlock(oldbb)

	if useTable {
		err = c.switchTable(ctx, sc, consts)
	} else {
		err = c.switchLinear(ctx, sc)
	}
	if err != nil {
		return err
	}

	c.SetBlock(endb)

	return nil
}

func (c *Code) switchTable(ctx context.Context, sc *switchCtx, consts []Const) error {
	x := sc.s

	cond, err := c.Exprs.Lower(ctx, c, x.Cond)
	if err != nil {
		return errors.Wrap(err, "switch cond")
	}

	vals := make([]ir.Expr, len(consts))

	if len(consts) != 0 && consts[0].IsStr {
		strs := make([]string, len(consts))

		for i, v := range consts {
			strs[i] = v.Str
		}

		sort.Strings(strs)

		for i := 1; i < len(strs); i++ {
			if strs[i] == strs[i-1] {
				return errors.New("duplicate case string: %q", strs[i])
			}
		}

		table := c.constant(ir.StrTable{Strs: strs})

		fn, err := c.runtime(RTSwitchStr)
		if err != nil {
			return err
		}

		cond = c.Call(fn, table, cond)

		for i, v := range consts {
			idx := sort.SearchStrings(strs, v.Str)
			vals[i] = c.constant(ir.Imm(int64(idx)))
		}
	} else {
		for i, v := range consts {
			vals[i] = c.constant(ir.Imm(v.Int))
		}
	}

	cases := make([]ir.SwitchCase, len(x.Cases))

	for i, cs := range x.Cases {
		st := sc.cases[cs]
		if st.bb == nil {
			return errors.New("case was not reached while lowering switch body")
		}

		cases[i] = ir.SwitchCase{Val: vals[i], Label: st.bb.Label}
	}

	def := sc.end.Label
	if sc.def != nil && sc.def.bb != nil {
		def = sc.def.bb.Label
	}

	c.terminate(ir.Switch{Expr: cond, Cases: cases, Default: def})

	return nil
}

// switchLinear compares cases one by one in source order. It is the
// fallback for a case value only known at run time.
func (c *Code) switchLinear(ctx context.Context, sc *switchCtx) error {
	x := sc.s

	cond, err := c.Exprs.Lower(ctx, c, x.Cond)
	if err != nil {
		return errors.Wrap(err, "switch cond")
	}

	def := sc.end.Label
	if sc.def != nil && sc.def.bb != nil {
		def = sc.def.bb.Label
	}

	for i, cs := range x.Cases {
		st := sc.cases[cs]
		if st.bb == nil {
			return errors.New("case was not reached while lowering switch body")
		}

		cv, err := c.Exprs.Lower(ctx, c, cs.X)
		if err != nil {
			return errors.Wrap(err, "case value")
		}

		m := c.Add(ir.Cmp{Cond: "==", L: cond, R: cv})

		els := def
		var nextb *ir.Block

		if i+1 < len(x.Cases) {
			nextb = c.NewBlock("checkcase")
			els = nextb.Label
		}

		c.terminate(ir.BCond{Expr: m, Then: st.bb.Label, Else: els})

		if nextb != nil {
			c.SetBlock(nextb)
		}
	}

	if len(x.Cases) == 0 {
		c.terminate(ir.B{Label: def})
	}

	return nil
}

func (c *Code) caseStmt(ctx context.Context, x *stmt.Case) error {
	sc := c.innerSwitch()
	if sc == nil {
		return errors.New("case outside a switch")
	}

	st, ok := sc.cases[x]
	if !ok {
		return errors.New("case does not belong to the enclosing switch")
	}

	if st.bb == nil {
		st.bb = c.NewBlock("case")
	}

	c.jump(st.bb)
	c.SetBlock(st.bb)

	return c.stmt(ctx, x.S)
}

func (c *Code) defaultStmt(ctx context.Context, x *stmt.Default) error {
	sc := c.innerSwitch()
	if sc == nil {
		return errors.New("default outside a switch")
	}
	if sc.def == nil {
		return errors.New("default does not belong to the enclosing switch")
	}

	if sc.def.bb == nil {
		sc.def.bb = c.NewBlock("default")
	}

	c.jump(sc.def.bb)
	c.SetBlock(sc.def.bb)

	return c.stmt(ctx, x.S)
}

func (c *Code) gotoCase(ctx context.Context, x *stmt.GotoCase) error {
	if c.Terminated() {
		return nil
	}

	sc := c.innerSwitch()
	if sc == nil {
		return errors.New("goto case outside a switch")
	}

	st, ok := sc.cases[x.Target]
	if !ok {
		return errors.New("goto case target does not belong to the enclosing switch")
	}

	if st.bb == nil {
		st.bb = c.NewBlock("case")
	}

	c.scopes.RunCleanups(c, sc.cleanups, st.bb.Label)
	c.OpenBlock("aftergoto")

	return nil
}

func (c *Code) gotoDefault(ctx context.Context, x *stmt.GotoDefault) error {
	if c.Terminated() {
		return nil
	}

	sc := c.innerSwitch()
	if sc == nil {
		return errors.New("goto default outside a switch")
	}
	if sc.def == nil {
		return errors.New("goto default in a switch with no default")
	}

	if sc.def.bb == nil {
		sc.def.bb = c.NewBlock("default")
	}

	c.scopes.RunCleanups(c, sc.cleanups, sc.def.bb.Label)
	c.OpenBlock("aftergoto")

	return nil
}

func (c *Code) switchError(ctx context.Context, x *stmt.SwitchError) error {
	fn, err := c.runtime(RTSwitchError)
	if err != nil {
		return err
	}

	line := c.constant(ir.Imm(int64(x.Line)))

	c.Call(fn, line)

	if !c.Terminated() {
		c.terminate(ir.Unreachable{})
	}

	c.OpenBlock("aftererror")

	return nil
}

func (c *Code) innerSwitch() *switchCtx {
	if len(c.switches) == 0 {
		return nil
	}

	return c.switches[len(c.switches)-1]
}
