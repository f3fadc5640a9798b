package lower

import (
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/lower/compiler/ir"
	"github.com/slowlang/lower/compiler/stmt"
)

type (
	labelDef struct {
		bb    *ir.Block
		depth Cursor
	}

	// pendingGoto is a forward goto: a dangling branch waiting for its
	// label, plus the cleanup depth the branch currently starts from.
	pendingGoto struct {
		branch ir.Expr
		depth  Cursor
		pos    stmt.Loc
	}

	labelTable struct {
		defs    map[string]labelDef
		pending map[string][]pendingGoto
		stmts   map[string]stmt.Stmt
	}
)

func (t *labelTable) define(c *Code, name string, bb *ir.Block) error {
	if _, ok := t.defs[name]; ok {
		return errors.New("label redefined: %v", name)
	}

	depth := c.scopes.CleanupDepth()

	if t.defs == nil {
		t.defs = map[string]labelDef{}
	}

	t.defs[name] = labelDef{bb: bb, depth: depth}

	for _, p := range t.pending[name] {
		if depth > p.depth {
			return errors.New("%v:%v: goto into a scope with cleanups", p.pos.File, p.pos.Line)
		}
		if depth < p.depth {
			panic("goto left unrerouted")
		}

		c.Func.Exprs[p.branch] = ir.B{Label: bb.Label}
	}

	delete(t.pending, name)

	return nil
}

// jump lowers a goto. A known label branches back through the cleanups
// between here and its definition. An unknown one leaves a dangling branch
// to be patched when the label shows up.
func (t *labelTable) jump(c *Code, name string, pos stmt.Loc) error {
	if c.Terminated() {
		return nil
	}

	if def, ok := t.defs[name]; ok {
		if def.depth > c.scopes.CleanupDepth() {
			return errors.New("%v:%v: goto into a scope with cleanups", pos.File, pos.Line)
		}

		c.scopes.RunCleanups(c, def.depth, def.bb.Label)

		return nil
	}

	id := c.terminate(ir.B{Label: ir.None})

	if t.pending == nil {
		t.pending = map[string][]pendingGoto{}
	}

	t.pending[name] = append(t.pending[name], pendingGoto{
		branch: id,
		depth:  c.scopes.CleanupDepth(),
		pos:    pos,
	})

	return nil
}

// reroute is called when cleanups are popped while forward gotos recorded
// inside them are still unresolved. Leaving through the popped scopes must
// run their cleanups, so each such goto is redirected through a trampoline
// that runs them and dangles again at the shallower depth.
func (t *labelTable) reroute(c *Code, downTo Cursor) {
	save := c.bb

	for name, list := range t.pending {
		for i := range list {
			p := &list[i]

			if p.depth <= downTo {
				continue
			}

			tr := c.NewBlock("goto.unwind")
			cont := c.NewBlock("goto.cont")

			c.Func.Exprs[p.branch] = ir.B{Label: tr.Label}

			c.SetBlock(tr)
			c.scopes.runRange(c, int(p.depth), int(downTo), cont.Label)

			p.branch = c.termIn(cont, ir.B{Label: ir.None})
			p.depth = downTo

			if tlog.If("label") {
				tlog.Printw("reroute goto", "label", name, "down_to", downTo)
			}
		}
	}

	c.SetBlock(save)
}

func (t *labelTable) labeled(name string, x stmt.Stmt) {
	if t.stmts == nil {
		t.stmts = map[string]stmt.Stmt{}
	}

	t.stmts[name] = x
}

func (t *labelTable) labeledStmt(name string) (stmt.Stmt, bool) {
	x, ok := t.stmts[name]
	return x, ok
}

func (t *labelTable) finish() error {
	for name, list := range t.pending {
		for _, p := range list {
			return errors.New("%v:%v: label not defined: %v", p.pos.File, p.pos.Line, name)
		}
	}

	return nil
}
