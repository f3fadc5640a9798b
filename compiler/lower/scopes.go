package lower

import (
	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/slowlang/lower/compiler/ir"
	"github.com/slowlang/lower/compiler/stmt"
)

type (
	// Cursor marks a depth in the cleanup stack. Holders only pass it back.
	Cursor int

	// cleanup is a lowered scope-exit region [begin..end]. Control enters
	// through begin and leaves through end's terminator. With one exit
	// target the terminator is a plain branch. When a second target
	// appears the cleanup is multiplexed: a destination slot is allocated,
	// every entering block stores its target index into the slot, and the
	// end terminator becomes a switch on the slot.
	cleanup struct {
		begin *ir.Block
		end   *ir.Block

		slot    ir.Expr
		targets []ir.Label
		runs    []cleanupRun

		// dead cleanups never fall through, their body ends the function.
		dead bool
	}

	cleanupRun struct {
		from *ir.Block
		idx  int
	}

	catchEntry struct {
		sym ir.Expr // type symbol id, ir.None matches anything
		bb  ir.Label

		// dispatch entries absorb the whole unwind, probing is theirs.
		dispatch bool

		cleanups Cursor
	}

	jumpTarget struct {
		s stmt.Stmt

		breakBB *ir.Block
		contBB  *ir.Block

		cleanups Cursor
	}

	padKey struct {
		cleanups int
		catches  int
	}

	scopeStack struct {
		cleanups []*cleanup
		catches  []*catchEntry
		targets  []jumpTarget

		pads map[padKey]ir.Label
	}
)

func (s *scopeStack) CleanupDepth() Cursor { return Cursor(len(s.cleanups)) }

func (s *scopeStack) PushCleanup(c *Code, begin, end *ir.Block) {
	cl := &cleanup{
		begin: begin,
		end:   end,
		slot:  ir.None,
		dead:  end.Term != ir.None,
	}

	s.cleanups = append(s.cleanups, cl)

	if tlog.If("cleanup") {
		tlog.Printw("push cleanup", "depth", len(s.cleanups), "begin", begin.Label, "dead", cl.dead, "from", loc.Callers(1, 2))
	}
}

// PopCleanups removes cleanups without emitting code. Control has already
// been proven to flow past them. Pending forward gotos recorded deeper than
// downTo still have to run the removed cleanups, they are rerouted first.
func (s *scopeStack) PopCleanups(c *Code, downTo Cursor) {
	c.labels.reroute(c, downTo)

	s.cleanups = s.cleanups[:downTo]
	s.prunePads()
}

// RunCleanups emits every cleanup above downTo, innermost first, and
// branches into target. It terminates the current block.
func (s *scopeStack) RunCleanups(c *Code, downTo Cursor, target ir.Label) {
	s.runRange(c, len(s.cleanups), int(downTo), target)
}

func (s *scopeStack) runRange(c *Code, top, downTo int, target ir.Label) {
	for i := top - 1; i >= downTo; i-- {
		cl := s.cleanups[i]

		if cl.dead {
			c.jump(cl.begin)
			return
		}

		if i == downTo {
			s.runCleanup(c, cl, target)
			return
		}

		next := c.NewBlock("cleanup.exit")
		s.runCleanup(c, cl, next.Label)
		c.SetBlock(next)
	}

	c.terminate(ir.B{Label: target})
}

func (s *scopeStack) runCleanup(c *Code, cl *cleanup, exit ir.Label) {
	idx := -1

	for i, t := range cl.targets {
		if t == exit {
			idx = i
			break
		}
	}

	if idx < 0 {
		idx = len(cl.targets)
		cl.targets = append(cl.targets, exit)

		switch {
		case idx == 0:
			c.termIn(cl.end, ir.B{Label: exit})
		case idx == 1:
			s.multiplex(c, cl)
		default:
			sw := c.Func.Exprs[cl.end.Term].(ir.Switch)
			sw.Cases = append(sw.Cases, ir.SwitchCase{Val: c.constant(ir.Imm(idx)), Label: exit})
			c.Func.Exprs[cl.end.Term] = sw
		}
	}

	if cl.slot != ir.None {
		c.Add(ir.Store{Slot: cl.slot, Val: c.constant(ir.Imm(int64(idx)))})
	}

	cl.runs = append(cl.runs, cleanupRun{from: c.bb, idx: idx})

	c.jump(cl.begin)
}

// multiplex converts a single-exit cleanup into a switched one. Previous
// entering blocks are retrofitted with a store of their target index.
func (s *scopeStack) multiplex(c *Code, cl *cleanup) {
	cl.slot = c.Alloca("cleanup.dst", 0)

	for _, r := range cl.runs {
		id := c.Func.Alloc(ir.Store{Slot: cl.slot, Val: c.constant(ir.Imm(int64(r.idx)))})
		r.from.Code = append(r.from.Code, id)
	}

	ld := c.Func.Alloc(ir.Load{Slot: cl.slot})
	cl.end.Code = append(cl.end.Code, ld)

	c.Func.Exprs[cl.end.Term] = ir.Switch{
		Expr: ld,
		Cases: []ir.SwitchCase{
			{Val: c.constant(ir.Imm(1)), Label: cl.targets[1]},
		},
		Default: cl.targets[0],
	}

	if tlog.If("cleanup") {
		tlog.Printw("multiplex cleanup", "begin", cl.begin.Label, "runs", len(cl.runs))
	}
}

func (s *scopeStack) PushCatch(sym ir.Expr, bb ir.Label, cleanups Cursor) {
	s.catches = append(s.catches, &catchEntry{sym: sym, bb: bb, cleanups: cleanups})
}

func (s *scopeStack) PushCatchDispatch(bb ir.Label, cleanups Cursor) {
	s.catches = append(s.catches, &catchEntry{sym: ir.None, bb: bb, dispatch: true, cleanups: cleanups})
}

func (s *scopeStack) PopCatch() {
	s.catches = s.catches[:len(s.catches)-1]
	s.prunePads()
}

func (s *scopeStack) unwinding() bool {
	return len(s.cleanups) != 0 || len(s.catches) != 0
}

// landingPad builds (or reuses) the unwind chain for the current set of
// live cleanups and catches: cleanups and catch probes are interleaved by
// the cleanup depth recorded when each catch was pushed, innermost first,
// ending in resumed propagation.
func (s *scopeStack) landingPad(c *Code) ir.Label {
	key := padKey{cleanups: len(s.cleanups), catches: len(s.catches)}

	if l, ok := s.pads[key]; ok {
		return l
	}

	save := c.bb

	pad := c.OpenBlock("pad")
	padv := c.Add(ir.LandingPad{})
	c.Add(ir.Store{Slot: c.EHSlot(), Val: padv})

	top := len(s.cleanups)

	for i := len(s.catches) - 1; i >= 0; i-- {
		e := s.catches[i]

		if int(e.cleanups) < top {
			next := c.NewBlock("pad.cont")
			s.runRange(c, top, int(e.cleanups), next.Label)
			c.SetBlock(next)

			top = int(e.cleanups)
		}

		if e.dispatch {
			c.jump(c.Func.Block(e.bb))
			c.SetBlock(save)

			s.pad(key, pad.Label)

			return pad.Label
		}

		if e.sym == ir.None {
			c.jump(c.Func.Block(e.bb))
			c.SetBlock(save)

			s.pad(key, pad.Label)

			return pad.Label
		}

		next := c.NewBlock("pad.next")

		ld := c.Add(ir.Load{Slot: c.EHSlot()})
		m := c.Add(ir.Match{Pad: ld, Sym: e.sym})
		c.terminate(ir.BCond{Expr: m, Then: e.bb, Else: next.Label})
		c.SetBlock(next)
	}

	if top != 0 {
		next := c.NewBlock("pad.resume")
		s.runRange(c, top, 0, next.Label)
		c.SetBlock(next)
	}

	ld := c.Add(ir.Load{Slot: c.EHSlot()})
	c.terminate(ir.Resume{Pad: ld})

	c.SetBlock(save)

	s.pad(key, pad.Label)

	return pad.Label
}

func (s *scopeStack) pad(key padKey, l ir.Label) {
	if s.pads == nil {
		s.pads = map[padKey]ir.Label{}
	}

	s.pads[key] = l
}

func (s *scopeStack) prunePads() {
	for key := range s.pads {
		if key.cleanups > len(s.cleanups) || key.catches > len(s.catches) {
			delete(s.pads, key)
		}
	}
}

func (s *scopeStack) pushLoop(x stmt.Stmt, contBB, breakBB *ir.Block) {
	s.targets = append(s.targets, jumpTarget{
		s:        x,
		breakBB:  breakBB,
		contBB:   contBB,
		cleanups: s.CleanupDepth(),
	})
}

func (s *scopeStack) pushBreak(x stmt.Stmt, breakBB *ir.Block) {
	s.pushLoop(x, nil, breakBB)
}

func (s *scopeStack) popTarget() {
	s.targets = s.targets[:len(s.targets)-1]
}

func (s *scopeStack) breakClosest(c *Code) error {
	if len(s.targets) == 0 {
		return errors.New("break outside a loop or switch")
	}

	t := s.targets[len(s.targets)-1]

	s.RunCleanups(c, t.cleanups, t.breakBB.Label)

	return nil
}

func (s *scopeStack) breakStmt(c *Code, x stmt.Stmt) error {
	for i := len(s.targets) - 1; i >= 0; i-- {
		t := s.targets[i]
		if t.s != x {
			continue
		}

		s.RunCleanups(c, t.cleanups, t.breakBB.Label)

		return nil
	}

	return errors.New("break target is not enclosing")
}

func (s *scopeStack) continueClosest(c *Code) error {
	for i := len(s.targets) - 1; i >= 0; i-- {
		t := s.targets[i]
		if t.contBB == nil {
			continue
		}

		s.RunCleanups(c, t.cleanups, t.contBB.Label)

		return nil
	}

	return errors.New("continue outside a loop")
}

func (s *scopeStack) continueLoop(c *Code, x stmt.Stmt) error {
	for i := len(s.targets) - 1; i >= 0; i-- {
		t := s.targets[i]
		if t.s != x || t.contBB == nil {
			continue
		}

		s.RunCleanups(c, t.cleanups, t.contBB.Label)

		return nil
	}

	return errors.New("continue target is not an enclosing loop")
}
