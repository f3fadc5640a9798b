package lower_test

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slowlang/lower/compiler/expr"
	"github.com/slowlang/lower/compiler/ir"
	"github.com/slowlang/lower/compiler/lower"
	"github.com/slowlang/lower/compiler/stmt"
)

// machine walks a lowered block graph and records runtime calls, so tests
// observe the order cleanups, catches and bodies actually run in.
type machine struct {
	f *ir.Func

	vals map[ir.Expr]int64
	mem  map[ir.Expr]int64

	throws []string
	excSym string
	excVal int64

	trace []string

	retVal   int64
	returned bool
	uncaught bool
	halted   bool
}

const stepLimit = 100_000

func newLowerer(eh lower.Model) *lower.Lowerer {
	env := expr.NewEnv()
	return lower.New(env, env, env, eh)
}

func lowerFunc(t *testing.T, eh lower.Model, body stmt.Stmt) *ir.Func {
	t.Helper()

	f, err := newLowerer(eh).Func(context.Background(), &stmt.Func{Name: t.Name(), Body: body})
	require.NoError(t, err)

	return f
}

func run(t *testing.T, f *ir.Func, throws ...string) *machine {
	t.Helper()

	m := &machine{
		f:      f,
		vals:   map[ir.Expr]int64{},
		mem:    map[ir.Expr]int64{},
		throws: throws,
	}

	m.run(t)

	return m
}

func (m *machine) run(t *testing.T) {
	bb := m.f.Blocks[0]

	for steps := 0; ; steps++ {
		if steps > stepLimit {
			t.Fatalf("step limit in block %v", bb.Name)
		}

		for _, id := range bb.Code {
			if m.exec(t, id); m.halted || m.uncaught {
				return
			}
		}

		require.NotEqual(t, ir.Expr(ir.None), bb.Term, "fell off open block %v", bb.Name)

		switch x := m.f.Exprs[bb.Term].(type) {
		case ir.B:
			bb = m.f.Block(x.Label)
		case ir.BCond:
			if m.val(t, x.Expr) != 0 {
				bb = m.f.Block(x.Then)
			} else {
				bb = m.f.Block(x.Else)
			}
		case ir.Switch:
			bb = m.f.Block(x.Default)

			v := m.val(t, x.Expr)
			for _, c := range x.Cases {
				if m.val(t, c.Val) == v {
					bb = m.f.Block(c.Label)
					break
				}
			}
		case ir.Ret:
			if x.Expr != ir.None {
				m.retVal = m.val(t, x.Expr)
			}

			m.returned = true

			return
		case ir.Invoke:
			threw := m.call(t, bb.Term, x.Func, x.In)
			if m.halted {
				return
			}

			if !threw {
				bb = m.f.Block(x.Normal)
				break
			}

			if x.Unwind == ir.None {
				m.uncaught = true
				return
			}

			bb = m.f.Block(x.Unwind)
		case ir.CatchSwitch:
			h := m.probe(t, x)
			if h == ir.None {
				if x.Unwind == ir.None {
					m.uncaught = true
					return
				}

				bb = m.f.Block(x.Unwind)
				break
			}

			bb = m.f.Block(h)
		case ir.CatchRet:
			bb = m.f.Block(x.To)
		case ir.Resume:
			m.uncaught = true
			return
		case ir.Unreachable:
			t.Fatalf("unreachable executed in block %v", bb.Name)
		default:
			t.Fatalf("terminator not supported: %T", x)
		}
	}
}

func (m *machine) probe(t *testing.T, x ir.CatchSwitch) ir.Label {
	for _, h := range x.Handlers {
		hb := m.f.Block(h)
		require.NotEmpty(t, hb.Code, "handler %v has no pad", hb.Name)

		pad, ok := m.f.Exprs[hb.Code[0]].(ir.CatchPad)
		require.True(t, ok, "handler %v does not start with a pad", hb.Name)

		if pad.Sym == ir.None || string(m.f.Exprs[pad.Sym].(ir.TypeSym)) == m.excSym {
			return h
		}
	}

	return ir.None
}

func (m *machine) exec(t *testing.T, id ir.Expr) {
	switch x := m.f.Exprs[id].(type) {
	case ir.Alloca:
		m.mem[id] = 0
	case ir.Load:
		m.vals[id] = m.mem[m.slot(t, x.Slot)]
	case ir.Store:
		m.mem[m.slot(t, x.Slot)] = m.val(t, x.Val)
	case ir.Add:
		m.vals[id] = m.val(t, x.L) + m.val(t, x.R)
	case ir.Sub:
		m.vals[id] = m.val(t, x.L) - m.val(t, x.R)
	case ir.Cmp:
		m.vals[id] = m.cmp(t, x)
	case ir.Call:
		threw := m.call(t, id, x.Func, x.In)
		if threw {
			// a plain call has no unwind edge, the exception leaves
			// the function
			m.uncaught = true
		}
	case ir.LandingPad:
		m.vals[id] = m.excVal
	case ir.Match:
		m.vals[id] = 0
		if string(m.f.Exprs[x.Sym].(ir.TypeSym)) == m.excSym {
			m.vals[id] = 1
		}
	case ir.CatchPad:
		m.vals[id] = m.excVal

		if x.Slot != ir.None {
			m.mem[m.slot(t, x.Slot)] = m.excVal
		}
	case ir.Asm:
		m.trace = append(m.trace, "asm")
	default:
		t.Fatalf("instruction not supported: %T", x)
	}
}

func (m *machine) call(t *testing.T, id ir.Expr, fn ir.Expr, in []ir.Expr) (threw bool) {
	name, ok := m.f.Exprs[fn].(ir.RTFunc)
	require.True(t, ok, "call of e%d", fn)

	switch {
	case len(name) > 5 && name[:5] == "mark.":
		m.trace = append(m.trace, string(name[5:]))
		m.vals[id] = 0
	case name == "_lw_throw":
		require.NotEmpty(t, m.throws, "throw with no queued exception")

		m.excSym = m.throws[0]
		m.throws = m.throws[1:]

		if len(in) != 0 {
			m.excVal = m.val(t, in[0])
		}

		m.trace = append(m.trace, "throw")

		return true
	case name == "_lw_eh_enter_catch":
		m.trace = append(m.trace, "catch")
		m.vals[id] = m.excVal
	case name == "_lw_switch_error":
		m.trace = append(m.trace, "switcherror")
		m.halted = true
	case name == "_lw_switch_string":
		tab, ok := m.f.Exprs[in[0]].(ir.StrTable)
		require.True(t, ok, "switch string without a table")

		s := m.str(t, in[1])
		idx := sort.SearchStrings(tab.Strs, s)

		if idx < len(tab.Strs) && tab.Strs[idx] == s {
			m.vals[id] = int64(idx)
		} else {
			m.vals[id] = -1
		}
	default:
		t.Fatalf("runtime call not supported: %v", name)
	}

	return false
}

func (m *machine) cmp(t *testing.T, x ir.Cmp) int64 {
	l, r := m.val(t, x.L), m.val(t, x.R)

	var res bool

	switch x.Cond {
	case "==":
		res = l == r
	case "!=":
		res = l != r
	case "<":
		res = l < r
	case ">":
		res = l > r
	case "<=":
		res = l <= r
	case ">=":
		res = l >= r
	case "u<":
		res = uint64(l) < uint64(r)
	case "u>":
		res = uint64(l) > uint64(r)
	default:
		t.Fatalf("cmp not supported: %v", x.Cond)
	}

	if res {
		return 1
	}

	return 0
}

func (m *machine) val(t *testing.T, id ir.Expr) int64 {
	switch x := m.f.Exprs[id].(type) {
	case ir.Imm:
		return int64(x)
	case ir.Alloca:
		return int64(id)
	}

	v, ok := m.vals[id]
	require.True(t, ok, "value of e%d (%T) not computed", id, m.f.Exprs[id])

	return v
}

func (m *machine) str(t *testing.T, id ir.Expr) string {
	s, ok := m.f.Exprs[id].(ir.Str)
	require.True(t, ok, "string value of e%d", id)

	return string(s)
}

func (m *machine) slot(t *testing.T, id ir.Expr) ir.Expr {
	_, ok := m.f.Exprs[id].(ir.Alloca)
	if ok {
		return id
	}

	// a slot may arrive through a loaded pointer (byref values)
	v, ok := m.vals[id]
	require.True(t, ok, "slot e%d not resolvable", id)

	return ir.Expr(v)
}

func (m *machine) marks() []string {
	r := []string{}

	for _, s := range m.trace {
		switch s {
		case "throw", "catch", "switcherror", "asm":
			continue
		}

		r = append(r, s)
	}

	return r
}

func mark(name string) stmt.Stmt {
	return &stmt.Exp{X: expr.Mark{Name: name}}
}

func block(ss ...stmt.Stmt) stmt.Stmt {
	return &stmt.Compound{Stmts: ss}
}

func assign(name string, x stmt.Expr) stmt.Stmt {
	return &stmt.Exp{X: expr.Bin{Op: "=", L: expr.Var{Name: name}, R: x}}
}
