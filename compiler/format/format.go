// Package format renders a lowered function as a readable block listing.
package format

import (
	"context"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/slowlang/lower/compiler/ir"
	"github.com/slowlang/lower/compiler/set"
)

func Func(ctx context.Context, b []byte, f *ir.Func) (_ []byte, err error) {
	b = app(b, 0, "func %v {\n", f.Name)

	reach := reachable(f)

	for _, bb := range f.Blocks {
		b = app(b, 0, "b%d  %v:", bb.Label, bb.Name)

		if !reach.IsSet(int(bb.Label)) {
			b = append(b, "\t; dead"...)
		}

		b = append(b, '\n')

		for _, id := range bb.Code {
			b, err = instr(b, f, id)
			if err != nil {
				return nil, errors.Wrap(err, "%v: e%d", bb.Name, id)
			}
		}

		if bb.Term != ir.None {
			b, err = instr(b, f, bb.Term)
			if err != nil {
				return nil, errors.Wrap(err, "%v: term", bb.Name)
			}
		} else {
			b = app(b, 1, "<open>\n")
		}
	}

	b = app(b, 0, "}\n")

	return b, nil
}

func reachable(f *ir.Func) set.Bitmap {
	r := set.MakeBitmap(len(f.Blocks))

	if len(f.Blocks) == 0 {
		return r
	}

	q := []ir.Label{0}
	r.Set(0)

	for len(q) != 0 {
		l := q[0]
		q = q[1:]

		bb := f.Block(l)
		if bb.Term == ir.None {
			continue
		}

		for _, n := range ir.Successors(f.Exprs[bb.Term]) {
			if n == ir.None || r.IsSet(int(n)) {
				continue
			}

			r.Set(int(n))
			q = append(q, n)
		}
	}

	return r
}

func instr(b []byte, f *ir.Func, id ir.Expr) ([]byte, error) {
	switch x := f.Exprs[id].(type) {
	case ir.Imm:
		b = app(b, 1, "e%d = %d\n", id, int64(x))
	case ir.Str:
		b = app(b, 1, "e%d = %q\n", id, string(x))
	case ir.RTFunc:
		b = app(b, 1, "e%d = rt %v\n", id, string(x))
	case ir.TypeSym:
		b = app(b, 1, "e%d = typesym %v\n", id, string(x))
	case ir.Alloca:
		b = app(b, 1, "e%d = alloca %v\n", id, x.Name)
	case ir.Load:
		b = app(b, 1, "e%d = load e%d\n", id, x.Slot)
	case ir.Store:
		b = app(b, 1, "store e%d, e%d\n", x.Slot, x.Val)
	case ir.Add:
		b = app(b, 1, "e%d = add e%d, e%d\n", id, x.L, x.R)
	case ir.Sub:
		b = app(b, 1, "e%d = sub e%d, e%d\n", id, x.L, x.R)
	case ir.Cmp:
		b = app(b, 1, "e%d = cmp.%v e%d, e%d\n", id, string(x.Cond), x.L, x.R)
	case ir.Len:
		b = app(b, 1, "e%d = len e%d\n", id, x.Aggr)
	case ir.Ptr:
		b = app(b, 1, "e%d = ptr e%d\n", id, x.Aggr)
	case ir.Index:
		b = app(b, 1, "e%d = index e%d, e%d\n", id, x.Base, x.Idx)
	case ir.Call:
		b = app(b, 1, "e%d = call e%d", id, x.Func)
		b = args(b, x.In)
		b = append(b, '\n')
	case ir.StrTable:
		b = app(b, 1, "e%d = strtable %q\n", id, x.Strs)
	case ir.LandingPad:
		b = app(b, 1, "e%d = landingpad\n", id)
	case ir.Match:
		b = app(b, 1, "e%d = match e%d, e%d\n", id, x.Pad, x.Sym)
	case ir.CatchPad:
		b = app(b, 1, "e%d = catchpad b%d, e%d, e%d\n", id, x.Switch, x.Sym, x.Slot)
	case ir.Asm:
		b = app(b, 1, "asm %q\n", x.Code)
	case ir.B:
		b = app(b, 1, "b\tb%d\n", x.Label)
	case ir.BCond:
		b = app(b, 1, "bcond e%d, b%d, b%d\n", x.Expr, x.Then, x.Else)
	case ir.Switch:
		b = app(b, 1, "switch e%d [", x.Expr)

		for i, c := range x.Cases {
			if i != 0 {
				b = append(b, ' ')
			}

			b = hfmt.Appendf(b, "e%d: b%d", c.Val, c.Label)
		}

		b = hfmt.Appendf(b, "] default b%d\n", x.Default)
	case ir.Ret:
		if x.Expr == ir.None {
			b = app(b, 1, "ret\n")
		} else {
			b = app(b, 1, "ret e%d\n", x.Expr)
		}
	case ir.Unreachable:
		b = app(b, 1, "unreachable\n")
	case ir.Invoke:
		b = app(b, 1, "e%d = invoke e%d", id, x.Func)
		b = args(b, x.In)
		b = hfmt.Appendf(b, " to b%d unwind b%d\n", x.Normal, x.Unwind)
	case ir.CatchSwitch:
		b = app(b, 1, "catchswitch [")

		for i, h := range x.Handlers {
			if i != 0 {
				b = append(b, ' ')
			}

			b = hfmt.Appendf(b, "b%d", h)
		}

		if x.Unwind != ir.None {
			b = hfmt.Appendf(b, "] unwind b%d\n", x.Unwind)
		} else {
			b = append(b, "] unwind caller\n"...)
		}
	case ir.CatchRet:
		b = app(b, 1, "catchret e%d, b%d\n", x.Pad, x.To)
	case ir.Resume:
		b = app(b, 1, "resume e%d\n", x.Pad)
	default:
		return nil, errors.New("unsupported instruction: %T", x)
	}

	return b, nil
}

func args(b []byte, in []ir.Expr) []byte {
	b = append(b, " ("...)

	for i, a := range in {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = hfmt.Appendf(b, "e%d", a)
	}

	b = append(b, ')')

	return b
}

func app(b []byte, d int, f string, args ...any) []byte {
	const tabs = "\t\t\t\t\t\t\t\t\t\t\t\t\t\t\t"
	b = append(b, tabs[:d]...)
	b = hfmt.Appendf(b, f, args...)
	return b
}
