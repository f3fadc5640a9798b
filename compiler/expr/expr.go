// Package expr is a minimal expression, type and runtime implementation
// backing the lowering engine in the command line tool and the tests.
// A real frontend brings its own.
package expr

import (
	"context"

	"tlog.app/go/errors"

	"github.com/slowlang/lower/compiler/ir"
	"github.com/slowlang/lower/compiler/lower"
	"github.com/slowlang/lower/compiler/stmt"
)

type (
	Int struct {
		Unsigned bool
	}

	Str struct{}

	Class struct {
		Name string
	}

	Imm struct {
		V int64
	}

	SImm struct {
		S string
	}

	Var struct {
		Name string
	}

	Bin struct {
		Op   string
		L, R stmt.Expr
	}

	// Mark emits a call to a mark.<name> runtime symbol. Tests use the
	// resulting call trace to observe evaluation order.
	Mark struct {
		Name string
	}

	Env struct {
		code  *lower.Code
		slots map[string]ir.Expr
	}
)

func NewEnv() *Env {
	return &Env{}
}

func (e *Env) Lower(ctx context.Context, c *lower.Code, x stmt.Expr) (ir.Expr, error) {
	if e.code != c {
		e.code = c
		e.slots = map[string]ir.Expr{}
	}

	switch x := x.(type) {
	case Imm:
		return c.Func.Alloc(ir.Imm(x.V)), nil
	case SImm:
		return c.Func.Alloc(ir.Str(x.S)), nil
	case Var:
		slot, err := e.slot(c, x.Name)
		if err != nil {
			return ir.None, err
		}

		return c.Add(ir.Load{Slot: slot}), nil
	case Mark:
		fn := c.Func.Alloc(ir.RTFunc("mark." + x.Name))

		return c.Call(fn), nil
	case Bin:
		return e.bin(ctx, c, x)
	default:
		return ir.None, errors.New("expression not implemented: %T", x)
	}
}

func (e *Env) bin(ctx context.Context, c *lower.Code, x Bin) (ir.Expr, error) {
	if x.Op == "=" {
		v, ok := x.L.(Var)
		if !ok {
			return ir.None, errors.New("assignment to %T", x.L)
		}

		slot, err := e.slot(c, v.Name)
		if err != nil {
			return ir.None, err
		}

		r, err := e.Lower(ctx, c, x.R)
		if err != nil {
			return ir.None, err
		}

		c.Add(ir.Store{Slot: slot, Val: r})

		return r, nil
	}

	l, err := e.Lower(ctx, c, x.L)
	if err != nil {
		return ir.None, err
	}

	r, err := e.Lower(ctx, c, x.R)
	if err != nil {
		return ir.None, err
	}

	switch x.Op {
	case "+":
		return c.Add(ir.Add{L: l, R: r}), nil
	case "-":
		return c.Add(ir.Sub{L: l, R: r}), nil
	case "==", "!=", "<", ">", "<=", ">=", "u<", "u>":
		return c.Add(ir.Cmp{Cond: ir.Cond(x.Op), L: l, R: r}), nil
	default:
		return ir.None, errors.New("operation not implemented: %v", x.Op)
	}
}

func (e *Env) slot(c *lower.Code, name string) (ir.Expr, error) {
	if slot, ok := e.slots[name]; ok {
		return slot, nil
	}

	slot := c.Alloca(name, 0)
	e.slots[name] = slot

	return slot, nil
}

func (e *Env) Const(x stmt.Expr) (lower.Const, bool) {
	switch x := x.(type) {
	case Imm:
		return lower.Const{Int: x.V}, true
	case SImm:
		return lower.Const{Str: x.S, IsStr: true}, true
	}

	return lower.Const{}, false
}

func (e *Env) Integral(t stmt.Type) bool {
	_, ok := t.(Int)
	return ok
}

func (e *Env) Unsigned(t stmt.Type) bool {
	i, ok := t.(Int)
	return ok && i.Unsigned
}

func (e *Env) Memory(t stmt.Type) bool {
	switch t.(type) {
	case Str, Class:
		return true
	}

	return false
}

func (e *Env) Machine(t stmt.Type) ir.Type { return 0 }

func (e *Env) TypeSym(t stmt.Type) string {
	switch t := t.(type) {
	case Class:
		return "typeid." + t.Name
	}

	return "typeid.object"
}

func (e *Env) Lookup(name string) (string, error) {
	switch name {
	case lower.RTThrow:
		return "_lw_throw", nil
	case lower.RTEnterCatch:
		return "_lw_eh_enter_catch", nil
	case lower.RTSwitchError:
		return "_lw_switch_error", nil
	case lower.RTSwitchStr:
		return "_lw_switch_string", nil
	}

	return "", errors.New("unknown runtime entry: %v", name)
}
