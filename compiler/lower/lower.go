package lower

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/lower/compiler/ir"
	"github.com/slowlang/lower/compiler/stmt"
)

type (
	// Const is a compile-time constant produced by the expression collaborator.
	Const struct {
		Int   int64
		Str   string
		IsStr bool
	}

	// Exprs lowers expressions into the current block. The engine treats
	// stmt.Expr as opaque and only moves the resulting ids around.
	Exprs interface {
		Lower(ctx context.Context, c *Code, x stmt.Expr) (ir.Expr, error)
		Const(x stmt.Expr) (Const, bool)
	}

	// Types answers the few predicates the engine needs about source types.
	Types interface {
		Integral(t stmt.Type) bool
		Unsigned(t stmt.Type) bool
		Memory(t stmt.Type) bool
		Machine(t stmt.Type) ir.Type
		TypeSym(t stmt.Type) string
	}

	// Runtime resolves engine-known entry points to target symbols.
	Runtime interface {
		Lookup(name string) (string, error)
	}

	// Hooks is called at statement boundaries. All methods may be no-ops.
	Hooks interface {
		StopPoint(c *Code, pos stmt.Loc)
		BlockStart(c *Code, pos stmt.Loc)
		BlockEnd(c *Code, pos stmt.Loc)
		Coverage(c *Code, pos stmt.Loc)
		Counter(c *Code, s stmt.Stmt)
	}

	// Model is an exception lowering strategy.
	Model interface {
		Name() string
		TryCatch(ctx context.Context, c *Code, x *stmt.TryCatch) error
	}

	Lowerer struct {
		Exprs   Exprs
		Types   Types
		Runtime Runtime
		Hooks   Hooks

		EH Model
	}

	// Code is the per-function lowering context. One Code per function,
	// no state survives between functions.
	Code struct {
		*Lowerer

		Func *ir.Func

		bb    *ir.Block
		entry *ir.Block

		scopes scopeStack
		labels labelTable

		switches []*switchCtx

		retBlock ir.Label
		retSlot  ir.Expr
		ehSlot   ir.Expr

		rt map[string]ir.Expr
	}

	NopHooks struct{}
)

const (
	RTThrow       = "throw"
	RTEnterCatch  = "enterCatch"
	RTSwitchError = "switchError"
	RTSwitchStr   = "switchString"
)

func New(ex Exprs, tp Types, rt Runtime, eh Model) *Lowerer {
	return &Lowerer{
		Exprs:   ex,
		Types:   tp,
		Runtime: rt,
		Hooks:   NopHooks{},
		EH:      eh,
	}
}

// Func lowers one function body into a fresh block graph.
func (l *Lowerer) Func(ctx context.Context, fd *stmt.Func) (f *ir.Func, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "lower function", "name", fd.Name, "model", l.EH.Name())
	defer tr.Finish("err", &err)

	f = &ir.Func{
		Name: fd.Name,
	}

	c := &Code{
		Lowerer: l,
		Func:    f,

		retBlock: ir.None,
		retSlot:  ir.None,
		ehSlot:   ir.None,

		rt: map[string]ir.Expr{},
	}

	c.entry = f.AddBlock("entry")
	c.bb = c.entry

	err = c.stmt(ctx, fd.Body)
	if err != nil {
		return nil, errors.Wrap(err, "body")
	}

	if !c.Terminated() {
		c.terminate(ir.Ret{Expr: ir.None})
	}

	err = c.labels.finish()
	if err != nil {
		return nil, err
	}

	if d := c.scopes.CleanupDepth(); d != 0 {
		panic(d)
	}

	if tlog.If("lower") {
		tr.Printw("function lowered", "name", f.Name, "blocks", len(f.Blocks))
	}

	return f, nil
}

func (NopHooks) StopPoint(c *Code, pos stmt.Loc)  {}
func (NopHooks) BlockStart(c *Code, pos stmt.Loc) {}
func (NopHooks) BlockEnd(c *Code, pos stmt.Loc)   {}
func (NopHooks) Coverage(c *Code, pos stmt.Loc)   {}
func (NopHooks) Counter(c *Code, s stmt.Stmt)     {}
