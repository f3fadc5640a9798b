package lower_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/lower/compiler/expr"
	"github.com/slowlang/lower/compiler/ir"
	"github.com/slowlang/lower/compiler/lower"
	"github.com/slowlang/lower/compiler/stmt"
)

func intSwitch(cond stmt.Expr, withDefault bool, vals ...stmt.Expr) *stmt.Switch {
	names := []string{"one", "two", "three", "four"}

	cases := make([]*stmt.Case, len(vals))
	body := make([]stmt.Stmt, 0, len(vals)+1)

	for i, v := range vals {
		cases[i] = &stmt.Case{X: v, S: block(mark(names[i]), &stmt.Break{})}
		body = append(body, cases[i])
	}

	var def *stmt.Default
	if withDefault {
		def = &stmt.Default{S: block(mark("default"), &stmt.Break{})}
		body = append(body, def)
	}

	return &stmt.Switch{
		Cond:     cond,
		CondType: expr.Int{},
		Body:     block(body...),
		Cases:    cases,
		Default:  def,
	}
}

func TestSwitchTableDispatch(t *testing.T) {
	sw := intSwitch(expr.Imm{V: 5}, true, expr.Imm{V: 1}, expr.Imm{V: 2}, expr.Imm{V: 5})

	f := lowerFunc(t, lower.LandingPads{}, sw)
	m := run(t, f)

	assert.Equal(t, []string{"three"}, m.trace)

	terms := 0
	for _, bb := range f.Blocks {
		if bb.Term == ir.None {
			continue
		}
		if _, ok := f.Exprs[bb.Term].(ir.Switch); ok {
			terms++
		}
	}

	assert.Equal(t, 1, terms, "constant cases should dispatch through one multiway branch")
}

func TestSwitchNoMatchFallsToDefault(t *testing.T) {
	sw := intSwitch(expr.Imm{V: 9}, true, expr.Imm{V: 1}, expr.Imm{V: 2})

	m := run(t, lowerFunc(t, lower.LandingPads{}, sw))

	assert.Equal(t, []string{"default"}, m.trace)
}

func TestSwitchNoMatchNoDefaultFallsThrough(t *testing.T) {
	sw := intSwitch(expr.Imm{V: 9}, false, expr.Imm{V: 1}, expr.Imm{V: 2})

	m := run(t, lowerFunc(t, lower.LandingPads{}, sw))

	assert.Empty(t, m.trace)
	assert.True(t, m.returned)
}

func TestSwitchLinearFallback(t *testing.T) {
	body := block(
		assign("x", expr.Imm{V: 2}),
		intSwitch(expr.Imm{V: 2}, true, expr.Imm{V: 1}, expr.Var{Name: "x"}, expr.Imm{V: 5}),
	)

	f := lowerFunc(t, lower.LandingPads{}, body)
	m := run(t, f)

	assert.Equal(t, []string{"two"}, m.trace)

	for _, bb := range f.Blocks {
		if bb.Term == ir.None {
			continue
		}
		if _, ok := f.Exprs[bb.Term].(ir.Switch); ok {
			t.Errorf("runtime case value must not use the table strategy")
		}
	}
}

func TestSwitchFallthrough(t *testing.T) {
	ca := &stmt.Case{X: expr.Imm{V: 1}, S: mark("one")}
	cb := &stmt.Case{X: expr.Imm{V: 2}, S: block(mark("two"), &stmt.Break{})}

	sw := &stmt.Switch{
		Cond:     expr.Imm{V: 1},
		CondType: expr.Int{},
		Body:     block(ca, cb),
		Cases:    []*stmt.Case{ca, cb},
	}

	m := run(t, lowerFunc(t, lower.LandingPads{}, sw))

	assert.Equal(t, []string{"one", "two"}, m.trace)
}

func TestStringSwitch(t *testing.T) {
	ca := &stmt.Case{X: expr.SImm{S: "b"}, S: block(mark("b"), &stmt.Break{})}
	cb := &stmt.Case{X: expr.SImm{S: "a"}, S: block(mark("a"), &stmt.Break{})}
	cc := &stmt.Case{X: expr.SImm{S: "c"}, S: block(mark("c"), &stmt.Break{})}
	def := &stmt.Default{S: block(mark("default"), &stmt.Break{})}

	sw := &stmt.Switch{
		Cond:     expr.SImm{S: "b"},
		CondType: expr.Str{},
		Body:     block(ca, cb, cc, def),
		Cases:    []*stmt.Case{ca, cb, cc},
		Default:  def,
	}

	f := lowerFunc(t, lower.LandingPads{}, sw)

	var table ir.StrTable
	found := false

	for _, x := range f.Exprs {
		if tab, ok := x.(ir.StrTable); ok {
			table, found = tab, true
		}
	}

	require.True(t, found, "no string table built")
	assert.Equal(t, []string{"a", "b", "c"}, table.Strs)

	m := run(t, f)
	assert.Equal(t, []string{"b"}, m.marks())
}

func TestStringSwitchNoMatch(t *testing.T) {
	ca := &stmt.Case{X: expr.SImm{S: "a"}, S: block(mark("a"), &stmt.Break{})}
	def := &stmt.Default{S: block(mark("default"), &stmt.Break{})}

	sw := &stmt.Switch{
		Cond:     expr.SImm{S: "z"},
		CondType: expr.Str{},
		Body:     block(ca, def),
		Cases:    []*stmt.Case{ca},
		Default:  def,
	}

	m := run(t, lowerFunc(t, lower.LandingPads{}, sw))

	assert.Equal(t, []string{"default"}, m.marks())
}

func TestDuplicateCaseStringsRejected(t *testing.T) {
	ca := &stmt.Case{X: expr.SImm{S: "a"}, S: block(mark("a1"), &stmt.Break{})}
	cb := &stmt.Case{X: expr.SImm{S: "a"}, S: block(mark("a2"), &stmt.Break{})}

	sw := &stmt.Switch{
		Cond:     expr.SImm{S: "a"},
		CondType: expr.Str{},
		Body:     block(ca, cb),
		Cases:    []*stmt.Case{ca, cb},
	}

	_, err := newLowerer(lower.LandingPads{}).Func(context.Background(), &stmt.Func{Name: "broken", Body: sw})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate case string")
}

func TestGotoCase(t *testing.T) {
	var c2 *stmt.Case

	c2 = &stmt.Case{X: expr.Imm{V: 2}, S: block(mark("two"), &stmt.Break{})}
	c1 := &stmt.Case{X: expr.Imm{V: 1}, S: block(mark("one"), &stmt.GotoCase{Target: c2})}

	sw := &stmt.Switch{
		Cond:     expr.Imm{V: 1},
		CondType: expr.Int{},
		Body:     block(c1, c2),
		Cases:    []*stmt.Case{c1, c2},
	}

	m := run(t, lowerFunc(t, lower.LandingPads{}, sw))

	assert.Equal(t, []string{"one", "two"}, m.trace)
}

func TestGotoCaseForward(t *testing.T) {
	// target case is not lowered yet when the goto appears, a placeholder
	// block stands in for it
	c3 := &stmt.Case{X: expr.Imm{V: 3}, S: block(mark("three"), &stmt.Break{})}
	c1 := &stmt.Case{X: expr.Imm{V: 1}, S: &stmt.GotoCase{Target: c3}}
	c2 := &stmt.Case{X: expr.Imm{V: 2}, S: block(mark("two"), &stmt.Break{})}

	sw := &stmt.Switch{
		Cond:     expr.Imm{V: 1},
		CondType: expr.Int{},
		Body:     block(c1, c2, c3),
		Cases:    []*stmt.Case{c1, c2, c3},
	}

	m := run(t, lowerFunc(t, lower.LandingPads{}, sw))

	assert.Equal(t, []string{"three"}, m.trace)
}

func TestGotoDefault(t *testing.T) {
	def := &stmt.Default{S: block(mark("default"), &stmt.Break{})}
	c1 := &stmt.Case{X: expr.Imm{V: 1}, S: block(mark("one"), &stmt.GotoDefault{})}

	sw := &stmt.Switch{
		Cond:     expr.Imm{V: 1},
		CondType: expr.Int{},
		Body:     block(c1, def),
		Cases:    []*stmt.Case{c1},
		Default:  def,
	}

	m := run(t, lowerFunc(t, lower.LandingPads{}, sw))

	assert.Equal(t, []string{"one", "default"}, m.trace)
}

func TestGotoCaseRunsCleanups(t *testing.T) {
	c2 := &stmt.Case{X: expr.Imm{V: 2}, S: block(mark("two"), &stmt.Break{})}
	c1 := &stmt.Case{X: expr.Imm{V: 1}, S: &stmt.TryFinally{
		Body:    block(mark("one"), &stmt.GotoCase{Target: c2}),
		Finally: mark("fin"),
	}}

	sw := &stmt.Switch{
		Cond:     expr.Imm{V: 1},
		CondType: expr.Int{},
		Body:     block(c1, c2),
		Cases:    []*stmt.Case{c1, c2},
	}

	m := run(t, lowerFunc(t, lower.LandingPads{}, sw))

	assert.Equal(t, []string{"one", "fin", "two"}, m.trace)
}

func TestSwitchErrorTraps(t *testing.T) {
	m := run(t, lowerFunc(t, lower.LandingPads{}, &stmt.SwitchError{}))

	assert.Equal(t, []string{"switcherror"}, m.trace)
	assert.False(t, m.returned)
}

func TestGotoCaseOutsideSwitchFails(t *testing.T) {
	_, err := newLowerer(lower.LandingPads{}).Func(context.Background(), &stmt.Func{
		Name: "broken",
		Body: &stmt.GotoCase{Target: &stmt.Case{}},
	})
	require.Error(t, err)
}
