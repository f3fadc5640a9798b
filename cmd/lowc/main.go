package main

import (
	"context"
	"fmt"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/lower/compiler"
	"github.com/slowlang/lower/compiler/expr"
	"github.com/slowlang/lower/compiler/lower"
	"github.com/slowlang/lower/compiler/stmt"
)

func main() {
	demoCmd := &cli.Command{
		Name:        "demo",
		Description: "lower built-in sample functions and print the block graphs",
		Action:      demoAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("model", "landingpad", "exception model: landingpad or funclet"),
		},
	}

	app := &cli.Command{
		Name:        "lowc",
		Description: "lowc lowers structured statements into block graphs",
		Commands: []*cli.Command{
			demoCmd,
		},
		Flags: []*cli.Flag{
			cli.NewFlag("verbosity,v", "", "tlog verbosity topics"),
			cli.HelpFlag,
		},
		Before: before,
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func before(c *cli.Command) error {
	tlog.SetVerbosity(c.String("v"))

	return nil
}

func demoAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	var eh lower.Model

	switch m := c.String("model"); m {
	case "landingpad":
		eh = lower.LandingPads{}
	case "funclet":
		eh = lower.Funclets{}
	default:
		return errors.New("unknown exception model: %v", m)
	}

	env := expr.NewEnv()
	l := lower.New(env, env, env, eh)

	obj, err := compiler.Lower(ctx, l, samples()...)
	if err != nil {
		return errors.Wrap(err, "lower")
	}

	fmt.Printf("%s", obj)

	return nil
}

func samples() []*stmt.Func {
	count := &stmt.Func{
		Name: "count",
		Body: &stmt.Compound{Stmts: []stmt.Stmt{
			&stmt.Exp{X: expr.Bin{Op: "=", L: expr.Var{Name: "i"}, R: expr.Imm{V: 0}}},
			&stmt.While{
				Cond: expr.Bin{Op: "<", L: expr.Var{Name: "i"}, R: expr.Imm{V: 10}},
				Body: &stmt.Compound{Stmts: []stmt.Stmt{
					&stmt.If{
						Cond: expr.Bin{Op: "==", L: expr.Var{Name: "i"}, R: expr.Imm{V: 7}},
						Then: &stmt.Break{},
					},
					&stmt.Exp{X: expr.Bin{Op: "=", L: expr.Var{Name: "i"}, R: expr.Bin{Op: "+", L: expr.Var{Name: "i"}, R: expr.Imm{V: 1}}}},
				}},
			},
			&stmt.Return{X: expr.Var{Name: "i"}},
		}},
	}

	guarded := &stmt.Func{
		Name: "guarded",
		Body: &stmt.TryFinally{
			Body: &stmt.Compound{Stmts: []stmt.Stmt{
				&stmt.Exp{X: expr.Mark{Name: "body"}},
				&stmt.Return{X: expr.Imm{V: 1}},
			}},
			Finally: &stmt.Exp{X: expr.Mark{Name: "finally"}},
		},
	}

	dispatch := &stmt.Func{
		Name: "dispatch",
		Body: func() stmt.Stmt {
			ca := &stmt.Case{X: expr.SImm{S: "a"}, S: &stmt.Compound{Stmts: []stmt.Stmt{&stmt.Exp{X: expr.Mark{Name: "a"}}, &stmt.Break{}}}}
			cb := &stmt.Case{X: expr.SImm{S: "b"}, S: &stmt.Compound{Stmts: []stmt.Stmt{&stmt.Exp{X: expr.Mark{Name: "b"}}, &stmt.Break{}}}}
			def := &stmt.Default{S: &stmt.Compound{Stmts: []stmt.Stmt{&stmt.Exp{X: expr.Mark{Name: "default"}}, &stmt.Break{}}}}

			return &stmt.Switch{
				Cond:     expr.SImm{S: "b"},
				CondType: expr.Str{},
				Body:     &stmt.Compound{Stmts: []stmt.Stmt{ca, cb, def}},
				Cases:    []*stmt.Case{ca, cb},
				Default:  def,
			}
		}(),
	}

	handlers := &stmt.Func{
		Name: "handlers",
		Body: &stmt.TryCatch{
			Body: &stmt.Compound{Stmts: []stmt.Stmt{
				&stmt.Exp{X: expr.Mark{Name: "try"}},
				&stmt.Throw{X: expr.Imm{V: 1}},
			}},
			Catches: []*stmt.Catch{
				{Type: expr.Class{Name: "IOError"}, Var: &stmt.Var{Name: "e", Type: expr.Class{Name: "IOError"}}, Body: &stmt.Exp{X: expr.Mark{Name: "io"}}},
				{Body: &stmt.Exp{X: expr.Mark{Name: "any"}}},
			},
		},
	}

	return []*stmt.Func{count, guarded, dispatch, handlers}
}
