package stmt

type (
	Loc struct {
		File string
		Line int
	}

	// Expr is an opaque expression handle. The lowering engine never looks
	// inside, it hands expressions to the expression lowering collaborator.
	Expr interface{}

	// Type is an opaque source type handle, queried through type predicates.
	Type interface{}

	Dir int

	Stmt interface {
		Pos() Loc

		stmtNode()
	}

	Var struct {
		Name   string
		Type   Type
		ByRef  bool
		Nested bool
	}

	Func struct {
		Name string
		Ret  Type
		Body Stmt

		Loc
	}

	Compound struct {
		Stmts []Stmt

		Loc
	}

	Exp struct {
		X Expr

		Loc
	}

	Return struct {
		X Expr

		Loc
	}

	If struct {
		Cond Expr
		Then Stmt
		Else Stmt

		Loc
	}

	Scope struct {
		S Stmt

		Loc
	}

	While struct {
		Cond Expr
		Body Stmt

		Loc
	}

	DoWhile struct {
		Body Stmt
		Cond Expr

		Loc
	}

	For struct {
		Init Stmt
		Cond Expr
		Inc  Expr
		Body Stmt

		Loc
	}

	Foreach struct {
		Op    Dir
		Key   *Var
		Value *Var
		Aggr  Expr
		Body  Stmt

		Loc
	}

	ForeachRange struct {
		Op  Dir
		Key *Var
		Lwr Expr
		Upr Expr

		Body Stmt

		Loc
	}

	// Unrolled is a fixed list of statements acting as a loop with no
	// back edge. break and continue inside still target it.
	Unrolled struct {
		Stmts []Stmt

		Loc
	}

	Break struct {
		Label string

		Loc
	}

	Continue struct {
		Label string

		Loc
	}

	TryFinally struct {
		Body    Stmt
		Finally Stmt

		Loc
	}

	TryCatch struct {
		Body    Stmt
		Catches []*Catch

		Loc
	}

	Catch struct {
		Type Type // nil means catch-all
		Var  *Var
		Body Stmt

		Loc
	}

	Throw struct {
		X Expr

		Loc
	}

	Switch struct {
		Cond     Expr
		CondType Type
		Body     Stmt

		Cases   []*Case
		Default *Default

		Loc
	}

	Case struct {
		X Expr
		S Stmt

		Loc
	}

	Default struct {
		S Stmt

		Loc
	}

	Label struct {
		Name string
		S    Stmt

		Loc
	}

	Goto struct {
		Label string

		Loc
	}

	GotoDefault struct {
		Loc
	}

	GotoCase struct {
		Target *Case

		Loc
	}

	With struct {
		Var  *Var
		X    Expr
		Body Stmt

		Loc
	}

	// SwitchError is a trap the frontend may supply for a no-match switch.
	SwitchError struct {
		Loc
	}

	Asm struct {
		Code string

		Loc
	}

	Import struct {
		Loc
	}
)

const (
	Forward Dir = iota
	Reverse
)

func (l Loc) Pos() Loc { return l }

func (Loc) stmtNode() {}
