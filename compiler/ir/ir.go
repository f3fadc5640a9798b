package ir

type (
	Expr  int
	Type  int
	Label int
	Cond  string

	Func struct {
		Name string

		Exprs  []any
		Blocks []*Block
	}

	// Block is an ordered list of instructions plus at most one terminator.
	// It is open for appending until Term is set.
	Block struct {
		Label Label
		Name  string

		Code []Expr
		Term Expr
	}
)

// values

type (
	Imm int64
	Str string

	// RTFunc is a resolved runtime entry point.
	RTFunc string

	// TypeSym is a type identification symbol used to probe thrown objects.
	TypeSym string

	Alloca struct {
		Name string
		Type Type
	}

	Load struct {
		Slot Expr
	}

	Store struct {
		Slot Expr
		Val  Expr
	}

	Add struct {
		L, R Expr
	}

	Sub struct {
		L, R Expr
	}

	// Cmp conditions are "<", ">", "<=", ">=", "==", "!=" and the
	// unsigned variants "u<" and "u>".
	Cmp struct {
		Cond Cond
		L, R Expr
	}

	Len struct {
		Aggr Expr
	}

	Ptr struct {
		Aggr Expr
	}

	Index struct {
		Base Expr
		Idx  Expr
	}

	Call struct {
		Func Expr
		In   []Expr
	}

	// StrTable is a sorted table of case strings for runtime dispatch.
	StrTable struct {
		Strs []string
	}

	LandingPad struct{}

	// Match tests the in-flight exception against a type symbol.
	Match struct {
		Pad Expr
		Sym Expr
	}

	// CatchPad is the dispatch instruction opening a funclet catch body.
	CatchPad struct {
		Switch Label
		Sym    Expr
		Slot   Expr
	}

	Asm struct {
		Code string
	}
)

// terminators

type (
	B struct {
		Label Label
	}

	BCond struct {
		Expr Expr
		Then Label
		Else Label
	}

	SwitchCase struct {
		Val   Expr
		Label Label
	}

	Switch struct {
		Expr    Expr
		Cases   []SwitchCase
		Default Label
	}

	Ret struct {
		Expr Expr
	}

	Unreachable struct{}

	Invoke struct {
		Func Expr
		In   []Expr

		Normal Label
		Unwind Label
	}

	CatchSwitch struct {
		Handlers []Label
		Unwind   Label
	}

	CatchRet struct {
		Pad Expr
		To  Label
	}

	Resume struct {
		Pad Expr
	}
)

const None = -1

func (f *Func) Alloc(x any) Expr {
	id := Expr(len(f.Exprs))
	f.Exprs = append(f.Exprs, x)

	return id
}

func (f *Func) AddBlock(name string) *Block {
	b := &Block{
		Label: Label(len(f.Blocks)),
		Name:  name,
		Term:  None,
	}

	f.Blocks = append(f.Blocks, b)

	return b
}

func (f *Func) Block(l Label) *Block { return f.Blocks[l] }

func IsTerm(x any) bool {
	switch x.(type) {
	case B, BCond, Switch, Ret, Unreachable, Invoke, CatchSwitch, CatchRet, Resume:
		return true
	}

	return false
}

// Successors lists the blocks a terminator may transfer control to.
func Successors(x any) []Label {
	switch x := x.(type) {
	case B:
		return []Label{x.Label}
	case BCond:
		return []Label{x.Then, x.Else}
	case Switch:
		l := make([]Label, 0, len(x.Cases)+1)

		for _, c := range x.Cases {
			l = append(l, c.Label)
		}

		return append(l, x.Default)
	case Invoke:
		if x.Unwind != None {
			return []Label{x.Normal, x.Unwind}
		}

		return []Label{x.Normal}
	case CatchSwitch:
		l := append([]Label{}, x.Handlers...)

		if x.Unwind != None {
			l = append(l, x.Unwind)
		}

		return l
	case CatchRet:
		return []Label{x.To}
	}

	return nil
}
