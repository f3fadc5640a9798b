package lower

import (
	"tlog.app/go/errors"

	"github.com/slowlang/lower/compiler/ir"
)

// NewBlock creates a block without making it current.
func (c *Code) NewBlock(name string) *ir.Block {
	return c.Func.AddBlock(name)
}

// OpenBlock creates a block and makes it current. It is used after every
// terminator so lowering always has a block to append to, even a dead one.
func (c *Code) OpenBlock(name string) *ir.Block {
	b := c.Func.AddBlock(name)
	c.bb = b

	return b
}

func (c *Code) SetBlock(b *ir.Block) { c.bb = b }

func (c *Code) Block() *ir.Block { return c.bb }

func (c *Code) Terminated() bool { return c.bb.Term != ir.None }

// Add appends an instruction to the current block.
func (c *Code) Add(x any) ir.Expr {
	return c.addIn(c.bb, x)
}

func (c *Code) addIn(b *ir.Block, x any) ir.Expr {
	if b.Term != ir.None {
		panic("append to terminated block")
	}
	if ir.IsTerm(x) {
		panic(x)
	}

	id := c.Func.Alloc(x)
	b.Code = append(b.Code, id)

	return id
}

func (c *Code) terminate(x any) ir.Expr {
	return c.termIn(c.bb, x)
}

func (c *Code) termIn(b *ir.Block, x any) ir.Expr {
	if b.Term != ir.None {
		panic("block terminated twice")
	}
	if !ir.IsTerm(x) {
		panic(x)
	}

	id := c.Func.Alloc(x)
	b.Term = id

	return id
}

// jump branches to b unless the current block already ended.
func (c *Code) jump(b *ir.Block) {
	if c.Terminated() {
		return
	}

	c.terminate(ir.B{Label: b.Label})
}

// Alloca reserves a stack slot. Slots live in the entry block.
func (c *Code) Alloca(name string, t ir.Type) ir.Expr {
	id := c.Func.Alloc(ir.Alloca{Name: name, Type: t})
	c.entry.Code = append(c.entry.Code, id)

	return id
}

func (c *Code) constant(x any) ir.Expr {
	return c.Func.Alloc(x)
}

// Call emits a call. While cleanups or catches are live the call becomes
// an invoke with an unwind edge to the landing-pad chain, and lowering
// continues in the normal successor.
func (c *Code) Call(fn ir.Expr, in ...ir.Expr) ir.Expr {
	if !c.scopes.unwinding() {
		return c.Add(ir.Call{Func: fn, In: in})
	}

	pad := c.scopes.landingPad(c)
	next := c.NewBlock("invoke.cont")

	id := c.terminate(ir.Invoke{
		Func:   fn,
		In:     in,
		Normal: next.Label,
		Unwind: pad,
	})

	c.SetBlock(next)

	return id
}

func (c *Code) runtime(name string) (ir.Expr, error) {
	if id, ok := c.rt[name]; ok {
		return id, nil
	}

	sym, err := c.Runtime.Lookup(name)
	if err != nil {
		return ir.None, errors.Wrap(err, "runtime %v", name)
	}

	id := c.Func.Alloc(ir.RTFunc(sym))
	c.rt[name] = id

	return id, nil
}

// EHSlot is the slot the in-flight exception pointer is stored into by
// landing pads and loaded from when entering a catch.
func (c *Code) EHSlot() ir.Expr {
	if c.ehSlot == ir.None {
		c.ehSlot = c.Alloca("eh.ptr", 0)
	}

	return c.ehSlot
}
