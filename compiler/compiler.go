package compiler

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/lower/compiler/format"
	"github.com/slowlang/lower/compiler/lower"
	"github.com/slowlang/lower/compiler/stmt"
)

// Lower runs the statement trees through the lowering engine and renders
// the resulting block graphs.
func Lower(ctx context.Context, l *lower.Lowerer, fns ...*stmt.Func) (obj []byte, err error) {
	for i, fd := range fns {
		f, err := l.Func(ctx, fd)
		if err != nil {
			return nil, errors.Wrap(err, "lower %v", fd.Name)
		}

		tlog.SpanFromContext(ctx).Printw("function lowered", "name", f.Name, "blocks", len(f.Blocks))

		if i != 0 {
			obj = append(obj, '\n')
		}

		obj, err = format.Func(ctx, obj, f)
		if err != nil {
			return nil, errors.Wrap(err, "format %v", fd.Name)
		}
	}

	return obj, nil
}
