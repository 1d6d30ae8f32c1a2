package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// String renders e in a compact method-chain notation, e.g.
//
//	ctx.people.Where(x => (x.age > 18)).Select(p => new {id = p.id})
func String(e Expr) string {
	var b strings.Builder
	write(&b, e)
	return b.String()
}

func write(b *strings.Builder, e Expr) {
	switch n := e.(type) {
	case nil:
		b.WriteString("<empty>")
	case *Param:
		b.WriteString(n.Name)
	case *Const:
		writeConst(b, n.Value)
	case *Member:
		write(b, n.X)
		b.WriteByte('.')
		b.WriteString(n.Name)
	case *Call:
		if n.Service != "" {
			b.WriteByte('@')
			b.WriteString(n.Service)
			b.WriteByte('.')
		}
		b.WriteString(n.Method)
		writeArgs(b, n.Args)
	case *Unary:
		b.WriteString(n.Op.String())
		write(b, n.X)
	case *Binary:
		b.WriteByte('(')
		write(b, n.X)
		fmt.Fprintf(b, " %s ", n.Op)
		write(b, n.Y)
		b.WriteByte(')')
	case *Cond:
		b.WriteByte('(')
		write(b, n.Test)
		b.WriteString(" ? ")
		write(b, n.Then)
		b.WriteString(" : ")
		write(b, n.Else)
		b.WriteByte(')')
	case *Lambda:
		b.WriteString(n.Param.Name)
		b.WriteString(" => ")
		write(b, n.Body)
	case *Where:
		write(b, n.X)
		b.WriteString(".Where(")
		write(b, n.Pred)
		b.WriteByte(')')
	case *OrderBy:
		write(b, n.X)
		b.WriteString(".OrderBy(")
		for i, k := range n.Keys {
			if i > 0 {
				b.WriteString(", ")
			}
			write(b, k.Key)
			if k.Desc {
				b.WriteString(" desc")
			}
		}
		b.WriteByte(')')
	case *Select:
		write(b, n.X)
		b.WriteString(".Select(")
		write(b, n.Fn)
		b.WriteByte(')')
	case *New:
		b.WriteString("new {")
		for i, f := range n.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(" = ")
			write(b, f.X)
		}
		b.WriteByte('}')
	case *Take:
		write(b, n.X)
		b.WriteString(".Take(")
		write(b, n.N)
		b.WriteByte(')')
	case *Skip:
		write(b, n.X)
		b.WriteString(".Skip(")
		write(b, n.N)
		b.WriteByte(')')
	case *ToList:
		write(b, n.X)
		b.WriteString(".ToList()")
	default:
		fmt.Fprintf(b, "<%T>", e)
	}
}

func writeArgs(b *strings.Builder, args []Expr) {
	b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		write(b, a)
	}
	b.WriteByte(')')
}

func writeConst(b *strings.Builder, v any) {
	switch v := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		b.WriteString(strconv.Quote(v))
	case fmt.Stringer:
		b.WriteString(v.String())
	default:
		fmt.Fprintf(b, "%v", v)
	}
}
