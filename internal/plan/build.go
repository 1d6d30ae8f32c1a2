package plan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hanpama/gqlplan/internal/expr"
)

// MaterializedName names the parameter the post expression reads the pushdown result from.
const MaterializedName = "r"

// Plan is a compiled query.
//
// Pushdown reads from Root and is executed by the data source. When Services is empty
// Pushdown is the whole query. Otherwise Post computes the response in memory from
// the materialized pushdown result bound to Materialized, calling the services.
type Plan struct {
	Root         *expr.Param
	Pushdown     expr.Expr
	Materialized *expr.Param
	Post         expr.Expr
	Services     []string
	Constants    map[*expr.Param]any
}

// TwoPass reports whether the plan has an in-memory second pass.
func (p *Plan) TwoPass() bool { return p.Post != nil }

func (p *Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pushdown: %s\n", expr.String(p.Pushdown))
	if p.TwoPass() {
		fmt.Fprintf(&b, "post(%s): %s\n", p.Materialized.Name, expr.String(p.Post))
		fmt.Fprintf(&b, "services: %s\n", strings.Join(p.Services, ", "))
	}
	return b.String()
}

// Build compiles a query root. A query without services compiles in a single full pass;
// otherwise the pushdown pass is compiled first and its result type becomes the source
// of the full pass.
func (c *Compiler) Build(root *Object) (*Plan, error) {
	if root == nil || !root.isRoot() {
		return nil, errors.New("build: selection is not a query root")
	}
	plan := &Plan{Root: root.Param, Services: RequiredServices(root)}
	ctx := Context{Expr: root.Param}

	if len(plan.Services) == 0 {
		res, err := c.compile(root, Full, ctx, false)
		if err != nil {
			return nil, err
		}
		plan.Pushdown, plan.Constants = res.Expr, res.Constants
		return plan, nil
	}

	first, err := c.compile(root, PushdownOnly, ctx, true)
	if err != nil {
		return nil, err
	}
	plan.Pushdown = first.Expr
	plan.Materialized = expr.NewParam(MaterializedName, first.Expr.Type())

	post, err := c.compile(root, Full, Context{Expr: plan.Materialized, Materialized: true}, false)
	if err != nil {
		return nil, err
	}
	plan.Post = post.Expr
	plan.Constants = mergeConstants(first.Constants, post.Constants)
	return plan, nil
}
