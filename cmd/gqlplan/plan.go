package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hanpama/gqlplan/internal/expr"
	"github.com/hanpama/gqlplan/internal/language"
	"github.com/hanpama/gqlplan/internal/plan"
	"github.com/hanpama/gqlplan/internal/source/sqlsource"
)

type planOptions struct {
	*rootOptions
	query     string
	file      string
	operation string
	variables string
	sql       string
}

func newPlanCommand(root *rootOptions) *cobra.Command {
	opts := &planOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the plan compiled for a query",
		Long: `Print the pushdown and post expressions compiled for a query. With --sql, the
SELECT statements a SQL source would run for the pushdown are printed too.

Example:
  gqlplan plan --schema schema.graphql -q '{ people(first: 2) { name } }'
  gqlplan plan -c gqlplan.yaml -f query.graphql --vars '{"n": 3}' --sql postgres`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlan(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "query text")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "file holding the query")
	cmd.Flags().StringVar(&opts.operation, "operation", "", "name of the operation to plan")
	cmd.Flags().StringVar(&opts.variables, "vars", "{}", "variables as a JSON object")
	cmd.Flags().StringVar(&opts.sql, "sql", "", "also print the SQL of the pushdown in this dialect (sqlite|postgres)")
	cmd.MarkFlagsMutuallyExclusive("query", "file")
	return cmd
}

func runPlan(cmd *cobra.Command, opts *planOptions) error {
	src := &language.Source{Name: "query", Input: opts.query}
	if opts.file != "" {
		sources, err := language.ReadSources(opts.file)
		if err != nil {
			return err
		}
		src = sources[0]
	}
	if src.Input == "" {
		return errors.New("a query is required: use --query or --file")
	}
	var vars map[string]any
	if err := json.Unmarshal([]byte(opts.variables), &vars); err != nil {
		return fmt.Errorf("vars: %w", err)
	}

	cfg, err := opts.load()
	if err != nil {
		return err
	}
	a, err := compiler(cfg)
	if err != nil {
		return err
	}
	doc, err := language.ParseQuerySource(src)
	if err != nil {
		return err
	}
	p, err := a.exec.Plan(cmd.Context(), doc, opts.operation, vars)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, p.String())
	if opts.sql == "" {
		return nil
	}
	d, err := sqlsource.DialectFor(opts.sql)
	if err != nil {
		return err
	}
	sqs, err := sqlsource.New(nil, d, a.schema, a.registry)
	if err != nil {
		return err
	}
	return printSQL(cmd, out, sqs, p)
}

// printSQL prints the statement of every root field of the pushdown.
func printSQL(cmd *cobra.Command, out io.Writer, src *sqlsource.Source, p *plan.Plan) error {
	n, ok := p.Pushdown.(*expr.New)
	if !ok {
		fmt.Fprintln(out, "sql: evaluated in memory")
		return nil
	}
	for _, f := range n.Fields {
		st, err := src.Translate(cmd.Context(), f.X, p.Root, p.Constants)
		switch {
		case errors.Is(err, sqlsource.ErrUnsupported):
			fmt.Fprintf(out, "sql %s: evaluated in memory (%v)\n", f.Name, err)
		case err != nil:
			return fmt.Errorf("%s: %w", f.Name, err)
		default:
			fmt.Fprintf(out, "sql %s: %s\n", f.Name, st.SQL)
			if len(st.Args) > 0 {
				fmt.Fprintf(out, "  args: %v\n", st.Args)
			}
		}
	}
	return nil
}
