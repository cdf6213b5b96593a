package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cognicore/graphmind/pkg/graphmind"
	"github.com/cognicore/graphmind/pkg/graphmind/aggregate"
	"github.com/cognicore/graphmind/pkg/graphmind/analytics"
	"github.com/cognicore/graphmind/pkg/graphmind/answer"
	"github.com/cognicore/graphmind/pkg/graphmind/concept"
	"github.com/cognicore/graphmind/pkg/graphmind/config"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
)

var (
	patternPath string
	materialize bool
	limit       int

	pathFrom string
	pathTo   string
	pathIn   []string

	aggOp  string
	aggVar string
)

// queryCmd answers a pattern document
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Answer a pattern, derived facts included",
	Long: `Reads a query document and prints one line per answer.

Query document:
  match:
    - isa: {var: x, type: person}
    - rel: {type: resides, vars: [x, y]}
  select: [x, y]`,
	RunE: runQuery,
}

// pathCmd finds a shortest path between two instances
var pathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print a shortest path between two instances",
	RunE:  runPath,
}

// rulesCmd validates and lists the loaded rules
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Validate and list the inference rules of the knowledge documents",
	RunE:  runRules,
}

// aggregateCmd folds the answers of a pattern
var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Aggregate the values a variable takes over the answers of a pattern",
	Long:  "Operators: count, min, max, sum, mean, median.",
	RunE:  runAggregate,
}

func init() {
	queryCmd.Flags().StringVarP(&patternPath, "pattern", "p", "", "Query document (required)")
	queryCmd.Flags().BoolVar(&materialize, "materialize", false, "Persist derived relations")
	queryCmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of answers (0 = all)")
	_ = queryCmd.MarkFlagRequired("pattern")

	pathCmd.Flags().StringVar(&pathFrom, "from", "", "Source instance id")
	pathCmd.Flags().StringVar(&pathTo, "to", "", "Destination instance id")
	pathCmd.Flags().StringSliceVar(&pathIn, "in", nil, "Relation types to traverse")

	aggregateCmd.Flags().StringVarP(&patternPath, "pattern", "p", "", "Query document (required)")
	aggregateCmd.Flags().StringVar(&aggOp, "op", "count", "Aggregate operator")
	aggregateCmd.Flags().StringVar(&aggVar, "var", "", "Variable to aggregate")
	_ = aggregateCmd.MarkFlagRequired("pattern")
}

func loadPattern() (*pattern.Pattern, error) {
	q, err := config.LoadQuery(patternPath)
	if err != nil {
		return nil, fmt.Errorf("load query: %w", err)
	}
	return q.Pattern()
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	p, err := loadPattern()
	if err != nil {
		return err
	}
	g, err := open(ctx)
	if err != nil {
		return err
	}
	defer g.Close()

	res, err := g.Query(ctx, p, graphmind.QueryOptions{Materialize: materialize, Limit: limit})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, a := range res.Answers.Answers() {
		fmt.Fprintln(out, formatAnswer(a, res.Vars))
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d answers, %d iterations, %d materialized\n",
		res.Answers.Len(), res.Stats.Iterations, res.Stats.Materialized)
	return nil
}

func runPath(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	g, err := open(ctx)
	if err != nil {
		return err
	}
	defer g.Close()

	path, ok, err := g.Path(ctx, analytics.PathQuery{
		From: concept.ID(pathFrom),
		To:   concept.ID(pathTo),
		In:   pathIn,
	})
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "no path")
		return nil
	}
	steps := make([]string, len(path))
	for i, c := range path {
		steps[i] = c.String()
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.Join(steps, " -> "))
	return nil
}

func runRules(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	g, err := open(ctx)
	if err != nil {
		return err
	}
	defer g.Close()

	for _, r := range g.Rules().Rules() {
		fmt.Fprintln(cmd.OutOrStdout(), r.String())
	}
	return nil
}

func runAggregate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	p, err := loadPattern()
	if err != nil {
		return err
	}
	g, err := open(ctx)
	if err != nil {
		return err
	}
	defer g.Close()

	v, ok, err := g.Aggregate(ctx, p, aggregate.Op(aggOp), pattern.Variable(aggVar))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "no value")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

func formatAnswer(a answer.Answer, vars []pattern.Variable) string {
	parts := make([]string, 0, len(vars))
	for _, v := range vars {
		if c, ok := a[v]; ok {
			parts = append(parts, fmt.Sprintf("%s=%s", v, c))
		}
	}
	return strings.Join(parts, " ")
}
