// Package aggregate folds a stream of answers into a single value.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/cognicore/graphmind/pkg/graphmind/answer"
	"github.com/cognicore/graphmind/pkg/graphmind/concept"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
)

// Source is a forward-only sequence of answers. *reasoner.Stream is one.
type Source interface {
	Next() bool
	Answer() answer.Answer
	Err() error
}

// Op names an aggregate.
type Op string

const (
	OpCount  Op = "count"
	OpMin    Op = "min"
	OpMax    Op = "max"
	OpSum    Op = "sum"
	OpMean   Op = "mean"
	OpMedian Op = "median"
)

// Run applies op to the values bound to v. Count ignores v. ok is false
// when there is nothing to aggregate.
func Run(op Op, src Source, v pattern.Variable) (result any, ok bool, err error) {
	switch op {
	case OpCount:
		n, err := Count(src)
		return n, err == nil, err
	case OpMin:
		return Min(src, v)
	case OpMax:
		return Max(src, v)
	case OpSum:
		return Sum(src, v)
	case OpMean:
		return Mean(src, v)
	case OpMedian:
		return Median(src, v)
	}
	return nil, false, fmt.Errorf("aggregate %q: %w", op, internalerr.ErrInvalidInput)
}

// Count returns the number of answers.
func Count(src Source) (int, error) {
	n := 0
	for src.Next() {
		n++
	}
	return n, src.Err()
}

// Min returns the smallest value bound to v. Numbers compare numerically,
// strings lexically.
func Min(src Source, v pattern.Variable) (any, bool, error) {
	return extreme(src, v, func(c int) bool { return c < 0 })
}

// Max returns the largest value bound to v.
func Max(src Source, v pattern.Variable) (any, bool, error) {
	return extreme(src, v, func(c int) bool { return c > 0 })
}

func extreme(src Source, v pattern.Variable, better func(int) bool) (any, bool, error) {
	var best any
	found := false
	err := values(src, v, func(x any) error {
		if !found {
			best, found = x, true
			return nil
		}
		c, ok := concept.Compare(x, best)
		if !ok {
			return fmt.Errorf("cannot compare %v with %v: %w", x, best, internalerr.ErrInvalidInput)
		}
		if better(c) {
			best = x
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return best, found, nil
}

// Sum adds the numeric values bound to v. The result is an int64 when every
// value is an integer, a float64 otherwise.
func Sum(src Source, v pattern.Variable) (any, bool, error) {
	var isum int64
	var fsum float64
	floats, found := false, false
	err := values(src, v, func(x any) error {
		found = true
		switch n := x.(type) {
		case int64:
			isum += n
			fsum += float64(n)
		case float64:
			floats = true
			fsum += n
		default:
			return notNumeric(x)
		}
		return nil
	})
	if err != nil || !found {
		return nil, false, err
	}
	if floats {
		return fsum, true, nil
	}
	return isum, true, nil
}

// Mean is the arithmetic mean of the numeric values bound to v.
func Mean(src Source, v pattern.Variable) (float64, bool, error) {
	xs, err := numbers(src, v)
	if err != nil || len(xs) == 0 {
		return 0, false, err
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs)), true, nil
}

// Median is the middle numeric value bound to v, the mean of the two middle
// values for an even count.
func Median(src Source, v pattern.Variable) (float64, bool, error) {
	xs, err := numbers(src, v)
	if err != nil || len(xs) == 0 {
		return 0, false, err
	}
	sort.Float64s(xs)
	mid := len(xs) / 2
	if len(xs)%2 == 1 {
		return xs[mid], true, nil
	}
	return (xs[mid-1] + xs[mid]) / 2, true, nil
}

func numbers(src Source, v pattern.Variable) ([]float64, error) {
	var out []float64
	err := values(src, v, func(x any) error {
		switch n := x.(type) {
		case int64:
			out = append(out, float64(n))
		case float64:
			out = append(out, n)
		default:
			return notNumeric(x)
		}
		return nil
	})
	return out, err
}

// values feeds fn the resource value bound to v in each answer. Answers not
// binding v are skipped; binding it to a non-resource is an error.
func values(src Source, v pattern.Variable, fn func(any) error) error {
	for src.Next() {
		c, ok := src.Answer()[v]
		if !ok {
			continue
		}
		if c.Kind != concept.KindResource {
			return fmt.Errorf("%s is bound to %s, not a resource: %w", v, c, internalerr.ErrInvalidInput)
		}
		if err := fn(c.Value); err != nil {
			return err
		}
	}
	return src.Err()
}

func notNumeric(x any) error {
	return fmt.Errorf("value %v (%T) is not numeric: %w", x, x, internalerr.ErrInvalidInput)
}

// SetSource iterates a materialized answer set.
type SetSource struct {
	answers []answer.Answer
	pos     int
}

// FromSet adapts an answer set to a Source.
func FromSet(s *answer.Set) *SetSource {
	return &SetSource{answers: s.Answers(), pos: -1}
}

func (s *SetSource) Next() bool {
	s.pos++
	return s.pos < len(s.answers)
}

func (s *SetSource) Answer() answer.Answer { return s.answers[s.pos] }

func (s *SetSource) Err() error { return nil }
