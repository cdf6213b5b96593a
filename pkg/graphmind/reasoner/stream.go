package reasoner

import (
	"github.com/cognicore/graphmind/pkg/graphmind/answer"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
)

// Stream yields the answers of one resolution. It is lazy: nothing is
// evaluated until the first Next. A stream cannot be restarted; resolve
// again for a fresh one. Answers come in a stable order for a given store
// content.
type Stream struct {
	run   func() (*resolution, error)
	vars  []pattern.Variable
	limit int

	started bool
	answers []answer.Answer
	pos     int
	cur     answer.Answer
	stats   Stats
	err     error
}

func newStream(run func() (*resolution, error), vars []pattern.Variable, limit int) *Stream {
	return &Stream{run: run, vars: vars, limit: limit}
}

// Next advances to the next answer.
func (s *Stream) Next() bool {
	if !s.started {
		s.started = true
		res, err := s.run()
		if err != nil {
			s.err = err
			return false
		}
		s.answers = res.answers.Answers()
		s.stats = res.stats
		if s.limit > 0 && len(s.answers) > s.limit {
			s.answers = s.answers[:s.limit]
		}
	}
	if s.err != nil || s.pos >= len(s.answers) {
		s.cur = nil
		return false
	}
	s.cur = s.answers[s.pos]
	s.pos++
	return true
}

// Answer returns the current answer.
func (s *Stream) Answer() answer.Answer { return s.cur }

// Err returns the error that ended the stream, if any.
func (s *Stream) Err() error { return s.err }

// Vars returns the variables every answer binds.
func (s *Stream) Vars() []pattern.Variable { return append([]pattern.Variable(nil), s.vars...) }

// Stats describes the resolution. It is filled once Next has been called.
func (s *Stream) Stats() Stats { return s.stats }

// Collect drains the remaining answers into a set.
func (s *Stream) Collect() (*answer.Set, error) {
	out := answer.NewSet()
	for s.Next() {
		out.Add(s.Answer())
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
