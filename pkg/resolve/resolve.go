// Package resolve chooses one version of every required package so that
// all requirements hold together.
//
// The search is depth-first with backtracking. Every positive requirement
// on a package not chosen yet opens a choice point whose candidates are the
// package's versions allowed by every requirement in force on that name,
// highest first; a package with variants contributes one candidate per
// variant, in declaration order. Choosing a candidate queues its own
// requirements, which are expanded before the search moves on, so a
// requirement on a package whose expansion is still in progress is a
// dependency cycle.
//
// A requirement on an already chosen package must be satisfied by that
// choice, otherwise the search returns to the latest choice point. Failed
// states are remembered for the duration of one call.
//
// Results depend only on the snapshot content and the root multiset: roots
// are applied in a canonical order, candidate order follows the snapshot's
// version order and requirements are expanded in declaration order.
package resolve

import (
	"context"
	"errors"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/observability"
	"github.com/matzehuels/rezls/pkg/repo"
	"github.com/matzehuels/rezls/pkg/version"
)

// DefaultTimeout bounds a resolve call when no deadline is configured.
const DefaultTimeout = 10 * time.Second

// Options configures a Resolver.
type Options struct {
	// Timeout bounds each call in addition to the context deadline. Zero
	// selects DefaultTimeout; a negative value disables the bound.
	Timeout time.Duration
	Logger  *log.Logger
}

// Resolver runs resolutions against snapshots. It holds no per-call state
// and is safe for concurrent use.
type Resolver struct {
	timeout time.Duration
	logger  *log.Logger
}

// New creates a resolver.
func New(opts Options) *Resolver {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &Resolver{timeout: opts.Timeout, logger: opts.Logger}
}

// Resolve selects packages for roots from snap.
//
// It fails with a [*ConflictError] when no selection exists, a
// [*CycleError] when packages require each other, and an error coded
// TIMEOUT or CANCELED when ctx ends first.
func (r *Resolver) Resolve(ctx context.Context, roots []version.Requirement, snap *repo.Snapshot) (res *Resolution, err error) {
	start := time.Now()
	rootTexts := requirementStrings(roots)
	observability.Resolve().OnResolveStart(ctx, rootTexts)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	s := newSearch(ctx, snap)
	defer func() {
		packages := 0
		if res != nil {
			packages = len(res.Packages)
		}
		observability.Resolve().OnResolveComplete(ctx, rootTexts, packages, s.steps, time.Since(start), err)
	}()

	order := canonical(roots)
	if !s.run(order) {
		if s.err != nil {
			r.logger.Debug("resolve aborted", "roots", rootTexts, "steps", s.steps, "err", s.err)
			return nil, s.err
		}
		conflict := s.conflict()
		if conflict == nil {
			conflict = rootConflict(ctx, order, snap)
		}
		r.logger.Debug("resolve failed", "roots", rootTexts, "steps", s.steps, "conflict", conflict)
		return nil, conflict
	}

	res = newResolution(roots, snap, s.result, s.steps, time.Since(start))
	r.logger.Debug("resolved",
		"roots", rootTexts,
		"packages", len(res.Packages),
		"steps", s.steps,
		"duration", res.Duration)
	return res, nil
}

// canonical orders roots so the search does not depend on the order the
// caller listed them in. Weak and conflict requirements go first since they
// only narrow later choices.
func canonical(roots []version.Requirement) []version.Requirement {
	out := slices.Clone(roots)
	slices.SortStableFunc(out, func(a, b version.Requirement) int {
		if a.Positive() != b.Positive() {
			if a.Positive() {
				return 1
			}
			return -1
		}
		return strings.Compare(a.String(), b.String())
	})
	return out
}

// rootConflict explains a failure that no single package accounts for:
// choices forced through one package rule out another. Roots are dropped
// one at a time while the rest still fail, so removing any reported root
// lets the others resolve.
func rootConflict(ctx context.Context, roots []version.Requirement, snap *repo.Snapshot) *ConflictError {
	out := slices.Clone(roots)
	for i := 0; i < len(out) && ctx.Err() == nil; {
		trial := slices.Delete(slices.Clone(out), i, i+1)
		if s := newSearch(ctx, snap); !s.run(trial) && s.err == nil {
			out = trial
		} else {
			i++
		}
	}
	cs := make([]Constraint, len(out))
	for i, req := range out {
		cs[i] = Constraint{Requirement: req}
	}
	return &ConflictError{Requirements: cs}
}

// ResolveStrings parses roots and resolves them.
func (r *Resolver) ResolveStrings(ctx context.Context, roots []string, snap *repo.Snapshot) (*Resolution, error) {
	reqs, err := version.ParseRequirements(roots)
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, reqs, snap)
}

// =============================================================================
// Search state
// =============================================================================

type choice struct {
	desc    *manifest.Descriptor
	variant int
	// done is set once the package's requirements have been expanded.
	done bool
}

// task is either a requirement to apply or, when finish is set, the end of
// a package's expansion.
type task struct {
	c      Constraint
	finish string
}

type state struct {
	chosen      map[string]choice
	constraints map[string][]Constraint
	agenda      []task
}

func (st *state) push(t task) { st.agenda = append(st.agenda, t) }

func (st *state) pop() task {
	t := st.agenda[len(st.agenda)-1]
	st.agenda = st.agenda[:len(st.agenda)-1]
	return t
}

func (st *state) clone() *state {
	return &state{
		chosen:      maps.Clone(st.chosen),
		constraints: maps.Clone(st.constraints),
		agenda:      slices.Clone(st.agenda),
	}
}

// key identifies the state at a choice point for name. The requirements
// already applied follow from the roots, the chosen packages and the
// agenda, so they need not be part of the key.
func (st *state) key(name string) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('|')
	for _, n := range slices.Sorted(maps.Keys(st.chosen)) {
		ch := st.chosen[n]
		b.WriteString(ch.desc.ID())
		b.WriteByte('/')
		b.WriteString(strconv.Itoa(ch.variant))
		if ch.done {
			b.WriteByte('+')
		}
		b.WriteByte(' ')
	}
	b.WriteByte('|')
	for _, t := range st.agenda {
		if t.finish != "" {
			b.WriteString("$" + t.finish)
		} else {
			b.WriteString(t.c.Requirement.String())
		}
		b.WriteByte(' ')
	}
	return b.String()
}

type failure struct {
	name        string
	constraints []Constraint
	depth       int
}

type search struct {
	ctx    context.Context
	snap   *repo.Snapshot
	failed map[string]bool
	steps  int

	deepest *failure
	result  *state
	err     error
}

func newSearch(ctx context.Context, snap *repo.Snapshot) *search {
	return &search{ctx: ctx, snap: snap, failed: make(map[string]bool)}
}

// run seeds the agenda with roots, first root on top, and solves it.
func (s *search) run(roots []version.Requirement) bool {
	st := &state{
		chosen:      make(map[string]choice),
		constraints: make(map[string][]Constraint),
	}
	for i := len(roots) - 1; i >= 0; i-- {
		st.push(task{c: Constraint{Requirement: roots[i]}})
	}
	return s.solve(st)
}

// solve applies the agenda of st, branching at each choice point. It
// reports whether a complete selection was found; fatal errors are left in
// s.err.
func (s *search) solve(st *state) bool {
	for len(st.agenda) > 0 {
		t := st.pop()
		if t.finish != "" {
			ch := st.chosen[t.finish]
			ch.done = true
			st.chosen[t.finish] = ch
			continue
		}

		c := t.c
		name := c.Requirement.Name
		st.constraints[name] = append(slices.Clip(st.constraints[name]), c)

		if ch, ok := st.chosen[name]; ok {
			if c.Requirement.Positive() && !ch.done {
				s.err = newCycleError(c.Chain, ch.desc.ID())
				return false
			}
			if !c.Requirement.Allows(ch.desc.Version) {
				s.fail(name, st)
				return false
			}
			continue
		}
		if !c.Requirement.Positive() {
			continue
		}
		return s.choose(name, c, st)
	}
	s.result = st
	return true
}

// choose opens the choice point for name, required by c.
func (s *search) choose(name string, c Constraint, st *state) bool {
	key := st.key(name)
	if s.failed[key] {
		return false
	}

	cands := s.candidates(name, st.constraints[name])
	if len(cands) == 0 {
		s.fail(name, st)
		s.failed[key] = true
		return false
	}

	for _, cand := range cands {
		if err := s.ctx.Err(); err != nil {
			s.err = interrupted(err, s.steps)
			return false
		}
		s.steps++

		next := st.clone()
		next.chosen[name] = choice{desc: cand.desc, variant: cand.variant}
		next.push(task{finish: name})
		chain := append(slices.Clone(c.Chain), cand.desc.ID())
		reqs := cand.desc.VariantRequires(cand.variant)
		for i := len(reqs) - 1; i >= 0; i-- {
			next.push(task{c: Constraint{Requirement: reqs[i], From: cand.desc.ID(), Chain: chain}})
		}

		if s.solve(next) {
			return true
		}
		if s.err != nil {
			return false
		}
	}
	s.failed[key] = true
	return false
}

type candidate struct {
	desc    *manifest.Descriptor
	variant int
}

// candidates lists the (version, variant) pairs of name allowed by every
// constraint, highest version first.
func (s *search) candidates(name string, cs []Constraint) []candidate {
	var out []candidate
	for _, d := range s.snap.Packages(name) {
		if !allowsAll(cs, d.Version) {
			continue
		}
		if len(d.Variants) == 0 {
			out = append(out, candidate{desc: d, variant: -1})
			continue
		}
		for i := range d.Variants {
			out = append(out, candidate{desc: d, variant: i})
		}
	}
	return out
}

// fail records the failure on name when the requirements on name admit no
// version at all and it is the deepest such failure so far. A requirement
// that only clashes with an earlier choice says nothing about name itself.
func (s *search) fail(name string, st *state) {
	cs := st.constraints[name]
	if !unsatisfiable(cs, s.snap.Versions(name)) {
		return
	}
	depth := len(st.chosen)
	if s.deepest == nil || depth > s.deepest.depth {
		s.deepest = &failure{name: name, constraints: slices.Clone(cs), depth: depth}
	}
}

// conflict returns the recorded failure, or nil when every failure came
// from an earlier choice.
func (s *search) conflict() *ConflictError {
	f := s.deepest
	if f == nil {
		return nil
	}
	return &ConflictError{
		Name:         f.name,
		Requirements: minimize(f.constraints, s.snap.Versions(f.name)),
	}
}

func allowsAll(cs []Constraint, v version.Version) bool {
	for _, c := range cs {
		if !c.Requirement.Allows(v) {
			return false
		}
	}
	return true
}

func interrupted(err error, steps int) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return rerrors.Wrap(rerrors.ErrCodeTimeout, err, "resolve timed out after %d steps", steps)
	}
	return rerrors.Wrap(rerrors.ErrCodeCanceled, err, "resolve canceled after %d steps", steps)
}

func requirementStrings(rs []version.Requirement) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.String()
	}
	return out
}
