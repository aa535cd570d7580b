package resolve

import (
	"slices"
	"strings"

	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/version"
)

// ConflictError reports requirements that cannot hold together. With Name
// set they are requirements on that package and removing any one of them
// makes the rest satisfiable by some version of Name. Without Name they are
// root requirements, and removing any one lets the others resolve.
type ConflictError struct {
	Name         string
	Requirements []Constraint
}

// Error lists the conflicting requirements.
func (e *ConflictError) Error() string {
	parts := make([]string, len(e.Requirements))
	for i, c := range e.Requirements {
		parts[i] = c.String()
	}
	if len(parts) == 1 {
		return "cannot satisfy " + parts[0]
	}
	if e.Name == "" {
		return "requirements cannot be resolved together: " + strings.Join(parts, ", ")
	}
	return "conflicting requirements on " + e.Name + ": " + strings.Join(parts, ", ")
}

// Code returns CONFLICT.
func (e *ConflictError) Code() rerrors.Code { return rerrors.ErrCodeConflict }

// CycleError reports packages that require each other.
type CycleError struct {
	// Cycle lists package IDs, starting and ending with the same package.
	Cycle []string
}

// Error formats the cycle as "a-1 > b-2 > a-1".
func (e *CycleError) Error() string {
	return "cyclic dependency: " + strings.Join(e.Cycle, " > ")
}

// Code returns CYCLE.
func (e *CycleError) Code() rerrors.Code { return rerrors.ErrCodeCycle }

// newCycleError cuts the requirement chain at the first occurrence of the
// package being required again.
func newCycleError(chain []string, id string) *CycleError {
	i := slices.Index(chain, id)
	if i < 0 {
		i = 0
	}
	return &CycleError{Cycle: append(slices.Clone(chain[i:]), id)}
}

// minimize drops requirements from cs one at a time while the rest remain
// unsatisfiable over versions. cs must be unsatisfiable; otherwise it is
// returned unchanged.
func minimize(cs []Constraint, versions []version.Version) []Constraint {
	if !unsatisfiable(cs, versions) {
		return slices.Clone(cs)
	}
	out := slices.Clone(cs)
	for i := 0; i < len(out); {
		trial := slices.Delete(slices.Clone(out), i, i+1)
		if unsatisfiable(trial, versions) {
			out = trial
		} else {
			i++
		}
	}
	return out
}

// unsatisfiable reports whether cs forces the package in and no version
// satisfies all of cs.
func unsatisfiable(cs []Constraint, versions []version.Version) bool {
	forced := false
	for _, c := range cs {
		if c.Requirement.Positive() {
			forced = true
			break
		}
	}
	if !forced {
		return false
	}
	for _, v := range versions {
		if allowsAll(cs, v) {
			return false
		}
	}
	return true
}
