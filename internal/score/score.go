// Package score holds the read-only reference table a performance is
// aligned against: one chroma vector per reference frame plus the frame
// indices at which each page ends.
package score

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/page.turner/internal/chroma"
)

var (
	// ErrEmptyScore is returned for a reference with no frames.
	ErrEmptyScore = errors.New("score: reference has no frames")
	// ErrBadFrame is returned when a chroma component is negative or not finite.
	ErrBadFrame = errors.New("score: invalid chroma frame")
	// ErrInvalidBoundaries is returned when page boundaries are out of
	// range or decreasing.
	ErrInvalidBoundaries = errors.New("score: invalid page boundaries")
)

// Reference is an immutable, validated reference sequence. Norms of every
// frame are computed once at construction.
type Reference struct {
	name       string
	frames     []chroma.Vector
	norms      []float64
	boundaries []int
}

// New validates frames and boundaries and returns a Reference that owns
// copies of both. Boundaries must be non-decreasing and lie in
// [0, len(frames)).
func New(name string, frames []chroma.Vector, boundaries []int) (*Reference, error) {
	if len(frames) == 0 {
		return nil, ErrEmptyScore
	}
	for i, f := range frames {
		for k, v := range f {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, fmt.Errorf("%w: frame %d component %d is %v", ErrBadFrame, i, k, v)
			}
		}
	}
	for i, b := range boundaries {
		if b < 0 || b >= len(frames) {
			return nil, fmt.Errorf("%w: boundary %d at %d is outside [0, %d)", ErrInvalidBoundaries, i, b, len(frames))
		}
		if i > 0 && b < boundaries[i-1] {
			return nil, fmt.Errorf("%w: boundary %d at %d precedes boundary %d at %d", ErrInvalidBoundaries, i, b, i-1, boundaries[i-1])
		}
	}

	r := &Reference{
		name:       name,
		frames:     append([]chroma.Vector(nil), frames...),
		norms:      make([]float64, len(frames)),
		boundaries: append([]int(nil), boundaries...),
	}
	for i, f := range r.frames {
		r.norms[i] = floats.Norm(f[:], 2)
	}
	return r, nil
}

// FromArrays is New for callers holding plain arrays.
func FromArrays(name string, frames [][chroma.NumChroma]float64, boundaries []int) (*Reference, error) {
	vs := make([]chroma.Vector, len(frames))
	for i, f := range frames {
		vs[i] = chroma.Vector(f)
	}
	return New(name, vs, boundaries)
}

// Name returns the label the reference was built with.
func (r *Reference) Name() string { return r.name }

// Len returns the number of reference frames.
func (r *Reference) Len() int { return len(r.frames) }

// Frame returns reference frame i.
func (r *Reference) Frame(i int) chroma.Vector { return r.frames[i] }

// Norm returns the precomputed Euclidean norm of frame i.
func (r *Reference) Norm(i int) float64 { return r.norms[i] }

// Boundaries returns a copy of the page boundary indices.
func (r *Reference) Boundaries() []int { return append([]int(nil), r.boundaries...) }

// NumBoundaries returns the number of page boundaries.
func (r *Reference) NumBoundaries() int { return len(r.boundaries) }

// Boundary returns page boundary i.
func (r *Reference) Boundary(i int) int { return r.boundaries[i] }

// NumPages returns the number of pages, one more than the number of
// boundaries.
func (r *Reference) NumPages() int { return len(r.boundaries) + 1 }

// PageAt returns the 1-based page that contains reference frame pos.
func (r *Reference) PageAt(pos int) int {
	// number of boundaries strictly before pos
	return sort.SearchInts(r.boundaries, pos) + 1
}

// Frames returns a copy of every reference frame.
func (r *Reference) Frames() []chroma.Vector {
	return append([]chroma.Vector(nil), r.frames...)
}

// LoadFile reads a reference from disk, choosing the decoder from the file
// extension: .h for firmware headers and .json for JSON tables.
func LoadFile(path string) (*Reference, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch fileExt(path) {
	case ".h":
		return parseHeaderFile(path, name)
	case ".json":
		return loadJSONFile(path)
	default:
		return nil, fmt.Errorf("score: unsupported reference file %q (want .h or .json)", path)
	}
}

func fileExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
