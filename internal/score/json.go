package score

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/page.turner/internal/chroma"
)

// jsonReference is the on-disk JSON layout of a reference table.
type jsonReference struct {
	Name           string                      `json:"name,omitempty"`
	PageEndIndices []int                       `json:"page_end_indices"`
	Frames         [][chroma.NumChroma]float64 `json:"frames"`
}

// DecodeJSON reads a JSON reference table.
func DecodeJSON(r io.Reader) (*Reference, error) {
	var jr jsonReference
	if err := json.NewDecoder(r).Decode(&jr); err != nil {
		return nil, fmt.Errorf("score: decode json: %w", err)
	}
	return FromArrays(jr.Name, jr.Frames, jr.PageEndIndices)
}

// EncodeJSON writes ref as a JSON reference table.
func EncodeJSON(w io.Writer, ref *Reference) error {
	jr := jsonReference{
		Name:           ref.name,
		PageEndIndices: ref.Boundaries(),
		Frames:         make([][chroma.NumChroma]float64, len(ref.frames)),
	}
	for i, f := range ref.frames {
		jr.Frames[i] = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	return enc.Encode(jr)
}

func loadJSONFile(path string) (*Reference, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("score: open json: %w", err)
	}
	defer f.Close()
	ref, err := DecodeJSON(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ref, nil
}

// SaveFile writes ref to path, choosing the encoder from the extension as
// LoadFile does.
func SaveFile(path string, ref *Reference) (err error) {
	var encode func(io.Writer, *Reference) error
	switch fileExt(path) {
	case ".h":
		encode = WriteHeader
	case ".json":
		encode = EncodeJSON
	default:
		return fmt.Errorf("score: unsupported reference file %q (want .h or .json)", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("score: create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return encode(f, ref)
}
