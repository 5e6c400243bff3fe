package score

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/banshee-data/page.turner/internal/chroma"
)

// The firmware compiles its reference in as a C header. These patterns
// cover the declarations the score pipeline writes.
var (
	numPagesRe   = regexp.MustCompile(`const\s+int\s+num_pages\s*=\s*(\d+)\s*;`)
	scoreLenRe   = regexp.MustCompile(`const\s+int\s+score_len\s*=\s*(\d+)\s*;`)
	pageEndsRe   = regexp.MustCompile(`const\s+int\s+page_end_indices\s*\[\s*\]\s*=\s*\{([^}]*)\}`)
	chromaDeclRe = regexp.MustCompile(`score_chroma\s*\[\s*\]\s*\[\s*12\s*\]\s*=`)
	floatRe      = regexp.MustCompile(`[-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?`)
)

// ParseHeader decodes a ScoreData.h header. The first line comment, if
// any, becomes the reference name.
func ParseHeader(r io.Reader) (*Reference, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("score: read header: %w", err)
	}
	src := string(data)

	name := ""
	if line, _, _ := strings.Cut(strings.TrimSpace(src), "\n"); strings.HasPrefix(line, "//") {
		name = strings.TrimSpace(strings.TrimPrefix(line, "//"))
	}

	numPages, err := headerInt(numPagesRe, src, "num_pages")
	if err != nil {
		return nil, err
	}
	scoreLen, err := headerInt(scoreLenRe, src, "score_len")
	if err != nil {
		return nil, err
	}

	m := pageEndsRe.FindStringSubmatch(src)
	if m == nil {
		return nil, fmt.Errorf("score: header has no page_end_indices declaration")
	}
	var boundaries []int
	for _, field := range strings.Split(m[1], ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		b, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("score: page_end_indices entry %q: %w", field, err)
		}
		boundaries = append(boundaries, b)
	}
	if len(boundaries) != numPages {
		return nil, fmt.Errorf("score: num_pages is %d but page_end_indices has %d entries", numPages, len(boundaries))
	}

	loc := chromaDeclRe.FindStringIndex(src)
	if loc == nil {
		return nil, fmt.Errorf("score: header has no score_chroma declaration")
	}
	body := src[loc[1]:]
	if end := strings.Index(body, "};"); end >= 0 {
		body = body[:end]
	}
	values := floatRe.FindAllString(body, -1)
	if len(values) != scoreLen*chroma.NumChroma {
		return nil, fmt.Errorf("score: score_len is %d but score_chroma holds %d values (want %d)",
			scoreLen, len(values), scoreLen*chroma.NumChroma)
	}

	frames := make([]chroma.Vector, scoreLen)
	for i, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("score: chroma value %q: %w", v, err)
		}
		frames[i/chroma.NumChroma][i%chroma.NumChroma] = f
	}
	return New(name, frames, boundaries)
}

func headerInt(re *regexp.Regexp, src, field string) (int, error) {
	m := re.FindStringSubmatch(src)
	if m == nil {
		return 0, fmt.Errorf("score: header has no %s declaration", field)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("score: %s: %w", field, err)
	}
	return n, nil
}

func parseHeaderFile(path, fallbackName string) (*Reference, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("score: open header: %w", err)
	}
	defer f.Close()

	ref, err := ParseHeader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if ref.name == "" {
		ref.name = fallbackName
	}
	return ref, nil
}

// WriteHeader encodes ref as a ScoreData.h header that the firmware can
// compile in. Components are written with four decimals.
func WriteHeader(w io.Writer, ref *Reference) error {
	bw := bufio.NewWriter(w)

	if ref.name != "" {
		fmt.Fprintf(bw, "// %s\n", strings.ReplaceAll(ref.name, "\n", " "))
	}
	bw.WriteString("#ifndef SCORE_DATA_H\n#define SCORE_DATA_H\n\n")

	ends := make([]string, len(ref.boundaries))
	for i, b := range ref.boundaries {
		ends[i] = strconv.Itoa(b)
	}
	fmt.Fprintf(bw, "const int num_pages = %d;\n", len(ref.boundaries))
	fmt.Fprintf(bw, "const int page_end_indices[] = { %s };\n\n", strings.Join(ends, ", "))

	fmt.Fprintf(bw, "const int score_len = %d;\n", len(ref.frames))
	bw.WriteString("const float score_chroma[][12] = {\n")
	row := make([]string, chroma.NumChroma)
	for i, f := range ref.frames {
		for k, v := range f {
			row[k] = strconv.FormatFloat(v, 'f', 4, 64) + "f"
		}
		sep := ","
		if i == len(ref.frames)-1 {
			sep = ""
		}
		fmt.Fprintf(bw, "  {%s}%s\n", strings.Join(row, ", "), sep)
	}
	bw.WriteString("};\n\n#endif\n")

	return bw.Flush()
}
