package inspect

import "strings"

// minStringLen matches the default of the strings(1) utility.
const minStringLen = 4

// stringExtractor collects runs of printable ASCII from a byte stream, the
// way strings(1) does, stopping after a fixed number of runs.
type stringExtractor struct {
	max   int
	cur   []byte
	found []string
}

func newStringExtractor(maxLines int) *stringExtractor {
	if maxLines <= 0 {
		maxLines = DefaultMemoryLines
	}
	return &stringExtractor{max: maxLines}
}

// Write feeds p to the extractor. Runs may span calls.
func (e *stringExtractor) Write(p []byte) (int, error) {
	for _, b := range p {
		if e.Full() {
			break
		}
		if b == '\t' || (b >= 0x20 && b <= 0x7e) {
			e.cur = append(e.cur, b)
			continue
		}
		e.flush()
	}
	return len(p), nil
}

// Break ends the current run, for discontiguous input.
func (e *stringExtractor) Break() {
	e.flush()
}

func (e *stringExtractor) flush() {
	if len(e.cur) >= minStringLen && !e.Full() {
		e.found = append(e.found, string(e.cur))
	}
	e.cur = e.cur[:0]
}

// Full reports whether the line limit has been reached.
func (e *stringExtractor) Full() bool {
	return len(e.found) >= e.max
}

// String returns the collected runs, newline separated.
func (e *stringExtractor) String() string {
	e.flush()
	return strings.Join(e.found, "\n")
}

// ExtractStrings returns up to maxLines printable runs from data.
func ExtractStrings(data []byte, maxLines int) string {
	e := newStringExtractor(maxLines)
	e.Write(data)
	return e.String()
}
