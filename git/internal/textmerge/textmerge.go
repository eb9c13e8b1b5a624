// Package textmerge performs line-based three-way merges of file contents.
// Hunks are derived from go-git's line diff of base→ours and base→theirs;
// hunks that overlap or touch become conflicts wrapped in git-style markers.
package textmerge

import (
	"bytes"
	"strings"

	"github.com/go-git/go-git/v5/utils/diff"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// binarySniffLen matches the prefix git inspects when deciding a blob is binary.
const binarySniffLen = 8000

// Labels name the two sides in conflict markers.
type Labels struct {
	Ours   string
	Theirs string
}

// Result is the outcome of merging one file.
type Result struct {
	Content   []byte
	Conflicts int
}

// Clean reports whether the merge produced no conflicts.
func (r Result) Clean() bool {
	return r.Conflicts == 0
}

// hunk replaces base lines [start, end) with lines.
type hunk struct {
	start int
	end   int
	lines []string
}

// IsBinary reports whether content looks binary: a NUL byte in its prefix.
func IsBinary(content []byte) bool {
	if len(content) > binarySniffLen {
		content = content[:binarySniffLen]
	}
	return bytes.IndexByte(content, 0) >= 0
}

// Merge merges ours and theirs against their common base.
func Merge(base, ours, theirs []byte, labels Labels) Result {
	baseLines := splitLines(string(base))
	oursHunks := hunks(string(base), string(ours))
	theirsHunks := hunks(string(base), string(theirs))

	var out strings.Builder
	conflicts := 0
	pos := 0
	i, j := 0, 0

	for i < len(oursHunks) || j < len(theirsHunks) {
		start := nextStart(oursHunks, i, theirsHunks, j)
		writeLines(&out, baseLines[pos:start])

		end := start
		var groupOurs, groupTheirs []hunk
		for grew := true; grew; {
			grew = false
			for i < len(oursHunks) && oursHunks[i].start <= end {
				groupOurs = append(groupOurs, oursHunks[i])
				end = max(end, oursHunks[i].end)
				i++
				grew = true
			}
			for j < len(theirsHunks) && theirsHunks[j].start <= end {
				groupTheirs = append(groupTheirs, theirsHunks[j])
				end = max(end, theirsHunks[j].end)
				j++
				grew = true
			}
		}

		oursOut := apply(baseLines, start, end, groupOurs)
		theirsOut := apply(baseLines, start, end, groupTheirs)

		switch {
		case len(groupOurs) == 0:
			writeLines(&out, theirsOut)
		case len(groupTheirs) == 0:
			writeLines(&out, oursOut)
		case equalLines(oursOut, theirsOut):
			writeLines(&out, oursOut)
		default:
			conflicts++
			writeConflict(&out, strings.Join(oursOut, ""), strings.Join(theirsOut, ""), labels)
		}

		pos = end
	}

	writeLines(&out, baseLines[pos:])

	return Result{Content: []byte(out.String()), Conflicts: conflicts}
}

// Conflict renders a whole-file conflict between ours and theirs. Either
// side may be empty, as for a file modified on one side and deleted on the other.
func Conflict(ours, theirs []byte, labels Labels) []byte {
	var out strings.Builder
	writeConflict(&out, string(ours), string(theirs), labels)
	return []byte(out.String())
}

func writeConflict(out *strings.Builder, ours, theirs string, labels Labels) {
	out.WriteString("<<<<<<< " + labels.Ours + "\n")
	writeTerminated(out, ours)
	out.WriteString("=======\n")
	writeTerminated(out, theirs)
	out.WriteString(">>>>>>> " + labels.Theirs + "\n")
}

// writeTerminated writes s and makes sure a marker can follow on its own line.
func writeTerminated(out *strings.Builder, s string) {
	out.WriteString(s)
	if s != "" && !strings.HasSuffix(s, "\n") {
		out.WriteByte('\n')
	}
}

// hunks converts the line diff of base→side into base-indexed replacements.
func hunks(base, side string) []hunk {
	var (
		result  []hunk
		pos     int
		current *hunk
	)

	flush := func() {
		if current != nil {
			result = append(result, *current)
			current = nil
		}
	}

	for _, d := range diff.Do(base, side) {
		lines := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			pos += len(lines)
		case diffmatchpatch.DiffDelete:
			if current == nil {
				current = &hunk{start: pos, end: pos}
			}
			pos += len(lines)
			current.end = pos
		case diffmatchpatch.DiffInsert:
			if current == nil {
				current = &hunk{start: pos, end: pos}
			}
			current.lines = append(current.lines, lines...)
		}
	}
	flush()

	return result
}

// apply returns base[start:end] with the given hunks substituted.
func apply(base []string, start, end int, hs []hunk) []string {
	var out []string
	pos := start
	for _, h := range hs {
		out = append(out, base[pos:h.start]...)
		out = append(out, h.lines...)
		pos = h.end
	}
	return append(out, base[pos:end]...)
}

func nextStart(a []hunk, i int, b []hunk, j int) int {
	switch {
	case i >= len(a):
		return b[j].start
	case j >= len(b):
		return a[i].start
	default:
		return min(a[i].start, b[j].start)
	}
}

// splitLines splits s after every newline. A final line without a newline
// is kept as is.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func writeLines(out *strings.Builder, lines []string) {
	for _, l := range lines {
		out.WriteString(l)
	}
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
