package disasm

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/Gregofi/caby/pkg/bytecode"
)

// FormatFatal renders the user-visible fatal-error form:
//
//	<file>:<line>:<col>: Fatal: <message>
//	<source line>
//	<caret underline spanning [begin,end]>
//
// When source is empty (no --source file was attached to a bytecode
// execution), the file name and caret underline are omitted and only the
// message and the raw byte-offset range are printed.
func FormatFatal(w io.Writer, file string, source string, loc bytecode.Loc, message string) {
	fatalTag := color.New(color.FgRed, color.Bold).Sprint("Fatal:")

	if source == "" {
		fmt.Fprintf(w, "[%d,%d]: %s %s\n", loc.Begin, loc.End, fatalTag, message)
		return
	}

	line, col, lineText := locate(source, int(loc.Begin))
	fmt.Fprintf(w, "%s:%d:%d: %s %s\n", file, line, col, fatalTag, message)
	fmt.Fprintln(w, lineText)

	endCol := col
	if loc.End > loc.Begin {
		_, endCol, _ = locate(source, int(loc.End))
	}
	fmt.Fprintln(w, caretUnderline(col, endCol))
}

// locate converts a byte offset into source into a 1-based line and
// column and the full text of the line it falls on.
func locate(source string, offset int) (line, col int, lineText string) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(source) {
		offset = len(source)
	}
	line = 1
	lineStart := 0
	for i := 0; i < offset; i++ {
		if source[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	col = offset - lineStart + 1
	if lineEnd := strings.IndexByte(source[lineStart:], '\n'); lineEnd == -1 {
		lineText = source[lineStart:]
	} else {
		lineText = source[lineStart : lineStart+lineEnd]
	}
	return line, col, lineText
}

func caretUnderline(beginCol, endCol int) string {
	if endCol < beginCol {
		endCol = beginCol
	}
	width := endCol - beginCol + 1
	leading := beginCol - 1
	if leading < 0 {
		leading = 0
	}
	return strings.Repeat(" ", leading) + color.New(color.FgRed).Sprint(strings.Repeat("^", width))
}
