package term

import "strings"

// SelectionMode controls how SetSelection's anchor/head are expanded.
type SelectionMode int

const (
	SelectChar SelectionMode = iota
	SelectWord
	SelectLine
)

// CellPos addresses a cell in the combined scrollback+screen buffer by
// absolute line and column.
type CellPos struct {
	Line, Col int
}

// wordPunct lists the ASCII punctuation treated as part of a word for
// Word-mode snapping, in addition to ASCII letters/digits and every
// non-ASCII rune (see isLetterOrDigit).
const wordPunct = "_-./"

func isWordRune(r rune) bool {
	if r == 0 {
		return false
	}
	if strings.ContainsRune(wordPunct, r) {
		return true
	}
	return isLetterOrDigit(r)
}

func isLetterOrDigit(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r > 127:
		// Treat any other non-ASCII printable rune as a word rune; this
		// covers CJK and accented text without pulling in a full Unicode
		// word-break table for a terminal selection heuristic.
		return true
	default:
		return false
	}
}

// SetSelection stores anchor..head as the session's selection, expanding
// endpoints per mode. anchor/head use absolute (line, col) coordinates.
func (s *Session) SetSelection(anchor, head CellPos, mode SelectionMode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start, end := anchor, head
	if start.Line > end.Line || (start.Line == end.Line && start.Col > end.Col) {
		start, end = end, start
	}

	switch mode {
	case SelectWord:
		start = s.snapWordStart(start)
		end = s.snapWordEnd(end)
	case SelectLine:
		start.Col = 0
		end.Col = s.vt.Width - 1
	}

	s.vt.SetSelection(start.Col, start.Line, end.Col, end.Line, true, false)
}

// ClearSelection removes the active selection.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vt.ClearSelection()
}

// SelectionText renders the active selection as plain text, or ("", false)
// if there is none.
func (s *Session) SelectionText() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.vt.HasSelection() {
		return "", false
	}
	text := s.vt.GetSelectedText(s.vt.SelStartX(), s.vt.SelStartY(), s.vt.SelEndX(), s.vt.SelEndY())
	return text, true
}

func (s *Session) snapWordStart(pos CellPos) CellPos {
	row := s.vt.LineCells(pos.Line)
	if row == nil || pos.Col >= len(row) {
		return pos
	}
	if !isWordRune(row[pos.Col].Rune) {
		return pos
	}
	for pos.Col > 0 && isWordRune(row[pos.Col-1].Rune) {
		pos.Col--
	}
	return pos
}

func (s *Session) snapWordEnd(pos CellPos) CellPos {
	row := s.vt.LineCells(pos.Line)
	if row == nil || pos.Col >= len(row) {
		return pos
	}
	if !isWordRune(row[pos.Col].Rune) {
		return pos
	}
	for pos.Col < len(row)-1 && isWordRune(row[pos.Col+1].Rune) {
		pos.Col++
	}
	return pos
}
