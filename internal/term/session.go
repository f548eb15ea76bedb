package term

import (
	"sync"
	"sync/atomic"
)

// SpecialKey enumerates non-printable keys a remote client can send, which
// must be translated to their canonical escape sequence depending on the
// session's application-cursor / application-keypad mode.
type SpecialKey int

const (
	KeyUnknown SpecialKey = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeyInsert
	KeyDelete
	KeyBackspace
	KeyTab
	KeyEnter
	KeyEscape
	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12
)

// Encode returns the canonical byte sequence for key, given the current
// application-cursor-keys (DECCKM) and application-keypad (DECKPAM) modes.
func (v *VTerm) Encode(key SpecialKey) []byte {
	cursorPrefix := "\x1b["
	if v.ApplicationCursorKeys {
		cursorPrefix = "\x1bO"
	}

	switch key {
	case KeyUp:
		return []byte(cursorPrefix + "A")
	case KeyDown:
		return []byte(cursorPrefix + "B")
	case KeyRight:
		return []byte(cursorPrefix + "C")
	case KeyLeft:
		return []byte(cursorPrefix + "D")
	case KeyHome:
		return []byte(cursorPrefix + "H")
	case KeyEnd:
		return []byte(cursorPrefix + "F")
	case KeyPageUp:
		return []byte("\x1b[5~")
	case KeyPageDown:
		return []byte("\x1b[6~")
	case KeyInsert:
		return []byte("\x1b[2~")
	case KeyDelete:
		return []byte("\x1b[3~")
	case KeyBackspace:
		return []byte{0x7f}
	case KeyTab:
		return []byte{'\t'}
	case KeyEnter:
		return []byte{'\r'}
	case KeyEscape:
		return []byte{0x1b}
	case KeyF1:
		return []byte("\x1bOP")
	case KeyF2:
		return []byte("\x1bOQ")
	case KeyF3:
		return []byte("\x1bOR")
	case KeyF4:
		return []byte("\x1bOS")
	case KeyF5:
		return []byte("\x1b[15~")
	case KeyF6:
		return []byte("\x1b[17~")
	case KeyF7:
		return []byte("\x1b[18~")
	case KeyF8:
		return []byte("\x1b[19~")
	case KeyF9:
		return []byte("\x1b[20~")
	case KeyF10:
		return []byte("\x1b[21~")
	case KeyF11:
		return []byte("\x1b[23~")
	case KeyF12:
		return []byte("\x1b[24~")
	default:
		return nil
	}
}

// CursorShape mirrors the DECSCUSR cursor appearance a renderer should use.
type CursorShape int

const (
	CursorBlock CursorShape = iota
	CursorBeam
	CursorUnderline
)

// CursorState is a read-only snapshot of the cursor for a renderer.
type CursorState struct {
	Col, Row int
	Shape    CursorShape
	Visible  bool
}

// RGBA packs a color as 32-bit ARGB, computed at read time from a cell's
// style per the inverse/dim read-time semantics.
type RGBA uint32

// CellFlag bits, per spec: bit0 bold, bit1 italic, bit2 underline,
// bit3 strikethrough, bit4 inverse, bit5 dim.
type CellFlag uint8

const (
	FlagBold CellFlag = 1 << iota
	FlagItalic
	FlagUnderline
	FlagStrike
	FlagInverse
	FlagDim
)

// VisibleCell is the externally exposed read model of one grid cell.
type VisibleCell struct {
	Char  rune
	Fg    RGBA
	Bg    RGBA
	Flags CellFlag
}

// InputWriter accepts input bytes destined for a PTY. ptymgr's InputSink
// queue satisfies this, but Session depends only on this narrow interface
// so the grid engine never needs to import the PTY layer.
type InputWriter interface {
	Write(p []byte) (n int, err error)
}

// Session wraps a VTerm with the terminal session's higher-level concerns:
// a dirty flag, richer selection modes with word-boundary snapping, and
// multi-match search with a cursor that cycles.
// The VTerm itself remains the only writer of grid state; Session adds
// read-side and I/O-routing behavior around it.
type Session struct {
	mu    sync.Mutex
	vt    *VTerm
	dirty atomic.Bool
	input InputWriter

	cursorShape   CursorShape
	cursorVisible bool

	search searchState
}

// NewSession creates a session around a freshly created VTerm of the given
// size. input receives bytes from SendInput/SendSpecialKey; it may be nil
// for a session not yet attached to a live PTY.
func NewSession(cols, rows int, input InputWriter) *Session {
	return &Session{
		vt:            New(cols, rows),
		input:         input,
		cursorShape:   CursorBlock,
		cursorVisible: true,
	}
}

// SendInput writes raw bytes to the PTY input sink. No local echo is
// performed; echo is the shell's responsibility.
func (s *Session) SendInput(data []byte) error {
	s.mu.Lock()
	w := s.input
	s.mu.Unlock()
	if w == nil {
		return nil
	}
	_, err := w.Write(data)
	return err
}

// SendSpecialKey translates key to its canonical escape sequence for the
// session's current application-cursor/keypad mode and writes it to the
// PTY input sink.
func (s *Session) SendSpecialKey(key SpecialKey) error {
	s.mu.Lock()
	seq := s.vt.Encode(key)
	w := s.input
	s.mu.Unlock()
	if w == nil || len(seq) == 0 {
		return nil
	}
	_, err := w.Write(seq)
	return err
}

// PushOutput feeds bytes from the PTY into the parser. This is the only
// path that mutates grid state.
func (s *Session) PushOutput(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.vt.Version()
	s.vt.Write(data)
	if s.vt.Version() != before {
		s.dirty.Store(true)
	}
}

// Resize reflows the grid to the new dimensions. Cursor invariants are
// restored by VTerm.Resize itself.
func (s *Session) Resize(cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vt.Resize(cols, rows)
	s.dirty.Store(true)
}

// Reset discards the current grid and scrollback, replacing the VTerm
// with a freshly created one at the same dimensions. Used by a remote
// client mirror to resynchronize before applying a resync snapshot, since
// a snapshot payload is a from-scratch redraw, not a diff against
// whatever the mirror previously held.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	width, height := s.vt.Width, s.vt.Height
	s.vt = New(width, height)
	s.dirty.Store(true)
}

// Dirty reports whether the grid has mutated since the last ClearDirty.
func (s *Session) Dirty() bool {
	return s.dirty.Load()
}

// ClearDirty resets the dirty flag.
func (s *Session) ClearDirty() {
	s.dirty.Store(false)
}

// Title returns the most recent OSC window title.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vt.Title
}

// Bell reports and clears the bell flag, so repeated polls don't re-fire.
func (s *Session) Bell() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rang := s.vt.Bell
	s.vt.ClearBell()
	return rang
}

// SetCursorVisible controls whether the cursor renders at all, independent
// of the app's own DECTCEM state (used when a pane loses focus).
func (s *Session) SetCursorVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vt.ShowCursor = visible
}

// Cursor returns the current cursor state.
func (s *Session) Cursor() CursorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CursorState{
		Col:     s.vt.CursorX,
		Row:     s.vt.CursorY,
		Shape:   s.cursorShape,
		Visible: !s.vt.CursorHiddenForRender(),
	}
}

// Snapshot renders a full-screen redraw payload for a resync frame
// (frame_type 2): a clear-and-home prefix followed by the current
// screen's ANSI-styled content, so a client that resets its local
// emulator before applying this payload reaches the same visible state.
func (s *Session) Snapshot() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []byte("\x1b[2J\x1b[H" + s.vt.Render())
}

// VisibleCells returns a flattened, row-major snapshot of the current
// viewport with per-cell effective colors and flags resolved.
func (s *Session) VisibleCells() []VisibleCell {
	s.mu.Lock()
	defer s.mu.Unlock()

	screen, _ := s.vt.RenderBuffers()
	out := make([]VisibleCell, 0, s.vt.Width*s.vt.Height)
	for _, row := range screen {
		for _, cell := range row {
			out = append(out, resolveCell(cell))
		}
	}
	return out
}

func resolveCell(c Cell) VisibleCell {
	st := c.Style
	fg := colorToRGBA(st.Fg)
	bg := colorToRGBA(st.Bg)

	var flags CellFlag
	if st.Bold {
		flags |= FlagBold
	}
	if st.Italic {
		flags |= FlagItalic
	}
	if st.Underline {
		flags |= FlagUnderline
	}
	if st.Strike {
		flags |= FlagStrike
	}
	if st.Reverse {
		flags |= FlagInverse
		fg, bg = bg, fg
	}
	if st.Dim {
		flags |= FlagDim
		fg = scaleAlpha(fg, 0.5)
	}

	return VisibleCell{Char: c.Rune, Fg: fg, Bg: bg, Flags: flags}
}

func scaleAlpha(c RGBA, factor float64) RGBA {
	a := uint32(c) >> 24
	scaled := uint32(float64(a) * factor)
	return RGBA(scaled<<24 | uint32(c)&0x00FFFFFF)
}

// defaultPalette maps the 16 standard ANSI indexed colors to RGB. Colors
// beyond index 15 (the 216-color cube and grayscale ramp) follow the
// standard xterm-256color formula.
var defaultPalette = [16]uint32{
	0x000000, 0xCC0000, 0x4E9A06, 0xC4A000,
	0x3465A4, 0x75507B, 0x06989A, 0xD3D7CF,
	0x555753, 0xEF2929, 0x8AE234, 0xFCE94F,
	0x729FCF, 0xAD7FA8, 0x34E2E2, 0xEEEEEC,
}

func colorToRGBA(c Color) RGBA {
	const opaque = 0xFF000000
	switch c.Type {
	case ColorRGB:
		return RGBA(opaque | c.Value&0x00FFFFFF)
	case ColorIndexed:
		return RGBA(opaque | indexedToRGB(c.Value))
	default:
		return RGBA(opaque)
	}
}

func indexedToRGB(idx uint32) uint32 {
	if idx < 16 {
		return defaultPalette[idx]
	}
	if idx < 232 {
		idx -= 16
		r := (idx / 36) % 6
		g := (idx / 6) % 6
		b := idx % 6
		return cubeLevel(r)<<16 | cubeLevel(g)<<8 | cubeLevel(b)
	}
	level := uint32(8 + (idx-232)*10)
	return level<<16 | level<<8 | level
}

func cubeLevel(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	return 55 + n*40
}

// SetResponseWriter installs w as the underlying VTerm's response writer,
// which receives replies to terminal queries (DSR/DA).
func (s *Session) SetResponseWriter(w ResponseWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vt.SetResponseWriter(w)
}
