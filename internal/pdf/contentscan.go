package pdf

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/batchocr/batchocr/internal/config"
	"github.com/batchocr/batchocr/internal/geometry"
)

// scanContent walks a page's content stream and produces the approximate
// text, image, and drawing regions the classifier works with. The scan is a
// best-effort interpretation of the stream: text block extents are estimated
// from the text matrix and font size, XObject and inline image placements
// become image regions, and painted paths become drawing regions. That is
// enough for an area-coverage heuristic; it is not a renderer.
func scanContent(content string, pageW, pageH float64) []geometry.Region {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	s := &contentScanner{
		src:   content,
		ctm:   identityMatrix,
		pageW: pageW,
		pageH: pageH,
	}
	s.run()
	return s.regions
}

var longWordRE = regexp.MustCompile(`\w{5,}`)

// matrix is a PDF transformation matrix [a b c d e f].
type matrix [6]float64

var identityMatrix = matrix{1, 0, 0, 1, 0, 0}

// mul returns the concatenation m followed by n.
func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

// apply transforms the point (x, y).
func (m matrix) apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

func translation(tx, ty float64) matrix {
	return matrix{1, 0, 0, 1, tx, ty}
}

// bbox accumulates an axis-aligned bounding box.
type bbox struct {
	set            bool
	x0, y0, x1, y1 float64
}

func (b *bbox) add(x, y float64) {
	if !b.set {
		b.set = true
		b.x0, b.y0, b.x1, b.y1 = x, y, x, y
		return
	}
	b.x0 = math.Min(b.x0, x)
	b.y0 = math.Min(b.y0, y)
	b.x1 = math.Max(b.x1, x)
	b.y1 = math.Max(b.y1, y)
}

// addRect adds the four corners of a user-space rectangle transformed by m.
func (b *bbox) addRect(m matrix, x0, y0, x1, y1 float64) {
	for _, p := range [4][2]float64{{x0, y0}, {x1, y0}, {x0, y1}, {x1, y1}} {
		x, y := m.apply(p[0], p[1])
		b.add(x, y)
	}
}

type operand struct {
	num   float64
	str   string
	isNum bool
	isStr bool
}

type contentScanner struct {
	src string
	pos int

	ctm      matrix
	ctmStack []matrix

	// Text object state, valid between BT and ET.
	inText   bool
	tm       matrix
	tlm      matrix
	fontSize float64
	leading  float64
	textBox  bbox
	text     strings.Builder

	// Current path extent in user space.
	path bbox

	stack   []operand
	regions []geometry.Region

	pageW, pageH float64
}

func (s *contentScanner) run() {
	for {
		tok, ok := s.nextToken()
		if !ok {
			break
		}
		switch {
		case tok.isNum || tok.isStr:
			s.stack = append(s.stack, tok)
		default:
			s.execute(tok.str)
			s.stack = s.stack[:0]
		}
	}
	// An unterminated text object still contributes its block.
	if s.inText {
		s.endText()
	}
}

// nums returns the last n numeric operands, or false when fewer are present.
func (s *contentScanner) nums(n int) ([]float64, bool) {
	if len(s.stack) < n {
		return nil, false
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		op := s.stack[len(s.stack)-n+i]
		if !op.isNum {
			return nil, false
		}
		out[i] = op.num
	}
	return out, true
}

func (s *contentScanner) execute(op string) {
	switch op {
	case "q":
		s.ctmStack = append(s.ctmStack, s.ctm)
	case "Q":
		if n := len(s.ctmStack); n > 0 {
			s.ctm = s.ctmStack[n-1]
			s.ctmStack = s.ctmStack[:n-1]
		}
	case "cm":
		if v, ok := s.nums(6); ok {
			s.ctm = matrix{v[0], v[1], v[2], v[3], v[4], v[5]}.mul(s.ctm)
		}

	case "BT":
		s.inText = true
		s.tm = identityMatrix
		s.tlm = identityMatrix
		s.textBox = bbox{}
		s.text.Reset()
	case "ET":
		s.endText()
	case "Tf":
		if v, ok := s.nums(1); ok {
			s.fontSize = v[0]
		}
	case "TL":
		if v, ok := s.nums(1); ok {
			s.leading = v[0]
		}
	case "Td":
		if v, ok := s.nums(2); ok {
			s.moveLine(v[0], v[1])
		}
	case "TD":
		if v, ok := s.nums(2); ok {
			s.leading = -v[1]
			s.moveLine(v[0], v[1])
		}
	case "T*":
		s.moveLine(0, -s.leading)
	case "Tm":
		if v, ok := s.nums(6); ok {
			s.tlm = matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
			s.tm = s.tlm
		}
	case "Tj":
		if str, ok := s.lastString(); ok {
			s.showText(str)
		}
	case "'":
		s.moveLine(0, -s.leading)
		if str, ok := s.lastString(); ok {
			s.showText(str)
		}
	case "\"":
		s.moveLine(0, -s.leading)
		if str, ok := s.lastString(); ok {
			s.showText(str)
		}
	case "TJ":
		// Array elements were pushed in order; numbers are kerning
		// adjustments and only the strings matter for coverage.
		for _, o := range s.stack {
			if o.isStr {
				s.showText(o.str)
			}
		}

	case "re":
		if v, ok := s.nums(4); ok {
			s.path.addRect(s.ctm, v[0], v[1], v[0]+v[2], v[1]+v[3])
		}
	case "m", "l":
		if v, ok := s.nums(2); ok {
			x, y := s.ctm.apply(v[0], v[1])
			s.path.add(x, y)
		}
	case "c":
		if v, ok := s.nums(6); ok {
			for i := 0; i < 6; i += 2 {
				x, y := s.ctm.apply(v[i], v[i+1])
				s.path.add(x, y)
			}
		}
	case "v", "y":
		if v, ok := s.nums(4); ok {
			for i := 0; i < 4; i += 2 {
				x, y := s.ctm.apply(v[i], v[i+1])
				s.path.add(x, y)
			}
		}
	case "S", "s", "f", "F", "f*", "B", "B*", "b", "b*":
		s.flushPath(true)
	case "n":
		// End of a clipping path sequence; nothing was painted.
		s.flushPath(false)

	case "Do":
		// The XObject kind is unknown without the page's resource
		// dictionary; placements are treated as image coverage.
		s.emitImage()
	case "BI":
		s.skipInlineImage()
		s.emitImage()
	}
}

func (s *contentScanner) lastString() (string, bool) {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i].isStr {
			return s.stack[i].str, true
		}
	}
	return "", false
}

func (s *contentScanner) moveLine(tx, ty float64) {
	s.tlm = translation(tx, ty).mul(s.tlm)
	s.tm = s.tlm
}

// showText estimates the shown string's extent. Glyph widths are
// approximated at half an em, ascent and descent at 0.8/0.2 em; the real
// metrics live in font dictionaries this scanner does not read.
func (s *contentScanner) showText(str string) {
	if !s.inText {
		return
	}
	size := s.fontSize
	if size <= 0 {
		size = 12
	}
	width := 0.5 * size * float64(len(str))
	full := s.tm.mul(s.ctm)
	s.textBox.addRect(full, 0, -0.2*size, width, 0.8*size)

	if s.text.Len() > 0 {
		s.text.WriteByte(' ')
	}
	s.text.WriteString(str)

	s.tm = translation(width, 0).mul(s.tm)
}

func (s *contentScanner) endText() {
	if s.inText && s.textBox.set {
		text := s.text.String()
		s.emit(geometry.Region{
			Rect:      geometry.Rect{X0: s.textBox.x0, Y0: s.textBox.y0, X1: s.textBox.x1, Y1: s.textBox.y1},
			Kind:      geometry.KindText,
			Words:     len(strings.Fields(text)),
			LongWords: countLongWords(text),
		})
	}
	s.inText = false
	s.text.Reset()
	s.textBox = bbox{}
}

func (s *contentScanner) flushPath(painted bool) {
	if painted && s.path.set {
		s.emit(geometry.Region{
			Rect: geometry.Rect{X0: s.path.x0, Y0: s.path.y0, X1: s.path.x1, Y1: s.path.y1},
			Kind: geometry.KindDrawing,
		})
	}
	s.path = bbox{}
}

func (s *contentScanner) emitImage() {
	var b bbox
	// Images are placed as a unit square through the CTM.
	b.addRect(s.ctm, 0, 0, 1, 1)
	s.emit(geometry.Region{
		Rect: geometry.Rect{X0: b.x0, Y0: b.y0, X1: b.x1, Y1: b.y1},
		Kind: geometry.KindImage,
	})
}

// emit clips the region to the page box and drops anything degenerate, so
// estimation errors cannot push coverage past the page area.
func (s *contentScanner) emit(reg geometry.Region) {
	if s.pageW > 0 && s.pageH > 0 {
		reg.Rect.X0 = math.Max(reg.Rect.X0, 0)
		reg.Rect.Y0 = math.Max(reg.Rect.Y0, 0)
		reg.Rect.X1 = math.Min(reg.Rect.X1, s.pageW)
		reg.Rect.Y1 = math.Min(reg.Rect.Y1, s.pageH)
	}
	if reg.Rect.Empty() {
		return
	}
	s.regions = append(s.regions, reg)
}

func countLongWords(text string) int {
	n := 0
	for _, w := range longWordRE.FindAllString(text, -1) {
		if len(w) >= config.MinWordLength {
			n++
		}
	}
	return n
}

// --- tokenizer ---

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isSpace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

// nextToken returns the next operand or operator. Names, array and dict
// markers are consumed silently: they never reach the operand stack, which
// is fine for the operators this scanner interprets.
func (s *contentScanner) nextToken() (operand, bool) {
	for {
		s.skipSpace()
		if s.pos >= len(s.src) {
			return operand{}, false
		}
		c := s.src[s.pos]
		switch {
		case c == '%':
			s.skipComment()
		case c == '(':
			return operand{str: s.readString(), isStr: true}, true
		case c == '<':
			if s.pos+1 < len(s.src) && s.src[s.pos+1] == '<' {
				s.pos += 2 // dict open; contents tokenized as usual
				continue
			}
			return operand{str: s.readHexString(), isStr: true}, true
		case c == '>':
			s.pos++ // dict close half; skip
		case c == '[', c == ']', c == '{', c == '}':
			s.pos++
		case c == '/':
			s.readName()
		case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
			return s.readNumber(), true
		default:
			return operand{str: s.readOperator()}, true
		}
	}
}

func (s *contentScanner) skipSpace() {
	for s.pos < len(s.src) && isSpace(s.src[s.pos]) {
		s.pos++
	}
}

func (s *contentScanner) skipComment() {
	for s.pos < len(s.src) && s.src[s.pos] != '\n' && s.src[s.pos] != '\r' {
		s.pos++
	}
}

func (s *contentScanner) readName() {
	s.pos++ // consume '/'
	for s.pos < len(s.src) && !isSpace(s.src[s.pos]) && !isDelim(s.src[s.pos]) {
		s.pos++
	}
}

func (s *contentScanner) readNumber() operand {
	start := s.pos
	s.pos++
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == '+' || c == '-' {
			s.pos++
			continue
		}
		break
	}
	n, err := strconv.ParseFloat(s.src[start:s.pos], 64)
	if err != nil {
		return operand{str: s.src[start:s.pos]}
	}
	return operand{num: n, isNum: true}
}

func (s *contentScanner) readOperator() string {
	start := s.pos
	for s.pos < len(s.src) && !isSpace(s.src[s.pos]) && !isDelim(s.src[s.pos]) {
		s.pos++
	}
	if s.pos == start {
		s.pos++ // lone delimiter; never a valid operator
	}
	return s.src[start:s.pos]
}

// readString reads a (...) literal with nesting and escapes.
func (s *contentScanner) readString() string {
	var out strings.Builder
	depth := 0
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= len(s.src) {
				return out.String()
			}
			e := s.src[s.pos]
			s.pos++
			switch e {
			case 'n':
				out.WriteByte('\n')
			case 'r':
				out.WriteByte('\r')
			case 't':
				out.WriteByte('\t')
			case '(', ')', '\\':
				out.WriteByte(e)
			default:
				if e >= '0' && e <= '7' {
					// Up to three octal digits.
					v := int(e - '0')
					for i := 0; i < 2 && s.pos < len(s.src); i++ {
						d := s.src[s.pos]
						if d < '0' || d > '7' {
							break
						}
						v = v*8 + int(d-'0')
						s.pos++
					}
					out.WriteByte(byte(v))
				}
			}
		case '(':
			depth++
			if depth > 1 {
				out.WriteByte(c)
			}
		case ')':
			depth--
			if depth == 0 {
				return out.String()
			}
			out.WriteByte(c)
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}

// readHexString reads a <...> literal and decodes the byte pairs.
func (s *contentScanner) readHexString() string {
	s.pos++ // consume '<'
	var hexDigits strings.Builder
	for s.pos < len(s.src) && s.src[s.pos] != '>' {
		c := s.src[s.pos]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') {
			hexDigits.WriteByte(c)
		}
		s.pos++
	}
	if s.pos < len(s.src) {
		s.pos++ // consume '>'
	}
	h := hexDigits.String()
	if len(h)%2 == 1 {
		h += "0"
	}
	var out strings.Builder
	for i := 0; i+1 < len(h); i += 2 {
		v, err := strconv.ParseUint(h[i:i+2], 16, 8)
		if err == nil {
			out.WriteByte(byte(v))
		}
	}
	return out.String()
}

// skipInlineImage consumes everything between BI and the closing EI,
// including the binary payload after ID.
func (s *contentScanner) skipInlineImage() {
	idx := strings.Index(s.src[s.pos:], "EI")
	if idx < 0 {
		s.pos = len(s.src)
		return
	}
	s.pos += idx + 2
}
