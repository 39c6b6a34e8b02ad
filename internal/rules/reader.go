package rules

import (
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
)

// reader is a forward-only JSON tokenizer over the raw document. Values the
// schema does not know are skipped by depth counting without being decoded.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) errorf(format string, args ...any) error {
	return apperr.Newf(apperr.CodeRuleParse, format, args...).
		WithMetadata("offset", strconv.Itoa(r.pos))
}

func (r *reader) skipSpace() {
	for r.pos < len(r.data) {
		switch r.data[r.pos] {
		case ' ', '\t', '\n', '\r':
			r.pos++
		default:
			return
		}
	}
}

// peek returns the next significant byte, or 0 at end of input.
func (r *reader) peek() byte {
	r.skipSpace()
	if r.pos >= len(r.data) {
		return 0
	}
	return r.data[r.pos]
}

func (r *reader) expect(c byte) error {
	if r.peek() != c {
		return r.errorf("expected %q", c)
	}
	r.pos++
	return nil
}

// consume advances past c when it is next.
func (r *reader) consume(c byte) bool {
	if r.peek() == c {
		r.pos++
		return true
	}
	return false
}

// more reports whether a container has another element, consuming the comma
// between elements. first is true before the first element.
func (r *reader) more(end byte, first bool) (bool, error) {
	if r.consume(end) {
		return false, nil
	}
	if !first {
		if err := r.expect(','); err != nil {
			return false, r.errorf("expected ',' or %q", end)
		}
	}
	return true, nil
}

func (r *reader) readString() (string, error) {
	if err := r.expect('"'); err != nil {
		return "", err
	}
	start := r.pos
	// Fast path: no escapes.
	for r.pos < len(r.data) {
		switch c := r.data[r.pos]; {
		case c == '"':
			s := string(r.data[start:r.pos])
			r.pos++
			return s, nil
		case c == '\\':
			return r.readEscaped(start)
		case c < 0x20:
			return "", r.errorf("control character in string")
		default:
			r.pos++
		}
	}
	return "", r.errorf("unterminated string")
}

func (r *reader) readEscaped(start int) (string, error) {
	buf := append([]byte(nil), r.data[start:r.pos]...)
	for r.pos < len(r.data) {
		c := r.data[r.pos]
		switch {
		case c == '"':
			r.pos++
			return string(buf), nil
		case c < 0x20:
			return "", r.errorf("control character in string")
		case c != '\\':
			buf = append(buf, c)
			r.pos++
			continue
		}
		r.pos++
		if r.pos >= len(r.data) {
			break
		}
		esc := r.data[r.pos]
		r.pos++
		switch esc {
		case '"', '\\', '/':
			buf = append(buf, esc)
		case 'b':
			buf = append(buf, '\b')
		case 'f':
			buf = append(buf, '\f')
		case 'n':
			buf = append(buf, '\n')
		case 'r':
			buf = append(buf, '\r')
		case 't':
			buf = append(buf, '\t')
		case 'u':
			cp, err := r.readHex4()
			if err != nil {
				return "", err
			}
			if utf16.IsSurrogate(cp) {
				lo := rune(-1)
				if r.pos+1 < len(r.data) && r.data[r.pos] == '\\' && r.data[r.pos+1] == 'u' {
					r.pos += 2
					if lo, err = r.readHex4(); err != nil {
						return "", err
					}
				}
				cp = utf16.DecodeRune(cp, lo)
			}
			buf = utf8.AppendRune(buf, cp)
		default:
			return "", r.errorf("invalid escape \\%c", esc)
		}
	}
	return "", r.errorf("unterminated string")
}

func (r *reader) readHex4() (rune, error) {
	if r.pos+4 > len(r.data) {
		return 0, r.errorf("short unicode escape")
	}
	v, err := strconv.ParseUint(string(r.data[r.pos:r.pos+4]), 16, 16)
	if err != nil {
		return 0, r.errorf("invalid unicode escape")
	}
	r.pos += 4
	return rune(v), nil
}

func (r *reader) readNumber() (float64, error) {
	r.skipSpace()
	start := r.pos
	for r.pos < len(r.data) {
		switch c := r.data[r.pos]; {
		case c >= '0' && c <= '9', c == '-', c == '+', c == '.', c == 'e', c == 'E':
			r.pos++
			continue
		}
		break
	}
	if start == r.pos {
		return 0, r.errorf("expected number")
	}
	v, err := strconv.ParseFloat(string(r.data[start:r.pos]), 64)
	if err != nil {
		return 0, r.errorf("invalid number %q", r.data[start:r.pos])
	}
	return v, nil
}

func (r *reader) readLiteral(lit string) bool {
	r.skipSpace()
	if len(r.data)-r.pos >= len(lit) && string(r.data[r.pos:r.pos+len(lit)]) == lit {
		r.pos += len(lit)
		return true
	}
	return false
}

// skipValue steps over one value of any shape. Containers are skipped by
// counting brace and bracket depth, honoring strings so quoted brackets do
// not count.
func (r *reader) skipValue() error {
	switch c := r.peek(); c {
	case '"':
		_, err := r.readString()
		return err
	case '{', '[':
		depth := 0
		inString := false
		for r.pos < len(r.data) {
			c := r.data[r.pos]
			r.pos++
			if inString {
				switch c {
				case '\\':
					r.pos++
				case '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{', '[':
				depth++
			case '}', ']':
				depth--
				if depth == 0 {
					return nil
				}
			}
		}
		return r.errorf("unterminated container")
	case 't':
		if r.readLiteral("true") {
			return nil
		}
	case 'f':
		if r.readLiteral("false") {
			return nil
		}
	case 'n':
		if r.readLiteral("null") {
			return nil
		}
	case 0:
		return r.errorf("unexpected end of input")
	default:
		_, err := r.readNumber()
		return err
	}
	return r.errorf("invalid literal")
}

// scalar is a decoded primitive field value.
type scalar struct {
	kind byte // 's' string, 'n' number, 'b' bool, 'z' null
	str  string
	num  float64
	b    bool
}

func (r *reader) readScalar() (scalar, error) {
	switch c := r.peek(); c {
	case '"':
		s, err := r.readString()
		return scalar{kind: 's', str: s}, err
	case 't', 'f':
		if r.readLiteral("true") {
			return scalar{kind: 'b', b: true}, nil
		}
		if r.readLiteral("false") {
			return scalar{kind: 'b'}, nil
		}
		return scalar{}, r.errorf("invalid literal")
	case 'n':
		if r.readLiteral("null") {
			return scalar{kind: 'z'}, nil
		}
		return scalar{}, r.errorf("invalid literal")
	case '{', '[':
		return scalar{}, r.errorf("expected scalar, got %q", c)
	default:
		n, err := r.readNumber()
		return scalar{kind: 'n', num: n}, err
	}
}
