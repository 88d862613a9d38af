package codec

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/roach88/brp/internal/value"
)

// MarshalRON renders a value tree as RON text.
//
// Objects whose keys are all identifiers become structs "(x:1,y:2)"; other
// objects become maps {"k":v}. Null becomes None.
func MarshalRON(v value.Value) string {
	var b strings.Builder
	writeRON(&b, v)
	return b.String()
}

func writeRON(b *strings.Builder, v value.Value) {
	switch x := v.(type) {
	case nil, value.Null:
		b.WriteString("None")
	case value.Bool:
		b.WriteString(strconv.FormatBool(bool(x)))
	case value.Number:
		b.WriteString(string(x))
	case value.String:
		writeRONString(b, string(x))
	case value.Array:
		b.WriteByte('[')
		for i, elem := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			writeRON(b, elem)
		}
		b.WriteByte(']')
	case value.Object:
		keys := x.SortedKeys()
		structLike := len(keys) > 0
		for _, k := range keys {
			if !isIdent(k) {
				structLike = false
				break
			}
		}
		lb, rb := byte('{'), byte('}')
		if structLike {
			lb, rb = '(', ')'
		}
		b.WriteByte(lb)
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			if structLike {
				b.WriteString(k)
			} else {
				writeRONString(b, k)
			}
			b.WriteByte(':')
			writeRON(b, x[k])
		}
		b.WriteByte(rb)
	}
}

func writeRONString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(b, `\u{%x}`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r < utf8.RuneSelf && isIdentStart(byte(r)) {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}

// UnmarshalRON parses RON text into a value tree.
//
// Structs and maps become objects (a struct's name is dropped), tuples and
// lists become arrays, unit "()" and None become null, Some(x) becomes x,
// a newtype variant Name(x) becomes {"Name": x} and a unit variant Name
// becomes the string "Name".
func UnmarshalRON(text string) (value.Value, error) {
	p := &ronParser{src: text}
	p.skipExtensions()
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected trailing input")
	}
	return v, nil
}

type ronParser struct {
	src string
	pos int
}

func (p *ronParser) errorf(format string, args ...any) error {
	line, col := 1, 1
	for _, r := range p.src[:min(p.pos, len(p.src))] {
		if r == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return fmt.Errorf("ron %d:%d: %s", line, col, fmt.Sprintf(format, args...))
}

func (p *ronParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *ronParser) skipSpace() {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			p.pos++
		case strings.HasPrefix(p.src[p.pos:], "//"):
			if i := strings.IndexByte(p.src[p.pos:], '\n'); i >= 0 {
				p.pos += i + 1
			} else {
				p.pos = len(p.src)
			}
		case strings.HasPrefix(p.src[p.pos:], "/*"):
			if i := strings.Index(p.src[p.pos+2:], "*/"); i >= 0 {
				p.pos += i + 4
			} else {
				p.pos = len(p.src)
			}
		default:
			return
		}
	}
}

// skipExtensions ignores leading #![enable(...)] attributes.
func (p *ronParser) skipExtensions() {
	for {
		p.skipSpace()
		if !strings.HasPrefix(p.src[p.pos:], "#!") {
			return
		}
		i := strings.IndexByte(p.src[p.pos:], ']')
		if i < 0 {
			p.pos = len(p.src)
			return
		}
		p.pos += i + 1
	}
}

func (p *ronParser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		if p.pos >= len(p.src) {
			return p.errorf("expected %q, got end of input", c)
		}
		return p.errorf("expected %q, got %q", c, p.peek())
	}
	p.pos++
	return nil
}

func (p *ronParser) parseValue() (value.Value, error) {
	p.skipSpace()
	c := p.peek()
	switch {
	case c == 0:
		return nil, p.errorf("unexpected end of input")
	case c == '(':
		return p.parseParen("")
	case c == '[':
		return p.parseList()
	case c == '{':
		return p.parseMap()
	case c == '"':
		s, err := p.parseString()
		return value.String(s), err
	case c == '\'':
		return p.parseChar()
	case c == 'r' && (strings.HasPrefix(p.src[p.pos:], `r"`) || strings.HasPrefix(p.src[p.pos:], `r#`)):
		s, err := p.parseRawString()
		return value.String(s), err
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	case isIdentStart(c):
		return p.parseIdentValue()
	default:
		return nil, p.errorf("unexpected character %q", c)
	}
}

func (p *ronParser) parseIdent() string {
	start := p.pos
	if !isIdentStart(p.peek()) {
		return ""
	}
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if isIdentStart(c) || (c >= '0' && c <= '9') {
			p.pos++
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func (p *ronParser) parseIdentValue() (value.Value, error) {
	ident := p.parseIdent()
	switch ident {
	case "true":
		return value.Bool(true), nil
	case "false":
		return value.Bool(false), nil
	case "None":
		return value.Null{}, nil
	case "inf", "NaN":
		return nil, p.errorf("%s cannot be represented", ident)
	}
	p.skipSpace()
	if p.peek() == '(' {
		return p.parseParen(ident)
	}
	return value.String(ident), nil
}

// parseParen parses "(...)": a struct with named fields, a tuple, or the
// payload of a named variant.
func (p *ronParser) parseParen(name string) (value.Value, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
		if name == "" {
			return value.Null{}, nil
		}
		return value.Object{}, nil
	}

	if p.atFieldName() {
		obj := value.Object{}
		for {
			p.skipSpace()
			if p.peek() == ')' {
				p.pos++
				return obj, nil
			}
			key := p.parseIdent()
			if key == "" {
				return nil, p.errorf("expected field name")
			}
			if err := p.expect(':'); err != nil {
				return nil, err
			}
			v, err := p.parseValue()
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", key, err)
			}
			obj[key] = v
			if done, err := p.separator(')'); err != nil {
				return nil, err
			} else if done {
				return obj, nil
			}
		}
	}

	var items value.Array
	for {
		p.skipSpace()
		if p.peek() == ')' {
			p.pos++
			break
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		done, err := p.separator(')')
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}

	switch {
	case name == "Some" && len(items) == 1:
		return items[0], nil
	case name == "" && len(items) == 1:
		return items[0], nil
	case name == "":
		return items, nil
	case len(items) == 1:
		return value.Object{name: items[0]}, nil
	default:
		return value.Object{name: items}, nil
	}
}

// atFieldName reports whether the input continues with "ident:" (but not
// "ident::").
func (p *ronParser) atFieldName() bool {
	save := p.pos
	defer func() { p.pos = save }()
	if p.parseIdent() == "" {
		return false
	}
	p.skipSpace()
	return p.peek() == ':' && !strings.HasPrefix(p.src[p.pos:], "::")
}

// separator consumes a comma or the closing delimiter. done is true when
// the closing delimiter was consumed.
func (p *ronParser) separator(closing byte) (done bool, err error) {
	p.skipSpace()
	switch p.peek() {
	case ',':
		p.pos++
		return false, nil
	case closing:
		p.pos++
		return true, nil
	case 0:
		return false, p.errorf("expected ',' or %q, got end of input", closing)
	default:
		return false, p.errorf("expected ',' or %q, got %q", closing, p.peek())
	}
}

func (p *ronParser) parseList() (value.Value, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	items := value.Array{}
	for {
		p.skipSpace()
		if p.peek() == ']' {
			p.pos++
			return items, nil
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", len(items), err)
		}
		items = append(items, v)
		if done, err := p.separator(']'); err != nil {
			return nil, err
		} else if done {
			return items, nil
		}
	}
}

func (p *ronParser) parseMap() (value.Value, error) {
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	obj := value.Object{}
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return obj, nil
		}
		k, err := p.parseValue()
		if err != nil {
			return nil, fmt.Errorf("map key: %w", err)
		}
		var key string
		switch kv := k.(type) {
		case value.String:
			key = string(kv)
		case value.Number:
			key = string(kv)
		case value.Bool:
			key = strconv.FormatBool(bool(kv))
		default:
			return nil, p.errorf("map keys must be strings, numbers or booleans")
		}
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, fmt.Errorf("map value %q: %w", key, err)
		}
		obj[key] = v
		if done, err := p.separator('}'); err != nil {
			return nil, err
		} else if done {
			return obj, nil
		}
	}
}

func (p *ronParser) parseNumber() (value.Value, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') ||
			c == '.' || c == '-' || c == '+' || c == '_' || c == 'x' || c == 'o' {
			p.pos++
			continue
		}
		break
	}
	lit := strings.ReplaceAll(p.src[start:p.pos], "_", "")
	if strings.HasSuffix(lit, "inf") || strings.HasSuffix(lit, "NaN") {
		return nil, p.errorf("%s cannot be represented", lit)
	}

	sign := ""
	body := lit
	if body != "" && (body[0] == '-' || body[0] == '+') {
		if body[0] == '-' {
			sign = "-"
		}
		body = body[1:]
	}
	for _, prefix := range []struct {
		p    string
		base int
	}{{"0x", 16}, {"0o", 8}, {"0b", 2}} {
		if strings.HasPrefix(body, prefix.p) {
			n, err := strconv.ParseUint(body[2:], prefix.base, 64)
			if err != nil {
				return nil, p.errorf("invalid number %q", lit)
			}
			return value.Number(sign + strconv.FormatUint(n, 10)), nil
		}
	}

	if strings.HasPrefix(body, ".") {
		body = "0" + body
	}
	if strings.HasSuffix(body, ".") {
		body += "0"
	}
	if _, err := strconv.ParseFloat(body, 64); err != nil {
		return nil, p.errorf("invalid number %q", lit)
	}
	return value.Number(sign + body), nil
}

func (p *ronParser) parseString() (string, error) {
	if err := p.expect('"'); err != nil {
		return "", err
	}
	var b strings.Builder
	for {
		if p.pos >= len(p.src) {
			return "", p.errorf("unterminated string")
		}
		c := p.src[p.pos]
		switch c {
		case '"':
			p.pos++
			return b.String(), nil
		case '\\':
			r, err := p.parseEscape()
			if err != nil {
				return "", err
			}
			b.WriteRune(r)
		default:
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			b.WriteRune(r)
			p.pos += size
		}
	}
}

func (p *ronParser) parseEscape() (rune, error) {
	p.pos++ // backslash
	if p.pos >= len(p.src) {
		return 0, p.errorf("unterminated escape")
	}
	c := p.src[p.pos]
	p.pos++
	switch c {
	case '"', '\\', '/', '\'':
		return rune(c), nil
	case 'n':
		return '\n', nil
	case 'r':
		return '\r', nil
	case 't':
		return '\t', nil
	case 'b':
		return '\b', nil
	case 'f':
		return '\f', nil
	case '0':
		return 0, nil
	case 'x':
		return p.parseHex(2)
	case 'u':
		if p.peek() == '{' {
			end := strings.IndexByte(p.src[p.pos:], '}')
			if end < 0 {
				return 0, p.errorf("unterminated unicode escape")
			}
			n, err := strconv.ParseUint(p.src[p.pos+1:p.pos+end], 16, 32)
			if err != nil {
				return 0, p.errorf("invalid unicode escape")
			}
			p.pos += end + 1
			return rune(n), nil
		}
		return p.parseHex(4)
	default:
		return 0, p.errorf("unknown escape \\%c", c)
	}
}

func (p *ronParser) parseHex(n int) (rune, error) {
	if p.pos+n > len(p.src) {
		return 0, p.errorf("short hex escape")
	}
	v, err := strconv.ParseUint(p.src[p.pos:p.pos+n], 16, 32)
	if err != nil {
		return 0, p.errorf("invalid hex escape")
	}
	p.pos += n
	return rune(v), nil
}

func (p *ronParser) parseRawString() (string, error) {
	p.pos++ // r
	hashes := 0
	for p.peek() == '#' {
		hashes++
		p.pos++
	}
	if p.peek() != '"' {
		return "", p.errorf("expected '\"' in raw string")
	}
	p.pos++
	terminator := `"` + strings.Repeat("#", hashes)
	end := strings.Index(p.src[p.pos:], terminator)
	if end < 0 {
		return "", p.errorf("unterminated raw string")
	}
	s := p.src[p.pos : p.pos+end]
	p.pos += end + len(terminator)
	return s, nil
}

func (p *ronParser) parseChar() (value.Value, error) {
	p.pos++ // opening quote
	var r rune
	if p.peek() == '\\' {
		var err error
		if r, err = p.parseEscape(); err != nil {
			return nil, err
		}
	} else {
		var size int
		r, size = utf8.DecodeRuneInString(p.src[p.pos:])
		p.pos += size
	}
	if p.peek() != '\'' {
		return nil, p.errorf("unterminated char literal")
	}
	p.pos++
	return value.String(string(r)), nil
}
