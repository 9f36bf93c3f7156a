package bridge

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Response is the single completion of a bridge message.
type Response struct {
	ID    string
	Value string
	Err   *EncodedError
}

// OK reports whether the response is a success.
func (r Response) OK() bool {
	return r.Err == nil
}

// Script renders the response as the JavaScript evaluated in the renderer.
func (r Response) Script() string {
	if r.Err != nil {
		return "MiniAppBridge.execErrorCallback(" + QuoteJS(r.ID) + ", " + QuoteJS(r.Err.JSON()) + ")"
	}
	return "MiniAppBridge.execSuccessCallback(" + QuoteJS(r.ID) + ", " + QuoteJS(r.Value) + ")"
}

// QuoteJS returns s as a double-quoted JavaScript string literal that is also
// safe inside an HTML script element.
func QuoteJS(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
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
		case '<':
			b.WriteString(`\u003c`)
		case '>':
			b.WriteString(`\u003e`)
		case '&':
			b.WriteString(`\u0026`)
		case '\u2028':
			b.WriteString(`\u2028`)
		case '\u2029':
			b.WriteString(`\u2029`)
		default:
			if r < 0x20 || r == 0x7f {
				b.WriteString(`\u00`)
				hex := strconv.FormatInt(int64(r), 16)
				if len(hex) == 1 {
					b.WriteByte('0')
				}
				b.WriteString(hex)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
