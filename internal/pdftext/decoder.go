package pdftext

import (
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// DecodeContent returns the literal strings shown inside the BT/ET text
// objects of a content stream, in stream order. Strings outside text
// objects and unterminated strings are skipped.
func DecodeContent(stream []byte) []string {
	var parts []string
	inText := false
	for i := 0; i < len(stream); {
		c := stream[i]
		switch {
		case c == '(':
			lit, next, ok := readLiteral(stream, i)
			if !ok {
				return parts
			}
			if inText {
				parts = append(parts, decodeLatin1(lit))
			}
			i = next
		case c == '%':
			for i < len(stream) && stream[i] != '\n' && stream[i] != '\r' {
				i++
			}
		case isRegular(c):
			j := i
			for j < len(stream) && isRegular(stream[j]) {
				j++
			}
			switch string(stream[i:j]) {
			case "BT":
				inText = true
			case "ET":
				inText = false
			}
			i = j
		default:
			i++
		}
	}
	return parts
}

// PageText decodes a content stream and joins its non-empty strings with
// single spaces.
func PageText(stream []byte) string {
	return joinParts(DecodeContent(stream))
}

func joinParts(parts []string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// readLiteral decodes the literal string starting at the '(' at start.
// It returns the decoded bytes and the index just past the closing
// parenthesis, or ok=false when the string never closes.
func readLiteral(b []byte, start int) (out []byte, next int, ok bool) {
	depth := 1
	for j := start + 1; j < len(b); j++ {
		c := b[j]
		switch c {
		case '\\':
			if j+1 >= len(b) {
				return nil, len(b), false
			}
			j++
			e := b[j]
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '0', '1', '2', '3', '4', '5', '6', '7':
				v := 0
				k := j
				for ; k < len(b) && k < j+3 && b[k] >= '0' && b[k] <= '7'; k++ {
					v = v*8 + int(b[k]-'0')
				}
				out = append(out, byte(v))
				j = k - 1
			default:
				// \( \) \\ and any other escaped byte stand for themselves.
				out = append(out, e)
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out, j + 1, true
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return nil, len(b), false
}

func isRegular(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', 0,
		'(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return false
	}
	return true
}

// decodeLatin1 maps every byte to the code point of the same value. No
// font encoding or CMap is applied, so UTF-8 input comes out as mojibake.
func decodeLatin1(b []byte) string {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(s)
}
