package pdfsvc

import (
	"bytes"
	"strconv"
	"strings"
	"unicode"
)

// kerning below this (thousandths of an em) is rendered as a space
const wordGap = -200

// ContentText returns the text shown by a page content stream.
// Only the text operators are interpreted; strings are assumed to use a simple encoding.
func ContentText(stream []byte) string {
	var (
		out     strings.Builder
		line    strings.Builder
		pending []string
		inArray bool
		array   strings.Builder
	)
	newline := func() {
		if s := strings.TrimSpace(line.String()); s != "" {
			out.WriteString(s)
			out.WriteByte('\n')
		}
		line.Reset()
	}

	for i := 0; i < len(stream); {
		c := stream[i]
		switch {
		case c == '%':
			for i < len(stream) && stream[i] != '\n' && stream[i] != '\r' {
				i++
			}
		case c == '(':
			s, n := literalString(stream[i:])
			i += n
			if inArray {
				array.WriteString(s)
			} else {
				pending = append(pending, s)
			}
		case c == '<' && i+1 < len(stream) && stream[i+1] != '<':
			s, n := hexString(stream[i:])
			i += n
			if inArray {
				array.WriteString(s)
			} else {
				pending = append(pending, s)
			}
		case c == '[':
			inArray = true
			array.Reset()
			i++
		case c == ']':
			inArray = false
			pending = append(pending, array.String())
			i++
		case isSpace(c):
			i++
		default:
			start := i
			for i < len(stream) && !isSpace(stream[i]) && !isDelimiter(stream[i]) {
				i++
			}
			if i == start {
				i++
				continue
			}
			tok := string(stream[start:i])
			if inArray {
				if f, err := strconv.ParseFloat(tok, 64); err == nil && f < wordGap {
					array.WriteByte(' ')
				}
				continue
			}
			switch tok {
			case "Tj", "TJ":
				line.WriteString(strings.Join(pending, ""))
			case "'", "\"":
				newline()
				line.WriteString(strings.Join(pending, ""))
			case "Td", "TD", "T*", "Tm", "ET":
				newline()
			}
			if isOperator(tok) {
				pending = pending[:0]
			}
		}
	}
	newline()
	return strings.TrimSpace(out.String())
}

func literalString(b []byte) (string, int) {
	var s strings.Builder
	depth := 0
	i := 0
	for i < len(b) {
		c := b[i]
		switch c {
		case '(':
			depth++
			if depth > 1 {
				s.WriteByte(c)
			}
		case ')':
			depth--
			if depth == 0 {
				return s.String(), i + 1
			}
			s.WriteByte(c)
		case '\\':
			i++
			if i >= len(b) {
				break
			}
			switch e := b[i]; e {
			case 'n':
				s.WriteByte('\n')
			case 'r':
				s.WriteByte('\r')
			case 't':
				s.WriteByte('\t')
			case 'b', 'f':
			case '\r', '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					j := i
					for j < len(b) && j < i+3 && b[j] >= '0' && b[j] <= '7' {
						j++
					}
					v, _ := strconv.ParseUint(string(b[i:j]), 8, 8)
					s.WriteRune(rune(v))
					i = j - 1
				} else {
					s.WriteByte(e)
				}
			}
		default:
			s.WriteByte(c)
		}
		i++
	}
	return s.String(), len(b)
}

func hexString(b []byte) (string, int) {
	end := bytes.IndexByte(b, '>')
	if end < 0 {
		return "", len(b)
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.Is(unicode.ASCII_Hex_Digit, r) {
			return r
		}
		return -1
	}, string(b[1:end]))
	if len(digits)%2 == 1 {
		digits += "0"
	}
	var s strings.Builder
	for k := 0; k+1 < len(digits); k += 2 {
		v, _ := strconv.ParseUint(digits[k:k+2], 16, 8)
		s.WriteRune(rune(v))
	}
	return s.String(), end + 1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDelimiter(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func isOperator(tok string) bool {
	if tok == "" {
		return false
	}
	if _, err := strconv.ParseFloat(tok, 64); err == nil {
		return false
	}
	return tok != "true" && tok != "false" && tok != "null"
}

// readable rejects text decoded from fonts with custom encodings.
func readable(text string) bool {
	var letters, total int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsPunct(r) {
			letters++
		}
	}
	return total > 0 && letters*10 >= total*7
}
