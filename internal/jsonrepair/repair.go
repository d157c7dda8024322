// Package jsonrepair recovers structured data from free-form model output
// that is supposed to contain a single JSON object. Model replies commonly
// arrive wrapped in a Markdown code fence and carry structural defects such
// as trailing commas, raw newlines inside string literals or a missing
// closing brace. This package strips the fence, attempts a strict parse and
// falls back to a best-effort structural repair. It never fabricates a
// value: if the repaired text still does not parse, the caller gets an
// error.
package jsonrepair

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnparseable is returned when the text cannot be coerced into valid
// JSON even after repair.
var ErrUnparseable = errors.New("jsonrepair: unparseable model output")

// Parse extracts the JSON object embedded in raw and unmarshals it into v.
func Parse(raw string, v any) error {
	text := StripFence(raw)
	if text == "" {
		return fmt.Errorf("%w: empty input", ErrUnparseable)
	}
	if json.Valid([]byte(text)) {
		return json.Unmarshal([]byte(text), v)
	}
	repaired := Repair(text)
	if !json.Valid([]byte(repaired)) {
		return ErrUnparseable
	}
	return json.Unmarshal([]byte(repaired), v)
}

// StripFence removes a surrounding Markdown code fence if present. The
// content is taken from the end of the opening fence line to the last fence
// marker, so fence sequences inside string values do not truncate the body.
func StripFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	nl := strings.IndexByte(text, '\n')
	if nl < 0 {
		// Single-line fence, e.g. "```json {...} ```".
		body := strings.TrimPrefix(text, "```json")
		body = strings.TrimPrefix(body, "```")
		if end := strings.LastIndex(body, "```"); end >= 0 {
			body = body[:end]
		}
		return strings.TrimSpace(body)
	}
	body := text[nl+1:]
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// Repair runs a single-pass structural fix over almost-JSON text. It
// escapes raw control characters inside strings, closes an unterminated
// final string, drops trailing commas and appends missing closing brackets.
// It does not invent keys or values.
func Repair(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 8)
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			if escaped {
				b.WriteByte(c)
				escaped = false
				continue
			}
			switch {
			case c == '\\':
				escaped = true
				b.WriteByte(c)
			case c == '"':
				inString = false
				b.WriteByte(c)
			case c == '\n':
				b.WriteString(`\n`)
			case c == '\r':
				b.WriteString(`\r`)
			case c == '\t':
				b.WriteString(`\t`)
			case c < 0x20:
				fmt.Fprintf(&b, `\u%04x`, c)
			default:
				b.WriteByte(c)
			}
			continue
		}
		switch c {
		case '"':
			inString = true
			b.WriteByte(c)
		case '{':
			stack = append(stack, '}')
			b.WriteByte(c)
		case '[':
			stack = append(stack, ']')
			b.WriteByte(c)
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
			b.WriteByte(c)
		case ',':
			// Drop the comma when the next significant character closes the
			// container, or when nothing follows at all.
			j := i + 1
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			if j >= len(text) || text[j] == '}' || text[j] == ']' {
				continue
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}

	if inString {
		if escaped {
			// A dangling backslash would escape our closing quote.
			b.WriteByte('\\')
		}
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
