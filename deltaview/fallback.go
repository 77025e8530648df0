package deltaview

import (
	"bytes"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// RenderFallback renders the first byteCap bytes of data as text when they
// decode as UTF-8 without NUL bytes, and as a hex dump otherwise.
// Callers pass up to byteCap+1 bytes so truncation can be reported.
func RenderFallback(data []byte, byteCap int) *RawPreview {
	window, truncated := clip(data, byteCap)
	if isText(window, truncated) {
		return textPreview(window, truncated)
	}
	return &RawPreview{
		Mode:      RawHex,
		Window:    window,
		Truncated: truncated,
		Text:      hex.Dump(window),
		Size:      -1,
	}
}

// RenderText renders the first byteCap bytes of data as text, replacing
// invalid UTF-8 sequences. reason records why a table was not produced.
func RenderText(data []byte, byteCap int, reason string) *RawPreview {
	window, truncated := clip(data, byteCap)
	p := textPreview(window, truncated)
	p.Reason = reason
	return p
}

func textPreview(window []byte, truncated bool) *RawPreview {
	text := window
	if truncated {
		text = trimPartialRune(text)
	}
	return &RawPreview{
		Mode:      RawText,
		Window:    window,
		Truncated: truncated,
		Text:      strings.ToValidUTF8(string(text), "\uFFFD"),
		Size:      -1,
	}
}

func clip(data []byte, byteCap int) ([]byte, bool) {
	if byteCap < 0 {
		byteCap = 0
	}
	if len(data) > byteCap {
		return data[:byteCap], true
	}
	return data, false
}

func isText(window []byte, truncated bool) bool {
	if bytes.IndexByte(window, 0) >= 0 {
		return false
	}
	if truncated {
		window = trimPartialRune(window)
	}
	return utf8.Valid(window)
}

// trimPartialRune drops an incomplete UTF-8 sequence cut off at the end of b.
func trimPartialRune(b []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		if !utf8.RuneStart(b[len(b)-i]) {
			continue
		}
		if !utf8.FullRune(b[len(b)-i:]) {
			return b[:len(b)-i]
		}
		return b
	}
	return b
}
