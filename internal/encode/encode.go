// Package encode detects and decodes the encodings legacy Basic sources
// ship in: Windows-1252 by default, UTF-8 (with or without BOM) as the
// modern fallback.
package encode

import (
	"bytes"
	"errors"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// ErrUndecodable is returned when the input decodes under neither the
// declared nor the fallback encoding. Per the error taxonomy this is a
// fatal file error: the file's pipeline aborts, the batch continues.
var ErrUndecodable = errors.New("encode: input is not decodable under any supported encoding")

const (
	NameUTF8        = "utf-8"
	NameUTF8BOM     = "utf-8-bom"
	NameWindows1252 = "windows-1252"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode sniffs the encoding of raw source bytes and returns decoded
// UTF-8 text plus the detected encoding name.
//
// Detection order: UTF-8 BOM, valid UTF-8, Windows-1252 fallback.
// UTF-16 BOMs are rejected: the legacy toolchain never produced them and
// decoding would silently halve the source.
func Decode(raw []byte) ([]byte, string, error) {
	if len(raw) >= 2 {
		if raw[0] == 0xFF && raw[1] == 0xFE || raw[0] == 0xFE && raw[1] == 0xFF {
			return nil, "", ErrUndecodable
		}
	}
	if bytes.HasPrefix(raw, utf8BOM) {
		body := raw[len(utf8BOM):]
		if !utf8.Valid(body) {
			return nil, "", ErrUndecodable
		}
		return body, NameUTF8BOM, nil
	}
	if utf8.Valid(raw) {
		return raw, NameUTF8, nil
	}
	decoded, err := decode1252(raw)
	if err != nil {
		return nil, "", ErrUndecodable
	}
	return decoded, NameWindows1252, nil
}

// decode1252 maps Windows-1252 bytes to UTF-8. The five code points
// undefined in Windows-1252 (0x81 0x8D 0x8F 0x90 0x9D) mark the input as
// binary rather than text.
func decode1252(raw []byte) ([]byte, error) {
	for _, b := range raw {
		switch b {
		case 0x81, 0x8D, 0x8F, 0x90, 0x9D:
			return nil, ErrUndecodable
		}
		// Embedded NUL bytes never occur in source text.
		if b == 0 {
			return nil, ErrUndecodable
		}
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, err
	}
	return out, nil
}
