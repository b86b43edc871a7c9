package parsers

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	pkgerrors "statement-reconciler/pkg/errors"
)

// Encoding names a statement file text encoding.
type Encoding string

const (
	EncodingAuto        Encoding = "auto"
	EncodingUTF8        Encoding = "utf-8"
	EncodingUTF8BOM     Encoding = "utf-8-bom"
	EncodingUTF16       Encoding = "utf-16"
	EncodingWindows1252 Encoding = "windows-1252"
	EncodingISO88591    Encoding = "iso-8859-1"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// ParseEncoding accepts the usual spellings; empty means auto.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return EncodingAuto, nil
	case "utf-8", "utf8":
		return EncodingUTF8, nil
	case "utf-8-bom", "utf8-bom", "utf-8-sig":
		return EncodingUTF8BOM, nil
	case "utf-16", "utf16":
		return EncodingUTF16, nil
	case "windows-1252", "cp1252", "win1252":
		return EncodingWindows1252, nil
	case "iso-8859-1", "latin1", "latin-1", "iso8859-1":
		return EncodingISO88591, nil
	default:
		return "", fmt.Errorf("unsupported encoding %q", name)
	}
}

// Decode converts raw file content to UTF-8 text. With EncodingAuto a BOM
// decides first, then valid UTF-8 is taken as is and anything else is read
// as Windows-1252. The returned Encoding is the one actually applied.
func Decode(content []byte, enc Encoding) (string, Encoding, error) {
	enc, err := ParseEncoding(string(enc))
	if err != nil {
		return "", "", pkgerrors.Wrap(err, pkgerrors.CategoryParse, pkgerrors.CodeEncodingError, "cannot decode statement")
	}

	if enc == EncodingAuto {
		enc = detect(content)
	}

	switch enc {
	case EncodingUTF8, EncodingUTF8BOM:
		text := bytes.TrimPrefix(content, bomUTF8)
		if !utf8.Valid(text) {
			return "", enc, pkgerrors.New(pkgerrors.CategoryParse, pkgerrors.CodeEncodingError, "statement is not valid UTF-8").
				WithSuggestion("set the format profile encoding to windows-1252 or auto")
		}
		return string(text), enc, nil
	case EncodingUTF16:
		return decodeWith(content, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), enc)
	case EncodingWindows1252:
		return decodeWith(content, charmap.Windows1252, enc)
	case EncodingISO88591:
		return decodeWith(content, charmap.ISO8859_1, enc)
	}
	return "", enc, pkgerrors.New(pkgerrors.CategoryParse, pkgerrors.CodeEncodingError,
		fmt.Sprintf("unsupported encoding %q", enc))
}

func detect(content []byte) Encoding {
	switch {
	case bytes.HasPrefix(content, bomUTF8):
		return EncodingUTF8BOM
	case bytes.HasPrefix(content, bomUTF16LE), bytes.HasPrefix(content, bomUTF16BE):
		return EncodingUTF16
	case utf8.Valid(content):
		return EncodingUTF8
	default:
		return EncodingWindows1252
	}
}

func decodeWith(content []byte, e encoding.Encoding, enc Encoding) (string, Encoding, error) {
	text, _, err := transform.Bytes(e.NewDecoder(), content)
	if err != nil {
		return "", enc, pkgerrors.Wrap(err, pkgerrors.CategoryParse, pkgerrors.CodeEncodingError,
			fmt.Sprintf("cannot decode statement as %s", enc))
	}
	return string(text), enc, nil
}
