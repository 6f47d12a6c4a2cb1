// Package multipart builds the fixed two-part multipart/form-data body used by
// the photo upload: one text field followed by one JPEG file field.
//
// The layout is byte-exact and its length is known before encoding, so the
// content-length header can be computed without buffering twice. The boundary
// is never searched for inside the binary payload; callers pick a token that
// does not occur in JPEG data.
package multipart

import (
	"errors"
	"fmt"
	"mime"
)

// DefaultBoundary is the token the device firmware always used.
const DefaultBoundary = "X-ESPIDF_MULTIPART"

const (
	crlf            = "\r\n"
	dashes          = "--"
	dispositionHead = `Content-Disposition: form-data; name="`
	filenameAttr    = `"; filename="`
	quoteCRLF       = `"` + crlf
	imageJPEGHeader = "Content-Type: image/jpeg" + crlf
)

var ErrInvalidBoundary = errors.New("invalid multipart boundary")

// TextField is a plain form value.
type TextField struct {
	Name  string
	Value string
}

// BinaryField is a file part; Value is copied verbatim.
type BinaryField struct {
	Name     string
	Filename string
	Value    []byte
}

// ContentType is the header value announcing boundary. The boundary is quoted
// when it holds characters that are not allowed in an unquoted parameter.
func ContentType(boundary string) string {
	return mime.FormatMediaType("multipart/form-data", map[string]string{"boundary": boundary})
}

// EncodedLength is the exact size Encode will produce.
func EncodedLength(boundary string, text TextField, bin BinaryField) int {
	delim := len(dashes) + len(boundary) + len(crlf)

	n := delim
	n += len(dispositionHead) + len(text.Name) + len(quoteCRLF)
	n += len(crlf)
	n += len(text.Value) + len(crlf)

	n += delim
	n += len(dispositionHead) + len(bin.Name) + len(filenameAttr) + len(bin.Filename) + len(quoteCRLF)
	n += len(imageJPEGHeader)
	n += len(crlf)
	n += len(bin.Value) + len(crlf)

	n += len(dashes) + len(boundary) + len(dashes) + len(crlf)
	return n
}

// Encode serializes both fields.
func Encode(boundary string, text TextField, bin BinaryField) []byte {
	return AppendEncode(make([]byte, 0, EncodedLength(boundary, text, bin)), boundary, text, bin)
}

// AppendEncode appends the encoded body to dst.
func AppendEncode(dst []byte, boundary string, text TextField, bin BinaryField) []byte {
	dst = appendDelimiter(dst, boundary)
	dst = append(dst, dispositionHead...)
	dst = append(dst, text.Name...)
	dst = append(dst, quoteCRLF...)
	dst = append(dst, crlf...)
	dst = append(dst, text.Value...)
	dst = append(dst, crlf...)

	dst = appendDelimiter(dst, boundary)
	dst = append(dst, dispositionHead...)
	dst = append(dst, bin.Name...)
	dst = append(dst, filenameAttr...)
	dst = append(dst, bin.Filename...)
	dst = append(dst, quoteCRLF...)
	dst = append(dst, imageJPEGHeader...)
	dst = append(dst, crlf...)
	dst = append(dst, bin.Value...)
	dst = append(dst, crlf...)

	dst = append(dst, dashes...)
	dst = append(dst, boundary...)
	dst = append(dst, dashes...)
	dst = append(dst, crlf...)
	return dst
}

func appendDelimiter(dst []byte, boundary string) []byte {
	dst = append(dst, dashes...)
	dst = append(dst, boundary...)
	return append(dst, crlf...)
}

// ValidateBoundary checks the RFC 2046 rules: 1 to 70 characters from the
// bchars set, not ending in a space.
func ValidateBoundary(boundary string) error {
	if len(boundary) == 0 || len(boundary) > 70 {
		return fmt.Errorf("%w: length %d not in 1..70", ErrInvalidBoundary, len(boundary))
	}
	for i := 0; i < len(boundary); i++ {
		if !isBChar(boundary[i]) {
			return fmt.Errorf("%w: character %q at %d", ErrInvalidBoundary, boundary[i], i)
		}
	}
	if boundary[len(boundary)-1] == ' ' {
		return fmt.Errorf("%w: trailing space", ErrInvalidBoundary)
	}
	return nil
}

func isBChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '\'', '(', ')', '+', '_', ',', '-', '.', '/', ':', '=', '?', ' ':
		return true
	}
	return false
}
