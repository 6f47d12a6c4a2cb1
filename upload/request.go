package upload

import (
	"strconv"
	"strings"

	"github.com/chilic/espcam-go/multipart"
)

// Header is one request header. Order is preserved on the wire.
type Header struct {
	Name  string
	Value string
}

// Request is a single POST. Treat it as immutable once built.
type Request struct {
	URL     string
	Headers []Header
	Body    []byte
}

// NewRequest builds the multipart POST with a content-length matching body.
func NewRequest(url, boundary string, body []byte) Request {
	return Request{
		URL: url,
		Headers: []Header{
			{Name: "accept", Value: "*/*"},
			{Name: "content-type", Value: multipart.ContentType(boundary)},
			{Name: "connection", Value: "close"},
			{Name: "content-length", Value: strconv.Itoa(len(body))},
		},
		Body: body,
	}
}

// Header returns the first value for name, compared case-insensitively.
func (r Request) Header(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}
