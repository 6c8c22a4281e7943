package feed

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

const defaultEncoding = "utf-8"

var xmlDeclEncoding = regexp.MustCompile(`^\s*<\?xml[^>]*\sencoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// DetectEncoding names the encoding a feed document was published in. A byte
// order mark or a charset in the Content-Type header wins, then the XML
// declaration, then UTF-8.
func DetectEncoding(data []byte, contentType string) string {
	if _, name, certain := charset.DetermineEncoding(data, contentType); certain && name != "" {
		return name
	}

	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if m := xmlDeclEncoding.FindSubmatch(head); m != nil {
		if _, name := charset.Lookup(string(m[1])); name != "" {
			return name
		}
	}

	return defaultEncoding
}

// Reencoder maps text into a target encoding and back, replacing every rune
// the encoding cannot represent with a numeric character reference.
type Reencoder struct {
	name string
	enc  encoding.Encoding
}

func NewReencoder(label string) (*Reencoder, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, err
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		name = strings.ToLower(label)
	}
	return &Reencoder{name: name, enc: enc}, nil
}

func (r *Reencoder) Name() string {
	return r.name
}

func (r *Reencoder) String(s string) string {
	if s == "" {
		return s
	}
	if r.name == defaultEncoding {
		return strings.ToValidUTF8(s, string(utf8.RuneError))
	}

	encoded, err := encoding.HTMLEscapeUnsupported(r.enc.NewEncoder()).String(s)
	if err != nil {
		return strings.ToValidUTF8(s, string(utf8.RuneError))
	}
	decoded, err := r.enc.NewDecoder().String(encoded)
	if err != nil {
		return strings.ToValidUTF8(s, string(utf8.RuneError))
	}
	return decoded
}
