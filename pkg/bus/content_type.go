package bus

import (
	"errors"
	"fmt"
	"mime"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// HeaderContentType is the header consulted for content negotiation.
const HeaderContentType = "Content-Type"

// EnvelopeMediaType is used when the sender did not set a content type.
const EnvelopeMediaType = "application/vnd.gobus+json"

var (
	// ErrMalformedHeader is returned when a negotiation header is present but unusable.
	ErrMalformedHeader = errors.New("malformed header")

	// ErrUnknownCharset is returned when the charset parameter names no known encoding.
	ErrUnknownCharset = fmt.Errorf("%w: unknown charset", ErrMalformedHeader)
)

// DefaultContentType is the resolved content type of messages without a Content-Type header.
var DefaultContentType = &ContentType{MediaType: EnvelopeMediaType}

// ContentType is a parsed media type with its parameters.
type ContentType struct {
	MediaType string
	Params    map[string]string
}

// ParseContentType parses s as an RFC 2045 media type.
func ParseContentType(s string) (*ContentType, error) {
	mediaType, params, err := mime.ParseMediaType(s)
	if err != nil {
		return nil, fmt.Errorf("%w: content type %q: %v", ErrMalformedHeader, s, err)
	}
	return &ContentType{MediaType: mediaType, Params: params}, nil
}

// Charset returns the charset parameter, or "" when absent.
func (c *ContentType) Charset() string {
	return strings.TrimSpace(c.Params["charset"])
}

// IsEnvelope reports whether the content type is the bus envelope type.
func (c *ContentType) IsEnvelope() bool {
	return strings.EqualFold(c.MediaType, EnvelopeMediaType)
}

// IsJSON reports whether the media type carries a JSON document.
func (c *ContentType) IsJSON() bool {
	mt := strings.ToLower(c.MediaType)
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func (c *ContentType) String() string {
	return mime.FormatMediaType(c.MediaType, c.Params)
}

// resolveContentType looks up the Content-Type header and normalizes it.
func resolveContentType(h Headers) (*ContentType, error) {
	v, ok := h.TryGetHeader(HeaderContentType)
	if !ok {
		return DefaultContentType, nil
	}
	switch ct := v.(type) {
	case *ContentType:
		if ct == nil {
			return nil, fmt.Errorf("%w: nil content type", ErrMalformedHeader)
		}
		return ct, nil
	case ContentType:
		return &ct, nil
	case string:
		return ParseContentType(ct)
	case []byte:
		return ParseContentType(string(ct))
	default:
		return nil, fmt.Errorf("%w: content type of unsupported kind %T", ErrMalformedHeader, v)
	}
}

// resolveEncoding maps the charset of ct to a character encoding.
func resolveEncoding(ct *ContentType) (encoding.Encoding, error) {
	charset := ct.Charset()
	if charset == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownCharset, charset)
	}
	return enc, nil
}
