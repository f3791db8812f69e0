package proto

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// Negotiation errors.
var (
	ErrUnsupportedEncoding    = errors.New("unsupported encoding")
	ErrUnsupportedVersion     = errors.New("unsupported protocol version")
	ErrUnsupportedCompression = errors.New("unsupported compression")
)

const (
	// DefaultVersion is assumed when the client sends no "v".
	DefaultVersion = 6
	MinVersion     = 3
	MaxVersion     = 9
)

// Compression is the transport compression mode negotiated in the URI.
type Compression string

const (
	CompressionNone       Compression = ""
	CompressionZlibStream Compression = "zlib-stream"
)

// Negotiation holds the connection parameters from the gateway URI.
type Negotiation struct {
	Encoding    string
	Version     int
	Compression Compression
}

// ParseNegotiation reads encoding, v and compress from the query string.
func ParseNegotiation(q url.Values) (Negotiation, error) {
	n := Negotiation{Encoding: "json", Version: DefaultVersion}

	if enc := q.Get("encoding"); enc != "" && enc != "json" {
		return n, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, enc)
	}

	if raw := q.Get("v"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < MinVersion || v > MaxVersion {
			return n, fmt.Errorf("%w: %q", ErrUnsupportedVersion, raw)
		}
		n.Version = v
	}

	switch c := Compression(q.Get("compress")); c {
	case CompressionNone, CompressionZlibStream:
		n.Compression = c
	default:
		return n, fmt.Errorf("%w: %q", ErrUnsupportedCompression, c)
	}

	return n, nil
}
