// Package kmz turns KMZ/KML survey files into map geometry.
//
// The pipeline runs in three steps:
//   - [ExtractMarkup] unpacks the KML document from a KMZ archive (or passes KML through)
//   - [ParsePlacemarks] walks the XML and collects every Placemark in document order
//   - [Extract] converts placemark coordinates into Point, Polyline and Polygon geometries
//
// [Parse] runs all three.
package kmz

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Format is the container format of a survey file.
type Format string

const (
	FormatUnknown Format = ""
	FormatKMZ     Format = "kmz"
	FormatKML     Format = "kml"
)

// DefaultMaxMarkupBytes caps how much KML is decompressed from a single archive.
const DefaultMaxMarkupBytes = 64 << 20

var zipMagic = []byte("PK\x03\x04")

// Markup is the KML document extracted from a survey file.
type Markup struct {
	Entry string // archive entry name, or the file name for plain KML
	Data  []byte
}

type options struct {
	maxBytes int64
}

// Option configures markup extraction.
type Option func(*options)

// WithMaxMarkupBytes overrides DefaultMaxMarkupBytes. n <= 0 keeps the default.
func WithMaxMarkupBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBytes = n
		}
	}
}

// FormatOf returns the format implied by the file extension.
func FormatOf(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".kmz":
		return FormatKMZ
	case ".kml":
		return FormatKML
	}
	return FormatUnknown
}

// DetectFormat uses the extension when it is known and sniffs the content otherwise.
func DetectFormat(data []byte, filename string) Format {
	if f := FormatOf(filename); f != FormatUnknown {
		return f
	}
	if bytes.HasPrefix(data, zipMagic) {
		return FormatKMZ
	}
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '<' {
		return FormatKML
	}
	return FormatUnknown
}

// ExtractMarkup returns the KML document held in data.
// KMZ archives yield their first .kml entry; KML input is returned as is.
func ExtractMarkup(data []byte, filename string, opts ...Option) (Markup, error) {
	o := options{maxBytes: DefaultMaxMarkupBytes}
	for _, opt := range opts {
		opt(&o)
	}

	switch DetectFormat(data, filename) {
	case FormatKMZ:
		return extractFromZip(data, o.maxBytes)
	case FormatKML:
		if int64(len(data)) > o.maxBytes {
			return Markup{}, fmt.Errorf("%w: %d bytes", ErrMarkupTooLarge, len(data))
		}
		return Markup{Entry: filepath.Base(filename), Data: data}, nil
	}
	return Markup{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
}

func extractFromZip(data []byte, maxBytes int64) (Markup, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Markup{}, fmt.Errorf("%w: %v", ErrArchiveCorrupt, err)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".kml") {
			continue
		}
		if f.UncompressedSize64 > uint64(maxBytes) {
			return Markup{}, fmt.Errorf("%w: %s is %d bytes", ErrMarkupTooLarge, f.Name, f.UncompressedSize64)
		}

		rc, err := f.Open()
		if err != nil {
			return Markup{}, fmt.Errorf("%w: open %s: %v", ErrArchiveCorrupt, f.Name, err)
		}
		defer rc.Close()

		// The header size can lie; read one byte past the cap to find out.
		body, err := io.ReadAll(io.LimitReader(rc, maxBytes+1))
		if err != nil {
			return Markup{}, fmt.Errorf("%w: read %s: %v", ErrArchiveCorrupt, f.Name, err)
		}
		if int64(len(body)) > maxBytes {
			return Markup{}, fmt.Errorf("%w: %s", ErrMarkupTooLarge, f.Name)
		}
		return Markup{Entry: f.Name, Data: body}, nil
	}

	return Markup{}, ErrNoMarkup
}
