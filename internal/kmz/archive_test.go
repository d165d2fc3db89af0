package kmz

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"
)

// buildKMZ zips the given entries (name -> content) in order.
func buildKMZ(t *testing.T, entries ...[2]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e[0])
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(e[1])); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const tiangKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2"><Document>
<Placemark><name>Tiang A</name><Point><coordinates>106.8456,-6.2088,0</coordinates></Point></Placemark>
</Document></kml>`

func TestExtractMarkupKMZ(t *testing.T) {
	data := buildKMZ(t,
		[2]string{"files/icon.png", "not xml"},
		[2]string{"doc.KML", tiangKML},
		[2]string{"other.kml", "<kml/>"},
	)

	m, err := ExtractMarkup(data, "survey.kmz")
	if err != nil {
		t.Fatal(err)
	}
	if m.Entry != "doc.KML" {
		t.Fatalf("entry=%q, want doc.KML", m.Entry)
	}
	if string(m.Data) != tiangKML {
		t.Fatalf("unexpected markup %q", m.Data)
	}
}

func TestExtractMarkupKML(t *testing.T) {
	m, err := ExtractMarkup([]byte(tiangKML), "/tmp/uploads/route.kml")
	if err != nil {
		t.Fatal(err)
	}
	if m.Entry != "route.kml" {
		t.Fatalf("entry=%q, want route.kml", m.Entry)
	}
}

func TestExtractMarkupErrors(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		filename string
		want     error
	}{
		{"corrupt zip", []byte("this is not a zip"), "a.kmz", ErrArchiveCorrupt},
		{"no kml entry", buildKMZ(t, [2]string{"readme.txt", "hi"}), "a.kmz", ErrNoMarkup},
		{"unknown format", []byte("\x00\x01binary"), "a.bin", ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractMarkup(tt.data, tt.filename)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err=%v, want %v", err, tt.want)
			}
		})
	}
}

func TestExtractMarkupSizeLimit(t *testing.T) {
	data := buildKMZ(t, [2]string{"doc.kml", tiangKML})
	_, err := ExtractMarkup(data, "a.kmz", WithMaxMarkupBytes(16))
	if !errors.Is(err, ErrMarkupTooLarge) {
		t.Fatalf("err=%v, want ErrMarkupTooLarge", err)
	}

	_, err = ExtractMarkup([]byte(tiangKML), "a.kml", WithMaxMarkupBytes(16))
	if !errors.Is(err, ErrMarkupTooLarge) {
		t.Fatalf("err=%v, want ErrMarkupTooLarge", err)
	}
}

func TestDetectFormat(t *testing.T) {
	kmz := buildKMZ(t, [2]string{"doc.kml", tiangKML})
	tests := []struct {
		data     []byte
		filename string
		want     Format
	}{
		{kmz, "upload", FormatKMZ},
		{[]byte("\xef\xbb\xbf  <kml/>"), "upload", FormatKML},
		{[]byte(tiangKML), "x.KMZ", FormatKMZ}, // extension wins
		{[]byte("plain text"), "", FormatUnknown},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.data, tt.filename); got != tt.want {
			t.Errorf("DetectFormat(%q)=%q, want %q", tt.filename, got, tt.want)
		}
	}
}
