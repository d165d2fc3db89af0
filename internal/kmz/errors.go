package kmz

import "errors"

var (
	// ErrArchiveCorrupt is returned when a .kmz buffer is not a readable zip archive.
	ErrArchiveCorrupt = errors.New("kmz: archive is corrupt")

	// ErrNoMarkup is returned when an archive holds no .kml entry.
	ErrNoMarkup = errors.New("kmz: archive contains no .kml document")

	// ErrMalformedMarkup is returned when the markup is not well-formed XML.
	ErrMalformedMarkup = errors.New("kmz: markup is not well-formed XML")

	// ErrNoGeometry is returned when no placemark yielded a usable geometry.
	ErrNoGeometry = errors.New("kmz: no placemark has usable coordinates")

	// ErrUnsupportedFormat is returned for files that are neither KMZ nor KML.
	ErrUnsupportedFormat = errors.New("kmz: unsupported file format")

	// ErrMarkupTooLarge is returned when the markup exceeds the configured size cap.
	ErrMarkupTooLarge = errors.New("kmz: markup exceeds size limit")
)

// ErrorKind returns a short machine-readable name for a pipeline error,
// or "" if err is not one of the package errors.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrArchiveCorrupt):
		return "archive_corrupt"
	case errors.Is(err, ErrNoMarkup):
		return "no_markup"
	case errors.Is(err, ErrMalformedMarkup):
		return "malformed_markup"
	case errors.Is(err, ErrNoGeometry):
		return "no_geometry"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrMarkupTooLarge):
		return "markup_too_large"
	}
	return ""
}
