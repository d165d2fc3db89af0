package kmz

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

// Placemark is one named feature read from the markup.
// Coordinates holds the raw, unvalidated coordinate string.
type Placemark struct {
	Index       int    `json:"index" yaml:"index"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Coordinates string `json:"coordinates" yaml:"coordinates"`
}

// node is a generic element tree used to pick fields out of a Placemark
// without committing to Point/LineString/Polygon/MultiGeometry layouts.
type node struct {
	XMLName  xml.Name
	Text     string `xml:",chardata"`
	Inner    string `xml:",innerxml"`
	Children []node `xml:",any"`
}

func (n *node) child(local string) *node {
	for i := range n.Children {
		if n.Children[i].XMLName.Local == local {
			return &n.Children[i]
		}
	}
	return nil
}

// descendant returns the first element named local in depth-first document order.
func (n *node) descendant(local string) *node {
	for i := range n.Children {
		c := &n.Children[i]
		if c.XMLName.Local == local {
			return c
		}
		if d := c.descendant(local); d != nil {
			return d
		}
	}
	return nil
}

// textContent returns the element's character data in document order.
func (n *node) textContent() string {
	if len(n.Children) == 0 {
		return n.Text
	}
	dec := xml.NewDecoder(strings.NewReader(n.Inner))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	var b strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if cd, ok := tok.(xml.CharData); ok {
			b.Write(cd)
		}
	}
	return b.String()
}

// markup returns the element's content as HTML. Plain and CDATA content is
// already decoded in Text; inline elements are kept as written.
func (n *node) markup() string {
	if len(n.Children) == 0 {
		return n.Text
	}
	return cdata.Replace(n.Inner)
}

var cdata = strings.NewReplacer("<![CDATA[", "", "]]>", "")

func (n *node) placemark(index int) Placemark {
	p := Placemark{Index: index}
	if c := n.child("name"); c != nil {
		p.Name = strings.TrimSpace(c.textContent())
	}
	if p.Name == "" {
		p.Name = "Point " + strconv.Itoa(index+1)
	}
	if c := n.child("description"); c != nil {
		p.Description = strings.TrimSpace(c.markup())
	}
	if c := n.descendant("coordinates"); c != nil {
		p.Coordinates = strings.TrimSpace(c.Text)
	}
	return p
}

// ParsePlacemarks returns every Placemark in markup, in document order.
// The whole document must be well-formed XML with a single root element.
func ParsePlacemarks(markup []byte) ([]Placemark, error) {
	dec := xml.NewDecoder(bytes.NewReader(markup))
	dec.Strict = true
	dec.CharsetReader = charset.NewReaderLabel

	var (
		placemarks []Placemark
		depth      int
		sawRoot    bool
		rootClosed bool
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMarkup, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if rootClosed {
				return nil, fmt.Errorf("%w: more than one root element", ErrMalformedMarkup)
			}
			sawRoot = true
			if t.Name.Local == "Placemark" {
				var n node
				if err := dec.DecodeElement(&n, &t); err != nil {
					return nil, fmt.Errorf("%w: placemark %d: %v", ErrMalformedMarkup, len(placemarks)+1, err)
				}
				placemarks = append(placemarks, n.placemark(len(placemarks)))
				if depth == 0 {
					rootClosed = true
				}
				continue
			}
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 {
				rootClosed = true
			}
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				return nil, fmt.Errorf("%w: text outside the root element", ErrMalformedMarkup)
			}
		}
	}

	if !sawRoot {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedMarkup)
	}
	return placemarks, nil
}
