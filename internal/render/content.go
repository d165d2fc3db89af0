package render

import (
	"html/template"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// KML descriptions are free-form HTML written by whoever exported the file.
var (
	descriptionPolicy = bluemonday.UGCPolicy()

	mdConverter = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
)

// SafeDescription strips scripts, handlers and other unsafe markup so the
// description can be embedded in a popup.
func SafeDescription(desc string) template.HTML {
	if strings.TrimSpace(desc) == "" {
		return ""
	}
	return template.HTML(descriptionPolicy.Sanitize(desc))
}

// PlainDescription renders the description as markdown text for terminals and logs.
func PlainDescription(desc string) string {
	if strings.TrimSpace(desc) == "" {
		return ""
	}
	md, err := mdConverter.ConvertString(descriptionPolicy.Sanitize(desc))
	if err != nil || strings.TrimSpace(md) == "" {
		return strings.TrimSpace(desc)
	}
	return strings.TrimSpace(md)
}
