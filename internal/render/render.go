// Package render turns a Page or Layout's Template nodes into the final
// HTML body using the mustache templating engine. An "html"-kind Template
// is treated as already-final markup with `{{var}}` substitutions run
// through the same mustache engine; a "raw" Template is emitted
// byte-for-byte.
package render

import (
	"fmt"

	"github.com/cbroglie/mustache"
	"github.com/williamcotton/webdsl/internal/ast"
	"github.com/williamcotton/webdsl/internal/strbuf"
)

// Template renders one ast.Template node against data, the pipeline
// result that is also the templating data root.
func Template(tmpl *ast.Template, data map[string]any) (string, error) {
	if tmpl == nil {
		return "", nil
	}
	switch tmpl.Kind {
	case ast.TemplateRaw:
		return tmpl.Content, nil
	default:
		out, err := mustache.Render(tmpl.Content, data)
		if err != nil {
			return "", fmt.Errorf("render: %w", err)
		}
		return out, nil
	}
}

// Page renders a page's primary template, wrapping it in its resolved
// layout's head/body shell when one is present. A page whose layout name
// does not resolve renders without a shell.
func Page(page *ast.Page, layout *ast.Layout, data map[string]any) (string, error) {
	body, err := Template(page.Template, data)
	if err != nil {
		return "", err
	}
	if layout == nil {
		return body, nil
	}

	data2 := make(map[string]any, len(data)+1)
	for k, v := range data {
		data2[k] = v
	}
	data2["body"] = body

	rendered, err := Template(layout.BodyTemplate, data2)
	if err != nil {
		return "", err
	}

	if layout.HeadTemplate == nil {
		return shell(layout.Doctype, "", rendered), nil
	}
	head, err := Template(layout.HeadTemplate, data)
	if err != nil {
		return "", err
	}
	return shell(layout.Doctype, head, rendered), nil
}

func shell(doctype, head, body string) string {
	if doctype == "" {
		doctype = "html"
	}
	sb := strbuf.New()
	sb.Append("<!DOCTYPE %s>\n<html>\n<head>\n%s\n</head>\n<body>\n%s\n</body>\n</html>\n", doctype, head, body)
	return sb.Get()
}

// ResponseBlock renders whichever of a Page's error/success blocks is
// selected by the dispatcher, honoring a redirect over a template when
// both happen to be set (redirect takes priority, matching the mutually-
// exclusive convention documented on ast.ResponseBlock).
func ResponseBlock(block *ast.ResponseBlock, page *ast.Page, layout *ast.Layout, data map[string]any) (redirectTo, body string, err error) {
	if block == nil {
		body, err = Page(page, layout, data)
		return "", body, err
	}
	if block.Redirect != "" {
		return block.Redirect, "", nil
	}
	body, err = Template(block.Template, data)
	if err != nil {
		return "", "", err
	}
	if layout != nil {
		data2 := make(map[string]any, len(data)+1)
		for k, v := range data {
			data2[k] = v
		}
		data2["body"] = body
		head := ""
		if layout.HeadTemplate != nil {
			head, err = Template(layout.HeadTemplate, data)
			if err != nil {
				return "", "", err
			}
		}
		bodyWrapped, err := Template(layout.BodyTemplate, data2)
		if err != nil {
			return "", "", err
		}
		return "", shell(layout.Doctype, head, bodyWrapped), nil
	}
	return "", body, nil
}

// Styles aggregates every StyleBlock into one CSS document for the
// automatic /styles.css route. A raw-CSS block is emitted directly, with
// no selector and no brace wrapper, even when a selector was parsed.
func Styles(blocks []*ast.StyleBlock) string {
	sb := strbuf.New()
	for _, b := range blocks {
		if len(b.Props) > 0 && b.Props[0].RawCSS != "" {
			sb.Append("%s\n", b.Props[0].RawCSS)
			continue
		}
		sb.Append("%s {\n", b.Selector)
		for _, p := range b.Props {
			sb.Append("  %s: %s;\n", p.Property, p.Value)
		}
		sb.Append("}\n\n")
	}
	return sb.Get()
}
