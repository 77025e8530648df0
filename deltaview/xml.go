package deltaview

import (
	"errors"
	"strings"

	"github.com/beevik/etree"
)

// textColumn holds an element's own character data.
const textColumn = "_text"

var errNoRepeatedElement = errors.New("root has no repeated child element")

// normalizeXML turns a document whose root repeats a single child element
// into one row per child. Anything else is reported as *ParseFailure.
func normalizeXML(data []byte, limit int) (*PreviewRecord, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, &ParseFailure{Format: FormatXML, Reason: "malformed XML", Err: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, &ParseFailure{Format: FormatXML, Reason: "malformed XML", Err: errors.New("no root element")}
	}

	items := root.ChildElements()
	if !sameTag(items) {
		doc.Indent(2)
		pretty, err := doc.WriteToBytes()
		if err != nil {
			pretty = nil
		}
		return nil, &ParseFailure{Format: FormatXML, Reason: "not tabular", Err: errNoRepeatedElement, Rendered: pretty}
	}

	b := newRecordBuilder(FormatXML)
	for i, el := range items {
		if i == limit {
			return b.finish(true), nil
		}
		row, order := xmlRow(el)
		b.add(row, order)
	}
	return b.finish(false), nil
}

// sameTag reports whether there are at least two elements, all sharing a tag.
func sameTag(els []*etree.Element) bool {
	if len(els) < 2 {
		return false
	}
	tag := els[0].FullTag()
	for _, el := range els[1:] {
		if el.FullTag() != tag {
			return false
		}
	}
	return true
}

// xmlRow flattens one element: attributes as @name, own text as _text when
// there are no child elements, and each child tag as a column.
func xmlRow(el *etree.Element) (Row, []string) {
	row := Row{}
	var order []string
	set := func(k string, v any) {
		if _, ok := row[k]; !ok {
			order = append(order, k)
		}
		row[k] = v
	}

	for _, a := range el.Attr {
		set("@"+a.FullKey(), a.Value)
	}

	children := el.ChildElements()
	if len(children) == 0 {
		if text := strings.TrimSpace(el.Text()); text != "" {
			set(textColumn, text)
		}
		return row, order
	}

	var tags []string
	values := make(map[string][]string)
	for _, c := range children {
		tag := c.FullTag()
		if _, ok := values[tag]; !ok {
			tags = append(tags, tag)
		}
		values[tag] = append(values[tag], flattenElement(c))
	}
	for _, tag := range tags {
		if vs := values[tag]; len(vs) == 1 {
			set(tag, vs[0])
		} else {
			set(tag, compactJSON(vs))
		}
	}
	return row, order
}

// flattenElement renders a child element as a single cell: its text when it
// is a leaf, a compact JSON object for one level of attributes and leaf
// children, and the serialized subtree for anything deeper.
func flattenElement(el *etree.Element) string {
	children := el.ChildElements()
	text := strings.TrimSpace(el.Text())
	if len(el.Attr) == 0 && len(children) == 0 {
		return text
	}
	for _, c := range children {
		if len(c.ChildElements()) > 0 {
			return serializeElement(el)
		}
	}

	obj := make(map[string]any, len(el.Attr)+len(children)+1)
	for _, a := range el.Attr {
		obj["@"+a.FullKey()] = a.Value
	}
	if text != "" && len(children) == 0 {
		obj[textColumn] = text
	}
	for _, c := range children {
		v := strings.TrimSpace(c.Text())
		switch prev := obj[c.FullTag()].(type) {
		case nil:
			obj[c.FullTag()] = v
		case string:
			obj[c.FullTag()] = []string{prev, v}
		case []string:
			obj[c.FullTag()] = append(prev, v)
		}
	}
	return compactJSON(obj)
}

func serializeElement(el *etree.Element) string {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	s, err := doc.WriteToString()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
