package arxiv

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/irts/internal/ir"
)

const (
	atomNS  = "http://www.w3.org/2005/Atom"
	arxivNS = "http://arxiv.org/schemas/atom"
)

// element is a generic XML element. Names keep only their local part, so
// atom:title and arxiv:doi come out as "title" and "doi".
type element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []element  `xml:",any"`
}

func (e element) attr(name string) string {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func (e element) child(name string) (element, bool) {
	for _, c := range e.Children {
		if c.XMLName.Local == name {
			return c, true
		}
	}
	return element{}, false
}

func (e element) text() string {
	return strings.TrimSpace(e.Text)
}

type rawEntry struct {
	Inner string `xml:",innerxml"`
}

type document struct {
	XMLName xml.Name
	Inner   string     `xml:",innerxml"`
	Entries []rawEntry `xml:"entry"`
}

// splitEntries returns each entry of a feed (or the entry itself) as a
// standalone XML document.
func splitEntries(payload []byte) ([]string, error) {
	var doc document
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode atom: %w", err)
	}
	switch doc.XMLName.Local {
	case "entry":
		return []string{wrapEntry(doc.Inner)}, nil
	case "feed":
		out := make([]string, 0, len(doc.Entries))
		for _, e := range doc.Entries {
			out = append(out, wrapEntry(e.Inner))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("decode atom: unexpected root element %q", doc.XMLName.Local)
	}
}

func wrapEntry(inner string) string {
	return `<entry xmlns="` + atomNS + `" xmlns:arxiv="` + arxivNS + `">` + inner + `</entry>`
}

var versioned = regexp.MustCompile(`^(.+)v(\d+)$`)

// splitID turns "http://arxiv.org/abs/2401.00001v2" into ("2401.00001", "2").
func splitID(raw string) (id, version string) {
	id = strings.TrimSpace(raw)
	if i := strings.Index(id, "/abs/"); i >= 0 {
		id = id[i+len("/abs/"):]
	}
	if m := versioned.FindStringSubmatch(id); m != nil {
		return m[1], m[2]
	}
	return id, "1"
}

// entry is a decoded entry with the pieces discovery needs.
type entry struct {
	id        string
	version   string
	published string
	xml       string
	root      element
}

func decodeEntry(doc string) (entry, error) {
	var root element
	if err := xml.Unmarshal([]byte(doc), &root); err != nil {
		return entry{}, fmt.Errorf("decode entry: %w", err)
	}
	idEl, ok := root.child("id")
	if !ok || idEl.text() == "" {
		return entry{}, fmt.Errorf("decode entry: missing id")
	}
	if strings.Contains(idEl.text(), "/api/errors") {
		msg := idEl.text()
		if s, ok := root.child("summary"); ok {
			msg = s.text()
		}
		return entry{}, fmt.Errorf("arxiv api error: %s", msg)
	}

	e := entry{xml: doc, root: root}
	e.id, e.version = splitID(idEl.text())
	if p, ok := root.child("published"); ok {
		e.published = p.text()
	}
	return e, nil
}

// fields flattens an entry into raw fields. Authors carry their
// affiliations as children; links and categories take their value from the
// href and term attributes.
func (e entry) fields() []ir.RawField {
	out := []ir.RawField{
		{Name: "type", Value: "Preprint"},
		{Name: "publisher", Value: "arXiv"},
		{Name: "version", Value: e.version},
	}
	for _, c := range e.root.Children {
		name := c.XMLName.Local
		switch name {
		case "id":
			out = append(out, ir.RawField{Name: "id", Value: e.id})
		case "author":
			f := ir.RawField{Name: "author"}
			for _, ac := range c.Children {
				switch ac.XMLName.Local {
				case "name":
					f.Value = ac.text()
				default:
					f.Children = append(f.Children, ir.RawField{Name: ac.XMLName.Local, Parent: "author", Value: ac.text()})
				}
			}
			out = append(out, f)
		case "link":
			out = append(out, ir.RawField{Name: name, Value: c.attr("href")})
		case "category", "primary_category":
			out = append(out, ir.RawField{Name: name, Value: c.attr("term")})
		default:
			out = append(out, ir.RawField{Name: name, Value: c.text()})
		}
	}
	return out
}
