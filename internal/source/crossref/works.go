package crossref

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/irts/internal/ir"
)

// unwrap returns the work object of an API envelope
// ({"status": "ok", "message": {...}}) or the payload itself when it is
// already a bare work.
func unwrap(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode crossref work: %w", err)
	}
	if msg, ok := doc["message"].(map[string]any); ok {
		if _, ok := doc["status"]; ok {
			doc = msg
		}
	}
	return doc, nil
}

func encode(work map[string]any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(work); err != nil {
		return "", fmt.Errorf("encode crossref work: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func str(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case []any:
		if len(x) > 0 {
			return str(x[0])
		}
	}
	return ""
}

func list(v any) []string {
	switch x := v.(type) {
	case []any:
		var out []string
		for _, e := range x {
			if s := str(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := str(v); s != "" {
			return []string{s}
		}
	}
	return nil
}

// issued formats the first date-parts entry of the published,
// published-print or issued date as YYYY[-MM[-DD]].
func issued(work map[string]any) string {
	for _, key := range []string{"published", "published-print", "issued"} {
		d, ok := work[key].(map[string]any)
		if !ok {
			continue
		}
		parts, ok := d["date-parts"].([]any)
		if !ok || len(parts) == 0 {
			continue
		}
		first, ok := parts[0].([]any)
		if !ok || len(first) == 0 {
			continue
		}
		segs := make([]string, 0, len(first))
		for _, p := range first {
			s := str(p)
			if s == "" {
				break
			}
			if len(s) < 2 {
				s = "0" + s
			}
			segs = append(segs, s)
		}
		if len(segs) > 0 {
			return strings.Join(segs, "-")
		}
	}
	return ""
}

// workFields flattens a work into raw fields using Crossref's own names.
func workFields(work map[string]any) []ir.RawField {
	var out []ir.RawField
	add := func(name, value string) {
		if value != "" {
			out = append(out, ir.RawField{Name: name, Value: value})
		}
	}

	add("DOI", str(work["DOI"]))
	add("type", str(work["type"]))
	add("title", str(work["title"]))
	add("container-title", str(work["container-title"]))
	add("publisher", str(work["publisher"]))
	add("URL", str(work["URL"]))
	add("volume", str(work["volume"]))
	add("issue", str(work["issue"]))
	add("page", str(work["page"]))
	add("abstract", str(work["abstract"]))
	add("issued", issued(work))
	for _, v := range list(work["ISSN"]) {
		add("ISSN", v)
	}
	for _, v := range list(work["ISBN"]) {
		add("ISBN", v)
	}

	authors, _ := work["author"].([]any)
	for _, a := range authors {
		m, ok := a.(map[string]any)
		if !ok {
			continue
		}
		f := ir.RawField{Name: "author", Value: authorName(m)}
		if f.Value == "" {
			continue
		}
		if orcid := str(m["ORCID"]); orcid != "" {
			f.Children = append(f.Children, ir.RawField{Name: "ORCID", Parent: "author", Value: orcid})
		}
		affs, _ := m["affiliation"].([]any)
		for _, af := range affs {
			if am, ok := af.(map[string]any); ok {
				if name := str(am["name"]); name != "" {
					f.Children = append(f.Children, ir.RawField{Name: "affiliation", Parent: "author", Value: name})
				}
			}
		}
		out = append(out, f)
	}

	funders, _ := work["funder"].([]any)
	for _, fu := range funders {
		m, ok := fu.(map[string]any)
		if !ok {
			continue
		}
		f := ir.RawField{Name: "funder", Value: str(m["DOI"])}
		if name := str(m["name"]); name != "" {
			f.Children = append(f.Children, ir.RawField{Name: "name", Parent: "funder", Value: name})
		}
		for _, award := range list(m["award"]) {
			f.Children = append(f.Children, ir.RawField{Name: "award", Parent: "funder", Value: award})
		}
		if f.Value != "" || len(f.Children) > 0 {
			out = append(out, f)
		}
	}
	return out
}

// authorName renders "family, given", or the organization name.
func authorName(m map[string]any) string {
	family := str(m["family"])
	if family == "" {
		return str(m["name"])
	}
	if given := str(m["given"]); given != "" {
		return family + ", " + given
	}
	return family
}
