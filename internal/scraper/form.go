package scraper

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	ErrFormNotFound   = errors.New("form not found")
	ErrSubmitNotFound = errors.New("submit control not found")
)

type control struct {
	name  string
	value string
}

// Form is an HTML form ready to be filled in and submitted.
type Form struct {
	Action  *url.URL
	Method  string
	fields  []control
	submits []control
}

// ParseForm selects the first element matching selector on page and collects
// its successful controls. An empty selector selects the first form.
func ParseForm(page *Page, selector string) (*Form, error) {
	if selector == "" {
		selector = "form"
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %q on %s", ErrFormNotFound, selector, page.URL)
	}

	action := page.URL
	if raw, ok := sel.Attr("action"); ok && strings.TrimSpace(raw) != "" {
		ref, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid form action %q: %w", raw, err)
		}
		action = page.URL.ResolveReference(ref)
	}

	method := strings.ToUpper(strings.TrimSpace(sel.AttrOr("method", http.MethodGet)))
	if method != http.MethodPost {
		method = http.MethodGet
	}

	f := &Form{Action: action, Method: method}
	sel.Find("input, textarea, select, button").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" {
			return
		}
		if _, disabled := s.Attr("disabled"); disabled {
			return
		}

		switch goquery.NodeName(s) {
		case "textarea":
			f.fields = append(f.fields, control{name, s.Text()})
		case "select":
			opt := s.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = s.Find("option").First()
			}
			if opt.Length() > 0 {
				f.fields = append(f.fields, control{name, opt.AttrOr("value", opt.Text())})
			}
		case "button":
			if strings.ToLower(s.AttrOr("type", "submit")) == "submit" {
				f.submits = append(f.submits, control{name, s.AttrOr("value", "")})
			}
		default:
			value := s.AttrOr("value", "")
			switch strings.ToLower(s.AttrOr("type", "text")) {
			case "submit", "image":
				f.submits = append(f.submits, control{name, value})
			case "checkbox", "radio":
				if _, checked := s.Attr("checked"); checked {
					if value == "" {
						value = "on"
					}
					f.fields = append(f.fields, control{name, value})
				}
			case "button", "reset", "file":
			default:
				f.fields = append(f.fields, control{name, value})
			}
		}
	})

	return f, nil
}

// Set fills the named field, adding it when the form has no such control.
func (f *Form) Set(name, value string) {
	for i := range f.fields {
		if f.fields[i].name == name {
			f.fields[i].value = value
			return
		}
	}
	f.fields = append(f.fields, control{name, value})
}

// Get returns the current value of the named field.
func (f *Form) Get(name string) (string, bool) {
	for _, c := range f.fields {
		if c.name == name {
			return c.value, true
		}
	}
	return "", false
}

// Values encodes the form as submitted by the named submit control. An empty
// submitName submits without a button value.
func (f *Form) Values(submitName string) (url.Values, error) {
	v := url.Values{}
	for _, c := range f.fields {
		v.Add(c.name, c.value)
	}
	if submitName == "" {
		return v, nil
	}
	for _, c := range f.submits {
		if c.name == submitName {
			v.Add(c.name, c.value)
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrSubmitNotFound, submitName)
}
