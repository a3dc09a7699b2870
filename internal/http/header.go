package http

import (
	"net/textproto"
	"strings"
)

// Field is a single header line. Name keeps the casing it was added or
// received with, lookups are case-insensitive.
type Field struct {
	Name  string
	Value string
}

// Header is an ordered multimap of header fields. Unlike [net/http.Header]
// it keeps the wire order of all fields, duplicated names included, which
// matters for fields like Set-Cookie and for reproducing requests byte by
// byte.
//
// The zero value is an empty header ready to use.
type Header []Field

// MakeHeader builds a Header from name/value pairs, in order.
func MakeHeader(kv ...string) Header {
	h := make(Header, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		h = append(h, Field{kv[i], kv[i+1]})
	}
	return h
}

func (h *Header) Add(name, value string) {
	*h = append(*h, Field{name, value})
}

// Set replaces the first field named name with value and removes the
// others. The field keeps its position, a missing field is appended.
func (h *Header) Set(name, value string) {
	found := false
	out := (*h)[:0]
	for _, f := range *h {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
			continue
		}
		if !found {
			found = true
			out = append(out, Field{f.Name, value})
		}
	}
	if !found {
		out = append(out, Field{name, value})
	}
	*h = out
}

func (h Header) Get(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

func (h Header) Has(name string) bool {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

// Values returns all the values of name in wire order.
func (h Header) Values(name string) []string {
	var vs []string
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			vs = append(vs, f.Value)
		}
	}
	return vs
}

func (h *Header) Del(name string) {
	out := (*h)[:0]
	for _, f := range *h {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	// clear the tail so dropped strings could be collected
	for i := len(out); i < len(*h); i++ {
		(*h)[i] = Field{}
	}
	*h = out
}

func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	return append(make(Header, 0, len(h)), h...)
}

func (h Header) Len() int { return len(h) }

// Each calls fn for each field in order, stopping at the first error.
func (h Header) Each(fn func(name, value string) error) error {
	for _, f := range h {
		if err := fn(f.Name, f.Value); err != nil {
			return err
		}
	}
	return nil
}

// MIME converts h into a canonicalized map. Order between different names
// is lost, order within one name is kept.
func (h Header) MIME() textproto.MIMEHeader {
	m := make(textproto.MIMEHeader, len(h))
	for _, f := range h {
		m.Add(f.Name, f.Value)
	}
	return m
}
