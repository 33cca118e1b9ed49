package httpLayer

import (
	"net/http"
	"testing"
)

func TestHeaderMap(t *testing.T) {
	m := NewHeaderMap()
	m.Append("via", "1.1 a")
	m.Append("x-test", "1")
	m.Append("Via", "1.1 b")

	if m.Len() != 2 {
		t.FailNow()
	}
	if vs := m.GetAll("VIA"); len(vs) != 2 || vs[1] != "1.1 b" {
		t.Log(vs)
		t.FailNow()
	}

	old := m.Insert("x-test", "2")
	if len(old) != 1 || old[0] != "1" {
		t.FailNow()
	}
	if v, ok := m.Get("X-Test"); !ok || v != "2" {
		t.FailNow()
	}

	var order []string
	m.ForEach(func(name, value string) {
		order = append(order, name+"="+value)
	})
	if len(order) != 3 || order[0] != "Via=1.1 a" || order[2] != "X-Test=2" {
		t.Log(order)
		t.FailNow()
	}

	c := m.Clone()
	m.Remove("via")
	if m.ContainsKey("Via") || !c.ContainsKey("Via") {
		t.FailNow()
	}

	h := c.ToHTTPHeader()
	if h.Get("X-Test") != "2" || len(h.Values("Via")) != 2 {
		t.FailNow()
	}

	m2 := HeaderMapFromHTTP(http.Header{"B": {"1"}, "A": {"2"}})
	var first string
	m2.ForEach(func(name, value string) {
		if first == "" {
			first = name
		}
	})
	if first != "A" {
		t.FailNow()
	}
}
