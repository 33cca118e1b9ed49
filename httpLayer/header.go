package httpLayer

import (
	"net/http"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Algorithm below is like standard textproto/CanonicalMIMEHeaderKey, except
// that it operates with slice of bytes and modifies it inplace without copying. copied from gobwas/ws
func CanonicalizeHeaderKey(k []byte) {

	const (
		toLower = 'a' - 'A'      // for use with OR.
		toUpper = ^byte(toLower) // for use with AND.
	)

	upper := true
	for i, c := range k {
		if upper && 'a' <= c && c <= 'z' {
			k[i] &= toUpper
		} else if !upper && 'A' <= c && c <= 'Z' {
			k[i] |= toLower
		}
		upper = c == '-'
	}
}

func canonicalKey(name string) string {
	b := []byte(name)
	CanonicalizeHeaderKey(b)
	return string(b)
}

// HeaderMap 是 保持插入顺序的 多值http头. 键名会被规范化.
//
// 零值不可用, 请使用 NewHeaderMap.
type HeaderMap struct {
	names  []string
	values map[string][]string
}

func NewHeaderMap() *HeaderMap {
	return &HeaderMap{values: make(map[string][]string)}
}

// HeaderMapFromHTTP 按键名排序后导入, 以保证输出顺序稳定
func HeaderMapFromHTTP(h http.Header) *HeaderMap {
	m := NewHeaderMap()
	keys := maps.Keys(h)
	slices.Sort(keys)
	for _, k := range keys {
		for _, v := range h[k] {
			m.Append(k, v)
		}
	}
	return m
}

func (m *HeaderMap) IsEmpty() bool {
	return m == nil || len(m.names) == 0
}

func (m *HeaderMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.names)
}

// Insert 替换 name 的所有值, 返回旧值
func (m *HeaderMap) Insert(name, value string) (old []string) {
	name = canonicalKey(name)
	old, ok := m.values[name]
	if !ok {
		m.names = append(m.names, name)
	}
	m.values[name] = []string{value}
	return
}

func (m *HeaderMap) Append(name, value string) {
	name = canonicalKey(name)
	if _, ok := m.values[name]; !ok {
		m.names = append(m.names, name)
	}
	m.values[name] = append(m.values[name], value)
}

// Remove 删除 name 并返回它的所有值
func (m *HeaderMap) Remove(name string) []string {
	name = canonicalKey(name)
	old, ok := m.values[name]
	if !ok {
		return nil
	}
	delete(m.values, name)
	if i := slices.Index(m.names, name); i >= 0 {
		m.names = slices.Delete(m.names, i, i+1)
	}
	return old
}

func (m *HeaderMap) ContainsKey(name string) bool {
	if m == nil {
		return false
	}
	_, ok := m.values[canonicalKey(name)]
	return ok
}

// Get 返回第一个值
func (m *HeaderMap) Get(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	vs := m.values[canonicalKey(name)]
	if len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

func (m *HeaderMap) GetAll(name string) []string {
	if m == nil {
		return nil
	}
	return slices.Clone(m.values[canonicalKey(name)])
}

// ForEach 按插入顺序遍历, 同名的多个值会被依次传入
func (m *HeaderMap) ForEach(f func(name, value string)) {
	if m == nil {
		return
	}
	for _, n := range m.names {
		for _, v := range m.values[n] {
			f(n, v)
		}
	}
}

func (m *HeaderMap) Clone() *HeaderMap {
	if m == nil {
		return nil
	}
	nm := &HeaderMap{
		names:  slices.Clone(m.names),
		values: maps.Clone(m.values),
	}
	for k, v := range nm.values {
		nm.values[k] = slices.Clone(v)
	}
	return nm
}

func (m *HeaderMap) ToHTTPHeader() http.Header {
	h := make(http.Header, m.Len())
	m.ForEach(func(name, value string) {
		h[name] = append(h[name], value)
	})
	return h
}
