// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package xmltree is a small element tree on top of encoding/xml that
// preserves attribute order and child order exactly as read, which
// encoding/xml's own struct-tag decoding does not guarantee for
// documents whose shape isn't known ahead of time. It exists because
// no third-party XML library appears anywhere in the retrieved
// example pool; see DESIGN.md.
package xmltree

import (
	"fmt"
	"io"
	"strings"

	"encoding/xml"
)

// Attr is one attribute, order-preserved.
type Attr struct {
	Name  string
	Value string
}

// Node is one element. Text is the element's own character data
// (concatenation of CharData tokens that are direct children, trimmed
// of surrounding whitespace-only runs at parse time is NOT performed —
// callers that care about significant whitespace get it verbatim).
type Node struct {
	Name     string
	Attrs    []Attr
	Text     string
	Children []*Node
}

// NewNode builds a bare node with the given name.
func NewNode(name string) *Node {
	return &Node{Name: name}
}

// Attr returns the value of the named attribute and whether it was present.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets an existing attribute's value, or appends a new one,
// preserving the position of attributes that already exist.
func (n *Node) SetAttr(name, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// ChildrenNamed returns direct children with the given element name, in order.
func (n *Node) ChildrenNamed(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// RemoveChild removes the first occurrence of child by pointer identity.
func (n *Node) RemoveChild(child *Node) {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return
		}
	}
}

// AppendChild appends child to the child list.
func (n *Node) AppendChild(child *Node) {
	n.Children = append(n.Children, child)
}

// Clone deep-copies a node and its subtree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	clone := &Node{
		Name:     n.Name,
		Text:     n.Text,
		Attrs:    append([]Attr(nil), n.Attrs...),
		Children: make([]*Node, len(n.Children)),
	}
	for i, c := range n.Children {
		clone.Children[i] = c.Clone()
	}
	return clone
}

// Parse reads one XML document from r into a Node tree rooted at the
// document element. Processing instructions and comments are
// discarded; only elements and character data survive.
func Parse(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true

	var stack []*Node
	var root *Node

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xmltree: decode: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &Node{Name: t.Name.Local}
			for _, a := range t.Attr {
				node.Attrs = append(node.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			} else if root == nil {
				root = node
			}
			stack = append(stack, node)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("xmltree: unbalanced end element %q", t.Name.Local)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("xmltree: document has no element")
	}
	return root, nil
}

// ParseString is a convenience wrapper around Parse for in-memory documents.
func ParseString(s string) (*Node, error) {
	return Parse(strings.NewReader(s))
}
