// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xmltree

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// declaration is the fixed XML prolog the data server requires (spec
// §6, "master-document encoding"): a single-quoted version/encoding
// pair naming ISO-8859-1, regardless of the bytes actually written
// (every code point ≥128 is numeric-escaped, so the document is valid
// ASCII and any ISO-8859-1 decoder reads it unchanged).
const declaration = `<?xml version='1.0' encoding='ISO-8859-1'?>` + "\n"

// Write serializes root as the master document: the fixed
// declaration, then the element tree with two-space indentation per
// level and long-form empty elements (`<tag></tag>`, never
// `<tag/>`).
func Write(w io.Writer, root *Node) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(declaration); err != nil {
		return fmt.Errorf("xmltree: write declaration: %w", err)
	}
	if err := writeNode(bw, root, 0); err != nil {
		return err
	}
	return bw.Flush()
}

// WriteElement serializes n without the document declaration, for
// standalone fragment files that are merged into a master document
// rather than read directly by the data server.
func WriteElement(w io.Writer, n *Node) error {
	bw := bufio.NewWriter(w)
	if err := writeNode(bw, n, 0); err != nil {
		return err
	}
	return bw.Flush()
}

func writeNode(w *bufio.Writer, n *Node, depth int) error {
	indent := strings.Repeat("  ", depth)
	if _, err := w.WriteString(indent); err != nil {
		return err
	}
	if _, err := w.WriteString("<" + n.Name); err != nil {
		return err
	}
	for _, a := range n.Attrs {
		if _, err := fmt.Fprintf(w, ` %s="%s"`, a.Name, escapeAttr(a.Value)); err != nil {
			return err
		}
	}
	if _, err := w.WriteString(">"); err != nil {
		return err
	}

	hasText := strings.TrimSpace(n.Text) != ""
	if len(n.Children) == 0 {
		if hasText {
			if _, err := w.WriteString(escapeText(n.Text)); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, "</%s>\n", n.Name)
		return err
	}

	if hasText {
		if _, err := w.WriteString(escapeText(n.Text)); err != nil {
			return err
		}
	}
	if _, err := w.WriteString("\n"); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := writeNode(w, c, depth+1); err != nil {
			return err
		}
	}
	if _, err := w.WriteString(indent); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "</%s>\n", n.Name)
	return err
}

// escapeText escapes &, < and > as entities plus every code point
// ≥128 as a numeric character reference, per spec §6. Quotes are
// left as they are.
func escapeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '&':
			b.WriteString("&amp;")
		case r == '<':
			b.WriteString("&lt;")
		case r == '>':
			b.WriteString("&gt;")
		case r >= 128:
			fmt.Fprintf(&b, "&#%d;", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// escapeAttr escapes &, < and the double quote (attribute values here
// are always double-quoted) plus every code point ≥128; unlike
// escapeText it leaves > as it is.
func escapeAttr(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '&':
			b.WriteString("&amp;")
		case r == '<':
			b.WriteString("&lt;")
		case r == '"':
			b.WriteString("&quot;")
		case r >= 128:
			fmt.Fprintf(&b, "&#%d;", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
