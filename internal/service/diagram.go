package service

import (
	"fmt"
	"path"
	"strings"
)

// maxDiagramFiles caps how many file nodes the diagram draws. Larger trees
// are drawn as directories only.
const maxDiagramFiles = 40

// diagram renders a Mermaid flowchart of the included tree. Solid edges are
// containment; dotted edges are import references between drawn nodes.
func diagram(name string, a *RepositoryAnalysis) string {
	withFiles := len(a.Files) <= maxDiagramFiles

	ids := map[string]string{"": "root"}
	var b strings.Builder
	b.WriteString("graph TD\n")
	fmt.Fprintf(&b, "    root[%q]\n", label(name))

	node := func(p string, isDir bool) {
		id := fmt.Sprintf("n%d", len(ids))
		ids[p] = id
		text := path.Base(p)
		if isDir {
			text += "/"
		}
		parent := path.Dir(p)
		if parent == "." {
			parent = ""
		}
		fmt.Fprintf(&b, "    %s --> %s[%q]\n", ids[parent], id, label(text))
	}

	// Directories are sorted by path, so a parent is always drawn before
	// its children.
	for _, d := range a.Directories {
		node(d.Path, true)
	}
	if withFiles {
		for _, f := range a.Files {
			node(f.Entry.Path, false)
		}
	}

	seen := make(map[string]bool)
	for _, r := range a.References {
		from, to := r.From, r.To
		if !withFiles {
			from, to = dirOf(from), dirOf(to)
		}
		fid, ok1 := ids[from]
		tid, ok2 := ids[to]
		edge := fid + ">" + tid
		if !ok1 || !ok2 || fid == tid || seen[edge] {
			continue
		}
		seen[edge] = true
		fmt.Fprintf(&b, "    %s -.-> %s\n", fid, tid)
	}
	return b.String()
}

// label makes text safe inside a quoted Mermaid label.
func label(s string) string {
	return strings.NewReplacer(`"`, "#quot;", "\n", " ").Replace(s)
}

func dirOf(p string) string {
	if d := path.Dir(p); d != "." {
		return d
	}
	return ""
}
