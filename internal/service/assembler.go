package service

import (
	"path"
	"slices"
	"strings"
	"time"

	"github.com/Strob0t/CodeTutor/internal/domain/repository"
	"github.com/Strob0t/CodeTutor/internal/domain/tutorial"
)

// AssembleInput is everything the assembler merges into a tutorial.
type AssembleInput struct {
	Source      repository.Source
	Host        *repository.Metadata // nil when the host has no metadata API
	Commit      string
	Walk        *WalkResult
	Analysis    *RepositoryAnalysis
	Fragments   *Fragments
	GeneratedAt time.Time
}

// Assemble merges the fragments into a tutorial. Sections follow a
// depth-first pre-order of the included tree: a directory's section comes
// before everything inside it and siblings are ordered by name. The result
// depends only on the input, never on the order fragments completed in.
func Assemble(in AssembleInput) *tutorial.Tutorial {
	a := in.Analysis
	meta := tutorial.Metadata{
		Repository:    in.Source.FullName(),
		URL:           in.Source.URL,
		Ref:           in.Source.Ref,
		Commit:        in.Commit,
		GeneratedAt:   in.GeneratedAt.UTC(),
		Languages:     a.Languages,
		Dependencies:  a.Dependencies,
		FilesIncluded: len(a.Files),
	}
	if in.Walk != nil {
		meta.FilesSkipped = in.Walk.Skipped()
		meta.BytesIncluded = in.Walk.IncludedBytes
		meta.Truncated = in.Walk.Truncated
	}
	if in.Host != nil {
		meta.Host = *in.Host
		meta.Description = in.Host.Description
	}

	t := &tutorial.Tutorial{
		Metadata:       meta,
		Overview:       in.Fragments.Overview,
		Sections:       sections(a, in.Fragments),
		Diagram:        diagram(in.Source.FullName(), a),
		LearningPath:   learningPath(a),
		GettingStarted: gettingStarted(in.Source, a),
	}
	return t
}

func sections(a *RepositoryAnalysis, frags *Fragments) []tutorial.Section {
	dirs := make(map[string]DirectoryAnalysis, len(a.Directories))
	for _, d := range a.Directories {
		dirs[d.Path] = d
	}

	var out []tutorial.Section
	var visit func(d DirectoryAnalysis, depth int)
	visit = func(d DirectoryAnalysis, depth int) {
		children := slices.Clone(d.Children)
		slices.SortFunc(children, func(x, y Child) int { return strings.Compare(x.Name, y.Name) })
		for _, c := range children {
			p := path.Join(d.Path, c.Name)
			if !c.IsDir {
				if f, ok := frags.Files[p]; ok {
					out = append(out, tutorial.Section{Fragment: f, Depth: depth})
				}
				continue
			}
			if f, ok := frags.Directories[p]; ok {
				out = append(out, tutorial.Section{Fragment: f, Depth: depth})
			}
			if sub, ok := dirs[p]; ok {
				visit(sub, depth+1)
			}
		}
	}
	visit(a.Root, 0)
	return out
}
