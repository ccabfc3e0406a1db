package service

import (
	"cmp"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/Strob0t/CodeTutor/internal/domain/repository"
	"github.com/Strob0t/CodeTutor/internal/domain/tutorial"
)

const stepFiles = 3

var (
	overviewFiles = []string{"readme", "package.json", "requirements.txt", "go.mod", "pom.xml", "cargo.toml", "pyproject.toml"}
	entryNames    = []string{"main", "app", "index", "server", "cli", "__main__"}
	dataWords     = []string{"model", "data", "db", "storage", "schema", "repository", "store"}
)

// learningPath suggests a reading order: project files, entry points, the
// most referenced modules, the data layer and finally the tests.
func learningPath(a *RepositoryAnalysis) []tutorial.LearningStep {
	var files []string
	refs := make(map[string]int)
	for _, f := range a.Files {
		files = append(files, f.Entry.Path)
	}
	for _, r := range a.References {
		refs[r.To]++
	}

	pick := func(match func(p string) bool, limit int) []string {
		var out []string
		for _, p := range files {
			if match(p) {
				out = append(out, p)
				if len(out) == limit {
					break
				}
			}
		}
		return out
	}
	isTest := func(p string) bool { return strings.Contains(strings.ToLower(p), "test") }
	stem := func(p string) string {
		base := strings.ToLower(path.Base(p))
		return strings.TrimSuffix(base, path.Ext(base))
	}

	steps := []tutorial.LearningStep{{
		Title:       "Project overview",
		Description: "Start with what the project does and what it depends on.",
		Files: pick(func(p string) bool {
			if strings.Contains(p, "/") {
				return false
			}
			lower := strings.ToLower(p)
			return slices.ContainsFunc(overviewFiles, func(n string) bool { return strings.HasPrefix(lower, n) })
		}, stepFiles),
	}}

	if entry := pick(func(p string) bool {
		return !isTest(p) && slices.Contains(entryNames, stem(p))
	}, stepFiles); len(entry) > 0 {
		steps = append(steps, tutorial.LearningStep{
			Title:       "Entry points",
			Description: "Find where the application starts and how it is configured.",
			Files:       entry,
		})
	}

	var core []string
	for _, f := range a.Files {
		if f.Structured && !isTest(f.Entry.Path) {
			core = append(core, f.Entry.Path)
		}
	}
	slices.SortStableFunc(core, func(x, y string) int {
		return cmp.Compare(refs[y]+refs[dirOf(y)], refs[x]+refs[dirOf(x)])
	})
	if len(core) > 5 {
		core = core[:5]
	}
	if len(core) > 0 {
		steps = append(steps, tutorial.LearningStep{
			Title:       "Core logic",
			Description: "Read the modules the rest of the code depends on most.",
			Files:       core,
		})
	}

	if data := pick(func(p string) bool {
		lower := strings.ToLower(p)
		return !isTest(p) && slices.ContainsFunc(dataWords, func(w string) bool { return strings.Contains(lower, w) })
	}, stepFiles); len(data) > 0 {
		steps = append(steps, tutorial.LearningStep{
			Title:       "Data layer",
			Description: "See how data is modelled and stored.",
			Files:       data,
		})
	}

	if tests := pick(isTest, stepFiles); len(tests) > 0 {
		steps = append(steps, tutorial.LearningStep{
			Title:       "Testing",
			Description: "Learn how the project is tested.",
			Files:       tests,
		})
	}
	return steps
}

type toolchain struct {
	prereq  string
	install string
}

var toolchains = map[string]toolchain{
	"python":     {"Python 3 with pip (a virtual environment is recommended)", "pip install -r requirements.txt"},
	"javascript": {"Node.js (current LTS) with npm or yarn", "npm install"},
	"typescript": {"Node.js (current LTS) with npm or yarn", "npm install"},
	"go":         {"Go toolchain matching go.mod", "go mod download"},
	"java":       {"A JDK and Maven", "mvn install"},
	"rust":       {"Rust via rustup", "cargo build"},
}

// gettingStarted templates setup instructions from the detected languages
// and dependency manifests.
func gettingStarted(src repository.Source, a *RepositoryAnalysis) string {
	var b strings.Builder

	var prereqs []string
	for _, l := range a.Languages {
		if tc, ok := toolchains[l.Language]; ok && !slices.Contains(prereqs, tc.prereq) {
			prereqs = append(prereqs, tc.prereq)
		}
	}
	if len(prereqs) > 0 {
		b.WriteString("### Prerequisites\n\n")
		for _, p := range prereqs {
			fmt.Fprintf(&b, "- %s\n", p)
		}
		b.WriteString("\n")
	}

	b.WriteString("### Get the code\n\n```bash\n")
	clone := "git clone " + src.CloneURL
	if src.Ref != "" {
		clone += " --branch " + src.Ref
	}
	fmt.Fprintf(&b, "%s\ncd %s\n```\n", clone, src.Name)

	ecosystems := make([]string, 0, len(a.Dependencies))
	for eco := range a.Dependencies {
		ecosystems = append(ecosystems, eco)
	}
	slices.Sort(ecosystems)
	var installs []string
	for _, eco := range ecosystems {
		if tc, ok := toolchains[eco]; ok && !slices.Contains(installs, tc.install) {
			installs = append(installs, tc.install)
		}
	}
	if len(installs) > 0 {
		b.WriteString("\n### Install dependencies\n\n```bash\n")
		for _, cmd := range installs {
			b.WriteString(cmd + "\n")
		}
		b.WriteString("```\n")
	}

	b.WriteString("\n### Run it\n\nCheck the README for run commands, required environment variables and configuration files.\n")
	return b.String()
}
