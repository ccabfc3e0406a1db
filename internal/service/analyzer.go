package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/Strob0t/CodeTutor/internal/config"
	"github.com/Strob0t/CodeTutor/internal/domain/repository"
	"github.com/Strob0t/CodeTutor/internal/domain/tutorial"
)

const (
	noStructuralSummary = "no structural summary available"
	maxImports          = 30
	maxReadmeBytes      = 3000
	maxManifestBytes    = 256 << 10
)

// AnalyzerConfig bounds what the analyzer hands to prompts.
type AnalyzerConfig struct {
	MaxExcerptBytes int
	MaxSymbols      int
}

// AnalyzerConfigFrom converts the analysis section of the service config.
func AnalyzerConfigFrom(c config.Analysis) AnalyzerConfig {
	return AnalyzerConfig{MaxExcerptBytes: c.MaxExcerptBytes, MaxSymbols: c.MaxSymbols}
}

// FileAnalysis holds the static facts about one included file.
type FileAnalysis struct {
	Entry     repository.FileEntry
	Excerpt   string
	Truncated bool
	// Structured is false when no scanner exists for the language or the
	// file could not be read as text; Symbols and Imports are then empty.
	Structured bool
	Symbols    []Symbol
	Imports    []string
}

// Summary renders the structural facts as a short text block.
func (f FileAnalysis) Summary() string {
	if !f.Structured {
		return noStructuralSummary
	}
	var b strings.Builder
	if len(f.Symbols) == 0 {
		b.WriteString("no top-level symbols found")
	} else {
		b.WriteString("symbols: ")
		for i, s := range f.Symbols {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(s.Kind + " " + s.Name)
		}
	}
	if len(f.Imports) > 0 {
		b.WriteString("\nimports: " + strings.Join(f.Imports, ", "))
	}
	return b.String()
}

// Child is an immediate entry of a directory.
type Child struct {
	Name     string `json:"name"`
	IsDir    bool   `json:"is_dir"`
	Language string `json:"language,omitempty"`
}

// DirectoryAnalysis lists the included children of one directory.
type DirectoryAnalysis struct {
	Path     string
	Children []Child
}

// Summary renders the children as "name/" for directories and "name (lang)" for files.
func (d DirectoryAnalysis) Summary() string {
	parts := make([]string, 0, len(d.Children))
	for _, c := range d.Children {
		switch {
		case c.IsDir:
			parts = append(parts, c.Name+"/")
		case c.Language != "":
			parts = append(parts, fmt.Sprintf("%s (%s)", c.Name, c.Language))
		default:
			parts = append(parts, c.Name)
		}
	}
	return strings.Join(parts, ", ")
}

// Reference is a cross-file hint: From imports something that resolves to
// To, which is an included file or directory.
type Reference struct {
	From string
	To   string
}

// RepositoryAnalysis is the full static picture of a checkout.
type RepositoryAnalysis struct {
	Files        []FileAnalysis
	Directories  []DirectoryAnalysis // sorted by path, root excluded
	Root         DirectoryAnalysis
	Languages    []tutorial.LanguageStat
	Dependencies map[string][]string
	Readme       string
	References   []Reference
}

// Analyzer extracts bounded excerpts and best-effort structure from files.
type Analyzer struct {
	cfg AnalyzerConfig
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	if cfg.MaxExcerptBytes <= 0 {
		cfg.MaxExcerptBytes = 6000
	}
	return &Analyzer{cfg: cfg}
}

// Analyze inspects every included file of res. progress, if non-nil, is
// called after each file.
func (a *Analyzer) Analyze(ctx context.Context, root string, res *WalkResult, progress func(done, total int)) (*RepositoryAnalysis, error) {
	included := res.Included()
	out := &RepositoryAnalysis{
		Files:        make([]FileAnalysis, 0, len(included)),
		Dependencies: a.dependencies(root),
		Readme:       readme(root),
	}

	for i, entry := range included {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out.Files = append(out.Files, a.AnalyzeFile(root, entry))
		if progress != nil {
			progress(i+1, len(included))
		}
	}

	out.Root, out.Directories = directories(included)
	out.Languages = languageStats(included)
	out.References = resolveReferences(out.Files)
	return out, nil
}

// AnalyzeFile never fails: unreadable or non-text content degrades to an
// unstructured analysis.
func (a *Analyzer) AnalyzeFile(root string, entry repository.FileEntry) FileAnalysis {
	fa := FileAnalysis{Entry: entry}

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(entry.Path))) //nolint:gosec // inside the task checkout
	if err != nil {
		fa.Excerpt = "(file could not be read)"
		return fa
	}

	text := string(data)
	valid := utf8.ValidString(text)
	if !valid {
		text = strings.ToValidUTF8(text, "�")
	}
	fa.Excerpt, fa.Truncated = excerpt(text, a.cfg.MaxExcerptBytes)

	if valid {
		symbols, ok := scanSymbols(entry.Language, text, a.cfg.MaxSymbols)
		fa.Structured = ok
		fa.Symbols = symbols
		fa.Imports = scanImports(entry.Language, text, maxImports)
	}
	return fa
}

// excerpt cuts text to at most limit bytes, preferring a line boundary and
// never splitting a rune, and appends an explicit marker when it cuts.
func excerpt(text string, limit int) (string, bool) {
	if len(text) <= limit {
		return text, false
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if nl := strings.LastIndexByte(text[:cut], '\n'); nl > limit/2 {
		cut = nl + 1
	}
	marker := fmt.Sprintf("\n... [truncated: showing %s of %s]",
		humanize.Bytes(uint64(cut)), humanize.Bytes(uint64(len(text))))
	return text[:cut] + marker, true
}

// directories builds the child listings for the root and for every
// directory that contains an included file.
func directories(included []repository.FileEntry) (DirectoryAnalysis, []DirectoryAnalysis) {
	children := map[string]map[string]Child{"": {}}
	for _, e := range included {
		dir := path.Dir(e.Path)
		if dir == "." {
			dir = ""
		}
		addChild(children, dir, Child{Name: path.Base(e.Path), Language: e.Language})
		for dir != "" {
			parent := path.Dir(dir)
			if parent == "." {
				parent = ""
			}
			addChild(children, parent, Child{Name: path.Base(dir), IsDir: true})
			dir = parent
		}
	}

	build := func(p string) DirectoryAnalysis {
		d := DirectoryAnalysis{Path: p}
		for _, c := range children[p] {
			d.Children = append(d.Children, c)
		}
		slices.SortFunc(d.Children, func(a, b Child) int {
			if a.IsDir != b.IsDir {
				if a.IsDir {
					return -1
				}
				return 1
			}
			return strings.Compare(a.Name, b.Name)
		})
		return d
	}

	paths := make([]string, 0, len(children))
	for p := range children {
		if p != "" {
			paths = append(paths, p)
		}
	}
	slices.Sort(paths)

	dirs := make([]DirectoryAnalysis, 0, len(paths))
	for _, p := range paths {
		dirs = append(dirs, build(p))
	}
	return build(""), dirs
}

func addChild(children map[string]map[string]Child, dir string, c Child) {
	if children[dir] == nil {
		children[dir] = make(map[string]Child)
	}
	children[dir][c.Name] = c
}

func languageStats(included []repository.FileEntry) []tutorial.LanguageStat {
	byLang := make(map[string]*tutorial.LanguageStat)
	for _, e := range included {
		lang := e.Language
		if lang == "" {
			lang = "other"
		}
		st, ok := byLang[lang]
		if !ok {
			st = &tutorial.LanguageStat{Language: lang}
			byLang[lang] = st
		}
		st.Files++
		st.Bytes += e.Size
	}
	out := make([]tutorial.LanguageStat, 0, len(byLang))
	for _, st := range byLang {
		out = append(out, *st)
	}
	slices.SortFunc(out, func(a, b tutorial.LanguageStat) int {
		if a.Bytes != b.Bytes {
			if a.Bytes > b.Bytes {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Language, b.Language)
	})
	return out
}

var readmeNames = []string{"README.md", "README.rst", "README.txt", "README", "readme.md", "Readme.md"}

func readme(root string) string {
	for _, name := range readmeNames {
		data, err := os.ReadFile(filepath.Join(root, name)) //nolint:gosec // fixed names inside the checkout
		if err != nil {
			continue
		}
		text, _ := excerpt(strings.ToValidUTF8(string(data), ""), maxReadmeBytes)
		return text
	}
	return ""
}

var (
	pomArtifact   = regexp.MustCompile(`<artifactId>\s*([^<\s]+)\s*</artifactId>`)
	requirementRe = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._\-]*)`)
)

// dependencies reads the well-known root-level manifests
// (requirements.txt, package.json, pom.xml, go.mod), keyed by ecosystem.
func (a *Analyzer) dependencies(root string) map[string][]string {
	deps := make(map[string][]string)

	if text, ok := readManifest(root, "requirements.txt"); ok {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
				continue
			}
			if m := requirementRe.FindStringSubmatch(line); m != nil {
				deps["python"] = append(deps["python"], m[1])
			}
		}
	}

	if text, ok := readManifest(root, "package.json"); ok {
		var pkg struct {
			Dependencies    map[string]string `json:"dependencies"`
			DevDependencies map[string]string `json:"devDependencies"`
		}
		if json.Unmarshal([]byte(text), &pkg) == nil {
			for name := range pkg.Dependencies {
				deps["javascript"] = append(deps["javascript"], name)
			}
			for name := range pkg.DevDependencies {
				deps["javascript"] = append(deps["javascript"], name+" (dev)")
			}
		}
	}

	if text, ok := readManifest(root, "pom.xml"); ok {
		for _, m := range pomArtifact.FindAllStringSubmatch(text, -1) {
			deps["java"] = append(deps["java"], m[1])
		}
	}

	if text, ok := readManifest(root, "go.mod"); ok {
		inBlock := false
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case line == "require (":
				inBlock = true
				continue
			case inBlock && line == ")":
				inBlock = false
				continue
			case strings.HasPrefix(line, "require "):
				line = strings.TrimPrefix(line, "require ")
			case !inBlock:
				continue
			}
			fields := strings.Fields(line)
			if len(fields) >= 2 && strings.HasPrefix(fields[1], "v") && !strings.HasSuffix(line, "// indirect") {
				deps["go"] = append(deps["go"], fields[0])
			}
		}
	}

	for eco, list := range deps {
		slices.Sort(list)
		deps[eco] = slices.Compact(list)
	}
	if len(deps) == 0 {
		return nil
	}
	return deps
}

func readManifest(root, name string) (string, bool) {
	p := filepath.Join(root, name)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() || info.Size() > maxManifestBytes {
		return "", false
	}
	data, err := os.ReadFile(p) //nolint:gosec // fixed names inside the checkout
	if err != nil {
		return "", false
	}
	return string(data), true
}

var jsResolveSuffixes = []string{"", ".js", ".ts", ".tsx", ".jsx", ".mjs", "/index.js", "/index.ts", "/index.tsx"}

// resolveReferences maps import hints onto included files and directories.
// Unresolvable imports (standard library, third-party packages) are dropped.
func resolveReferences(files []FileAnalysis) []Reference {
	known := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, f := range files {
		known[f.Entry.Path] = true
		if d := path.Dir(f.Entry.Path); d != "." {
			dirs[d] = true
		}
	}

	seen := make(map[Reference]bool)
	var refs []Reference
	add := func(from, to string) {
		r := Reference{From: from, To: to}
		if to == "" || to == from || seen[r] {
			return
		}
		seen[r] = true
		refs = append(refs, r)
	}

	for _, f := range files {
		from := f.Entry.Path
		dir := path.Dir(from)
		for _, target := range f.Imports {
			switch f.Entry.Language {
			case "python":
				add(from, resolvePython(target, dir, known))
			case "javascript", "typescript":
				if strings.HasPrefix(target, ".") {
					base := path.Join(dir, target)
					for _, suffix := range jsResolveSuffixes {
						if known[base+suffix] {
							add(from, base+suffix)
							break
						}
					}
				}
			case "go":
				for d := range dirs {
					if strings.HasSuffix(target, "/"+d) {
						add(from, d)
					}
				}
			case "c", "cpp":
				if p := path.Join(dir, target); known[p] {
					add(from, p)
				} else if known[target] {
					add(from, target)
				}
			}
		}
	}

	slices.SortFunc(refs, func(a, b Reference) int {
		if c := strings.Compare(a.From, b.From); c != 0 {
			return c
		}
		return strings.Compare(a.To, b.To)
	})
	return refs
}

func resolvePython(module, dir string, known map[string]bool) string {
	base := ""
	if strings.HasPrefix(module, ".") {
		trimmed := strings.TrimLeft(module, ".")
		up := len(module) - len(trimmed) - 1
		base = dir
		for ; up > 0; up-- {
			base = path.Dir(base)
		}
		module = trimmed
	}
	p := path.Join(base, strings.ReplaceAll(module, ".", "/"))
	for _, candidate := range []string{p + ".py", path.Join(p, "__init__.py")} {
		if known[candidate] {
			return candidate
		}
	}
	return ""
}
