package service

import (
	"cmp"
	"regexp"
	"slices"
)

// Symbol is a top-level name found by pattern scanning. Symbol lists are
// advisory: the scanners are line-oriented regular expressions, not parsers.
type Symbol struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

type symbolPattern struct {
	kind string
	re   *regexp.Regexp
}

func sym(kind, expr string) symbolPattern {
	return symbolPattern{kind: kind, re: regexp.MustCompile(`(?m)` + expr)}
}

func imp(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)` + expr)
}

// symbolPatterns are matched against whole files; group 1 is the name.
var symbolPatterns = map[string][]symbolPattern{
	"python": {
		sym("class", `^class\s+([A-Za-z_]\w*)`),
		sym("function", `^(?:async\s+)?def\s+([A-Za-z_]\w*)`),
	},
	"javascript": {
		sym("class", `^(?:export\s+(?:default\s+)?)?class\s+([A-Za-z_$][\w$]*)`),
		sym("function", `^(?:export\s+(?:default\s+)?)?(?:async\s+)?function\*?\s+([A-Za-z_$][\w$]*)`),
		sym("function", `^(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s+)?(?:\([^)]*\)|[A-Za-z_$][\w$]*)\s*=>`),
	},
	"typescript": {
		sym("class", `^(?:export\s+(?:default\s+)?)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)`),
		sym("interface", `^(?:export\s+)?interface\s+([A-Za-z_$][\w$]*)`),
		sym("type", `^(?:export\s+)?type\s+([A-Za-z_$][\w$]*)\s*=`),
		sym("function", `^(?:export\s+(?:default\s+)?)?(?:async\s+)?function\*?\s+([A-Za-z_$][\w$]*)`),
		sym("function", `^(?:export\s+)?const\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s+)?\([^)]*\)\s*(?::[^=]+)?=>`),
	},
	"go": {
		sym("function", `^func\s+(?:\([^)]*\)\s*)?([A-Za-z_]\w*)`),
		sym("type", `^type\s+([A-Za-z_]\w*)`),
	},
	"rust": {
		sym("function", `^\s*(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?fn\s+([A-Za-z_]\w*)`),
		sym("type", `^\s*(?:pub(?:\([^)]*\))?\s+)?(?:struct|enum|trait)\s+([A-Za-z_]\w*)`),
		sym("module", `^\s*(?:pub\s+)?mod\s+([A-Za-z_]\w*)`),
	},
	"java": {
		sym("class", `^\s*(?:(?:public|protected|private|abstract|final|static)\s+)*(?:class|interface|enum|record)\s+([A-Za-z_]\w*)`),
		sym("method", `^\s+(?:(?:public|protected|private|static|final|synchronized|abstract)\s+)+[\w<>\[\],\s]+?\s+([a-z_]\w*)\s*\(`),
	},
	"kotlin": {
		sym("class", `^\s*(?:(?:data|sealed|open|abstract|enum|private|internal)\s+)*(?:class|interface|object)\s+([A-Za-z_]\w*)`),
		sym("function", `^\s*(?:(?:private|internal|public|override|suspend)\s+)*fun\s+(?:<[^>]+>\s*)?([A-Za-z_]\w*)`),
	},
	"scala": {
		sym("class", `^\s*(?:(?:case|abstract|sealed|final)\s+)*(?:class|trait|object)\s+([A-Za-z_]\w*)`),
		sym("function", `^\s*def\s+([A-Za-z_]\w*)`),
	},
	"csharp": {
		sym("class", `^\s*(?:(?:public|internal|private|protected|static|abstract|sealed|partial)\s+)*(?:class|interface|struct|enum|record)\s+([A-Za-z_]\w*)`),
	},
	"swift": {
		sym("class", `^\s*(?:(?:public|open|final|private|internal)\s+)*(?:class|struct|enum|protocol|extension)\s+([A-Za-z_]\w*)`),
		sym("function", `^\s*(?:(?:public|open|private|internal|static)\s+)*func\s+([A-Za-z_]\w*)`),
	},
	"ruby": {
		sym("class", `^\s*class\s+([A-Z]\w*(?:::\w+)*)`),
		sym("module", `^\s*module\s+([A-Z]\w*(?:::\w+)*)`),
		sym("function", `^\s*def\s+(?:self\.)?([A-Za-z_]\w*[?!=]?)`),
	},
	"php": {
		sym("class", `^\s*(?:(?:abstract|final)\s+)?(?:class|interface|trait)\s+([A-Za-z_]\w*)`),
		sym("function", `^\s*(?:(?:public|private|protected|static)\s+)*function\s+([A-Za-z_]\w*)`),
	},
	"c": {
		sym("function", `^[A-Za-z_][\w\s\*]*?\b([A-Za-z_]\w*)\s*\([^;]*\)\s*\{`),
		sym("type", `^(?:typedef\s+)?struct\s+([A-Za-z_]\w*)`),
	},
	"cpp": {
		sym("class", `^\s*(?:class|struct)\s+([A-Za-z_]\w*)[^;]*$`),
		sym("function", `^[A-Za-z_][\w\s\*&:<>,]*?\b([A-Za-z_][\w:]*)\s*\([^;]*\)\s*(?:const\s*)?\{`),
	},
	"bash": {
		sym("function", `^\s*(?:function\s+)?([A-Za-z_][\w-]*)\s*\(\)\s*\{`),
	},
	"sql": {
		sym("table", `(?i)^\s*create\s+(?:or\s+replace\s+)?(?:table|view)\s+(?:if\s+not\s+exists\s+)?([\w."]+)`),
	},
	"markdown": {
		sym("heading", `^#{1,3}\s+(.+?)\s*#*$`),
	},
}

// importPatterns capture the imported module or path in group 1.
var importPatterns = map[string][]*regexp.Regexp{
	"python": {
		imp(`^\s*import\s+([\w.]+)`),
		imp(`^\s*from\s+(\.*[\w.]*)\s+import\b`),
	},
	"javascript": {
		imp(`^\s*import\s+(?:[^'"]*?\s+from\s+)?['"]([^'"]+)['"]`),
		imp(`require\(\s*['"]([^'"]+)['"]\s*\)`),
	},
	"typescript": {
		imp(`^\s*import\s+(?:type\s+)?(?:[^'"]*?\s+from\s+)?['"]([^'"]+)['"]`),
		imp(`^\s*export\s+[^'"]*?\s+from\s+['"]([^'"]+)['"]`),
	},
	"go": {
		imp(`^import\s+(?:\w+\s+)?"([^"]+)"`),
		imp(`^\s+(?:[\w.]+\s+)?"([^"]+)"\s*$`),
	},
	"rust":   {imp(`^\s*(?:pub\s+)?use\s+([\w:]+)`)},
	"java":   {imp(`^import\s+(?:static\s+)?([\w.]+)`)},
	"kotlin": {imp(`^import\s+([\w.]+)`)},
	"scala":  {imp(`^import\s+([\w.]+)`)},
	"csharp": {imp(`^using\s+([\w.]+)\s*;`)},
	"swift":  {imp(`^import\s+(\w+)`)},
	"ruby":   {imp(`^\s*require(?:_relative)?\s+['"]([^'"]+)['"]`)},
	"php":    {imp(`^\s*(?:use|require_once|require|include_once|include)\s+['"]?([\w\\/.]+)`)},
	"c":      {imp(`^\s*#\s*include\s+["<]([^">]+)[">]`)},
	"cpp":    {imp(`^\s*#\s*include\s+["<]([^">]+)[">]`)},
}

// scanSymbols returns up to limit unique symbols in source order, and
// whether the language has a scanner at all.
func scanSymbols(lang, src string, limit int) ([]Symbol, bool) {
	patterns, ok := symbolPatterns[lang]
	if !ok {
		return nil, false
	}

	type hit struct {
		pos int
		sym Symbol
	}
	var hits []hit
	for _, p := range patterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(src, -1) {
			hits = append(hits, hit{pos: m[2], sym: Symbol{Kind: p.kind, Name: src[m[2]:m[3]]}})
		}
	}
	sortHits(hits, func(h hit) int { return h.pos })

	seen := make(map[Symbol]bool)
	var out []Symbol
	for _, h := range hits {
		if seen[h.sym] || isKeyword(h.sym.Name) {
			continue
		}
		seen[h.sym] = true
		out = append(out, h.sym)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, true
}

// scanImports returns unique import targets in source order. Go import
// blocks are only scanned between "import (" and ")".
func scanImports(lang, src string, limit int) []string {
	patterns := importPatterns[lang]
	if len(patterns) == 0 {
		return nil
	}
	if lang == "go" {
		src = goImportRegion(src)
	}

	type hit struct {
		pos  int
		name string
	}
	var hits []hit
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatchIndex(src, -1) {
			if m[2] < 0 || m[3] <= m[2] {
				continue
			}
			hits = append(hits, hit{pos: m[2], name: src[m[2]:m[3]]})
		}
	}
	sortHits(hits, func(h hit) int { return h.pos })

	seen := make(map[string]bool)
	var out []string
	for _, h := range hits {
		if seen[h.name] {
			continue
		}
		seen[h.name] = true
		out = append(out, h.name)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

var goImportBlock = regexp.MustCompile(`(?ms)^import\s*\((.*?)^\)`)
var goSingleImport = regexp.MustCompile(`(?m)^import\s+(?:\w+\s+)?"[^"]+"`)

func goImportRegion(src string) string {
	var region string
	for _, m := range goSingleImport.FindAllString(src, -1) {
		region += m + "\n"
	}
	for _, m := range goImportBlock.FindAllStringSubmatch(src, -1) {
		region += m[1]
	}
	return region
}

// keywords guard the C-family function patterns against control statements.
var keywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "return": true,
	"catch": true, "else": true, "sizeof": true,
}

func isKeyword(name string) bool { return keywords[name] }

func sortHits[T any](hits []T, pos func(T) int) {
	slices.SortStableFunc(hits, func(a, b T) int { return cmp.Compare(pos(a), pos(b)) })
}
