package service

import (
	"path"
	"strings"
)

// extensionLanguages is the default allow-list and the language map used
// by the walker and analyzer.
var extensionLanguages = map[string]string{
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".go":    "go",
	".rs":    "rust",
	".php":   "php",
	".rb":    "ruby",
	".swift": "swift",
	".kt":    "kotlin",
	".scala": "scala",
	".r":     "r",
	".sql":   "sql",
	".sh":    "bash",
	".yml":   "yaml",
	".yaml":  "yaml",
	".toml":  "toml",
	".json":  "json",
	".xml":   "xml",
	".html":  "html",
	".css":   "css",
	".md":    "markdown",
	".txt":   "text",
}

// filenameLanguages covers well-known files without a useful extension.
var filenameLanguages = map[string]string{
	"Dockerfile": "dockerfile",
	"Makefile":   "makefile",
	"go.mod":     "go-module",
}

// languageOf returns the language for a slash-separated path, or "".
func languageOf(p string) string {
	base := path.Base(p)
	if lang, ok := filenameLanguages[base]; ok {
		return lang
	}
	return extensionLanguages[strings.ToLower(path.Ext(base))]
}

// normalizeExt lowercases an extension and ensures a leading dot.
func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
