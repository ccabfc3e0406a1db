// Package tutorial defines the generated tutorial document and the LLM
// fragments it is assembled from.
package tutorial

import (
	"time"

	"github.com/Strob0t/CodeTutor/internal/domain/repository"
)

// SubjectKind is what a fragment talks about.
type SubjectKind string

const (
	SubjectRepository SubjectKind = "repository"
	SubjectDirectory  SubjectKind = "directory"
	SubjectFile       SubjectKind = "file"
)

// RepositorySubject is the subject name of the overview fragment.
const RepositorySubject = "repository"

// FragmentStatus records how a fragment's content was produced.
type FragmentStatus string

const (
	// FragmentGenerated content came from the LLM.
	FragmentGenerated FragmentStatus = "generated"
	// FragmentFallback content was templated from static analysis because
	// the task's LLM call budget was spent.
	FragmentFallback FragmentStatus = "fallback"
	// FragmentPlaceholder marks a section whose LLM call failed.
	FragmentPlaceholder FragmentStatus = "placeholder"
)

// Fragment is one unit of content about a single subject. It is immutable
// once produced.
type Fragment struct {
	Subject     string         `json:"subject"`
	Kind        SubjectKind    `json:"kind"`
	Prompt      string         `json:"-"`
	Raw         string         `json:"-"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Content     string         `json:"content"`
	Status      FragmentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
}

// Section is a fragment placed in the document.
type Section struct {
	Fragment
	Depth int `json:"depth"`
}

// LanguageStat counts included files and bytes for one language.
type LanguageStat struct {
	Language string `json:"language"`
	Files    int    `json:"files"`
	Bytes    int64  `json:"bytes"`
}

// Metadata describes the analyzed repository and the run that produced the tutorial.
type Metadata struct {
	Repository    string              `json:"repository"`
	URL           string              `json:"url"`
	Ref           string              `json:"ref,omitempty"`
	Commit        string              `json:"commit,omitempty"`
	Description   string              `json:"description,omitempty"`
	GeneratedAt   time.Time           `json:"generated_at"`
	Languages     []LanguageStat      `json:"languages"`
	FilesIncluded int                 `json:"files_included"`
	FilesSkipped  int                 `json:"files_skipped"`
	BytesIncluded int64               `json:"bytes_included"`
	Truncated     bool                `json:"truncated"`
	Dependencies  map[string][]string `json:"dependencies,omitempty"`
	Host          repository.Metadata `json:"host"`
}

// LearningStep is one stop on the suggested reading order.
type LearningStep struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Files       []string `json:"files,omitempty"`
}

// Tutorial is the assembled document. Built once per task, then read-only.
type Tutorial struct {
	Metadata       Metadata       `json:"metadata"`
	Overview       Fragment       `json:"overview"`
	GettingStarted string         `json:"getting_started"`
	Sections       []Section      `json:"sections"`
	Diagram        string         `json:"diagram,omitempty"`
	LearningPath   []LearningStep `json:"learning_path,omitempty"`
}

// Title returns the document heading.
func (t *Tutorial) Title() string {
	if t.Overview.Title != "" {
		return t.Overview.Title
	}
	return t.Metadata.Repository + " tutorial"
}

// Placeholders counts sections whose generation failed.
func (t *Tutorial) Placeholders() int {
	n := 0
	for _, s := range t.Sections {
		if s.Status == FragmentPlaceholder {
			n++
		}
	}
	return n
}
