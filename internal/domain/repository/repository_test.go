package repository

import (
	"errors"
	"testing"

	"github.com/Strob0t/CodeTutor/internal/domain"
)

var hosts = []string{"github.com"}

func TestParseSourceAcceptedForms(t *testing.T) {
	tests := []struct {
		raw, ref  string
		wantOwner string
		wantName  string
		wantRef   string
	}{
		{"https://github.com/octo/hello", "", "octo", "hello", ""},
		{"https://github.com/octo/hello/", "", "octo", "hello", ""},
		{"http://www.github.com/octo/hello.git", "", "octo", "hello", ""},
		{"https://github.com/octo/hello.js/tree/develop", "", "octo", "hello.js", "develop"},
		{"https://github.com/octo/hello/blob/v1.2.0/README.md", "", "octo", "hello", "v1.2.0"},
		{"https://github.com/octo/hello/tree/develop", "main", "octo", "hello", "main"},
		{"git@github.com:octo/hello.git", "", "octo", "hello", ""},
		{"  https://GitHub.com/octo/hello  ", "feature/x", "octo", "hello", "feature/x"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			src, err := ParseSource(tt.raw, tt.ref, hosts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if src.Owner != tt.wantOwner || src.Name != tt.wantName || src.Ref != tt.wantRef {
				t.Fatalf("got %s/%s@%s", src.Owner, src.Name, src.Ref)
			}
			want := "https://github.com/" + tt.wantOwner + "/" + tt.wantName + ".git"
			if src.CloneURL != want {
				t.Errorf("clone url = %s, want %s", src.CloneURL, want)
			}
			if !src.IsGitHub() {
				t.Error("expected github source")
			}
		})
	}
}

func TestParseSourceRejects(t *testing.T) {
	tests := []struct{ name, raw, ref string }{
		{"empty", "", ""},
		{"not a url", "octo/hello", ""},
		{"ftp", "ftp://github.com/octo/hello", ""},
		{"owner only", "https://github.com/octo", ""},
		{"other host", "https://example.com/octo/hello", ""},
		{"deep path", "https://github.com/octo/hello/issues/3", ""},
		{"credentials", "https://user:pw@github.com/octo/hello", ""},
		{"option injection ref", "https://github.com/octo/hello", "--upload-pack=evil"},
		{"range ref", "https://github.com/octo/hello", "main..dev"},
		{"spaces in ref", "https://github.com/octo/hello", "my branch"},
		{"dot dot name", "https://github.com/octo/..", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSource(tt.raw, tt.ref, hosts)
			if !errors.Is(err, domain.ErrInvalidRepositoryURL) {
				t.Fatalf("expected InvalidRepositoryURL, got %v", err)
			}
		})
	}
}

func TestParseSourceAllowedExtraHost(t *testing.T) {
	src, err := ParseSource("https://gitlab.com/group/proj", "", []string{"github.com", "gitlab.com"})
	if err != nil {
		t.Fatal(err)
	}
	if src.IsGitHub() || src.FullName() != "group/proj" {
		t.Fatalf("unexpected source %+v", src)
	}
}
