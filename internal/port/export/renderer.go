// Package export defines the port for rendering a tutorial into a binary
// document format.
package export

import (
	"io"

	"github.com/Strob0t/CodeTutor/internal/domain/tutorial"
)

// Renderer writes a tutorial to w.
type Renderer interface {
	Render(w io.Writer, t *tutorial.Tutorial) error
}
