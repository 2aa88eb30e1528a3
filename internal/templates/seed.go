package templates

import (
	"embed"
	"io/fs"
)

//go:embed seed/*.md
var seedFS embed.FS

// Defaults returns the built-in agreement templates.
func Defaults() fs.FS {
	sub, err := fs.Sub(seedFS, "seed")
	if err != nil {
		panic(err)
	}
	return sub
}
