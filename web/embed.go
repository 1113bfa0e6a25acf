// Package web holds the default shell template. The file on disk is what
// `isomorph build` reads by default; the embedded copy lets the server run
// before the project has a shell of its own.
package web

import (
	_ "embed"
)

// ShellPath is the default location of the shell template.
const ShellPath = "web/index.html"

// DefaultShell is the content of web/index.html.
//
//go:embed index.html
var DefaultShell string

