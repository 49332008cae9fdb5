// Package web holds the dashboard frontend.
package web

import "embed"

//go:embed dist
var DistFS embed.FS
