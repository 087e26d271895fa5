// Package appfs exposes the app's embedded assets: database migrations,
// email templates and the common-password list.
package appfs

import "embed"

//go:embed assets migrations
var FS embed.FS
