// Package version holds build information set with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/jackzampolin/folio/version.GitRelease=v0.3.0"
package version

import (
	"fmt"
	"runtime"
)

var (
	GitRelease    = "dev"
	GitCommit     = "unknown"
	GitCommitDate = "unknown"
	GoInfo        = fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
)
