// Package version хранит сведения о сборке, заполняемые через -ldflags:
//
//	-X .../internal/version.version=v1.2.3
//	-X .../internal/version.commit=abc1234
//	-X .../internal/version.buildDate=2026-08-29T10:00:00Z
package version

import (
	"fmt"
	"runtime"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// BuildInfo описывает сборку сервиса.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
	GoVersion string
}

// Info возвращает сведения о текущей сборке.
func Info() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
	}
}

// String возвращает однострочное описание сборки для логов и health-ответов.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s)", version, commit, buildDate, runtime.Version())
}
