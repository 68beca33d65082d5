package version

import (
	"fmt"
	"runtime"
)

const name = "segstack"

var major = 0
var minor = 3
var patch = 1
var status = ""

// String returns the library version, used as the otel instrumentation version
func String() string {
	if status != "" {
		return fmt.Sprintf("v%d.%d.%d-%s", major, minor, patch, status)
	}
	return fmt.Sprintf("v%d.%d.%d", major, minor, patch)
}

// UserAgent is sent by the otlp metric exporters
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s; %s/%s)", name, String(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
