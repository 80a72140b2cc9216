package version

import (
	"fmt"
	"log"
)

var (
	Name        = "inference-proxy"
	ShortName   = "iproxy"
	Authors     = "Ensemble contributors"
	Description = "Reverse proxy for llamacpp/vllm inference backends"
	Version     = "v0.0.1"
	Commit      = "none"
	Date        = "nowish"
	User        = "local"
)

// PrintVersionInfo writes a plain-text version banner. extendedInfo adds
// build provenance (commit, build date, builder) below the header.
func PrintVersionInfo(extendedInfo bool, vlog *log.Logger) {
	vlog.Printf("%s %s — %s\n", Name, Version, Description)

	if extendedInfo {
		vlog.Printf("  commit: %s\n", Commit)
		vlog.Printf("   built: %s\n", Date)
		vlog.Printf("   using: %s\n", User)
	}
}

// WelcomeMessage is returned by GET /.
func WelcomeMessage() map[string]string {
	return map[string]string{
		"name":        Name,
		"version":     Version,
		"description": Description,
		"message":     fmt.Sprintf("%s proxy is running", Name),
	}
}
