package report

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/andresrocksuk/devbox/pkg/runner"
)

// OSReleasePath is where the distribution describes itself.
const OSReleasePath = "/etc/os-release"

// HostFacts identifies the machine a report was taken on.
type HostFacts struct {
	Name     string `json:"name,omitempty"`
	Version  string `json:"version,omitempty"`
	Kernel   string `json:"kernel,omitempty"`
	Arch     string `json:"arch,omitempty"`
	Hostname string `json:"hostname,omitempty"`
}

// CollectHostFacts gathers OS facts. Missing facts are left empty; nothing
// here fails the report.
func CollectHostFacts(ctx context.Context, r runner.Runner, osRelease string) *HostFacts {
	facts := &HostFacts{}

	if f, err := os.Open(osRelease); err == nil {
		facts.Name, facts.Version = parseOSRelease(f)
		f.Close()
	}

	facts.Kernel = uname(ctx, r, "-r")
	facts.Arch = uname(ctx, r, "-m")

	if h, err := os.Hostname(); err == nil {
		facts.Hostname = h
	}
	return facts
}

func parseOSRelease(f *os.File) (name, version string) {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"'`)
		switch key {
		case "NAME":
			name = value
		case "VERSION":
			version = value
		}
	}
	return name, version
}

func uname(ctx context.Context, r runner.Runner, flag string) string {
	res, err := r.Run(ctx, runner.Command{Name: "uname", Args: []string{flag}})
	if err != nil || !res.Success() {
		return ""
	}
	return strings.TrimSpace(res.Stdout)
}
