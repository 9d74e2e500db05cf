package engine

import (
	"regexp"
	"strconv"
	"strings"
)

// versionPatterns maps a tool name to the regexp that extracts its version
// from the tool's --version output. The first capture group is the version.
var versionPatterns = map[string]*regexp.Regexp{
	"git":       regexp.MustCompile(`git version (\d+(?:\.\d+)+)`),
	"python":    regexp.MustCompile(`Python (\d+(?:\.\d+)+)`),
	"python3":   regexp.MustCompile(`Python (\d+(?:\.\d+)+)`),
	"node":      regexp.MustCompile(`v(\d+\.\d+\.\d+)`),
	"go":        regexp.MustCompile(`go version go(\d+(?:\.\d+)+)`),
	"docker":    regexp.MustCompile(`Docker version (\d+(?:\.\d+)+)`),
	"kubectl":   regexp.MustCompile(`(?:Client Version: v|GitVersion:"v)(\d+\.\d+\.\d+)`),
	"terraform": regexp.MustCompile(`Terraform v(\d+\.\d+\.\d+)`),
	"az":        regexp.MustCompile(`azure-cli\s+(\d+\.\d+\.\d+)`),
	"pwsh":      regexp.MustCompile(`PowerShell (\d+\.\d+\.\d+)`),
	"nix":       regexp.MustCompile(`nix \(Nix\) (\d+(?:\.\d+)+)`),
	"helm":      regexp.MustCompile(`v(\d+\.\d+\.\d+)`),
	"java":      regexp.MustCompile(`version "(\d+(?:\.\d+)*)`),
	"rustc":     regexp.MustCompile(`rustc (\d+\.\d+\.\d+)`),
	"cargo":     regexp.MustCompile(`cargo (\d+\.\d+\.\d+)`),
	"gh":        regexp.MustCompile(`gh version (\d+\.\d+\.\d+)`),
	"aws":       regexp.MustCompile(`aws-cli/(\d+\.\d+\.\d+)`),
}

var genericVersion = regexp.MustCompile(`(\d+\.\d+(?:\.\d+)?)`)

// ExtractVersion pulls a version out of a tool's version output. Tools without
// a table entry use a generic dotted-number match. It returns "" when nothing
// looks like a version.
func ExtractVersion(tool, output string) string {
	if re, ok := versionPatterns[tool]; ok {
		if m := re.FindStringSubmatch(output); len(m) > 1 {
			return m[1]
		}
	}
	if m := genericVersion.FindStringSubmatch(output); len(m) > 1 {
		return m[1]
	}
	return ""
}

// Satisfies reports whether an installed version meets a requirement.
// "latest" (or empty) is met by any installed version; an unknown installed
// version meets nothing else.
func Satisfies(installed, required string) bool {
	if required == "" || strings.EqualFold(required, VersionLatest) {
		return true
	}
	if installed == "" {
		return false
	}
	cmp, ok := CompareVersions(installed, required)
	if !ok {
		return false
	}
	return cmp >= 0
}

// CompareVersions compares two version strings component by component after
// dropping a Debian epoch ("1:") and revision ("-0ubuntu1"). Numeric
// components compare numerically, others lexically. ok is false when either
// side has no numeric component at all.
func CompareVersions(a, b string) (cmp int, ok bool) {
	pa, pb := versionParts(a), versionParts(b)
	if !hasDigit(pa) || !hasDigit(pb) {
		return 0, false
	}
	n := len(pa)
	if len(pb) > n {
		n = len(pb)
	}
	for i := 0; i < n; i++ {
		var x, y string
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		if c := comparePart(x, y); c != 0 {
			return c, true
		}
	}
	return 0, true
}

func versionParts(v string) []string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "v")
	if i := strings.Index(v, ":"); i >= 0 {
		v = v[i+1:]
	}
	if i := strings.LastIndex(v, "-"); i > 0 {
		v = v[:i]
	}
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == '.' || r == '+' || r == '~' || r == '_'
	})
}

func hasDigit(parts []string) bool {
	for _, p := range parts {
		if strings.IndexAny(p, "0123456789") >= 0 {
			return true
		}
	}
	return false
}

func comparePart(x, y string) int {
	if x == y {
		return 0
	}
	// a missing component equals a zero one (3.4 == 3.4.0) and sorts below
	// anything else
	if x == "" {
		if isZero(y) {
			return 0
		}
		return -1
	}
	if y == "" {
		if isZero(x) {
			return 0
		}
		return 1
	}
	xn, xerr := strconv.Atoi(leadingDigits(x))
	yn, yerr := strconv.Atoi(leadingDigits(y))
	if xerr == nil && yerr == nil && xn != yn {
		if xn < yn {
			return -1
		}
		return 1
	}
	return strings.Compare(x, y)
}

func isZero(s string) bool {
	return s != "" && strings.Trim(s, "0") == ""
}

func leadingDigits(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}
