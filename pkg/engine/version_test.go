package engine

import "testing"

func TestSatisfies(t *testing.T) {
	tests := []struct {
		installed string
		required  string
		want      bool
	}{
		{"2.43.0", "latest", true},
		{"2.43.0", "", true},
		{"", "latest", true},
		{"", "2.0", false},
		{"2.43.0", "2.40", true},
		{"2.43.0", "2.43.0", true},
		{"2.43.0", "2.44", false},
		{"1:2.43.0-1ubuntu7", "2.43", true},
		{"1.10.0", "1.9.9", true},
		{"1.7", "1.7.1", false},
		{"3.4-1ubuntu1", "3.4.0", true},
		{"3.4", "3.4.0.0", true},
		{"unknown", "1.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.installed+">="+tt.required, func(t *testing.T) {
			if got := Satisfies(tt.installed, tt.required); got != tt.want {
				t.Errorf("Satisfies(%q, %q) = %v, want %v", tt.installed, tt.required, got, tt.want)
			}
		})
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.2.3", "1.2.3", 0},
		{"v1.2.3", "1.2.3", 0},
		{"1.2.10", "1.2.9", 1},
		{"1.2", "1.2.0", 0},
		{"1.2.0", "1.2", 0},
		{"1.2", "1.2.1", -1},
		{"1.2.0.1", "1.2", 1},
		{"1.2", "1.2.rc1", -1},
		{"3.12.3-1ubuntu0.1", "3.12.3", 0},
		{"2:9.1.0016-1", "9.1.0017", -1},
		{"1.0.0rc1", "1.0.0rc2", -1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			got, ok := CompareVersions(tt.a, tt.b)
			if !ok {
				t.Fatalf("CompareVersions(%q, %q) not comparable", tt.a, tt.b)
			}
			if got != tt.want {
				t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}

	if _, ok := CompareVersions("stable", "1.0"); ok {
		t.Error("Expected a version without digits to be incomparable")
	}
}

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		tool   string
		output string
		want   string
	}{
		{"git", "git version 2.43.0", "2.43.0"},
		{"python3", "Python 3.12.3", "3.12.3"},
		{"node", "v20.11.1", "20.11.1"},
		{"go", "go version go1.22.2 linux/amd64", "1.22.2"},
		{"docker", "Docker version 26.1.3, build b72abbb", "26.1.3"},
		{"kubectl", "Client Version: v1.30.1\nKustomize Version: v5.0.4", "1.30.1"},
		{"terraform", "Terraform v1.8.4\non linux_amd64", "1.8.4"},
		{"az", "azure-cli                         2.61.0\n\ncore   2.61.0", "2.61.0"},
		{"pwsh", "PowerShell 7.4.2", "7.4.2"},
		{"nix", "nix (Nix) 2.21.2", "2.21.2"},
		{"java", `openjdk version "21.0.3" 2024-04-16`, "21.0.3"},
		{"gh", "gh version 2.49.2 (2024-05-13)", "2.49.2"},
		{"aws", "aws-cli/2.15.58 Python/3.11.8 Linux/6.5.0", "2.15.58"},
		{"yq", "yq (https://github.com/mikefarah/yq/) version v4.44.1", "4.44.1"},
		{"bat", "no version here", ""},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			if got := ExtractVersion(tt.tool, tt.output); got != tt.want {
				t.Errorf("ExtractVersion(%q) = %q, want %q", tt.tool, got, tt.want)
			}
		})
	}
}
