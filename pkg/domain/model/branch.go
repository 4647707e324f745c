package model

import (
	"os"
	"regexp"
	"strings"
)

// BranchSpec is a branch filter configured on a job, such as "master", "*/release-*",
// "origin/topic" or ":^origin/(master|main)$" (a leading colon marks a raw regular expression).
type BranchSpec struct {
	Name string `json:"name" toml:"name" yaml:"name"`
}

const refsHeadsPrefix = "refs/heads/"

// Matches reports whether the branch name item is selected by the spec.
// item may be bare ("master") or remote-qualified ("origin/master").
func (b BranchSpec) Matches(item string) bool {
	re := b.pattern()
	if re == nil {
		return false
	}
	return re.MatchString(item)
}

func (b BranchSpec) pattern() *regexp.Regexp {
	name := strings.TrimSpace(os.ExpandEnv(b.Name))
	if name == "" {
		name = "**"
	}

	if strings.HasPrefix(name, ":") {
		re, err := regexp.Compile(name[1:])
		if err != nil {
			return nil
		}
		return re
	}

	name = strings.TrimPrefix(name, refsHeadsPrefix)

	// An unqualified name selects the branch on any remote
	if !strings.Contains(name, "**") && !strings.Contains(name, "/") {
		name = "**/" + name
	}

	var sb strings.Builder
	sb.WriteString("^")
	for i := 0; i < len(name); i++ {
		switch {
		case strings.HasPrefix(name[i:], "**/"):
			// also matches the bare name
			sb.WriteString("(?:.*/)?")
			i += 2
		case strings.HasPrefix(name[i:], "**"):
			sb.WriteString(".*")
			i++
		case name[i] == '*':
			sb.WriteString("[^/]*")
		default:
			sb.WriteString(regexp.QuoteMeta(name[i : i+1]))
		}
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil
	}
	return re
}

// BranchCandidates returns the names a notified branch token is compared against:
// the token itself, the token without "refs/heads/", and the token qualified with each remote name.
func BranchCandidates(token string, remoteNames []string) []string {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}

	seen := map[string]struct{}{}
	var out []string
	add := func(s string) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	add(token)
	bare := strings.TrimPrefix(token, refsHeadsPrefix)
	add(bare)
	for _, name := range remoteNames {
		if strings.HasPrefix(bare, name+"/") {
			continue
		}
		add(name + "/" + bare)
	}
	return out
}

// AnyBranchMatches reports whether any spec selects any of the notified branch tokens
func AnyBranchMatches(specs []BranchSpec, tokens []string, remoteNames []string) bool {
	for _, token := range tokens {
		for _, candidate := range BranchCandidates(token, remoteNames) {
			for _, spec := range specs {
				if spec.Matches(candidate) {
					return true
				}
			}
		}
	}
	return false
}
