package archive

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// MemberPredicate selects archive members by name.
type MemberPredicate func(name string) bool

// Glob matches the full member name or its base name against a doublestar
// pattern, so "*.csv" finds "reports/TCGA_Reports.csv" as well.
func Glob(pattern string) MemberPredicate {
	return func(name string) bool {
		if matched, err := doublestar.Match(pattern, name); err == nil && matched {
			return true
		}
		matched, err := doublestar.Match(pattern, path.Base(name))
		return err == nil && matched
	}
}

func Suffix(suffix string) MemberPredicate {
	return func(name string) bool {
		return strings.HasSuffix(name, suffix)
	}
}

func Exact(want string) MemberPredicate {
	return func(name string) bool {
		return name == want || path.Base(name) == want
	}
}

// Member selects by exact name when pattern has no glob syntax, so a name
// like "embeddings.tsv" never matches "old_embeddings.tsv" by accident.
func Member(pattern string) MemberPredicate {
	if strings.ContainsAny(pattern, "*?[{") {
		return Glob(pattern)
	}
	return Exact(pattern)
}

// ValidGlob reports whether pattern is a well-formed doublestar pattern.
func ValidGlob(pattern string) bool {
	return doublestar.ValidatePattern(pattern)
}

// skipMember filters directory entries and resource forks added by macOS zip tools.
func skipMember(name string) bool {
	return strings.HasSuffix(name, "/") || strings.HasPrefix(name, "__MACOSX/")
}
