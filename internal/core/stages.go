package core

import (
	"path/filepath"
	"strings"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

const (
	maxSlugLength   = 80
	slugPlaceholder = "item"
)

// LegacyAlias maps a retired stage name to its canonical replacement.
type LegacyAlias struct {
	Name   string
	Target models.Stage
}

var legacyAliases = []LegacyAlias{
	{Name: "chat", Target: models.StageIdea},
	{Name: "review", Target: models.StageAudit},
}

// LegacyAliases returns the retired stage names in a fixed order.
func LegacyAliases() []LegacyAlias {
	return append([]LegacyAlias{}, legacyAliases...)
}

// AliasesFor returns the legacy folder names that resolve to stage.
func AliasesFor(stage models.Stage) []string {
	var out []string
	for _, a := range legacyAliases {
		if a.Target == stage {
			out = append(out, a.Name)
		}
	}
	return out
}

// IsLegacyAlias reports whether name is a retired stage name.
func IsLegacyAlias(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, a := range legacyAliases {
		if a.Name == name {
			return true
		}
	}
	return false
}

// IsCanonicalStage reports whether s is exactly one of the canonical stages.
func IsCanonicalStage(s string) bool {
	for _, st := range models.Stages() {
		if string(st) == s {
			return true
		}
	}
	return false
}

// NormalizeStage resolves candidate case-insensitively against the canonical
// stages, then the legacy aliases. Anything else yields fallback, which may be
// "" to signal that the stage is unrecognized.
func NormalizeStage(candidate string, fallback models.Stage) models.Stage {
	c := strings.ToLower(strings.TrimSpace(candidate))
	if c == "" {
		return fallback
	}
	for _, st := range models.Stages() {
		if string(st) == c {
			return st
		}
	}
	for _, a := range legacyAliases {
		if a.Name == c {
			return a.Target
		}
	}
	return fallback
}

// Slugify derives a lowercase, hyphenated, filesystem-safe identifier.
func Slugify(text string) string {
	var sb strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			pendingHyphen = false
			sb.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}

	slug := sb.String()
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	if slug == "" {
		return slugPlaceholder
	}
	return slug
}

// BaseSlug strips a ".md" extension and then one "<stage>-", "<alias>-" or
// "task-" prefix from a legacy id or filename.
func BaseSlug(idOrFilename string) string {
	base := strings.TrimSuffix(idOrFilename, ".md")
	prefixes := []string{"task"}
	for _, st := range models.Stages() {
		prefixes = append(prefixes, string(st))
	}
	for _, a := range legacyAliases {
		prefixes = append(prefixes, a.Name)
	}

	lower := strings.ToLower(base)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p+"-") && len(base) > len(p)+1 {
			return base[len(p)+1:]
		}
	}
	return base
}

// Humanize turns a slug into a readable title by replacing hyphen runs with
// single spaces.
func Humanize(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' })
	if len(words) == 0 {
		return slug
	}
	return strings.Join(words, " ")
}

// StageFromPath returns the stage of the folder segment that follows
// tasksRoot in path, or "" when it is missing or unrecognized. Legacy alias
// folders resolve to their canonical stage.
func StageFromPath(tasksRoot, path string) models.Stage {
	rel, err := filepath.Rel(tasksRoot, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return stageFromMarker(path)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return ""
	}
	return NormalizeStage(parts[0], "")
}

// stageFromMarker handles paths that do not sit under tasksRoot lexically,
// for example when one side went through a symlink, by locating the tasks
// marker segment.
func stageFromMarker(path string) models.Stage {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for i := len(parts) - 3; i >= 0; i-- {
		if parts[i] == tasksDirName {
			return NormalizeStage(parts[i+1], "")
		}
	}
	return ""
}
