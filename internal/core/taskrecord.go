package core

import (
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/valter-silva-au/taskboard/internal/storage"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// UserContentMarker separates generated sections of a task body from the
// free text written by the user.
const UserContentMarker = "<!-- taskboard:user-content -->"

// TimestampLayout is the layout written to frontmatter timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Frontmatter keys.
const (
	keyID          = "id"
	keyTitle       = "title"
	keyStage       = "stage"
	keyPhase       = "phase"
	keyAgent       = "agent"
	keyContexts    = "contexts"
	keyContext     = "context"
	keyTags        = "tags"
	keyCreated     = "created"
	keyUpdated     = "updated"
	keyOrder       = "order"
	markdownSuffix = ".md"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FormatTimestamp renders t the way task files store it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// BuildTask converts a task document into a Task. The stage comes from the
// folder the file lives in, falling back to fallback; nil is returned when
// neither yields a stage.
func BuildTask(path, raw string, info storage.FileInfo, tasksRoot string, fallback models.Stage) *models.Task {
	stage := StageFromPath(tasksRoot, path)
	if stage == "" {
		stage = NormalizeStage(string(fallback), "")
	}
	if stage == "" {
		return nil
	}
	return taskFromDocument(path, ParseDocument(raw), info, stage)
}

func taskFromDocument(path string, doc *Document, info storage.FileInfo, stage models.Stage) *models.Task {
	meta := doc.Meta
	stem := fileStem(path)

	task := &models.Task{
		ID:          strings.TrimSpace(meta.String(keyID)),
		Title:       strings.TrimSpace(meta.String(keyTitle)),
		Stage:       stage,
		Phase:       strings.TrimSpace(meta.String(keyPhase)),
		Agent:       strings.TrimSpace(meta.String(keyAgent)),
		Contexts:    contextsOf(meta),
		Tags:        meta.Strings(keyTags),
		FilePath:    path,
		UserContent: extractUserContent(doc.Body),
	}
	if task.ID == "" {
		task.ID = stem
	}
	if task.Title == "" {
		task.Title = Humanize(BaseSlug(stem))
	}

	if ts, ok := metaTime(meta, keyCreated); ok {
		task.Created = ts
	} else {
		task.Created = info.Created
	}
	if ts, ok := metaTime(meta, keyUpdated); ok {
		task.Updated = ts
	} else {
		task.Updated = info.Modified
	}
	if n, ok := metaInt(meta, keyOrder); ok {
		task.Order = &n
	}
	return task
}

// contextsOf reads the contexts list, accepting the legacy singular key.
func contextsOf(meta *Metadata) []string {
	if meta.Has(keyContexts) {
		return meta.Strings(keyContexts)
	}
	return meta.Strings(keyContext)
}

func metaTime(meta *Metadata, key string) (time.Time, bool) {
	v, ok := meta.Get(key)
	if !ok || v.Kind() != ValueScalar {
		return time.Time{}, false
	}
	return parseTimestamp(v.Text())
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func metaInt(meta *Metadata, key string) (int, bool) {
	v, ok := meta.Get(key)
	if !ok || v.Kind() != ValueScalar {
		return 0, false
	}
	s := strings.TrimSpace(v.Text())
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int(f), true
	}
	return 0, false
}

// extractUserContent returns the trimmed text after the marker. Documents
// without the marker are treated as entirely user-authored.
func extractUserContent(body string) string {
	if _, after, found := strings.Cut(body, UserContentMarker); found {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(body)
}

func fileStem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), markdownSuffix)
}

// isTaskFile reports whether a directory entry looks like a task document.
func isTaskFile(e storage.DirEntry) bool {
	return !e.IsDir && strings.HasSuffix(e.Name, markdownSuffix) && !strings.HasPrefix(e.Name, ".")
}

// ensureDefaults fills the identity and bookkeeping keys every written task
// file carries. now becomes the updated timestamp.
func ensureDefaults(meta *Metadata, path string, info storage.FileInfo, stage models.Stage, now time.Time) {
	stem := fileStem(path)
	if strings.TrimSpace(meta.String(keyID)) == "" {
		meta.SetString(keyID, stem)
	}
	if strings.TrimSpace(meta.String(keyTitle)) == "" {
		meta.SetString(keyTitle, Humanize(BaseSlug(stem)))
	}
	meta.SetString(keyStage, string(stage))
	if !meta.Has(keyCreated) {
		created := info.Created
		if created.IsZero() {
			created = now
		}
		meta.Set(keyCreated, TypedScalar(FormatTimestamp(created), "!!timestamp"))
	}
	meta.Set(keyUpdated, TypedScalar(FormatTimestamp(now), "!!timestamp"))
}
