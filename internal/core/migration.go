package core

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/valter-silva-au/taskboard/internal/storage"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// MigrationStepKind names one action of the legacy migration.
type MigrationStepKind string

const (
	StepRewriteStage MigrationStepKind = "rewrite-stage"
	StepRelocate     MigrationStepKind = "relocate"
	StepRemoveFolder MigrationStepKind = "remove-folder"
	StepCopyGuidance MigrationStepKind = "copy-guidance"
)

// MigrationStep describes one action, planned or performed.
type MigrationStep struct {
	Kind MigrationStepKind `json:"kind"`
	From string            `json:"from"`
	To   string            `json:"to,omitempty"`
}

// MigrationReport lists the steps a Run performed.
type MigrationReport struct {
	Steps []MigrationStep `json:"steps"`
}

// Count returns the number of performed steps of kind.
func (r *MigrationReport) Count(kind MigrationStepKind) int {
	n := 0
	for _, s := range r.Steps {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// Migrator upgrades legacy stage folders and guidance documents to the
// canonical layout. Both methods are safe to call repeatedly.
type Migrator interface {
	// Pending returns what Run would do without touching the disk.
	Pending() ([]MigrationStep, error)
	Run() (*MigrationReport, error)
}

type migrator struct {
	mu     sync.Mutex
	scan   scanner
	events EventLogger
}

// NewMigrator creates a Migrator for ws.
func NewMigrator(fs storage.FileStore, ws Workspace, logger *slog.Logger, events EventLogger) Migrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &migrator{
		scan:   scanner{fs: fs, ws: ws, log: logger},
		events: events,
	}
}

type plannedFile struct {
	src, dst     string
	rewriteStage bool
	newID        string
}

type aliasPlan struct {
	alias  LegacyAlias
	files  []plannedFile
	folder string
}

func (m *migrator) Pending() ([]MigrationStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plans, err := m.plan()
	if err != nil {
		return nil, err
	}
	var steps []MigrationStep
	for _, p := range plans {
		steps = append(steps, p.steps()...)
	}
	return append(steps, m.guidanceSteps()...), nil
}

func (m *migrator) Run() (*MigrationReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := &MigrationReport{}
	plans, err := m.plan()
	if err != nil {
		return report, err
	}
	for _, p := range plans {
		if err := m.apply(p, report); err != nil {
			return report, fmt.Errorf("migrating %s folder: %w", p.alias.Name, err)
		}
	}
	for _, step := range m.guidanceSteps() {
		if err := m.copyGuidance(step); err != nil {
			return report, fmt.Errorf("migrating guidance %s: %w", step.From, err)
		}
		report.Steps = append(report.Steps, step)
	}

	if len(report.Steps) > 0 {
		m.scan.log.Info("legacy migration completed",
			"relocated", report.Count(StepRelocate),
			"rewritten", report.Count(StepRewriteStage),
			"folders_removed", report.Count(StepRemoveFolder))
		emitEvent(m.events, EventMigrationCompleted, map[string]any{
			"relocated":       report.Count(StepRelocate),
			"rewritten":       report.Count(StepRewriteStage),
			"folders_removed": report.Count(StepRemoveFolder),
			"guidance_copied": report.Count(StepCopyGuidance),
		})
	}
	return report, nil
}

// plan inspects every legacy folder. Destination names are reserved as they
// are assigned so two legacy files never target the same path.
func (m *migrator) plan() ([]aliasPlan, error) {
	fs, ws := m.scan.fs, m.scan.ws
	reserved := make(map[string]bool)
	var plans []aliasPlan

	for _, alias := range LegacyAliases() {
		folder := ws.StageDir(alias.Name)
		entries, err := fs.ListDir(folder)
		if err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("listing %s: %w", folder, err)
		}

		p := aliasPlan{alias: alias, folder: folder}
		for _, e := range entries {
			if !isTaskFile(e) {
				continue
			}
			src := filepath.Join(folder, e.Name)
			raw, err := fs.ReadFile(src)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", src, err)
			}
			doc := ParseDocument(string(raw))
			declared := strings.TrimSpace(doc.Meta.String(keyStage))

			stem := fileStem(src)
			id, err := m.freeName(stem, folder, alias.Target, reserved)
			if err != nil {
				return nil, err
			}
			reserved[id] = true

			pf := plannedFile{
				src:          src,
				dst:          ws.TaskPath(alias.Target, id),
				rewriteStage: strings.EqualFold(declared, alias.Name),
			}
			if id != stem {
				pf.newID = id
			}
			p.files = append(p.files, pf)
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// freeName picks stem, stem-2, stem-3, ... such that the name is free in the
// canonical folder and not used by any other stage folder.
func (m *migrator) freeName(stem, legacyFolder string, target models.Stage, reserved map[string]bool) (string, error) {
	candidate := stem
	for n := 2; ; n++ {
		if !reserved[candidate] {
			taken := false
			for _, dir := range m.scan.allFolders() {
				if candidate == stem && dir == legacyFolder {
					continue
				}
				_, err := m.scan.fs.Stat(filepath.Join(dir, candidate+markdownSuffix))
				if err == nil {
					taken = true
					break
				}
				if !storage.IsNotFound(err) {
					return "", fmt.Errorf("checking %s: %w", candidate, err)
				}
			}
			if !taken {
				return candidate, nil
			}
		}
		candidate = stem + "-" + strconv.Itoa(n)
	}
}

func (p aliasPlan) steps() []MigrationStep {
	var steps []MigrationStep
	for _, f := range p.files {
		if f.rewriteStage {
			steps = append(steps, MigrationStep{Kind: StepRewriteStage, From: f.src, To: string(p.alias.Target)})
		}
		steps = append(steps, MigrationStep{Kind: StepRelocate, From: f.src, To: f.dst})
	}
	return append(steps, MigrationStep{Kind: StepRemoveFolder, From: p.folder})
}

func (m *migrator) apply(p aliasPlan, report *MigrationReport) error {
	fs := m.scan.fs
	if len(p.files) > 0 {
		if err := fs.Mkdir(m.scan.ws.StageDir(string(p.alias.Target)), true); err != nil {
			return fmt.Errorf("creating %s folder: %w", p.alias.Target, err)
		}
	}

	for _, f := range p.files {
		if f.rewriteStage || f.newID != "" {
			if err := rewriteLegacyFile(fs, f, p.alias.Target); err != nil {
				return err
			}
			if f.rewriteStage {
				report.Steps = append(report.Steps, MigrationStep{Kind: StepRewriteStage, From: f.src, To: string(p.alias.Target)})
			}
		}
		if err := relocateFile(fs, f.src, f.dst); err != nil {
			return fmt.Errorf("relocating %s: %w", f.src, err)
		}
		m.scan.log.Debug("relocated legacy task", "from", f.src, "to", f.dst)
		report.Steps = append(report.Steps, MigrationStep{Kind: StepRelocate, From: f.src, To: f.dst})
	}

	entries, err := fs.ListDir(p.folder)
	if err != nil {
		return fmt.Errorf("listing %s: %w", p.folder, err)
	}
	if len(entries) > 0 {
		m.scan.log.Warn("legacy folder not empty, leaving it in place", "folder", p.folder, "entries", len(entries))
		return nil
	}
	if err := fs.Delete(p.folder, false); err != nil && !storage.IsNotFound(err) {
		return fmt.Errorf("removing %s: %w", p.folder, err)
	}
	report.Steps = append(report.Steps, MigrationStep{Kind: StepRemoveFolder, From: p.folder})
	return nil
}

func rewriteLegacyFile(fs storage.FileStore, f plannedFile, target models.Stage) error {
	raw, err := fs.ReadFile(f.src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", f.src, err)
	}
	doc := ParseDocument(string(raw))
	if f.rewriteStage {
		doc.Meta.SetString(keyStage, string(target))
	}
	if f.newID != "" {
		doc.Meta.SetString(keyID, f.newID)
	}
	out, err := doc.String()
	if err != nil {
		return fmt.Errorf("rendering %s: %w", f.src, err)
	}
	if err := fs.WriteFile(f.src, []byte(out)); err != nil {
		return fmt.Errorf("writing %s: %w", f.src, err)
	}
	return nil
}

// relocateFile renames src to dst, falling back to copy and delete when the
// two are on different devices. It never overwrites dst.
func relocateFile(fs storage.FileStore, src, dst string) error {
	err := fs.Rename(src, dst)
	if err == nil || !errors.Is(err, storage.ErrCrossDevice) {
		return err
	}
	if err := fs.Copy(src, dst, false); err != nil {
		return err
	}
	return fs.Delete(src, false)
}

// guidanceSteps lists legacy guidance documents whose canonical counterpart
// is missing.
func (m *migrator) guidanceSteps() []MigrationStep {
	fs, ws := m.scan.fs, m.scan.ws
	var steps []MigrationStep
	for _, alias := range LegacyAliases() {
		legacy := ws.GuidanceDoc(alias.Name)
		canonical := ws.GuidanceDoc(string(alias.Target))
		if _, err := fs.Stat(legacy); err != nil {
			continue
		}
		if _, err := fs.Stat(canonical); err == nil {
			continue
		}
		steps = append(steps, MigrationStep{Kind: StepCopyGuidance, From: legacy, To: canonical})
	}
	return steps
}

func (m *migrator) copyGuidance(step MigrationStep) error {
	fs := m.scan.fs
	raw, err := fs.ReadFile(step.From)
	if err != nil {
		return err
	}
	from := fileStem(step.From)
	to := fileStem(step.To)
	content := substituteStageName(string(raw), from, to)
	return fs.WriteFile(step.To, []byte(content))
}

// substituteStageName replaces whole-word mentions of from with to, keeping
// a leading capital where the original had one.
func substituteStageName(text, from, to string) string {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(from) + `\b`)
	return re.ReplaceAllStringFunc(text, func(match string) string {
		switch {
		case strings.ToUpper(match) == match:
			return strings.ToUpper(to)
		case match[:1] == strings.ToUpper(match[:1]):
			return strings.ToUpper(to[:1]) + to[1:]
		default:
			return to
		}
	})
}
