package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/clawkit/clawkit/internal/config"
	"github.com/clawkit/clawkit/internal/vet"
)

// InstalledMetaFile records install provenance inside each skill directory.
const InstalledMetaFile = ".clawkit-skill.json"

// ErrVetRefused is returned when the vetting verdict forbids installation.
var ErrVetRefused = errors.New("skill failed security vetting")

// ErrApprovalRequired is returned for CAUTION verdicts without explicit
// approval.
var ErrApprovalRequired = errors.New("skill has warnings; re-run with --approve-warnings to install")

// InstalledSkill is the provenance record written next to installed files.
type InstalledSkill struct {
	Slug        string    `json:"slug"`
	Name        string    `json:"name,omitempty"`
	Version     string    `json:"version,omitempty"`
	SourceType  string    `json:"sourceType"`
	Target      string    `json:"target"`
	Score       int       `json:"score"`
	Level       vet.Level `json:"level"`
	RunID       string    `json:"runId"`
	InstalledAt time.Time `json:"installedAt"`
}

// InstallOptions tunes the install flow.
type InstallOptions struct {
	// ApproveWarnings allows installing CAUTION-level skills.
	ApproveWarnings bool
	// DryRun vets and reports without writing anything.
	DryRun bool
}

// InstallResult is the outcome of one install attempt.
type InstallResult struct {
	Slug     string       `json:"slug"`
	Path     string       `json:"path,omitempty"`
	Replaced bool         `json:"replaced"`
	DryRun   bool         `json:"dryRun,omitempty"`
	Verdict  *vet.Verdict `json:"verdict"`
}

// Installer performs vet-first skill installs.
type Installer struct {
	cfg    *config.Config
	client *Client
}

// NewInstaller builds an installer. The client may be nil when registry
// metadata lookups are not wanted.
func NewInstaller(cfg *config.Config, client *Client) *Installer {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Installer{cfg: cfg, client: client}
}

// InstallRoot returns the directory skills are installed into.
func (in *Installer) InstallRoot() (string, error) {
	if root := strings.TrimSpace(in.cfg.Install.Root); root != "" {
		return root, nil
	}
	state, err := config.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(state, "skills"), nil
}

// Install fetches, vets, and installs a skill. DANGER and BLOCKED verdicts
// always refuse; CAUTION requires ApproveWarnings. Every run is recorded on
// the audit chain regardless of outcome.
func (in *Installer) Install(ctx context.Context, target string, opts InstallOptions) (*InstallResult, error) {
	bundle, err := vet.Fetch(ctx, in.cfg, target)
	if err != nil {
		return nil, err
	}

	var meta *vet.RegistryMeta
	if in.client != nil {
		if record, err := in.client.Skill(ctx, bundle.Slug); err == nil {
			meta = record.RegistryMeta()
		}
	}

	verdict := vet.Evaluate(in.cfg, bundle, meta)
	result := &InstallResult{Slug: bundle.Slug, DryRun: opts.DryRun, Verdict: verdict}

	auditPayload := map[string]any{
		"runId":  verdict.RunID,
		"slug":   bundle.Slug,
		"target": target,
		"score":  verdict.Score,
		"level":  verdict.Level,
	}

	switch verdict.Level {
	case vet.LevelDanger, vet.LevelBlocked:
		auditPayload["outcome"] = "refused"
		_ = vet.AppendAudit("install", auditPayload)
		return result, fmt.Errorf("%w: %s (score %d)", ErrVetRefused, verdict.Level, verdict.Score)
	case vet.LevelCaution:
		if !opts.ApproveWarnings {
			auditPayload["outcome"] = "approval_required"
			_ = vet.AppendAudit("install", auditPayload)
			return result, ErrApprovalRequired
		}
		auditPayload["approvedWarnings"] = true
	}

	if opts.DryRun {
		auditPayload["outcome"] = "dry_run"
		_ = vet.AppendAudit("install", auditPayload)
		return result, nil
	}

	root, err := in.InstallRoot()
	if err != nil {
		return nil, err
	}
	dest := filepath.Join(root, bundle.Slug)

	replaced, err := snapshotExisting(dest)
	if err != nil {
		return nil, err
	}
	result.Replaced = replaced

	if err := writeBundle(dest, bundle); err != nil {
		return nil, fmt.Errorf("write skill files: %w", err)
	}

	record := InstalledSkill{
		Slug:        bundle.Slug,
		Name:        bundle.Meta.Name,
		Version:     bundle.Meta.Version,
		SourceType:  bundle.SourceType,
		Target:      target,
		Score:       verdict.Score,
		Level:       verdict.Level,
		RunID:       verdict.RunID,
		InstalledAt: time.Now().UTC(),
	}
	if err := writeInstalledMeta(dest, &record); err != nil {
		return nil, err
	}

	result.Path = dest
	auditPayload["outcome"] = "installed"
	auditPayload["path"] = dest
	_ = vet.AppendAudit("install", auditPayload)
	return result, nil
}

// Uninstall removes an installed skill directory.
func (in *Installer) Uninstall(slug string) error {
	slug = strings.TrimSpace(strings.ToLower(slug))
	if err := vet.ValidateSlug(slug); err != nil {
		return err
	}
	root, err := in.InstallRoot()
	if err != nil {
		return err
	}
	dest := filepath.Join(root, slug)
	if _, err := os.Stat(filepath.Join(dest, InstalledMetaFile)); err != nil {
		return fmt.Errorf("skill %s is not installed", slug)
	}
	if err := os.RemoveAll(dest); err != nil {
		return err
	}
	return vet.AppendAudit("uninstall", map[string]any{"slug": slug, "path": dest})
}

// Installed lists locally installed skills, sorted by slug.
func (in *Installer) Installed() ([]InstalledSkill, error) {
	root, err := in.InstallRoot()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var installed []InstalledSkill
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, e.Name(), InstalledMetaFile))
		if err != nil {
			continue
		}
		var record InstalledSkill
		if err := json.Unmarshal(data, &record); err != nil {
			continue
		}
		installed = append(installed, record)
	}
	sort.Slice(installed, func(i, j int) bool { return installed[i].Slug < installed[j].Slug })
	return installed, nil
}

// Update describes an installed skill with a newer registry version.
type Update struct {
	Slug             string `json:"slug"`
	InstalledVersion string `json:"installedVersion"`
	LatestVersion    string `json:"latestVersion"`
}

// CheckUpdates compares installed skill versions against the registry.
// Skills without a recorded version are skipped.
func (in *Installer) CheckUpdates(ctx context.Context) ([]Update, error) {
	if in.client == nil {
		return nil, errors.New("registry client is required for update checks")
	}
	installed, err := in.Installed()
	if err != nil {
		return nil, err
	}
	var updates []Update
	for _, skill := range installed {
		if strings.TrimSpace(skill.Version) == "" {
			continue
		}
		latest, err := in.client.Skill(ctx, skill.Slug)
		if err != nil {
			if errors.Is(err, ErrSkillNotFound) {
				continue
			}
			return updates, err
		}
		if latest.Version != "" && latest.Version != skill.Version {
			updates = append(updates, Update{
				Slug:             skill.Slug,
				InstalledVersion: skill.Version,
				LatestVersion:    latest.Version,
			})
		}
	}
	return updates, nil
}

// snapshotExisting moves a previous install aside so a failed write cannot
// destroy it.
func snapshotExisting(dest string) (bool, error) {
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	backup := dest + ".previous"
	if err := os.RemoveAll(backup); err != nil {
		return false, err
	}
	if err := os.Rename(dest, backup); err != nil {
		return false, err
	}
	return true, nil
}

func writeBundle(dest string, bundle *vet.Bundle) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	for _, f := range bundle.Files {
		path := filepath.Join(dest, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		mode := os.FileMode(0o644)
		if strings.HasSuffix(f.Path, ".sh") {
			mode = 0o755
		}
		if err := os.WriteFile(path, f.Data, mode); err != nil {
			return err
		}
	}
	return nil
}

func writeInstalledMeta(dest string, record *InstalledSkill) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dest, InstalledMetaFile), data, 0o600)
}
