// Package vet fetches skill bundles and scores them for security risk and
// credibility before installation.
package vet

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/clawkit/clawkit/internal/config"
)

const (
	maxRemoteBundleBytes = 20 << 20 // 20 MiB
	maxBundleFiles       = 1500
	maxScannedFileBytes  = 1 << 20 // 1 MiB per scanned file
	maxArchiveEntryBytes = 5 << 20 // 5 MiB per archive entry
	maxArchiveTotalBytes = 40 << 20
	maxDownloadRedirects = 10
)

// File is one file inside a skill bundle.
type File struct {
	Path string
	Data []byte
}

// Bundle is a skill source fetched for one vetting run.
type Bundle struct {
	Slug           string
	SourceType     string
	Target         string
	ResolvedTarget string
	Meta           Metadata
	Files          []File
}

// Fetch resolves a target (slug, local dir, local archive, or URL) into a
// normalized bundle rooted at the directory containing SKILL.md.
func Fetch(ctx context.Context, cfg *config.Config, target string) (*Bundle, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	resolved := resolveTarget(cfg, strings.TrimSpace(target))
	if resolved == "" {
		return nil, errors.New("target is required")
	}

	if isHTTPURL(resolved) {
		if !cfg.Install.ExternalInstalls {
			return nil, errors.New("external skill installs are disabled by config")
		}
		if err := ValidatePolicyURL(cfg, resolved); err != nil {
			return nil, err
		}
		data, finalURL, err := downloadBundle(ctx, cfg, resolved)
		if err != nil {
			return nil, err
		}
		files, stype, err := unpackArchive(finalURL, data)
		if err != nil {
			return nil, err
		}
		return normalizeBundle(&Bundle{
			SourceType:     stype,
			Target:         target,
			ResolvedTarget: finalURL,
			Files:          files,
		})
	}

	fi, err := os.Stat(resolved)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		files, err := readLocalDir(resolved)
		if err != nil {
			return nil, err
		}
		return normalizeBundle(&Bundle{
			SourceType:     "dir",
			Target:         target,
			ResolvedTarget: resolved,
			Files:          files,
		})
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, err
	}
	files, stype, err := unpackArchive(resolved, data)
	if err != nil {
		return nil, err
	}
	return normalizeBundle(&Bundle{
		SourceType:     stype,
		Target:         target,
		ResolvedTarget: resolved,
		Files:          files,
	})
}

func normalizeBundle(b *Bundle) (*Bundle, error) {
	if len(b.Files) == 0 {
		return nil, errors.New("skill source is empty")
	}
	if len(b.Files) > maxBundleFiles {
		return nil, fmt.Errorf("skill source contains too many files (%d > %d)", len(b.Files), maxBundleFiles)
	}

	prefix, err := detectBundleRootPrefix(b.Files)
	if err != nil {
		return nil, err
	}
	trimmed := make([]File, 0, len(b.Files))
	for _, f := range b.Files {
		p := filepath.ToSlash(strings.TrimSpace(f.Path))
		if prefix != "" {
			if !strings.HasPrefix(p, prefix) {
				continue
			}
			p = strings.TrimPrefix(p, prefix)
		}
		p = strings.TrimPrefix(p, "./")
		p = strings.TrimLeft(p, "/")
		if p == "" {
			continue
		}
		trimmed = append(trimmed, File{Path: p, Data: f.Data})
	}
	if len(trimmed) == 0 {
		return nil, errors.New("skill source root did not contain files")
	}
	b.Files = trimmed

	skillData, ok := findFile(b.Files, "SKILL.md")
	if !ok {
		return nil, errors.New("SKILL.md not found in skill source root")
	}
	meta, _ := ParseFrontmatter(skillData)
	b.Meta = meta
	slug := SanitizeSlug(meta.Name)
	if slug == "" && prefix != "" {
		slug = SanitizeSlug(strings.TrimSuffix(prefix, "/"))
	}
	if slug == "" {
		base := filepath.Base(b.ResolvedTarget)
		base = strings.TrimSuffix(base, filepath.Ext(base))
		base = strings.TrimSuffix(base, ".tar")
		slug = SanitizeSlug(base)
	}
	if slug == "" {
		return nil, errors.New("could not determine skill slug")
	}
	b.Slug = slug
	return b, nil
}

func detectBundleRootPrefix(files []File) (string, error) {
	if _, ok := findFile(files, "SKILL.md"); ok {
		return "", nil
	}
	candidates := map[string]struct{}{}
	for _, f := range files {
		p := filepath.ToSlash(f.Path)
		if strings.HasSuffix(p, "/SKILL.md") {
			candidates[strings.TrimSuffix(p, "SKILL.md")] = struct{}{}
		}
	}
	if len(candidates) == 1 {
		for k := range candidates {
			return k, nil
		}
	}
	return "", errors.New("unable to locate unique skill root containing SKILL.md")
}

func findFile(files []File, rel string) ([]byte, bool) {
	rel = filepath.ToSlash(rel)
	for _, f := range files {
		if filepath.ToSlash(f.Path) == rel {
			return f.Data, true
		}
	}
	return nil, false
}

func readLocalDir(root string) ([]File, error) {
	var files []File
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return fmt.Errorf("symlink not allowed in local skill source: %s", p)
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if _, err := sanitizeArchiveEntryPath(rel); err != nil {
			return fmt.Errorf("unsafe path in skill source: %s", rel)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files = append(files, File{Path: rel, Data: data})
		return nil
	})
	return files, err
}

func unpackArchive(name string, data []byte) ([]File, string, error) {
	if len(data) == 0 {
		return nil, "", errors.New("empty archive")
	}
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		files, err := unpackZIP(data)
		return files, "zip", err
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		files, err := unpackTarGZ(data)
		return files, "tar.gz", err
	default:
		if files, err := unpackZIP(data); err == nil {
			return files, "zip", nil
		}
		if files, err := unpackTarGZ(data); err == nil {
			return files, "tar.gz", nil
		}
		return nil, "", errors.New("unsupported archive format (expected .zip or .tar.gz/.tgz)")
	}
}

func unpackZIP(data []byte) ([]File, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	files := make([]File, 0, len(r.File))
	var totalRead int64
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if f.Mode()&os.ModeSymlink != 0 {
			return nil, fmt.Errorf("symlink entry not allowed: %s", f.Name)
		}
		if f.UncompressedSize64 > uint64(maxArchiveEntryBytes) {
			return nil, fmt.Errorf("archive entry exceeds max size (%d bytes): %s", maxArchiveEntryBytes, f.Name)
		}
		totalRead += int64(f.UncompressedSize64)
		if totalRead > maxArchiveTotalBytes {
			return nil, fmt.Errorf("archive extracted size exceeds max total (%d bytes)", maxArchiveTotalBytes)
		}
		name, err := sanitizeArchiveEntryPath(f.Name)
		if err != nil {
			return nil, fmt.Errorf("unsafe archive path: %s", f.Name)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		b, err := io.ReadAll(io.LimitReader(rc, maxArchiveEntryBytes+1))
		_ = rc.Close()
		if err != nil {
			return nil, err
		}
		if len(b) > maxArchiveEntryBytes {
			return nil, fmt.Errorf("archive entry exceeds max size while reading: %s", f.Name)
		}
		files = append(files, File{Path: name, Data: b})
	}
	return files, nil
}

func unpackTarGZ(data []byte) ([]File, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	var files []File
	var totalRead int64
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			continue
		case tar.TypeSymlink, tar.TypeLink:
			return nil, fmt.Errorf("link entry not allowed: %s", hdr.Name)
		case tar.TypeReg:
			if hdr.Size < 0 || hdr.Size > maxArchiveEntryBytes {
				return nil, fmt.Errorf("archive entry exceeds max size (%d bytes): %s", maxArchiveEntryBytes, hdr.Name)
			}
			totalRead += hdr.Size
			if totalRead > maxArchiveTotalBytes {
				return nil, fmt.Errorf("archive extracted size exceeds max total (%d bytes)", maxArchiveTotalBytes)
			}
			name, err := sanitizeArchiveEntryPath(hdr.Name)
			if err != nil {
				return nil, fmt.Errorf("unsafe archive path: %s", hdr.Name)
			}
			b, err := io.ReadAll(io.LimitReader(tr, maxArchiveEntryBytes+1))
			if err != nil {
				return nil, err
			}
			if len(b) > maxArchiveEntryBytes {
				return nil, fmt.Errorf("archive entry exceeds max size while reading: %s", hdr.Name)
			}
			files = append(files, File{Path: name, Data: b})
		default:
			return nil, fmt.Errorf("unsupported tar entry type for %s", hdr.Name)
		}
	}
	return files, nil
}

func sanitizeArchiveEntryPath(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "", errors.New("path is empty")
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	if strings.HasPrefix(p, "/") {
		return "", errors.New("absolute path is not allowed")
	}
	if strings.ContainsRune(p, 0) {
		return "", errors.New("path contains NUL byte")
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", errors.New("path traversal segment is not allowed")
		}
	}
	clean := path.Clean(p)
	clean = strings.TrimPrefix(clean, "./")
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.New("path resolves outside skill root")
	}
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return "", errors.New("absolute/volume path is not allowed")
	}
	return clean, nil
}

func downloadBundle(ctx context.Context, cfg *config.Config, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	client := &http.Client{
		Timeout: 45 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxDownloadRedirects {
				return errors.New("too many redirects while downloading skill bundle")
			}
			if err := ValidatePolicyURL(cfg, req.URL.String()); err != nil {
				return fmt.Errorf("redirect blocked by link policy: %w", err)
			}
			return nil
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("download failed: %s", resp.Status)
	}
	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	if err := ValidatePolicyURL(cfg, finalURL); err != nil {
		return nil, "", fmt.Errorf("resolved URL blocked by link policy: %w", err)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBundleBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(b)) > maxRemoteBundleBytes {
		return nil, "", fmt.Errorf("download exceeds max size (%d bytes)", maxRemoteBundleBytes)
	}
	return b, finalURL, nil
}

func isHTTPURL(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, "http") || strings.EqualFold(u.Scheme, "https")
}

func resolveTarget(cfg *config.Config, target string) string {
	if target == "" {
		return ""
	}
	if isHTTPURL(target) {
		return target
	}
	if _, err := os.Stat(target); err == nil {
		if abs, err := filepath.Abs(target); err == nil {
			return abs
		}
		return target
	}
	// Bare slugs resolve against the registry bundle endpoint.
	if !strings.Contains(target, "/") && !strings.Contains(target, `\`) {
		return fmt.Sprintf("%s/skills/%s.zip", cfg.Registry.BaseURL, SanitizeSlug(target))
	}
	return target
}
