package vet

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/clawkit/clawkit/internal/config"
)

// Severity of a single finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarn     Severity = "warn"
	SeverityInfo     Severity = "info"
)

// Finding is one detected risk signal inside a bundle.
type Finding struct {
	Category    string   `json:"category"`
	Severity    Severity `json:"severity"`
	Code        string   `json:"code"`
	Description string   `json:"description"`
	File        string   `json:"file,omitempty"`
	Line        int      `json:"line,omitempty"`
	Match       string   `json:"match,omitempty"`
}

// Category names. The critical set weighs heaviest in scoring.
const (
	CategoryCodeExecution   = "code_execution"
	CategorySubprocess      = "subprocess"
	CategoryObfuscation     = "obfuscation"
	CategoryNetwork         = "network"
	CategoryFileOperations  = "file_operations"
	CategoryEnvAccess       = "env_access"
	CategoryPromptInjection = "prompt_injection"
	CategoryLinkPolicy      = "link_policy"
)

// CriticalCategories force the critical severity and the heavy score weight.
var CriticalCategories = map[string]struct{}{
	CategoryCodeExecution:   {},
	CategorySubprocess:      {},
	CategoryPromptInjection: {},
}

type riskPattern struct {
	re   *regexp.Regexp
	code string
	desc string
}

type riskCategory struct {
	name     string
	patterns []riskPattern
}

// riskCatalog is ordered so scans are deterministic across runs.
var riskCatalog = []riskCategory{
	{CategoryCodeExecution, []riskPattern{
		{regexp.MustCompile(`(?i)\beval\s*\(`), "eval_call", "eval() execution"},
		{regexp.MustCompile(`(?i)\bexec\s*\(`), "exec_call", "exec() execution"},
		{regexp.MustCompile(`__import__\s*\(`), "dynamic_import", "dynamic imports"},
		{regexp.MustCompile(`(?i)\bcompile\s*\(`), "code_compile", "runtime code compilation"},
		{regexp.MustCompile(`\bnew\s+Function\s*\(`), "function_constructor", "Function constructor execution"},
	}},
	{CategorySubprocess, []riskPattern{
		{regexp.MustCompile(`(?i)subprocess\.(call|run|Popen)[^\n]*shell\s*=\s*True`), "shell_true", "subprocess with shell=True"},
		{regexp.MustCompile(`(?i)os\.system\s*\(`), "os_system", "os.system()"},
		{regexp.MustCompile(`(?i)os\.popen\s*\(`), "os_popen", "os.popen()"},
		{regexp.MustCompile(`(?i)\bchild_process\b`), "child_process", "child_process usage"},
		{regexp.MustCompile(`(?i)exec\.Command\(`), "exec_command", "command execution"},
		{regexp.MustCompile(`(?i)\b(curl|wget)\b[^\n]{0,200}\|\s*(sh|bash)\b`), "pipe_shell", "remote script piped to shell"},
		{regexp.MustCompile(`(?i)\bpowershell\b[^\n]{0,200}-enc(odedcommand)?\b`), "encoded_powershell", "encoded PowerShell execution"},
	}},
	{CategoryObfuscation, []riskPattern{
		{regexp.MustCompile(`(?i)base64[^\n]{0,100}(b64decode|decode|DecodeString)`), "base64_decode", "base64 decoding"},
		{regexp.MustCompile(`(?i)codecs\.decode[^\n]*['"]hex['"]`), "hex_decode", "hex decoding"},
		{regexp.MustCompile(`(\\x[0-9a-fA-F]{2}){4,}`), "hex_escapes", "hex escape sequence run"},
		{regexp.MustCompile(`(\\u[0-9a-fA-F]{4}){4,}`), "unicode_escapes", "unicode escape sequence run"},
		{regexp.MustCompile(`chr\s*\(\s*\d+\s*\)\s*\+\s*chr\s*\(`), "chr_concat", "chr() concatenation obfuscation"},
	}},
	{CategoryNetwork, []riskPattern{
		{regexp.MustCompile(`(?i)requests\.(get|post|put|delete)\s*\(`), "requests_call", "HTTP requests"},
		{regexp.MustCompile(`(?i)urllib\.request\.urlopen`), "urllib_open", "urllib requests"},
		{regexp.MustCompile(`(?i)socket\.socket\s*\(`), "raw_socket", "raw socket usage"},
		{regexp.MustCompile(`(?i)http\.client\.(HTTPConnection|HTTPSConnection)`), "http_client", "http.client usage"},
	}},
	{CategoryFileOperations, []riskPattern{
		{regexp.MustCompile(`open\s*\([^\n]*['"]wb?['"]`), "file_write", "file writing"},
		{regexp.MustCompile(`(?i)os\.remove\s*\(`), "file_delete", "file deletion"},
		{regexp.MustCompile(`(?i)shutil\.(rmtree|move|copy)`), "bulk_file_ops", "bulk file operations"},
		{regexp.MustCompile(`(?i)\.unlink\s*\(`), "path_unlink", "path deletion"},
	}},
	{CategoryEnvAccess, []riskPattern{
		{regexp.MustCompile(`os\.environ\[`), "environ_index", "environment variable access"},
		{regexp.MustCompile(`(?i)os\.getenv\s*\(`), "getenv_call", "environment variable reading"},
		{regexp.MustCompile(`process\.env\.`), "process_env", "environment variable access"},
	}},
	{CategoryPromptInjection, []riskPattern{
		{regexp.MustCompile(`(?i)<!--[^>]*(ignore|disregard|forget)[^>]*instruction`), "hidden_html_instruction", "hidden instructions (HTML comment)"},
		{regexp.MustCompile(`(?i)\[[^\]\n]*(ignore|disregard|forget)[^\]\n]*instruction`), "hidden_md_instruction", "hidden instructions (markdown)"},
		{regexp.MustCompile(`(?im)^#[^\n]*(system|assistant|user):`), "role_manipulation", "role manipulation in comments"},
	}},
}

// lineAllowlist suppresses matches on lines that are clearly benign.
var lineAllowlist = []*regexp.Regexp{
	regexp.MustCompile(`^\s*#`),
	regexp.MustCompile(`^\s*//`),
	regexp.MustCompile(`^\s*"""`),
	regexp.MustCompile(`^\s*'''`),
	regexp.MustCompile(`localhost|127\.0\.0\.1`),
}

var urlExpr = regexp.MustCompile(`https?://[^\s"'<>)]+`)

var docExtensions = map[string]struct{}{".md": {}, ".rst": {}, ".txt": {}}

// Scan runs the static analyzer over every text file in the bundle. The
// result is deterministic for identical bundles. Returns findings and the
// number of links seen.
func Scan(cfg *config.Config, b *Bundle) ([]Finding, int) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	var findings []Finding
	linkCount := 0
	maxLinks := cfg.Registry.LinkPolicy.MaxLinksPerSkill
	if maxLinks <= 0 {
		maxLinks = 20
	}

	files := append([]File{}, b.Files...)
	slices.SortFunc(files, func(a, c File) int { return strings.Compare(a.Path, c.Path) })

	for _, f := range files {
		data := f.Data
		if len(data) > maxScannedFileBytes {
			findings = append(findings, Finding{
				Category:    CategoryFileOperations,
				Severity:    SeverityInfo,
				Code:        "large_file_truncated",
				Description: fmt.Sprintf("file truncated after %d bytes", maxScannedFileBytes),
				File:        f.Path,
			})
			data = data[:maxScannedFileBytes]
		}
		if !isTextContent(data) {
			continue
		}
		text := string(data)
		lines := strings.Split(text, "\n")
		_, isDoc := docExtensions[strings.ToLower(pathExt(f.Path))]

		for _, cat := range riskCatalog {
			// Doc files only carry prompt-injection risk.
			if isDoc && cat.name != CategoryPromptInjection {
				continue
			}
			severity := SeverityWarn
			if _, critical := CriticalCategories[cat.name]; critical {
				severity = SeverityCritical
			}
			for _, p := range cat.patterns {
				for _, loc := range p.re.FindAllStringIndex(text, -1) {
					lineNo := strings.Count(text[:loc[0]], "\n") + 1
					if lineNo <= len(lines) && allowlisted(lines[lineNo-1]) {
						continue
					}
					match := text[loc[0]:loc[1]]
					if len(match) > 50 {
						match = match[:50]
					}
					findings = append(findings, Finding{
						Category:    cat.name,
						Severity:    severity,
						Code:        p.code,
						Description: p.desc,
						File:        f.Path,
						Line:        lineNo,
						Match:       match,
					})
				}
			}
		}

		for _, raw := range urlExpr.FindAllString(text, -1) {
			linkCount++
			if linkCount > maxLinks {
				findings = append(findings, Finding{
					Category:    CategoryLinkPolicy,
					Severity:    SeverityCritical,
					Code:        "max_links_exceeded",
					Description: fmt.Sprintf("skill contains too many links (%d > %d)", linkCount, maxLinks),
					File:        f.Path,
				})
				break
			}
			if err := ValidatePolicyURL(cfg, raw); err != nil {
				findings = append(findings, Finding{
					Category:    CategoryLinkPolicy,
					Severity:    SeverityCritical,
					Code:        "link_policy_block",
					Description: err.Error(),
					File:        f.Path,
				})
			}
		}
	}
	return findings, linkCount
}

func allowlisted(line string) bool {
	for _, re := range lineAllowlist {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func pathExt(p string) string {
	if i := strings.LastIndexByte(p, '.'); i >= 0 {
		return p[i:]
	}
	return ""
}

func isTextContent(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	if bytes.IndexByte(b, 0) >= 0 {
		return false
	}
	return utf8.Valid(b)
}

// ValidatePolicyURL checks one URL against the configured link policy.
func ValidatePolicyURL(cfg *config.Config, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid URL: %q", raw)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "https" && scheme != "http" {
		return fmt.Errorf("unsupported URL scheme: %s", scheme)
	}
	if scheme == "http" && !cfg.Registry.LinkPolicy.AllowHTTP {
		return fmt.Errorf("http URL is blocked by policy: %s", raw)
	}
	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	if host == "" {
		return fmt.Errorf("URL missing host: %s", raw)
	}

	allow := normalizeDomains(cfg.Registry.LinkPolicy.AllowDomains)
	deny := normalizeDomains(cfg.Registry.LinkPolicy.DenyDomains)
	switch strings.ToLower(strings.TrimSpace(cfg.Registry.LinkPolicy.Mode)) {
	case "allowlist":
		if len(allow) == 0 {
			return nil
		}
		if !matchesAnyDomain(host, allow) {
			return fmt.Errorf("domain blocked by allowlist policy: %s", host)
		}
	case "", "denylist":
		if matchesAnyDomain(host, deny) {
			return fmt.Errorf("domain blocked by denylist policy: %s", host)
		}
	case "open":
		// no domain restrictions
	default:
		return fmt.Errorf("unknown link policy mode: %s", cfg.Registry.LinkPolicy.Mode)
	}
	return nil
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		d = strings.ToLower(strings.TrimSpace(d))
		d = strings.TrimPrefix(d, ".")
		if d != "" {
			out = append(out, d)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func matchesAnyDomain(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
