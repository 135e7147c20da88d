package gateway

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// IssueSeverity classifies a config validation issue.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
	SeverityInfo    IssueSeverity = "info"
)

// Issue is a single configuration validation result.
type Issue struct {
	Severity IssueSeverity `json:"severity"`
	Path     string        `json:"path"`
	Message  string        `json:"message"`
	FixHint  string        `json:"fixHint,omitempty"`
	RecipeID string        `json:"recipeId,omitempty"`
}

// Analyze runs all configuration checks over a gateway config document and
// returns issues sorted with errors first.
func Analyze(doc Document) []Issue {
	issues := make([]Issue, 0, 8)
	issues = append(issues, checkGateway(doc)...)
	issues = append(issues, checkChannels(doc)...)
	issues = append(issues, checkAgents(doc)...)
	issues = append(issues, checkSkills(doc)...)
	issues = append(issues, checkPlugins(doc)...)

	order := map[IssueSeverity]int{SeverityError: 0, SeverityWarning: 1, SeverityInfo: 2}
	sort.SliceStable(issues, func(i, j int) bool {
		return order[issues[i].Severity] < order[issues[j].Severity]
	})
	return issues
}

func checkGateway(doc Document) []Issue {
	var issues []Issue
	gw := doc.Section("gateway")

	if raw, present := gw["port"]; present {
		port, ok := asInt(raw)
		if !ok || port < 1 || port > 65535 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "gateway.port",
				Message:  fmt.Sprintf("invalid port number: %v", raw),
				FixHint:  "port must be between 1 and 65535",
			})
		}
	}

	// Both the flat "authMode" and nested "auth.mode" schemas are accepted.
	authMode, _ := gw["authMode"].(string)
	if authMode == "" {
		if auth, ok := gw["auth"].(map[string]any); ok {
			authMode, _ = auth["mode"].(string)
		}
	}
	if authMode == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "gateway.authMode",
			Message:  "auth mode not set",
			FixHint:  "set gateway.auth.mode or gateway.authMode to 'password', 'token', or 'none'",
			RecipeID: "gateway-auth-token",
		})
	}

	if bind, present := gw["bind"]; present && bind != nil {
		if _, ok := bind.(string); !ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "gateway.bind",
				Message:  "invalid bind address format",
				FixHint:  "bind address must be a string (e.g. '0.0.0.0' or '127.0.0.1')",
			})
		}
	}

	return issues
}

// channelRequiredFields maps channel name to required credential fields.
// Inner slices are alternates: any one present satisfies the requirement,
// either at channel top level or inside any configured account.
var channelRequiredFields = map[string][][]string{
	"telegram": {{"token", "botToken"}},
	"discord":  {{"token"}},
	"slack":    {{"token"}, {"appToken"}},
	"whatsapp": {{"dmPolicy"}},
}

func checkChannels(doc Document) []Issue {
	var issues []Issue
	channels := doc.Section("channels")

	names := make([]string, 0, len(channelRequiredFields))
	for name := range channelRequiredFields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cc, _ := channels[name].(map[string]any)
		if cc == nil {
			continue
		}
		enabled, _ := cc["enabled"].(bool)
		if !enabled {
			continue
		}
		accounts, _ := cc["accounts"].(map[string]any)
		for _, alternates := range channelRequiredFields[name] {
			if channelHasAny(cc, accounts, alternates) {
				continue
			}
			display := strings.Join(alternates, "/")
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("channels.%s.%s", name, display),
				Message:  fmt.Sprintf("missing required field '%s' for enabled %s channel", display, name),
				FixHint:  fmt.Sprintf("add one of [%s] to channels.%s or its accounts", display, name),
			})
		}
	}
	return issues
}

func channelHasAny(cc map[string]any, accounts map[string]any, fields []string) bool {
	for _, f := range fields {
		if truthy(cc[f]) {
			return true
		}
	}
	for _, raw := range accounts {
		acc, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		for _, f := range fields {
			if truthy(acc[f]) {
				return true
			}
		}
	}
	return false
}

func checkAgents(doc Document) []Issue {
	var issues []Issue

	model := doc.Model()
	hasAgentModel := false
	if list, ok := doc.Path("agents.list").([]any); ok {
		for _, raw := range list {
			if a, ok := raw.(map[string]any); ok && truthy(a["model"]) {
				hasAgentModel = true
				break
			}
		}
	}
	if model == "" && !hasAgentModel {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "agents.defaults.model.primary",
			Message:  "no AI model configured",
			FixHint:  "set agents.defaults.model.primary or agent.model",
		})
	}

	workspace := doc.String("agent.workspace")
	if workspace == "" {
		workspace = doc.String("agents.defaults.workspace")
	}
	if workspace != "" {
		expanded := workspace
		if strings.HasPrefix(expanded, "~") {
			if home, err := os.UserHomeDir(); err == nil {
				expanded = filepath.Join(home, expanded[1:])
			}
		}
		if _, err := os.Stat(expanded); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "agents.defaults.workspace",
				Message:  fmt.Sprintf("workspace directory does not exist: %s", workspace),
				FixHint:  "create the directory or update the path",
				RecipeID: "create-workspace",
			})
		}
	}

	if sandbox := doc.String("agent.sandboxMode"); sandbox != "" {
		switch sandbox {
		case "strict", "relaxed", "off":
		default:
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "agent.sandboxMode",
				Message:  fmt.Sprintf("invalid sandbox mode: %s", sandbox),
				FixHint:  "must be 'strict', 'relaxed', or 'off'",
			})
		}
	}

	return issues
}

func checkSkills(doc Document) []Issue {
	skills, present := doc["skills"]
	if !present || skills == nil {
		return nil
	}
	if _, ok := skills.(map[string]any); !ok {
		return []Issue{{
			Severity: SeverityError,
			Path:     "skills",
			Message:  "skills configuration must be an object",
			FixHint:  "use {} for the skills section",
		}}
	}
	return nil
}

func checkPlugins(doc Document) []Issue {
	plugins, present := doc["plugins"]
	if !present || plugins == nil {
		return nil
	}
	switch plugins.(type) {
	case []any, map[string]any:
		return nil
	}
	return []Issue{{
		Severity: SeverityError,
		Path:     "plugins",
		Message:  "plugins configuration must be an array or object with allow/entries",
		FixHint:  `use [] or {"allow": [...], "entries": {...}}`,
	}}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) != ""
	case bool:
		return t
	case nil:
		return false
	}
	return true
}
