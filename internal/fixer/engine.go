// Package fixer executes automated remediation recipes for gateway problems.
package fixer

import (
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

//go:embed recipes.json
var recipesJSON []byte

// Step is one action inside a fix recipe.
type Step struct {
	Kind        string   `json:"kind"`
	Description string   `json:"description"`
	Command     []string `json:"command,omitempty"`
	Path        string   `json:"path,omitempty"`
	Content     string   `json:"content,omitempty"`
	Value       string   `json:"value,omitempty"`
	IfMissing   bool     `json:"ifMissing,omitempty"`
}

// Recipe is a structured fix with execution metadata.
type Recipe struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	SafeAuto        bool   `json:"safeAuto"`
	Description     string `json:"description"`
	Steps           []Step `json:"steps"`
	Rollback        string `json:"rollback,omitempty"`
	RequiresRestart bool   `json:"requiresRestart"`
}

// Result reports the outcome of executing one recipe.
type Result struct {
	RecipeID     string   `json:"recipeId"`
	Success      bool     `json:"success"`
	DryRun       bool     `json:"dryRun"`
	Message      string   `json:"message"`
	ActionsTaken []string `json:"actionsTaken,omitempty"`
	NeedsManual  []string `json:"needsManual,omitempty"`
}

// Engine loads and executes fix recipes.
type Engine struct {
	recipes map[string]Recipe

	// GatewayConfigPath is where config_set steps apply; empty disables them.
	GatewayConfigPath string
}

// NewEngine compiles the embedded recipe catalog.
func NewEngine(gatewayConfigPath string) (*Engine, error) {
	var raw struct {
		Recipes []Recipe `json:"recipes"`
	}
	if err := json.Unmarshal(recipesJSON, &raw); err != nil {
		return nil, fmt.Errorf("parse fix recipes: %w", err)
	}
	recipes := make(map[string]Recipe, len(raw.Recipes))
	for _, r := range raw.Recipes {
		if strings.TrimSpace(r.ID) == "" {
			continue
		}
		recipes[r.ID] = r
	}
	return &Engine{recipes: recipes, GatewayConfigPath: gatewayConfigPath}, nil
}

// Recipe returns a recipe by ID.
func (e *Engine) Recipe(id string) (Recipe, bool) {
	r, ok := e.recipes[strings.TrimSpace(id)]
	return r, ok
}

// All returns every recipe ordered by ID.
func (e *Engine) All() []Recipe {
	out := make([]Recipe, 0, len(e.recipes))
	for _, r := range e.recipes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SafeRecipes returns recipes flagged for unattended execution.
func (e *Engine) SafeRecipes() []Recipe {
	var out []Recipe
	for _, r := range e.All() {
		if r.SafeAuto {
			out = append(out, r)
		}
	}
	return out
}

// CanAutoFix reports whether a recipe is safe for unattended execution.
func (e *Engine) CanAutoFix(id string) bool {
	r, ok := e.Recipe(id)
	return ok && r.SafeAuto
}

// Execute runs a recipe. Dry-run describes each step without acting. Params
// substitute into ${name} placeholders; a fresh random token and gateway
// config locations are always available.
func (e *Engine) Execute(id string, dryRun bool, params map[string]string) Result {
	recipe, ok := e.Recipe(id)
	if !ok {
		return Result{RecipeID: id, Success: false, DryRun: dryRun, Message: fmt.Sprintf("recipe not found: %s", id)}
	}

	resolved := e.builtinParams()
	for k, v := range params {
		resolved[k] = v
	}

	res := Result{RecipeID: id, Success: true, DryRun: dryRun}
	for i, step := range recipe.Steps {
		msg, err := e.executeStep(step, dryRun, resolved)
		prefix := ""
		if dryRun {
			prefix = "[dry-run] "
		}
		res.ActionsTaken = append(res.ActionsTaken, fmt.Sprintf("%sstep %d: %s", prefix, i+1, msg))
		if err != nil && !dryRun {
			res.Success = false
			res.Message = fmt.Sprintf("failed at step %d: %v", i+1, err)
			return res
		}
	}
	res.Message = fmt.Sprintf("executed %s", recipe.Title)
	if recipe.RequiresRestart {
		res.NeedsManual = append(res.NeedsManual, "restart the gateway to apply this change")
	}
	if recipe.Rollback != "" {
		res.NeedsManual = append(res.NeedsManual, "rollback note: "+recipe.Rollback)
	}
	return res
}

func (e *Engine) builtinParams() map[string]string {
	params := map[string]string{
		"token": randomToken(),
	}
	if e.GatewayConfigPath != "" {
		params["gateway_config"] = e.GatewayConfigPath
		params["gateway_config_dir"] = filepath.Dir(e.GatewayConfigPath)
		params["gateway_state_dir"] = filepath.Dir(e.GatewayConfigPath)
	}
	if home, err := os.UserHomeDir(); err == nil {
		params["home"] = home
	}
	return params
}

var placeholderExpr = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func substitute(s string, params map[string]string) (string, error) {
	var missing []string
	out := placeholderExpr.ReplaceAllStringFunc(s, func(m string) string {
		name := m[2 : len(m)-1]
		if v, ok := params[name]; ok {
			return v
		}
		missing = append(missing, name)
		return m
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unresolved parameter(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func randomToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
