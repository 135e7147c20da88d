package fixer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const commandStepTimeout = 2 * time.Minute

func (e *Engine) executeStep(step Step, dryRun bool, params map[string]string) (string, error) {
	switch step.Kind {
	case "command":
		return e.runCommandStep(step, dryRun, params)
	case "dir_create":
		return e.runDirCreateStep(step, dryRun, params)
	case "file_write":
		return e.runFileWriteStep(step, dryRun, params)
	case "config_set":
		return e.runConfigSetStep(step, dryRun, params)
	default:
		return "", fmt.Errorf("unknown step kind: %s", step.Kind)
	}
}

func (e *Engine) runCommandStep(step Step, dryRun bool, params map[string]string) (string, error) {
	if len(step.Command) == 0 {
		return "", fmt.Errorf("command step has no argv")
	}
	argv := make([]string, 0, len(step.Command))
	for _, arg := range step.Command {
		v, err := substitute(arg, params)
		if err != nil {
			return "", err
		}
		argv = append(argv, v)
	}
	display := fmt.Sprintf("%s (%s)", step.Description, strings.Join(argv, " "))
	if dryRun {
		return "would run: " + display, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandStepTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return display, fmt.Errorf("%s: %w (%s)", argv[0], err, strings.TrimSpace(string(out)))
	}
	return "ran: " + display, nil
}

func (e *Engine) runDirCreateStep(step Step, dryRun bool, params map[string]string) (string, error) {
	path, err := substitute(step.Path, params)
	if err != nil {
		return "", err
	}
	path = expandHome(path)
	if dryRun {
		return fmt.Sprintf("would create directory %s", path), nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return fmt.Sprintf("created directory %s", path), nil
}

func (e *Engine) runFileWriteStep(step Step, dryRun bool, params map[string]string) (string, error) {
	path, err := substitute(step.Path, params)
	if err != nil {
		return "", err
	}
	path = expandHome(path)
	if step.IfMissing {
		if _, err := os.Stat(path); err == nil {
			return fmt.Sprintf("kept existing file %s", path), nil
		}
	}
	content, err := substitute(step.Content, params)
	if err != nil {
		return "", err
	}
	if dryRun {
		return fmt.Sprintf("would write %d bytes to %s", len(content), path), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", err
	}
	return fmt.Sprintf("wrote %s", path), nil
}

func (e *Engine) runConfigSetStep(step Step, dryRun bool, params map[string]string) (string, error) {
	if strings.TrimSpace(e.GatewayConfigPath) == "" {
		return "", fmt.Errorf("config_set step requires a gateway config path")
	}
	value, err := substitute(step.Value, params)
	if err != nil {
		return "", err
	}
	if dryRun {
		return fmt.Sprintf("would set %s in %s", step.Path, e.GatewayConfigPath), nil
	}

	doc := map[string]any{}
	data, err := os.ReadFile(e.GatewayConfigPath)
	if err == nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			return "", fmt.Errorf("parse %s: %w", e.GatewayConfigPath, err)
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}

	if err := setDotPath(doc, step.Path, value); err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(e.GatewayConfigPath), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(e.GatewayConfigPath, append(out, '\n'), 0o600); err != nil {
		return "", err
	}
	return fmt.Sprintf("set %s in %s", step.Path, e.GatewayConfigPath), nil
}

func setDotPath(doc map[string]any, path, value string) error {
	keys := strings.Split(strings.TrimSpace(path), ".")
	if len(keys) == 0 || keys[0] == "" {
		return fmt.Errorf("config_set step has empty path")
	}
	cur := doc
	for _, k := range keys[:len(keys)-1] {
		next, ok := cur[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[k] = next
		}
		cur = next
	}
	cur[keys[len(keys)-1]] = value
	return nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
