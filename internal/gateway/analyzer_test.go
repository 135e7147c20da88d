package gateway

import (
	"encoding/json"
	"testing"
)

func parseDoc(t *testing.T, raw string) Document {
	t.Helper()
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("parse doc: %v", err)
	}
	return doc
}

func findIssue(issues []Issue, path string) *Issue {
	for i := range issues {
		if issues[i].Path == path {
			return &issues[i]
		}
	}
	return nil
}

func TestAnalyzeInvalidPort(t *testing.T) {
	doc := parseDoc(t, `{"gateway": {"port": 70000, "authMode": "token"}, "agent": {"model": "claude"}}`)
	issues := Analyze(doc)
	issue := findIssue(issues, "gateway.port")
	if issue == nil {
		t.Fatalf("expected gateway.port issue, got %#v", issues)
	}
	if issue.Severity != SeverityError {
		t.Fatalf("expected error severity, got %s", issue.Severity)
	}
}

func TestAnalyzeMissingAuthModeWarns(t *testing.T) {
	doc := parseDoc(t, `{"gateway": {"port": 18789}, "agent": {"model": "claude"}}`)
	issues := Analyze(doc)
	issue := findIssue(issues, "gateway.authMode")
	if issue == nil || issue.Severity != SeverityWarning {
		t.Fatalf("expected authMode warning, got %#v", issues)
	}
	if issue.RecipeID == "" {
		t.Fatal("expected authMode issue to reference a fix recipe")
	}
}

func TestAnalyzeNestedAuthModeAccepted(t *testing.T) {
	doc := parseDoc(t, `{"gateway": {"auth": {"mode": "token"}}, "agent": {"model": "claude"}}`)
	if issue := findIssue(Analyze(doc), "gateway.authMode"); issue != nil {
		t.Fatalf("nested auth.mode should satisfy the check, got %#v", issue)
	}
}

func TestAnalyzeEnabledChannelMissingToken(t *testing.T) {
	doc := parseDoc(t, `{
	  "channels": {"telegram": {"enabled": true}},
	  "agent": {"model": "claude"}
	}`)
	issue := findIssue(Analyze(doc), "channels.telegram.token/botToken")
	if issue == nil || issue.Severity != SeverityError {
		t.Fatalf("expected telegram credential error, got %#v", Analyze(doc))
	}
}

func TestAnalyzeChannelAccountCredentialAccepted(t *testing.T) {
	doc := parseDoc(t, `{
	  "channels": {"telegram": {"enabled": true, "accounts": {"main": {"botToken": "x"}}}},
	  "agent": {"model": "claude"}
	}`)
	if issue := findIssue(Analyze(doc), "channels.telegram.token/botToken"); issue != nil {
		t.Fatalf("account-level credential should satisfy the check, got %#v", issue)
	}
}

func TestAnalyzeNoModelConfigured(t *testing.T) {
	doc := parseDoc(t, `{"gateway": {"authMode": "token"}}`)
	issue := findIssue(Analyze(doc), "agents.defaults.model.primary")
	if issue == nil || issue.Severity != SeverityError {
		t.Fatalf("expected missing model error, got %#v", Analyze(doc))
	}
}

func TestAnalyzePerAgentModelAccepted(t *testing.T) {
	doc := parseDoc(t, `{"agents": {"list": [{"name": "a", "model": "claude"}]}}`)
	if issue := findIssue(Analyze(doc), "agents.defaults.model.primary"); issue != nil {
		t.Fatalf("per-agent model should satisfy the check, got %#v", issue)
	}
}

func TestAnalyzeInvalidSandboxMode(t *testing.T) {
	doc := parseDoc(t, `{"agent": {"model": "claude", "sandboxMode": "loose"}}`)
	issue := findIssue(Analyze(doc), "agent.sandboxMode")
	if issue == nil || issue.Severity != SeverityError {
		t.Fatalf("expected sandbox mode error, got %#v", Analyze(doc))
	}
}

func TestAnalyzeMalformedSections(t *testing.T) {
	doc := parseDoc(t, `{"agent": {"model": "claude"}, "skills": [1], "plugins": "nope"}`)
	issues := Analyze(doc)
	if findIssue(issues, "skills") == nil {
		t.Fatalf("expected skills shape error, got %#v", issues)
	}
	if findIssue(issues, "plugins") == nil {
		t.Fatalf("expected plugins shape error, got %#v", issues)
	}
}

func TestAnalyzeSortsErrorsFirst(t *testing.T) {
	doc := parseDoc(t, `{"gateway": {"port": 0}}`)
	issues := Analyze(doc)
	if len(issues) < 2 {
		t.Fatalf("expected multiple issues, got %#v", issues)
	}
	if issues[0].Severity != SeverityError {
		t.Fatalf("expected errors sorted first, got %s", issues[0].Severity)
	}
}

func TestEnabledChannelsAndModel(t *testing.T) {
	doc := parseDoc(t, `{
	  "channels": {
	    "telegram": {"enabled": true, "token": "x"},
	    "discord": {"enabled": false}
	  },
	  "agents": {"defaults": {"model": {"primary": "claude-sonnet"}}}
	}`)
	channels := doc.EnabledChannels()
	if len(channels) != 1 || channels[0] != "telegram" {
		t.Fatalf("unexpected enabled channels: %v", channels)
	}
	if doc.Model() != "claude-sonnet" {
		t.Fatalf("unexpected model: %q", doc.Model())
	}
}
