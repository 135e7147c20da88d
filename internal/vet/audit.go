package vet

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clawkit/clawkit/internal/config"
)

// AuditFileName is the vetting/install audit log inside the state dir.
const AuditFileName = "audit.jsonl"

// AuditPath returns the audit log location.
func AuditPath() (string, error) {
	state, err := config.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(state, AuditFileName), nil
}

// AppendAudit records one vet/install event on the hash chain. Each line
// carries a sha256 over its canonical JSON plus the previous line's hash, so
// tampering with history is detectable.
func AppendAudit(eventType string, payload map[string]any) error {
	path, err := AuditPath()
	if err != nil {
		return err
	}
	event := map[string]any{
		"time":      time.Now().UTC(),
		"eventType": strings.TrimSpace(eventType),
	}
	for k, v := range payload {
		event[k] = v
	}
	return appendChainedLine(path, event)
}

func appendChainedLine(path string, payload map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	entry, err := canonicalize(payload)
	if err != nil {
		return err
	}
	prevHash, err := readLastHash(path)
	if err != nil {
		return err
	}
	if prevHash != "" {
		entry["prevHash"] = prevHash
	}
	entry["hash"] = entryHash(entry)
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

func canonicalize(payload map[string]any) (map[string]any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	delete(out, "hash")
	delete(out, "prevHash")
	return out, nil
}

func readLastHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	var last string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = line
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if last == "" {
		return "", nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(last), &obj); err != nil {
		return "", fmt.Errorf("invalid existing audit line: %w", err)
	}
	hash, _ := obj["hash"].(string)
	return strings.TrimSpace(hash), nil
}

func entryHash(entry map[string]any) string {
	canonical := map[string]any{}
	for k, v := range entry {
		if k == "hash" {
			continue
		}
		canonical[k] = v
	}
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyAuditChain re-walks the audit log and reports the first broken link.
func VerifyAuditChain(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	count := 0
	prevHash := ""
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		count++
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return count, fmt.Errorf("line %d: invalid JSON: %w", count, err)
		}
		gotPrev, _ := entry["prevHash"].(string)
		if gotPrev != prevHash && !(prevHash == "" && gotPrev == "") {
			return count, fmt.Errorf("line %d: prevHash mismatch", count)
		}
		gotHash, _ := entry["hash"].(string)
		if entryHash(entry) != gotHash {
			return count, fmt.Errorf("line %d: hash mismatch", count)
		}
		prevHash = gotHash
	}
	if err := sc.Err(); err != nil {
		return count, err
	}
	return count, nil
}
