// Package logging provides audit logging that outputs Mangle-queryable facts.
// Audit logs are structured events that can be parsed into Mangle predicates
// for declarative querying of what a run committed and eliminated.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// AuditEventType defines the type of audit event (maps to Mangle predicate)
type AuditEventType string

const (
	// Run lifecycle -> run_event/4
	AuditRunStart AuditEventType = "run_start"
	AuditRunEnd   AuditEventType = "run_end"
	AuditRunAbort AuditEventType = "run_abort"

	// Step commit -> step_commit/5
	AuditStepCommit AuditEventType = "step_commit"

	// Ledger rows -> token_eliminated/4
	AuditTokenEliminated AuditEventType = "token_eliminated"

	// Verification -> verify_event/3
	AuditVerifyPass AuditEventType = "verify_pass"
	AuditVerifyFail AuditEventType = "verify_fail"
)

// AuditEvent represents a structured audit log entry that can be parsed to Mangle.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`
	EventType  AuditEventType         `json:"event"`
	RunID      string                 `json:"run"`
	Step       int                    `json:"step,omitempty"`
	Token      string                 `json:"token,omitempty"`
	Success    bool                   `json:"success"`
	Message    string                 `json:"msg"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	MangleFact string                 `json:"mangle"`
}

var (
	auditFile *os.File
	auditMu   sync.Mutex
)

// AuditLogger handles structured audit logging with Mangle fact generation
type AuditLogger struct {
	runID string
}

// InitAudit initializes the audit logging system
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	auditFile.WriteString(fmt.Sprintf("# Audit log started at %s\n# Format: Mangle-queryable structured events\n", time.Now().Format(time.RFC3339)))
	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// AuditWithRun creates an audit logger scoped to a run
func AuditWithRun(runID string) *AuditLogger {
	return &AuditLogger{runID: runID}
}

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.RunID == "" {
		event.RunID = a.runID
	}
	event.MangleFact = generateMangleFact(event)

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile != nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

// generateMangleFact creates a Mangle-compatible fact string from an event
func generateMangleFact(e AuditEvent) string {
	switch e.EventType {
	case AuditRunStart, AuditRunEnd, AuditRunAbort:
		return fmt.Sprintf("run_event(%d, /%s, \"%s\", %v).",
			e.Timestamp, e.EventType, e.RunID, e.Success)

	case AuditStepCommit:
		mode, _ := e.Fields["mode"].(string)
		return fmt.Sprintf("step_commit(\"%s\", %d, \"%s\", /%s, %d).",
			e.RunID, e.Step, EscapeString(e.Token), mode, e.Timestamp)

	case AuditTokenEliminated:
		reasons, _ := e.Fields["reasons"].(string)
		return fmt.Sprintf("token_eliminated(\"%s\", %d, \"%s\", \"%s\").",
			e.RunID, e.Step, EscapeString(e.Token), EscapeString(reasons))

	case AuditVerifyPass, AuditVerifyFail:
		return fmt.Sprintf("verify_event(\"%s\", /%s, %v).",
			e.RunID, e.EventType, e.Success)

	default:
		return fmt.Sprintf("audit_event(%d, /%s, \"%s\").",
			e.Timestamp, e.EventType, EscapeString(e.Message))
	}
}

// EscapeString escapes quotes, backslashes and control characters for Mangle strings.
func EscapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/10)

	for _, c := range s {
		switch c {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// =============================================================================
// CONVENIENCE METHODS FOR COMMON EVENTS
// =============================================================================

// RunStart logs the start of a sequence run
func (a *AuditLogger) RunStart(steps int) {
	a.Log(AuditEvent{
		EventType: AuditRunStart,
		Success:   true,
		Fields:    map[string]interface{}{"steps": steps},
		Message:   fmt.Sprintf("Run started: %d steps", steps),
	})
}

// RunEnd logs a completed run
func (a *AuditLogger) RunEnd(text string) {
	a.Log(AuditEvent{
		EventType: AuditRunEnd,
		Success:   true,
		Message:   fmt.Sprintf("Run completed: %s", text),
	})
}

// RunAbort logs a run aborted by a construction error
func (a *AuditLogger) RunAbort(step int, errMsg string) {
	a.Log(AuditEvent{
		EventType: AuditRunAbort,
		Step:      step,
		Success:   false,
		Message:   fmt.Sprintf("Run aborted at step %d: %s", step, errMsg),
	})
}

// StepCommit logs the token committed at a step
func (a *AuditLogger) StepCommit(step int, token, mode string) {
	a.Log(AuditEvent{
		EventType: AuditStepCommit,
		Step:      step,
		Token:     token,
		Success:   true,
		Fields:    map[string]interface{}{"mode": mode},
		Message:   fmt.Sprintf("Step %d committed %q (%s)", step, token, mode),
	})
}

// TokenEliminated logs a single ledger row
func (a *AuditLogger) TokenEliminated(step int, token string, reasons []string) {
	joined := strings.Join(reasons, ";")
	a.Log(AuditEvent{
		EventType: AuditTokenEliminated,
		Step:      step,
		Token:     token,
		Success:   true,
		Fields:    map[string]interface{}{"reasons": joined},
		Message:   fmt.Sprintf("Step %d eliminated %q: %s", step, token, joined),
	})
}

// Verification logs the verifier outcome
func (a *AuditLogger) Verification(ok bool, violations int) {
	eventType := AuditVerifyPass
	if !ok {
		eventType = AuditVerifyFail
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Success:   ok,
		Fields:    map[string]interface{}{"violations": violations},
		Message:   fmt.Sprintf("Verification ok=%v violations=%d", ok, violations),
	})
}
