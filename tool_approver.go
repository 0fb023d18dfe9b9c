package opsagent

import (
	"context"
	"log"
	"sync"

	"github.com/Desarso/opsagent/models"
)

// Tool_Approver gates tool calls by name. Denied tools are always rejected.
// When RequireListed is set, only tools in the auto-approved list may run;
// otherwise everything not denied is approved.
type Tool_Approver struct {
	RequireListed bool

	mu           sync.RWMutex
	autoApproved map[string]bool
	denied       map[string]bool
}

// NewToolApprover creates an approver that auto-approves the given tools.
func NewToolApprover(autoApproved ...string) *Tool_Approver {
	a := &Tool_Approver{
		autoApproved: make(map[string]bool),
		denied:       make(map[string]bool),
	}
	for _, name := range autoApproved {
		a.autoApproved[name] = true
	}
	return a
}

// Deny blocks the named tools.
func (a *Tool_Approver) Deny(names ...string) *Tool_Approver {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, name := range names {
		a.denied[name] = true
	}
	return a
}

// Approve implements sessions.ToolApprover.
func (a *Tool_Approver) Approve(ctx context.Context, call models.FunctionCall) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.denied[call.Name] {
		log.Printf("[APPROVER] Denied tool: %s", call.Name)
		return false, nil
	}
	if a.autoApproved[call.Name] {
		return true, nil
	}
	if a.RequireListed {
		log.Printf("[APPROVER] Tool %s is not in the auto-approved list", call.Name)
		return false, nil
	}
	return true, nil
}
