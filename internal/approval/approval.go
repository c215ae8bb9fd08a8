// Package approval implements the Approval Gate: YOLO auto-approve,
// a monotonic per-session allow-list, and suspend-until-resolved requests
// for everything else.
package approval

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/coreagent/runtime/internal/model"
)

// Decision is the resolved outcome of an approval request. It is the same
// three-value type the on-disk ApprovalRecord uses, so a Gate's decisions
// can be persisted or replayed without conversion.
type Decision = model.ApprovalDecision

const (
	ApproveOnce       = model.ApproveOnce
	ApproveForSession = model.ApproveForSession
	Reject            = model.Reject
)

// allowKey identifies an allow-list entry by (tool name, action key), as
// named alongside the on-disk approval record.
type allowKey struct {
	toolName  string
	actionKey string
}

// PendingRequest is a suspended request awaiting host resolution, grounded
// on the shape of internal/agent/approval.go's ApprovalRequest, trimmed to
// the three-response model (approve once, approve for session, reject).
type PendingRequest struct {
	ID          string
	ToolName    string
	ActionKey   string
	Description string

	resolved chan Decision
}

// Gate is the Approval Gate. Construct one per session.
type Gate struct {
	yolo bool

	mu        sync.Mutex
	allowed   map[allowKey]struct{}
	approvals int

	pendingMu sync.Mutex
	pending   map[string]*PendingRequest
}

// NewGate constructs an Approval Gate. When yolo is true, every request is
// approved synchronously without ever touching the allow-list or
// suspending.
func NewGate(yolo bool) *Gate {
	return &Gate{
		yolo:    yolo,
		allowed: make(map[allowKey]struct{}),
		pending: make(map[string]*PendingRequest),
	}
}

// Request asks the gate to resolve (toolName, actionKey). It returns
// synchronously for YOLO and allow-listed requests; otherwise it suspends
// on ctx or on the eventual call to Resolve.
//
// The caller (a tool body) supplies description, which is stored on the
// PendingRequest for the host to display; the host finds suspended
// requests by polling PendingRequests. The gate publishes no event or
// status update when a request suspends.
func (g *Gate) Request(ctx context.Context, toolName, actionKey, description string) (Decision, error) {
	if g.yolo {
		return ApproveOnce, nil
	}

	key := allowKey{toolName: toolName, actionKey: actionKey}
	g.mu.Lock()
	_, allowed := g.allowed[key]
	g.mu.Unlock()
	if allowed {
		return ApproveForSession, nil
	}

	req := &PendingRequest{
		ID:          uuid.NewString(),
		ToolName:    toolName,
		ActionKey:   actionKey,
		Description: description,
		resolved:    make(chan Decision, 1),
	}

	g.pendingMu.Lock()
	g.pending[req.ID] = req
	g.pendingMu.Unlock()
	defer func() {
		g.pendingMu.Lock()
		delete(g.pending, req.ID)
		g.pendingMu.Unlock()
	}()

	select {
	case d := <-req.resolved:
		if d == ApproveForSession {
			g.mu.Lock()
			g.allowed[key] = struct{}{}
			g.approvals++
			g.mu.Unlock()
		}
		return d, nil
	case <-ctx.Done():
		return Reject, ctx.Err()
	}
}

// Resolve is the single-writer completion handle a host uses to answer a
// suspended request by ID.
func (g *Gate) Resolve(requestID string, decision Decision) error {
	g.pendingMu.Lock()
	req, ok := g.pending[requestID]
	g.pendingMu.Unlock()
	if !ok {
		return fmt.Errorf("no pending approval request %s", requestID)
	}
	select {
	case req.resolved <- decision:
		return nil
	default:
		return fmt.Errorf("approval request %s already resolved", requestID)
	}
}

// PendingRequests returns a snapshot of currently-suspended requests.
func (g *Gate) PendingRequests() []*PendingRequest {
	g.pendingMu.Lock()
	defer g.pendingMu.Unlock()
	out := make([]*PendingRequest, 0, len(g.pending))
	for _, r := range g.pending {
		out = append(out, r)
	}
	return out
}

// SessionApprovalCount returns how many distinct (tool, action) pairs have
// been granted APPROVE_FOR_SESSION this session, for introspection per
// for-session approvals.
func (g *Gate) SessionApprovalCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.approvals
}
