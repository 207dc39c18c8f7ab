package authsdk

import (
	"context"
	"fmt"
	"net/http"
)

// DefaultAuditLogLimit is used when AuditLog is called with limit <= 0.
const DefaultAuditLogLimit = 50

// AccountStatus returns the security posture of the signed-in account.
func (c *SDKClient) AccountStatus(ctx context.Context) (*AccountStatus, error) {
	var status AccountStatus
	if err := c.doAuthed(ctx, "account_status", http.MethodGet, "/security/account-status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// AuditLog returns the most recent security events for the signed-in
// account, newest first.
func (c *SDKClient) AuditLog(ctx context.Context, limit int) ([]AuditLogEntry, error) {
	if limit <= 0 {
		limit = DefaultAuditLogLimit
	}

	var out AuditLogResponse
	path := fmt.Sprintf("/security/audit-log?limit=%d", limit)
	if err := c.doAuthed(ctx, "audit_log", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}
