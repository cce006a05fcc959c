package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Actor is the authenticated staff member performing an operation.
type Actor struct {
	UserID   string
	TenantID string
	Email    string
	Role     StaffRole
}

// Audit actions.
const (
	AuditCreate = "create"
	AuditUpdate = "update"
	AuditDelete = "delete"
	AuditWaive  = "waive"
)

type auditPayload struct {
	TenantID  string    `json:"tenant_id"`
	TableName string    `json:"table_name"`
	RecordID  string    `json:"record_id"`
	Action    string    `json:"action"`
	UserID    string    `json:"user_id"`
	Before    any       `json:"before"`
	After     any       `json:"after"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditHash chains an entry onto the previous hash of the same tenant.
func AuditHash(prevHash string, e AuditEntry) (string, error) {
	before, err := canonicalJSON(e.Before)
	if err != nil {
		return "", err
	}
	after, err := canonicalJSON(e.After)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(auditPayload{
		TenantID:  e.TenantID,
		TableName: e.TableName,
		RecordID:  e.RecordID,
		Action:    e.Action,
		UserID:    e.UserID,
		Before:    before,
		After:     after,
		CreatedAt: e.CreatedAt.UTC().Truncate(time.Microsecond),
	})
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyAuditChain recomputes hashes in order and returns the index of the first broken link, or -1.
func VerifyAuditChain(entries []AuditEntry) int {
	prev := ""
	for i, e := range entries {
		if e.PrevHash != prev {
			return i
		}
		want, err := AuditHash(prev, e)
		if err != nil || want != e.Hash {
			return i
		}
		prev = e.Hash
	}
	return -1
}

// canonicalJSON round-trips v through JSON so structs and the maps read back from storage hash alike.
func canonicalJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
