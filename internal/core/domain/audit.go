package domain

import (
	"time"

	"github.com/vietddude/minter/internal/core/amount"
)

// AuditEventType enumerates the state changes recorded in the audit log.
type AuditEventType string

const (
	AuditAcceptedDeposit    AuditEventType = "accepted_deposit"
	AuditInvalidDeposit     AuditEventType = "invalid_deposit"
	AuditMintedDeposit      AuditEventType = "minted_deposit"
	AuditQuarantinedDeposit AuditEventType = "quarantined_deposit"
	AuditSkippedBlock       AuditEventType = "skipped_block"
	AuditSyncedToBlock      AuditEventType = "synced_to_block"
	AuditWithdrawal         AuditEventType = "withdrawal"
)

// AuditEvent is one entry of the append-only audit log. Replaying the log in order
// rebuilds the ledger state. Only the fields relevant to Type are set.
type AuditEvent struct {
	Type        AuditEventType      `json:"type"`
	Timestamp   time.Time           `json:"timestamp"`
	Deposit     *DepositEvent       `json:"deposit,omitempty"`
	Source      *EventSource        `json:"source,omitempty"`
	Reason      string              `json:"reason,omitempty"`
	MintIndex   *amount.MintIndex   `json:"mint_index,omitempty"`
	TokenSymbol string              `json:"token_symbol,omitempty"`
	BlockNumber *amount.BlockNumber `json:"block_number,omitempty"`
	Amount      *amount.Value       `json:"amount,omitempty"`
}

// SourceKey returns the event source the entry refers to, if any.
func (e AuditEvent) SourceKey() (EventSource, bool) {
	if e.Deposit != nil {
		return e.Deposit.Source, true
	}
	if e.Source != nil {
		return *e.Source, true
	}
	return EventSource{}, false
}
