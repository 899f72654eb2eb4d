// Package decoder turns raw log entries reported by RPC providers into validated
// deposit events.
//
// Log data is untrusted: any provider may be faulty or compromised. Decode therefore
// never panics. It returns either a DepositEvent or one of:
//   - ErrPendingLogEntry: the log is not final yet; poll again later.
//   - *InvalidEventSourceError: the log will never be a valid deposit. The error carries
//     the EventSource so the caller can record it and suppress duplicates.
package decoder

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/minter/internal/core/amount"
	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/core/principal"
)

// DepositTopic is topic[0] of the helper contract's deposit event.
var DepositTopic = common.HexToHash("0x4d84986cd718ed41155c024ee6c78a9396f89afed335ee4cb0713996744b49ee")

// depositTopicCount is the signature plus two indexed arguments: sender and principal.
const depositTopicCount = 3

// ErrPendingLogEntry marks a log entry whose position on chain is not final.
var ErrPendingLogEntry = errors.New("pending log entry")

// InvalidEventSourceError reports a log entry that can never become a deposit.
// Err is an *InvalidPrincipalError or an *InvalidEventError.
type InvalidEventSourceError struct {
	Source domain.EventSource
	Err    error
}

func (e *InvalidEventSourceError) Error() string {
	return fmt.Sprintf("invalid event %s: %v", e.Source, e.Err)
}

func (e *InvalidEventSourceError) Unwrap() error {
	return e.Err
}

// InvalidPrincipalError reports a principal topic that does not decode.
type InvalidPrincipalError struct {
	Data common.Hash
	Err  error
}

func (e *InvalidPrincipalError) Error() string {
	return fmt.Sprintf("failed to decode principal from bytes %s: %v", e.Data.Hex(), e.Err)
}

func (e *InvalidPrincipalError) Unwrap() error {
	return e.Err
}

// InvalidEventError reports any other structural problem with a log entry.
type InvalidEventError struct {
	Reason string
}

func (e *InvalidEventError) Error() string {
	return e.Reason
}

// Decode validates one log entry.
func Decode(entry LogEntry) (domain.DepositEvent, error) {
	if entry.BlockNumber == nil || entry.TransactionHash == nil ||
		entry.TransactionIndex == nil || entry.LogIndex == nil {
		return domain.DepositEvent{}, ErrPendingLogEntry
	}

	logIndex, err := amount.FromBig[amount.LogIndexTag]((*big.Int)(entry.LogIndex))
	if err != nil {
		return domain.DepositEvent{}, fmt.Errorf("failed to decode log index: %w", err)
	}
	blockNumber, err := amount.FromBig[amount.BlockNumberTag]((*big.Int)(entry.BlockNumber))
	if err != nil {
		return domain.DepositEvent{}, fmt.Errorf("failed to decode block number: %w", err)
	}

	source := domain.EventSource{TxHash: *entry.TransactionHash, LogIndex: logIndex}
	invalid := func(format string, args ...any) error {
		return &InvalidEventSourceError{
			Source: source,
			Err:    &InvalidEventError{Reason: fmt.Sprintf(format, args...)},
		}
	}

	if entry.Removed {
		return domain.DepositEvent{}, invalid("this event has been removed from the chain")
	}

	if len(entry.Topics) == 0 {
		return domain.DepositEvent{}, invalid("unexpected event signature: no topics")
	}
	signature, err := parseTopic(entry.Topics[0])
	if err != nil || signature != DepositTopic {
		return domain.DepositEvent{}, invalid("unexpected event signature: %s", entry.Topics[0])
	}
	if len(entry.Topics) != depositTopicCount {
		return domain.DepositEvent{}, invalid(
			"expected %d topics for deposit event, got %d", depositTopicCount, len(entry.Topics))
	}

	data, err := hexutil.Decode(entry.Data)
	if err != nil {
		return domain.DepositEvent{}, invalid("invalid data: %v", err)
	}
	if len(data) != 32 {
		return domain.DepositEvent{}, invalid(
			"invalid data length; expected 32-byte value, got %d bytes", len(data))
	}
	value := amount.FromBytes32[amount.ValueTag]([32]byte(data))

	fromTopic, err := parseTopic(entry.Topics[1])
	if err != nil {
		return domain.DepositEvent{}, invalid("invalid address topic: %v", err)
	}
	from, err := addressFromTopic(fromTopic)
	if err != nil {
		return domain.DepositEvent{}, invalid("invalid address in log entry: %v", err)
	}

	principalTopic, err := parseTopic(entry.Topics[2])
	if err != nil {
		return domain.DepositEvent{}, invalid("invalid principal topic: %v", err)
	}
	to, err := principal.DecodeFromSlice(principalTopic[:])
	if err != nil {
		return domain.DepositEvent{}, &InvalidEventSourceError{
			Source: source,
			Err:    &InvalidPrincipalError{Data: principalTopic, Err: err},
		}
	}

	return domain.DepositEvent{
		Source:      source,
		BlockNumber: blockNumber,
		From:        from,
		Value:       value,
		Principal:   to,
	}, nil
}

func parseTopic(s string) (common.Hash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	return common.BytesToHash(b), nil
}

// addressFromTopic extracts a left-padded 20-byte address from a 32-byte topic.
func addressFromTopic(topic common.Hash) (common.Address, error) {
	for _, b := range topic[:common.HashLength-common.AddressLength] {
		if b != 0 {
			return common.Address{}, errors.New("address has leading non-zero bytes")
		}
	}
	return common.BytesToAddress(topic[common.HashLength-common.AddressLength:]), nil
}
