package decoder

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// LogEntry is an eth_getLogs result entry as returned by a provider. Position fields
// are nil while the log belongs to a pending block.
type LogEntry struct {
	Address          common.Address `json:"address"`
	Topics           []string       `json:"topics"`
	Data             string         `json:"data"`
	BlockNumber      *hexutil.Big   `json:"blockNumber"`
	BlockHash        *common.Hash   `json:"blockHash"`
	TransactionHash  *common.Hash   `json:"transactionHash"`
	TransactionIndex *hexutil.Big   `json:"transactionIndex"`
	LogIndex         *hexutil.Big   `json:"logIndex"`
	Removed          bool           `json:"removed"`
}

// normalized returns a copy with every free-form hex string in lower case, so that
// entries from providers that differ only in formatting compare equal.
func (e LogEntry) normalized() LogEntry {
	out := e
	out.Topics = make([]string, len(e.Topics))
	for i, topic := range e.Topics {
		out.Topics[i] = strings.ToLower(strings.TrimSpace(topic))
	}
	out.Data = strings.ToLower(strings.TrimSpace(e.Data))
	return out
}

// Fingerprint is the comparison key of a log list used to reconcile providers.
// Typed fields re-encode canonically, hex strings are lower-cased.
func Fingerprint(entries []LogEntry) (string, error) {
	normalized := make([]LogEntry, len(entries))
	for i, e := range entries {
		normalized[i] = e.normalized()
	}
	b, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("failed to encode log entries: %w", err)
	}
	return string(b), nil
}
