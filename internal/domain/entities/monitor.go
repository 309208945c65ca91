package entities

// MonitorStatus describes the block monitor for the status endpoint
type MonitorStatus struct {
	IsActive         bool   `json:"isActive"`
	LastScannedBlock uint64 `json:"lastScannedBlock"`
	CurrentBlock     uint64 `json:"currentBlock"`
	BlocksBehind     uint64 `json:"blocksBehind"`
	MonitoredWallets int    `json:"monitoredWallets"`
	NextScanIn       string `json:"nextScanIn"`
}

// ScanOutcome classifies one relevant transaction seen during a scan
type ScanOutcome string

const (
	ScanOutcomeTracked   ScanOutcome = "tracked"
	ScanOutcomeDuplicate ScanOutcome = "duplicate"
	ScanOutcomePending   ScanOutcome = "pending"
	ScanOutcomeError     ScanOutcome = "error"
)

// ScanItem is the result for a single block or transaction. Hash is empty
// when the whole block could not be fetched.
type ScanItem struct {
	Block   uint64      `json:"block"`
	Hash    string      `json:"hash,omitempty"`
	Outcome ScanOutcome `json:"outcome"`
	Err     string      `json:"error,omitempty"`
}

// ScanReport collects every per-item result of one cycle. Items with
// outcome error do not stop the cursor from advancing past ToBlock.
type ScanReport struct {
	Skipped   bool       `json:"skipped"`
	Reason    string     `json:"reason,omitempty"`
	FromBlock uint64     `json:"fromBlock"`
	ToBlock   uint64     `json:"toBlock"`
	Wallets   int        `json:"wallets"`
	Items     []ScanItem `json:"items"`
	Advanced  bool       `json:"advanced"`
}

// Count returns the number of items with the given outcome
func (r *ScanReport) Count(outcome ScanOutcome) int {
	n := 0
	for _, item := range r.Items {
		if item.Outcome == outcome {
			n++
		}
	}
	return n
}
