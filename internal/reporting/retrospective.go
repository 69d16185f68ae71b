package reporting

import (
	"sync"
	"time"
)

// Entry statuses.
const (
	StatusSuccess  = "SUCCESS"
	StatusFailure  = "FAILURE"
	StatusFallback = "FALLBACK"
)

// LogEntry records the outcome of one logical gateway operation.
type LogEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	RequestID     string    `json:"request_id"`
	Gateway       string    `json:"gateway"`
	Operation     string    `json:"operation"`
	Status        string    `json:"status"` // SUCCESS, FAILURE or FALLBACK
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Authorization string    `json:"authorization,omitempty"`
	ErrorCode     string    `json:"error_code,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Calls         int       `json:"calls"` // physical gateway calls behind the outcome
}

// Log is an append-only, concurrency-safe store of entries.
type Log struct {
	mu      sync.RWMutex
	entries []LogEntry
}

// NewLog returns an empty Log.
func NewLog() *Log {
	return &Log{}
}

// Append records e.
func (l *Log) Append(e LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Entries returns a snapshot of everything recorded.
func (l *Log) Entries() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// RetrospectiveReport summarizes gateway activity over a set of entries.
type RetrospectiveReport struct {
	TotalRequests        int              `json:"total_requests"`
	SuccessfulPayments   int              `json:"successful"`
	FailedPayments       int              `json:"failed"`
	Fallbacks            int              `json:"fallbacks"`
	PhysicalCalls        int              `json:"physical_calls"`
	TotalAmountProcessed int64            `json:"total_amount_processed"` // successful entries only
	AmountByCurrency     map[string]int64 `json:"amount_by_currency"`
	ErrorBreakdown       map[string]int   `json:"error_breakdown"`
	GatewayUsage         map[string]int   `json:"gateway_usage"`
	OperationCounts      map[string]int   `json:"operation_counts"`
	DateFrom             time.Time        `json:"date_from"`
	DateTo               time.Time        `json:"date_to"`
	ProcessingDuration   time.Duration    `json:"processing_duration"`
}

// RetrospectiveReporter generates retrospective reports from log entries.
type RetrospectiveReporter struct{}

// NewRetrospectiveReporter creates a new RetrospectiveReporter.
func NewRetrospectiveReporter() *RetrospectiveReporter {
	return &RetrospectiveReporter{}
}

// GenerateRetrospective analyzes logs and produces a RetrospectiveReport.
func (rr *RetrospectiveReporter) GenerateRetrospective(logs []LogEntry) (*RetrospectiveReport, error) {
	report := &RetrospectiveReport{
		AmountByCurrency: make(map[string]int64),
		ErrorBreakdown:   make(map[string]int),
		GatewayUsage:     make(map[string]int),
		OperationCounts:  make(map[string]int),
	}
	if len(logs) == 0 {
		return report, nil
	}

	report.DateFrom = logs[0].Timestamp
	report.DateTo = logs[0].Timestamp
	for _, log := range logs {
		if log.Timestamp.Before(report.DateFrom) {
			report.DateFrom = log.Timestamp
		}
		if log.Timestamp.After(report.DateTo) {
			report.DateTo = log.Timestamp
		}
		if log.Gateway != "" {
			report.GatewayUsage[log.Gateway]++
		}
		report.PhysicalCalls += log.Calls

		switch log.Status {
		case StatusSuccess:
			report.TotalRequests++
			report.OperationCounts[log.Operation]++
			report.SuccessfulPayments++
			report.TotalAmountProcessed += log.Amount
			report.AmountByCurrency[log.Currency] += log.Amount
		case StatusFailure:
			report.TotalRequests++
			report.OperationCounts[log.Operation]++
			report.FailedPayments++
			if log.ErrorCode != "" {
				report.ErrorBreakdown[log.ErrorCode]++
			}
		case StatusFallback:
			report.Fallbacks++
		}
	}
	report.ProcessingDuration = report.DateTo.Sub(report.DateFrom)
	return report, nil
}
