package domain

import "time"

// ExecutionStatus is the outcome of a submitted transaction.
type ExecutionStatus string

const (
	StatusSucceeded ExecutionStatus = "SUCCEEDED"
	StatusPartial   ExecutionStatus = "PARTIAL"
	StatusReverted  ExecutionStatus = "REVERTED"
	StatusSkipped   ExecutionStatus = "SKIPPED"
)

// Receipt is what a Submitter reports after a transaction is mined.
type Receipt struct {
	TxHash  string
	Success bool
	GasUsed uint64
	Logs    []FillLog
	Error   string
}

// FillLog is emitted by a module once per attempted order.
type FillLog struct {
	Module    string
	OrderHash string
	Filled    bool
	Reason    string
}

// ExecutionReport records what happened to one transaction of a plan.
type ExecutionReport struct {
	PlanID     string
	TxIndex    int
	TxHash     string
	Status     ExecutionStatus
	Filled     []string
	Skipped    []string
	Error      string
	ExecutedAt time.Time
}
