package events

import "time"

// PlanBuilt is emitted after a query has been bound and compiled.
type PlanBuilt struct {
	OperationName string
	Services      []string
	TwoPass       bool
	Err           error
	Duration      time.Duration
}

// SourceQueryStart is emitted before the pushdown expression is sent to a data source.
type SourceQueryStart struct {
	Source   string
	Pushdown string
}

// SourceQueryFinish is emitted after the data source returns.
type SourceQueryFinish struct {
	Source   string
	Pushdown string
	Err      error
	Duration time.Duration
}

// ServiceCallStart is emitted before a service method is called.
type ServiceCallStart struct {
	Service string
	Method  string
}

// ServiceCallFinish is emitted after a service method returns.
type ServiceCallFinish struct {
	Service  string
	Method   string
	Err      error
	Duration time.Duration
}
