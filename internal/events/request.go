// Package events defines the values published on the event bus while a request is
// served. Handlers receive the request context, which carries the request id.
package events

import (
	"net/http"
	"time"
)

type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish carries the status written for the whole request, batches included.
type HTTPFinish struct {
	Request  *http.Request
	Status   int
	Duration time.Duration
}

// GraphQLStart is published once per operation of a request.
type GraphQLStart struct {
	Query         string
	OperationName string
	OperationType string
}

// GraphQLFinish reports the errors of one operation.
type GraphQLFinish struct {
	Query         string
	OperationName string
	OperationType string
	Errors        []error
	Duration      time.Duration
}
