// Package constants holds defaults and fixed user-facing texts shared across
// the application.
package constants

import "time"

// Message bus defaults.
const (
	// DefaultBusCapacity is the capacity of each topic's publish queue.
	DefaultBusCapacity = 100

	// DefaultSubscriberQueueSize is the per-subscriber queue size. When a
	// subscriber falls this far behind, its oldest unread item is dropped.
	DefaultSubscriberQueueSize = 64
)

// Agent executor defaults.
const (
	// DefaultMaxToolIterations bounds the tool-call loop for one inbound message.
	DefaultMaxToolIterations = 10

	// DefaultContextBudget is the character budget for assembled context.
	DefaultContextBudget = 32000

	// DefaultProviderTimeout bounds a single provider call.
	DefaultProviderTimeout = 120 * time.Second

	// DefaultToolTimeout bounds a single tool execution.
	DefaultToolTimeout = 60 * time.Second
)

// Session defaults.
const (
	// DefaultSessionIdleWindow is how long a session may go without a new
	// turn before it is archived out of the active set.
	DefaultSessionIdleWindow = 30 * time.Minute

	// DefaultSessionSweepInterval is how often idle sessions are checked.
	DefaultSessionSweepInterval = 5 * time.Minute
)

// Scheduler defaults.
const (
	// DefaultSchedulerTick is the scan interval for due jobs.
	DefaultSchedulerTick = 1 * time.Second
)

// Worker pool defaults.
const (
	DefaultPoolSize  = 5
	DefaultQueueSize = 100
)
