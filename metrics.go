package authgate

import "sync/atomic"

// MetricID defines a public type used by authgate APIs.
//
// MetricID instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricID uint16

const (
	// MetricTokenIssued is an exported constant or variable used by the gateway engine.
	MetricTokenIssued MetricID = iota
	// MetricTokenVerified is an exported constant or variable used by the gateway engine.
	MetricTokenVerified
	// MetricTokenRejected is an exported constant or variable used by the gateway engine.
	MetricTokenRejected
	// MetricIdentityRejected is an exported constant or variable used by the gateway engine.
	MetricIdentityRejected
	// MetricExchangeCreated is an exported constant or variable used by the gateway engine.
	MetricExchangeCreated
	// MetricExchangeResolved is an exported constant or variable used by the gateway engine.
	MetricExchangeResolved
	// MetricExchangeExpired is an exported constant or variable used by the gateway engine.
	MetricExchangeExpired
	// MetricExchangeMissed is an exported constant or variable used by the gateway engine.
	MetricExchangeMissed
	// MetricExchangeSwept is an exported constant or variable used by the gateway engine.
	MetricExchangeSwept
	// MetricChainPassed is an exported constant or variable used by the gateway engine.
	MetricChainPassed
	// MetricChainFailed is an exported constant or variable used by the gateway engine.
	MetricChainFailed
	// MetricSecondFactorSkipped is an exported constant or variable used by the gateway engine.
	MetricSecondFactorSkipped
	// MetricSecondFactorEnforced is an exported constant or variable used by the gateway engine.
	MetricSecondFactorEnforced
	// MetricDeviceRegistered is an exported constant or variable used by the gateway engine.
	MetricDeviceRegistered
	// MetricDeviceDuplicate is an exported constant or variable used by the gateway engine.
	MetricDeviceDuplicate
	// MetricPhoneChangeStarted is an exported constant or variable used by the gateway engine.
	MetricPhoneChangeStarted
	// MetricPhoneChangeConfirmed is an exported constant or variable used by the gateway engine.
	MetricPhoneChangeConfirmed
	// MetricPhoneChangeRejected is an exported constant or variable used by the gateway engine.
	MetricPhoneChangeRejected

	metricIDCount
)

type paddedCounter struct {
	value uint64
	_     [7]uint64
}

// Metrics defines a public type used by authgate APIs.
//
// Metrics instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot defines a public type used by authgate APIs.
//
// MetricsSnapshot instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics describes the newmetrics operation and its observable behavior.
//
// NewMetrics does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled describes the enabled operation and its observable behavior.
//
// Enabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc describes the inc operation and its observable behavior.
//
// Inc does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Add describes the add operation and its observable behavior.
//
// Add does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Value describes the value operation and its observable behavior.
//
// Value does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}

	s := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, int(metricIDCount)),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
