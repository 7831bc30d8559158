package radius

import (
	"fmt"
	"sync/atomic"
	"time"
)

// EventKind classifies an entry in the event log
type EventKind string

const (
	EventAuthRequest   EventKind = "AUTH_REQUEST"
	EventAcctStart     EventKind = "ACCT_START"
	EventAcctUpdate    EventKind = "ACCT_UPDATE"
	EventAcctStop      EventKind = "ACCT_STOP"
	EventAcctSweep     EventKind = "ACCT_SWEEP"
	EventCoADisconnect EventKind = "COA_DISCONNECT"
	EventCoAChange     EventKind = "COA_CHANGE"
)

// EventResult classifies the outcome of a processed datagram or CoA exchange
type EventResult string

const (
	ResultSuccess     EventResult = "SUCCESS"
	ResultFailure     EventResult = "FAILURE"
	ResultTimeout     EventResult = "TIMEOUT"
	ResultRateLimited EventResult = "RATE_LIMITED"
)

// Event is one entry in the in-memory log; never persisted
type Event struct {
	Kind         EventKind     `json:"kind"`
	Username     string        `json:"username,omitempty"`
	NasAddr      string        `json:"nas_addr,omitempty"`
	Result       EventResult   `json:"result"`
	Latency      time.Duration `json:"latency_ns"`
	TenantID     uint          `json:"tenant_id,omitempty"`
	InputOctets  int64         `json:"input_octets,omitempty"`
	OutputOctets int64         `json:"output_octets,omitempty"`
	Time         time.Time     `json:"time"`
}

// eventRingSize bounds the circular buffer
const eventRingSize = 1000

// EventLog is a bounded circular buffer of recent events plus monotonic
// counters. Writers claim a slot with an atomic index; a slot is fully
// written before the next claim can reuse it, so concurrent writers may
// interleave slots but never corrupt one.
type EventLog struct {
	slots [eventRingSize]atomic.Pointer[Event]
	next  atomic.Uint64

	authRequests atomic.Uint64
	authAccepts  atomic.Uint64
	authRejects  atomic.Uint64
	authTimeouts atomic.Uint64
	rateLimited  atomic.Uint64

	acctStarts  atomic.Uint64
	acctUpdates atomic.Uint64
	acctStops   atomic.Uint64

	coaDisconnects atomic.Uint64
	coaChanges     atomic.Uint64
	coaAcks        atomic.Uint64
	coaNaks        atomic.Uint64

	totalRequests atomic.Uint64
	totalSuccess  atomic.Uint64
	totalLatency  atomic.Int64 // microseconds

	inputOctets  atomic.Int64
	outputOctets atomic.Int64

	activeSessions atomic.Int64
	cacheHits      atomic.Uint64
	cacheMisses    atomic.Uint64

	started time.Time
	metrics *Metrics
}

// NewEventLog anchors the uptime clock; metrics may be nil
func NewEventLog(metrics *Metrics) *EventLog {
	return &EventLog{started: time.Now(), metrics: metrics}
}

// Record stores the event and updates every aggregate it touches
func (l *EventLog) Record(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	idx := l.next.Add(1) - 1
	l.slots[idx%eventRingSize].Store(&e)

	switch e.Kind {
	case EventAuthRequest:
		l.authRequests.Add(1)
		switch e.Result {
		case ResultSuccess:
			l.authAccepts.Add(1)
		case ResultTimeout:
			l.authTimeouts.Add(1)
		case ResultRateLimited:
			l.rateLimited.Add(1)
		default:
			l.authRejects.Add(1)
		}
	case EventAcctStart:
		l.acctStarts.Add(1)
	case EventAcctUpdate:
		l.acctUpdates.Add(1)
	case EventAcctStop:
		l.acctStops.Add(1)
	case EventCoADisconnect:
		l.coaDisconnects.Add(1)
	case EventCoAChange:
		l.coaChanges.Add(1)
	}

	switch e.Kind {
	case EventCoADisconnect, EventCoAChange:
		if e.Result == ResultSuccess {
			l.coaAcks.Add(1)
		} else if e.Result == ResultFailure {
			l.coaNaks.Add(1)
		}
	default:
		if e.Result != ResultRateLimited {
			l.totalRequests.Add(1)
			l.totalLatency.Add(e.Latency.Microseconds())
			if e.Result == ResultSuccess {
				l.totalSuccess.Add(1)
			}
		}
	}

	l.inputOctets.Add(e.InputOctets)
	l.outputOctets.Add(e.OutputOctets)

	if l.metrics != nil {
		l.metrics.observe(e)
	}
}

// RateLimited records a dropped datagram without a parsed packet behind it
func (l *EventLog) RateLimited(nasAddr string) {
	l.Record(Event{Kind: EventAuthRequest, NasAddr: nasAddr, Result: ResultRateLimited})
}

// Recent returns up to n events, newest first
func (l *EventLog) Recent(n int) []Event {
	if n <= 0 || n > eventRingSize {
		n = eventRingSize
	}
	total := l.next.Load()
	out := make([]Event, 0, n)
	for i := uint64(0); i < uint64(n) && i < total; i++ {
		e := l.slots[(total-1-i)%eventRingSize].Load()
		if e == nil {
			break
		}
		out = append(out, *e)
	}
	return out
}

// SessionOpened / SessionClosed maintain the active-session gauge
func (l *EventLog) SessionOpened() { l.setActive(l.activeSessions.Add(1)) }

func (l *EventLog) SessionClosed(n int64) { l.setActive(l.activeSessions.Add(-n)) }

// SetActiveSessions overwrites the gauge from a store sweep
func (l *EventLog) SetActiveSessions(n int64) {
	l.activeSessions.Store(n)
	l.setActive(n)
}

func (l *EventLog) setActive(n int64) {
	if l.metrics != nil {
		l.metrics.ActiveSessions.Set(float64(n))
	}
}

// CacheHit / CacheMiss feed the NAS cache counters
func (l *EventLog) CacheHit()  { l.cacheHits.Add(1) }
func (l *EventLog) CacheMiss() { l.cacheMisses.Add(1) }

// Summary is the view the admin surface reads
type Summary struct {
	Uptime            string  `json:"uptime"`
	TotalRequests     uint64  `json:"total_requests"`
	SuccessRatePct    float64 `json:"success_rate_pct"`
	AvgResponseMs     float64 `json:"avg_response_ms"`
	ActiveSessions    int64   `json:"active_sessions"`
	CacheHitPct       float64 `json:"cache_hit_pct"`
	AuthAccepts       uint64  `json:"auth_accepts"`
	AuthRejects       uint64  `json:"auth_rejects"`
	RateLimited       uint64  `json:"rate_limited"`
	AcctStarts        uint64  `json:"acct_starts"`
	AcctUpdates       uint64  `json:"acct_updates"`
	AcctStops         uint64  `json:"acct_stops"`
	CoADisconnects    uint64  `json:"coa_disconnects"`
	CoAChanges        uint64  `json:"coa_changes"`
	InputOctets       int64   `json:"input_octets"`
	OutputOctets      int64   `json:"output_octets"`
}

// Summary computes the aggregate view
func (l *EventLog) Summary() Summary {
	total := l.totalRequests.Load()
	success := l.totalSuccess.Load()
	latency := l.totalLatency.Load()
	hits := l.cacheHits.Load()
	misses := l.cacheMisses.Load()

	s := Summary{
		Uptime:         formatUptime(time.Since(l.started)),
		TotalRequests:  total,
		ActiveSessions: l.activeSessions.Load(),
		AuthAccepts:    l.authAccepts.Load(),
		AuthRejects:    l.authRejects.Load(),
		RateLimited:    l.rateLimited.Load(),
		AcctStarts:     l.acctStarts.Load(),
		AcctUpdates:    l.acctUpdates.Load(),
		AcctStops:      l.acctStops.Load(),
		CoADisconnects: l.coaDisconnects.Load(),
		CoAChanges:     l.coaChanges.Load(),
		InputOctets:    l.inputOctets.Load(),
		OutputOctets:   l.outputOctets.Load(),
	}
	if total > 0 {
		s.SuccessRatePct = 100 * float64(success) / float64(total)
		s.AvgResponseMs = float64(latency) / float64(total) / 1000
	}
	if hits+misses > 0 {
		s.CacheHitPct = 100 * float64(hits) / float64(hits+misses)
	}
	return s
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
