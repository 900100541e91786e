package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu                 sync.RWMutex
	sessionsStarted    int64
	sessionsCompleted  int64
	sessionsEnded      int64
	sessionsFailed     int64
	turnsUploaded      int64
	decodeFailures     int64
	statusSyncs        int64
	backendCallsTotal  int64
	backendCallsFailed int64
	lastUpdateTime     time.Time
}

// Snapshot копия счётчиков для /metrics
type Snapshot struct {
	SessionsStarted    int64     `json:"sessions_started"`
	SessionsCompleted  int64     `json:"sessions_completed"`
	SessionsEnded      int64     `json:"sessions_ended"`
	SessionsFailed     int64     `json:"sessions_failed"`
	TurnsUploaded      int64     `json:"turns_uploaded"`
	DecodeFailures     int64     `json:"decode_failures"`
	StatusSyncs        int64     `json:"status_syncs"`
	BackendCallsTotal  int64     `json:"backend_calls_total"`
	BackendCallsFailed int64     `json:"backend_calls_failed"`
	LastUpdateTime     time.Time `json:"last_update_time"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		lastUpdateTime: time.Now(),
	}
}

func (m *Metrics) bump(counter *int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*counter++
	m.lastUpdateTime = time.Now()
}

func (m *Metrics) IncrementSessionsStarted()   { m.bump(&m.sessionsStarted) }
func (m *Metrics) IncrementSessionsCompleted() { m.bump(&m.sessionsCompleted) }
func (m *Metrics) IncrementSessionsEnded()     { m.bump(&m.sessionsEnded) }
func (m *Metrics) IncrementSessionsFailed()    { m.bump(&m.sessionsFailed) }
func (m *Metrics) IncrementTurnsUploaded()     { m.bump(&m.turnsUploaded) }
func (m *Metrics) IncrementDecodeFailures()    { m.bump(&m.decodeFailures) }
func (m *Metrics) IncrementStatusSyncs()       { m.bump(&m.statusSyncs) }

func (m *Metrics) IncrementBackendCall(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backendCallsTotal++
	if !success {
		m.backendCallsFailed++
	}
	m.lastUpdateTime = time.Now()
}

func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		SessionsStarted:    m.sessionsStarted,
		SessionsCompleted:  m.sessionsCompleted,
		SessionsEnded:      m.sessionsEnded,
		SessionsFailed:     m.sessionsFailed,
		TurnsUploaded:      m.turnsUploaded,
		DecodeFailures:     m.decodeFailures,
		StatusSyncs:        m.statusSyncs,
		BackendCallsTotal:  m.backendCallsTotal,
		BackendCallsFailed: m.backendCallsFailed,
		LastUpdateTime:     m.lastUpdateTime,
	}
}
