// Package metrics holds the Prometheus collectors for the ledger and maintenance services.
// All methods are nil-safe so services can run without metrics in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	LoansCreated          prometheus.Counter
	LoanRejections        *prometheus.CounterVec
	LoansReturned         prometheus.Counter
	ConsistencyViolations prometheus.Counter
	StoreRetries          *prometheus.CounterVec
	ScheduleWrites        *prometheus.CounterVec
	ExecutionsRecorded    prometheus.Counter
	StockCache            *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoansCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger", Name: "loans_created_total",
			Help: "Loans committed to the ledger.",
		}),
		LoanRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger", Name: "loan_rejections_total",
			Help: "createLoan / registerReturn calls rejected, by error code.",
		}, []string{"op", "code"}),
		LoansReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger", Name: "loans_returned_total",
			Help: "Loans closed by registerReturn.",
		}),
		ConsistencyViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger", Name: "consistency_violations_total",
			Help: "Negative available stock observed. Should stay at zero.",
		}),
		StoreRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger", Name: "store_retries_total",
			Help: "Transient storage errors retried, by operation.",
		}, []string{"op"}),
		ScheduleWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maintenance", Name: "schedule_writes_total",
			Help: "Schedule entry writes, by kind.",
		}, []string{"kind"}),
		ExecutionsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "maintenance", Name: "executions_recorded_total",
			Help: "Maintenance execution records appended.",
		}),
		StockCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger", Name: "stock_cache_lookups_total",
			Help: "Availability cache lookups, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.LoansCreated, m.LoanRejections, m.LoansReturned, m.ConsistencyViolations,
			m.StoreRetries, m.ScheduleWrites, m.ExecutionsRecorded, m.StockCache,
		)
	}
	return m
}

func (m *Metrics) LoanCreated() {
	if m != nil {
		m.LoansCreated.Inc()
	}
}

func (m *Metrics) Rejected(op, code string) {
	if m != nil {
		m.LoanRejections.WithLabelValues(op, code).Inc()
	}
}

func (m *Metrics) LoanReturned() {
	if m != nil {
		m.LoansReturned.Inc()
	}
}

func (m *Metrics) Violation() {
	if m != nil {
		m.ConsistencyViolations.Inc()
	}
}

func (m *Metrics) Retry(op string) {
	if m != nil {
		m.StoreRetries.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) ScheduleWrite(kind string) {
	if m != nil {
		m.ScheduleWrites.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ExecutionRecorded() {
	if m != nil {
		m.ExecutionsRecorded.Inc()
	}
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.StockCache.WithLabelValues("hit").Inc()
	} else {
		m.StockCache.WithLabelValues("miss").Inc()
	}
}
