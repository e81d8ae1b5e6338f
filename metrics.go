package replica

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors updated by Servers and Clients.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	OperationsSent    *prometheus.CounterVec
	OperationsApplied *prometheus.CounterVec
	OperationsDropped *prometheus.CounterVec
	Flushes           *prometheus.CounterVec
	LiveObjects       *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them on reg (or the
// default registerer if nil). Collectors already registered are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		OperationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replica_operations_sent_total",
			Help: "Operations handed to the transport by the authority.",
		}, []string{"op"}),
		OperationsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replica_operations_applied_total",
			Help: "Remote operations applied to local replicas.",
		}, []string{"op"}),
		OperationsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replica_operations_dropped_total",
			Help: "Operations that were inert, by reason.",
		}, []string{"reason"}),
		Flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replica_lifecycle_flushes_total",
			Help: "Lifecycle batches transmitted, by queue.",
		}, []string{"queue"}),
		LiveObjects: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "replica_live_objects",
			Help: "Replicas registered in a store, by role.",
		}, []string{"role"}),
	}
	var err error
	m.OperationsSent, err = registerCounter(reg, m.OperationsSent)
	if err != nil {
		return nil, err
	}
	m.OperationsApplied, err = registerCounter(reg, m.OperationsApplied)
	if err != nil {
		return nil, err
	}
	m.OperationsDropped, err = registerCounter(reg, m.OperationsDropped)
	if err != nil {
		return nil, err
	}
	m.Flushes, err = registerCounter(reg, m.Flushes)
	if err != nil {
		return nil, err
	}
	if err := reg.Register(m.LiveObjects); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		m.LiveObjects = are.ExistingCollector.(*prometheus.GaugeVec)
	}
	return m, nil
}

func registerCounter(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		return are.ExistingCollector.(*prometheus.CounterVec), nil
	}
	return c, nil
}

func (m *Metrics) sent(op OpCode) {
	if m == nil {
		return
	}
	m.OperationsSent.WithLabelValues(op.String()).Inc()
}

func (m *Metrics) applied(op OpCode) {
	if m == nil {
		return
	}
	m.OperationsApplied.WithLabelValues(op.String()).Inc()
}

func (m *Metrics) dropped(reason string) {
	if m == nil {
		return
	}
	m.OperationsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) flushed(queue string) {
	if m == nil {
		return
	}
	m.Flushes.WithLabelValues(queue).Inc()
}

func (m *Metrics) live(role Role, delta float64) {
	if m == nil {
		return
	}
	m.LiveObjects.WithLabelValues(role.String()).Add(delta)
}

// dropReason maps an inert-operation error to a metric label.
func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrPathNotFound):
		return "path_not_found"
	case errors.Is(err, ErrNotSequence), errors.Is(err, ErrNotMap):
		return "wrong_container"
	case errors.Is(err, ErrInvalidIndex):
		return "invalid_index"
	case errors.Is(err, ErrUnknownObject):
		return "unknown_object"
	case errors.Is(err, ErrDestroyed):
		return "destroyed"
	case errors.Is(err, ErrReadOnly):
		return "read_only"
	case errors.Is(err, ErrUnknownMessage):
		return "unknown_message"
	}
	return "other"
}
