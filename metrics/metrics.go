/*
Package metrics exposes Prometheus instrumentation for the sale engine.

PURPOSE:
  Counters for purchase volume and rejection reasons, fed by a purchase
  observer so the engine itself stays metrics-free. Scrape via the
  /metrics endpoint wired in api.NewRouter.
*/
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/warp/sale-engine/sale"
)

// Metrics holds the collectors for one engine instance.
type Metrics struct {
	Purchases       prometheus.Counter
	UnitsSold       prometheus.Counter
	PaymentReceived prometheus.Counter
	Failures        *prometheus.CounterVec
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Purchases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sale_purchases_total",
			Help: "Number of successful purchases.",
		}),
		UnitsSold: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sale_units_sold_total",
			Help: "Sale-asset base units sold.",
		}),
		PaymentReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sale_payment_received_total",
			Help: "Payment-asset base units received, fee inclusive.",
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sale_purchase_failures_total",
			Help: "Rejected purchases by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.Purchases, m.UnitsSold, m.PaymentReceived, m.Failures)
	return m
}

// Observer returns a sale.PurchaseObserver that records successful
// purchases. Wire it with engine.Subscribe.
func (m *Metrics) Observer() sale.PurchaseObserver {
	return func(rec sale.PurchaseRecord) {
		m.Purchases.Inc()
		m.UnitsSold.Add(amountValue(rec.SaleAmount))
		m.PaymentReceived.Add(amountValue(rec.Payment))
	}
}

// RecordFailure classifies a rejected purchase. Call from the request path.
func (m *Metrics) RecordFailure(err error) {
	m.Failures.WithLabelValues(reason(err)).Inc()
}

func reason(err error) string {
	switch {
	case errors.Is(err, sale.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, sale.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, sale.ErrWindowClosed):
		return "window_closed"
	case errors.Is(err, sale.ErrTierCapReached):
		return "tier_cap"
	case errors.Is(err, sale.ErrGlobalCapReached):
		return "global_cap"
	case errors.Is(err, sale.ErrTransferFailed):
		return "transfer_failed"
	default:
		return "internal"
	}
}

// Prometheus counters are float64; exact figures live in the engine's
// own accounting.
func amountValue(a sale.Amount) float64 {
	f, _ := a.Value.Float64()
	return f
}
