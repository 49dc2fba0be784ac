package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

var (
	pointsEarned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_points_earned_total",
		Help: "Total points credited by accruals",
	})
	pointsRedeemed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_points_redeemed_total",
		Help: "Total points debited by redemptions",
	})
	pointsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_points_expired_total",
		Help: "Total points removed by the expiration sweeper",
	})
	tierUpgrades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_tier_upgrades_total",
			Help: "Tier upgrades by destination tier",
		},
		[]string{"tier"},
	)
	conflictRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_conflict_retries_total",
			Help: "Operations retried after a concurrent update conflict",
		},
		[]string{"operation"},
	)
	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_operations_total",
			Help: "Loyalty operations by outcome",
		},
		[]string{"operation", "result"},
	)
)

// RegisterMetrics registers the loyalty collectors. Call this once from main.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(pointsEarned, pointsRedeemed, pointsExpired, tierUpgrades, conflictRetries, operations)
}

func addPoints(c prometheus.Counter, points decimal.Decimal) {
	if f, _ := points.Float64(); f > 0 {
		c.Add(f)
	}
}

func observeOperation(op string, err error) {
	result := "ok"
	if err != nil {
		result = outcome(err)
	}
	operations.WithLabelValues(op, result).Inc()
}
