package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fitComputationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "unimatch",
			Subsystem: "engine",
			Name:      "fit_computations_total",
			Help:      "匹配分计算总次数。",
		},
	)

	cascadeRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unimatch",
			Subsystem: "engine",
			Name:      "cascade_runs_total",
			Help:      "诚信级联执行次数，按结果分类。",
		},
		[]string{"result"},
	)

	cascadeSeatsLostTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "unimatch",
			Subsystem: "engine",
			Name:      "cascade_seats_lost_total",
			Help:      "因替补不足而空缺的录取席位累计数。",
		},
	)

	bonusAwardsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "unimatch",
			Subsystem: "engine",
			Name:      "bonus_awards_total",
			Help:      "关闭奖励发放笔数。",
		},
	)
)

// ObserveFitComputation 记录一次匹配分计算。
func ObserveFitComputation() {
	fitComputationsTotal.Inc()
}

// ObserveCascadeRun 记录一次级联执行结果（completed/busy/failed）。
func ObserveCascadeRun(result string) {
	cascadeRunsTotal.WithLabelValues(result).Inc()
}

// ObserveCascadeSeatsLost 累计空缺席位。
func ObserveCascadeSeatsLost(n int) {
	if n > 0 {
		cascadeSeatsLostTotal.Add(float64(n))
	}
}

// ObserveBonusAwards 累计奖励发放笔数。
func ObserveBonusAwards(n int) {
	if n > 0 {
		bonusAwardsTotal.Add(float64(n))
	}
}
