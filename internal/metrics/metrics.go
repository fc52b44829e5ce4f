// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes Prometheus instrumentation for the control
// plane.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// AdminOperations counts control-plane operations by name and
	// outcome ("success" or "failure").
	AdminOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_admin_operations_total",
			Help: "Administrative operations handled, by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	// RoleTransitions counts attempted role changes by target role and
	// outcome.
	RoleTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_role_transitions_total",
			Help: "Role transitions attempted, by target role and outcome.",
		},
		[]string{"target", "outcome"},
	)

	// CurrentRole is 1 for the role this instance currently holds and 0
	// for every other role.
	CurrentRole = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foreman_role",
			Help: "Current role of this instance (1 for the held role).",
		},
		[]string{"role"},
	)
)

func init() {
	prometheus.MustRegister(AdminOperations, RoleTransitions, CurrentRole)
}

// ObserveOperation records one finished admin operation.
func ObserveOperation(op string, ok bool) {
	AdminOperations.WithLabelValues(op, outcome(ok)).Inc()
}

// ObserveTransition records one attempted role transition.
func ObserveTransition(target string, ok bool) {
	RoleTransitions.WithLabelValues(target, outcome(ok)).Inc()
}

// SetRole marks role as held and clears the others.
func SetRole(role string) {
	CurrentRole.Reset()
	CurrentRole.WithLabelValues(role).Set(1)
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
