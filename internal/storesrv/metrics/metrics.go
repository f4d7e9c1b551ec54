// Package metrics declares the prometheus collectors for the store service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ResolutionsTotal counts tenant resolutions by the signal that produced
	// the result (header, host, default).
	ResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storesrv_tenant_resolutions_total",
			Help: "Tenant resolutions by resolving signal",
		},
		[]string{"source"},
	)

	// ResolutionDegradedTotal counts resolution steps that failed and fell
	// through to the next precedence level.
	ResolutionDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storesrv_tenant_resolution_degraded_total",
			Help: "Resolution steps that degraded to the next precedence level",
		},
		[]string{"source", "reason"}, // reason: not_found|lookup_error
	)

	// ProvisioningTotal counts provisioning attempts by outcome stage.
	ProvisioningTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storesrv_provisioning_total",
			Help: "Store provisioning attempts by outcome and failed stage",
		},
		[]string{"outcome", "stage"}, // outcome: success|failure
	)

	// MigrationsApplied counts migration scripts applied per schema category.
	MigrationsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storesrv_migrations_applied_total",
			Help: "Migration scripts applied by schema category",
		},
		[]string{"category"}, // registry|tenant
	)
)

// MustRegister registers all collectors with the given registerer.
func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		ResolutionsTotal,
		ResolutionDegradedTotal,
		ProvisioningTotal,
		MigrationsApplied,
	)
}
