package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal counts review transitions by source, target and outcome.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submission_transitions_total",
			Help: "Submission status transitions by from/to status and result",
		},
		[]string{"from", "to", "result"},
	)

	SubmissionsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submissions_created_total",
			Help: "Submissions created, by advert category",
		},
		[]string{"category"},
	)

	// CertificateIssueDuration tracks the latency of certificate issuance
	CertificateIssueDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "certificate_issue_duration_seconds",
			Help: "Duration of certificate issuance in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
			},
		},
		[]string{"status"}, // success or failure
	)

	CertificateNumberCollisionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "certificate_number_collisions_total",
			Help: "Certificate number draws that hit an existing number",
		},
	)

	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certificate_verifications_total",
			Help: "Certificate verification lookups by classification",
		},
		[]string{"classification"},
	)

	CertificatesRevokedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "certificates_revoked_total",
			Help: "Certificates deactivated by an administrator",
		},
	)
)

func RecordTransition(from, to, result string) {
	TransitionsTotal.WithLabelValues(from, to, result).Inc()
}

func RecordSubmissionCreated(category string) {
	SubmissionsCreatedTotal.WithLabelValues(category).Inc()
}

// RecordCertificateIssueDuration records the duration of a certificate issuance
func RecordCertificateIssueDuration(status string, duration float64) {
	CertificateIssueDuration.WithLabelValues(status).Observe(duration)
}

func RecordCertificateCollision() {
	CertificateNumberCollisionsTotal.Inc()
}

func RecordVerification(classification string) {
	VerificationsTotal.WithLabelValues(classification).Inc()
}

func RecordRevocation() {
	CertificatesRevokedTotal.Inc()
}
