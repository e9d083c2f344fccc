package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	vendorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_vendor_requests_total",
		Help: "Vendor HTTP requests by vendor, operation and result",
	}, []string{"vendor", "op", "result"})

	vendorPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_vendor_polls_total",
		Help: "Vendor status polls by vendor and observed state",
	}, []string{"vendor", "state"})

	pollOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_vendor_poll_outcomes_total",
		Help: "Polling loop terminations by vendor and outcome (succeeded, vendor_failed, timed_out, canceled)",
	}, []string{"vendor", "outcome"})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_notifications_total",
		Help: "Notification enqueue and feed insert results",
	}, []string{"stage", "result"})
)

// RecordVendorRequest counts one vendor HTTP request
func RecordVendorRequest(vendor, op, result string) {
	vendorRequests.WithLabelValues(vendor, op, result).Inc()
}

// RecordPoll counts one poll and the state it observed
func RecordPoll(vendor, state string) {
	vendorPolls.WithLabelValues(vendor, state).Inc()
}

// RecordPollOutcome counts one finished polling loop
func RecordPollOutcome(vendor, outcome string) {
	pollOutcomes.WithLabelValues(vendor, outcome).Inc()
}

// RecordNotification counts a notification enqueue ("enqueue") or feed insert ("feed")
func RecordNotification(stage, result string) {
	if result == "" {
		result = "unknown"
	}
	notificationsTotal.WithLabelValues(stage, result).Inc()
}
