package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_processed_total",
			Help: "Total inbound emails classified",
		},
	)

	ClassificationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_classification_failures_total",
			Help: "Total classifier failures",
		},
	)

	ResponsesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "responses_created_total",
			Help: "Total scheduled responses generated",
		},
	)

	ResponsesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "responses_sent_total",
			Help: "Total responses delivered",
		},
	)

	SendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "response_send_failures_total",
			Help: "Total failed response deliveries",
		},
	)

	RecordsCleaned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_records_cleaned_total",
			Help: "Total email records removed by retention cleanup",
		},
	)
)

func Init() {
	prometheus.MustRegister(
		EmailsProcessed,
		ClassificationFailures,
		ResponsesCreated,
		ResponsesSent,
		SendFailures,
		RecordsCleaned,
	)
}
