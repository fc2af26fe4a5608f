package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapflow_webhook_events_total",
		Help: "Inbound webhook messages and statuses processed.",
	})
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapflow_messages_sent_total",
		Help: "Outbound messages accepted by the gateway.",
	})
	MessagesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapflow_messages_failed_total",
		Help: "Outbound messages the gateway rejected.",
	})
	JobsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapflow_jobs_processed_total",
		Help: "Delay jobs executed to completion.",
	})
	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapflow_jobs_failed_total",
		Help: "Delay job executions that errored.",
	})
	JobsRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapflow_jobs_retried_total",
		Help: "Delay jobs re-enqueued after a retryable failure.",
	})
	LogMerges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapflow_flowlog_merges_total",
		Help: "Flow log entries merged into the previous one.",
	})
)
