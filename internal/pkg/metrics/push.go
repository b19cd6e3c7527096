package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Push sends every registered collector to a Pushgateway under the
// given job name. The refresh binary is cron-driven and exits before
// any scrape could reach it, so the run's counters only survive by
// being pushed when it finishes. An empty gateway URL is a no-op.
func Push(gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	return push.New(gatewayURL, job).
		Gatherer(prometheus.DefaultGatherer).
		Push()
}
