package client

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("client")
)

var (
	exchangesTotal      = metrics.NewCounter("unixhttp_exchanges_total")
	exchangeErrorsTotal = metrics.NewCounter("unixhttp_exchange_errors_total")
	exchangeDuration    = metrics.NewHistogram("unixhttp_exchange_duration_seconds")
)

// observeExchange records one finished exchange. status is 0 if no response arrived.
func observeExchange(start time.Time, status int, failed bool) {
	exchangesTotal.Inc()
	exchangeDuration.UpdateDuration(start)
	if failed {
		exchangeErrorsTotal.Inc()
	}
	if status >= 100 && status <= 599 {
		metrics.GetOrCreateCounter(fmt.Sprintf(`unixhttp_responses_total{class="%dxx"}`, status/100)).Inc()
	}
}
