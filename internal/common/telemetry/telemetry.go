// File path: internal/common/telemetry/telemetry.go
package telemetry

import (
	"context"
	"expvar"
	"strings"
	"sync"
	"time"

	"github.com/agrisense/farmchat/internal/common"
)

type spanKey struct{}

type span struct {
	name  string
	start time.Time
}

var (
	initOnce sync.Once

	routeTotal *expvar.Map

	retrievalTotal     *expvar.Int
	retrievalLatencyMS *expvar.Int
	webFallbackTotal   *expvar.Int

	ingestBatchTotal *expvar.Int
	ingestDocsTotal  *expvar.Int
)

func ensureInit() {
	initOnce.Do(func() {
		routeTotal = expvar.NewMap("farmchat_route_total")

		retrievalTotal = expvar.NewInt("farmchat_retrieval_total")
		retrievalLatencyMS = expvar.NewInt("farmchat_retrieval_latency_ms")
		webFallbackTotal = expvar.NewInt("farmchat_web_fallback_total")

		ingestBatchTotal = expvar.NewInt("farmchat_ingest_batches_total")
		ingestDocsTotal = expvar.NewInt("farmchat_ingest_docs_total")
	})
}

func StartSpan(ctx context.Context, name string) (context.Context, func(attrs ...interface{})) {
	ensureInit()
	sp := &span{name: name, start: time.Now()}
	ctx = context.WithValue(ctx, spanKey{}, sp)
	logger := common.Logger()
	logger.Debug("trace: start", "span", name)
	return ctx, func(attrs ...interface{}) {
		duration := time.Since(sp.start)
		logger.Debug("trace: end", append([]interface{}{"span", name, "dur", duration}, attrs...)...)
	}
}

// RecordRoute counts one classified question per route label.
func RecordRoute(route string) {
	ensureInit()
	key := strings.TrimSpace(strings.ToLower(route))
	if key == "" {
		key = "unknown"
	}
	routeTotal.Add(key, 1)
}

// RecordRetrieval counts one similarity-retrieval pass. A pass that ended in
// the web fallback is counted on both meters.
func RecordRetrieval(applied bool, duration time.Duration) {
	ensureInit()
	retrievalTotal.Add(1)
	if !applied {
		webFallbackTotal.Add(1)
	}
	if duration > 0 {
		retrievalLatencyMS.Add(duration.Milliseconds())
	}
}

func RecordIngestBatch(docs int) {
	ensureInit()
	if docs <= 0 {
		return
	}
	ingestBatchTotal.Add(1)
	ingestDocsTotal.Add(int64(docs))
}

func SpanDuration(ctx context.Context) time.Duration {
	sp, _ := ctx.Value(spanKey{}).(*span)
	if sp == nil {
		return 0
	}
	return time.Since(sp.start)
}
