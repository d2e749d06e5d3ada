package logship

import (
	"io"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

var textFormat = expfmt.NewFormat(expfmt.TypeTextPlain)

// WriteMetrics writes the client counters in the Prometheus text format.
func (c *Client) WriteMetrics(w io.Writer) error {
	st := c.Stats()
	enc := expfmt.NewEncoder(w, textFormat)
	for _, mf := range []*dto.MetricFamily{
		counter("logship_events_enqueued_total", "Events accepted by Log.", st.Enqueued),
		counter("logship_events_sent_total", "Events delivered to the collector.", st.Sent),
		counter("logship_events_dropped_total", "Events evicted because the queue was full.", st.Dropped),
		counter("logship_batches_failed_total", "Batches that failed and were requeued.", st.FailedBatches),
		counter("logship_drain_runs_total", "Drain loop invocations.", st.DrainRuns),
		counter("logship_token_fetches_total", "Token exchanges with the auth endpoint.", st.TokenFetches),
		gauge("logship_events_pending", "Events waiting to be shipped.", float64(st.Pending)),
	} {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// MetricsHandler serves WriteMetrics over HTTP.
func (c *Client) MetricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", string(textFormat))
		if err := c.WriteMetrics(w); err != nil {
			c.logger.Error("logship: writing metrics", "err", err)
		}
	})
}

func counter(name, help string, v int64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(float64(v))}}},
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}
