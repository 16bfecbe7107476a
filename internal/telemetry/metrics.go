package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	attrEndpoint = attribute.Key("rpc.endpoint")
	attrModel    = attribute.Key("odoo.model")
	attrMethod   = attribute.Key("odoo.method")
	attrCallErr  = attribute.Key("rpc.error")
	attrReauthOK = attribute.Key("rpc.reauth.ok")
	attrStatus   = attribute.Key("batch.status")
)

type metrics struct {
	calls   metric.Int64Counter
	latency metric.Float64Histogram
	reauths metric.Int64Counter
	records metric.Int64Counter
}

// CallData captures the metadata recorded for each remote call.
type CallData struct {
	Endpoint string
	Model    string
	Method   string
	Duration time.Duration
	Error    error
}

// BatchData captures per-record outcome counts for one submission.
type BatchData struct {
	Model      string
	Succeeded  int
	Failed     int
	Mismatched int
}

// meterProvider is the subset of metric.Meter we rely on.
type meterProvider interface {
	Int64Counter(name string, opts ...metric.Int64CounterOption) (metric.Int64Counter, error)
	Float64Histogram(name string, opts ...metric.Float64HistogramOption) (metric.Float64Histogram, error)
}

func newMetrics(m meterProvider) (*metrics, error) {
	if m == nil {
		return &metrics{}, nil
	}
	calls, err := m.Int64Counter("rpc.calls.total", metric.WithDescription("Total number of JSON-RPC requests sent."))
	if err != nil {
		return nil, err
	}
	latency, err := m.Float64Histogram("rpc.latency.ms", metric.WithDescription("JSON-RPC round-trip latency in milliseconds."), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	reauths, err := m.Int64Counter("rpc.reauth.total", metric.WithDescription("Re-authentications triggered by session expiry."))
	if err != nil {
		return nil, err
	}
	records, err := m.Int64Counter("batch.records.total", metric.WithDescription("Records processed by batch submissions, by outcome."))
	if err != nil {
		return nil, err
	}
	return &metrics{calls: calls, latency: latency, reauths: reauths, records: records}, nil
}

func (m *metrics) RecordCall(ctx context.Context, data CallData) {
	if m == nil || m.calls == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attrEndpoint.String(data.Endpoint),
		attrCallErr.Bool(data.Error != nil),
	}
	if data.Model != "" {
		attrs = append(attrs, attrModel.String(data.Model))
	}
	if data.Method != "" {
		attrs = append(attrs, attrMethod.String(data.Method))
	}
	m.calls.Add(ctx, 1, metric.WithAttributes(attrs...))
	if data.Duration > 0 && m.latency != nil {
		m.latency.Record(ctx, float64(data.Duration.Microseconds())/1000, metric.WithAttributes(attrs...))
	}
}

func (m *metrics) RecordReauth(ctx context.Context, ok bool) {
	if m == nil || m.reauths == nil {
		return
	}
	m.reauths.Add(ctx, 1, metric.WithAttributes(attrReauthOK.Bool(ok)))
}

func (m *metrics) RecordBatch(ctx context.Context, data BatchData) {
	if m == nil || m.records == nil {
		return
	}
	add := func(status string, n int) {
		if n <= 0 {
			return
		}
		m.records.Add(ctx, int64(n), metric.WithAttributes(attrModel.String(data.Model), attrStatus.String(status)))
	}
	add("ok", data.Succeeded)
	add("failed", data.Failed)
	add("mismatch", data.Mismatched)
}
