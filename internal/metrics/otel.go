package metrics

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument names exported through OpenTelemetry.
const (
	MetricEnqueued          = "omnitarget.events.enqueued"
	MetricWritten           = "omnitarget.events.written"
	MetricDropped           = "omnitarget.events.dropped"
	MetricDiscarded         = "omnitarget.events.discarded"
	MetricBytes             = "omnitarget.bytes.written"
	MetricRotations         = "omnitarget.rotations"
	MetricProcessorRuns     = "omnitarget.processor.runs"
	MetricProcessorFailures = "omnitarget.processor.failures"
	MetricErrors            = "omnitarget.errors"
	MetricQueueDepth        = "omnitarget.queue.depth"
)

// RegisterOTel exposes c through observable instruments of provider. depth
// reports the current queue length. attrs are attached to every observation.
// Unregister the returned registration when the target is disposed.
func RegisterOTel(provider metric.MeterProvider, c *Collector, depth func() int, attrs ...attribute.KeyValue) (metric.Registration, error) {
	if provider == nil {
		return nil, errors.New("nil meter provider")
	}
	meter := provider.Meter("github.com/wayneeseguin/omnitarget",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	counter := func(name, desc, unit string) (metric.Int64ObservableCounter, error) {
		inst, err := meter.Int64ObservableCounter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		return inst, errors.Wrapf(err, "create %s", name)
	}

	enqueued, err := counter(MetricEnqueued, "Events admitted to the queue", "{event}")
	if err != nil {
		return nil, err
	}
	written, err := counter(MetricWritten, "Events written to the active file", "{event}")
	if err != nil {
		return nil, err
	}
	dropped, err := counter(MetricDropped, "Events lost to overflow or degraded mode", "{event}")
	if err != nil {
		return nil, err
	}
	discarded, err := counter(MetricDiscarded, "Events discarded by cancel", "{event}")
	if err != nil {
		return nil, err
	}
	bytesW, err := counter(MetricBytes, "Bytes written to log files", "By")
	if err != nil {
		return nil, err
	}
	rotations, err := counter(MetricRotations, "File rotations", "{rotation}")
	if err != nil {
		return nil, err
	}
	runs, err := counter(MetricProcessorRuns, "Processor runs", "{run}")
	if err != nil {
		return nil, err
	}
	failures, err := counter(MetricProcessorFailures, "Failed processor runs", "{run}")
	if err != nil {
		return nil, err
	}
	errs, err := counter(MetricErrors, "Diagnostics reported", "{error}")
	if err != nil {
		return nil, err
	}
	queueDepth, err := meter.Int64ObservableGauge(MetricQueueDepth,
		metric.WithDescription("Events waiting in the queue"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", MetricQueueDepth)
	}

	opt := metric.WithAttributes(attrs...)
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		m := c.GetMetrics(0, 0)
		o.ObserveInt64(enqueued, toInt64(m.Enqueued), opt)
		o.ObserveInt64(written, toInt64(m.Written), opt)
		o.ObserveInt64(dropped, toInt64(m.MessagesDropped), opt)
		o.ObserveInt64(discarded, toInt64(m.MessagesDiscarded), opt)
		o.ObserveInt64(bytesW, toInt64(m.BytesWritten), opt)
		o.ObserveInt64(rotations, toInt64(m.RotationCount), opt)
		o.ObserveInt64(runs, toInt64(m.ProcessorRuns), opt)
		o.ObserveInt64(failures, toInt64(m.ProcessorFailures), opt)
		o.ObserveInt64(errs, toInt64(m.ErrorCount), opt)
		if depth != nil {
			o.ObserveInt64(queueDepth, int64(depth()), opt)
		}
		return nil
	}, enqueued, written, dropped, discarded, bytesW, rotations, runs, failures, errs, queueDepth)
}

func toInt64(v uint64) int64 {
	if v > 1<<63-1 {
		return 1<<63 - 1
	}
	return int64(v)
}
