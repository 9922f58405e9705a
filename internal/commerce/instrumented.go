package commerce

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/minimercado-till/internal/domain/checkout"
)

const instrumentationName = "github.com/xenking/minimercado-till/internal/commerce"

// Submission outcomes recorded on the till.sale.submissions counter.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// InstrumentedSubmitter records a span, a counter and a latency histogram
// around every sale submission.
type InstrumentedSubmitter struct {
	next        checkout.Submitter
	tracer      trace.Tracer
	submissions metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewInstrumentedSubmitter wraps next with OpenTelemetry instrumentation.
func NewInstrumentedSubmitter(next checkout.Submitter, tp trace.TracerProvider, mp metric.MeterProvider) (*InstrumentedSubmitter, error) {
	meter := mp.Meter(instrumentationName)

	submissions, err := meter.Int64Counter("till.sale.submissions",
		metric.WithDescription("Sale submissions to the commerce service by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create submissions counter")
	}
	latency, err := meter.Float64Histogram("till.sale.submission.duration",
		metric.WithDescription("Sale submission latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create latency histogram")
	}

	return &InstrumentedSubmitter{
		next:        next,
		tracer:      tp.Tracer(instrumentationName),
		submissions: submissions,
		latency:     latency,
	}, nil
}

// SubmitSale implements checkout.Submitter.
func (s *InstrumentedSubmitter) SubmitSale(ctx context.Context, order checkout.SaleOrder) (*checkout.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "commerce.SubmitSale",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("till.customer_id", order.CustomerID),
			attribute.Int("till.sale.items", len(order.Items)),
		),
	)
	defer span.End()

	start := time.Now()
	receipt, err := s.next.SubmitSale(ctx, order)
	outcome := submissionOutcome(err)

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	s.submissions.Add(ctx, 1, attrs)
	s.latency.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	if receipt != nil && receipt.InvoiceID != "" {
		span.SetAttributes(attribute.String("till.invoice_id", receipt.InvoiceID))
	}
	return receipt, nil
}

func submissionOutcome(err error) string {
	if err == nil {
		return OutcomeAccepted
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return OutcomeRejected
	}
	return OutcomeFailed
}
