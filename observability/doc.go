// Package observability provides OpenTelemetry tracing and metrics for
// HTTP exchanges.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("my-service"))
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartExchangeSpan(ctx, "GET", "https://api.example.com/users")
//	defer observability.EndExchangeSpan(span, 200, nil)
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, observability.DefaultMeterConfig("my-service"))
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter(observability.InstrumentationName))
//	metrics.RecordExchange(ctx, "GET", 200, duration)
package observability
