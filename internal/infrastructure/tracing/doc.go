/*
Package tracing provides lightweight request tracing.

Spans carry a trace id and a parent span id through context.Context. HTTP
requests into the host get a span from HTTPMiddleware, and outbound
platform requests carry the same ids in headers, so one install can be
followed from the admin call to every download.

# Usage

	tracer := tracing.New("miniapp-host", time.Second, logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "install")
	err := work(ctx)
	tracer.End(span, err)

# Trace Format

Traces use HTTP headers for propagation:
  - X-Trace-ID: Unique identifier for entire request flow
  - X-Span-ID: Identifier for current operation

Finished spans are collected on a buffered channel and logged with zap.
Errors log at warn, spans over the slow threshold at info, others at debug.
*/
package tracing
