package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetup(t *testing.T) {
	Convey("Without an endpoint Setup is a no-op", t, func() {
		shutdown, err := Setup(context.Background(), "svc", "")
		So(err, ShouldBeNil)
		So(shutdown(context.Background()), ShouldBeNil)
	})
}

func TestSpans(t *testing.T) {
	Convey("Given an in-memory tracer provider", t, func() {
		recorder := tracetest.NewSpanRecorder()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
		prev := otel.GetTracerProvider()
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.TraceContext{})
		defer otel.SetTracerProvider(prev)

		Convey("End records errors on the span", func() {
			_, span := Start(context.Background(), "connect.get")
			End(span, errors.New("boom"))

			ended := recorder.Ended()
			So(len(ended), ShouldEqual, 1)
			So(ended[0].Name(), ShouldEqual, "connect.get")
			So(ended[0].Status().Description, ShouldEqual, "boom")
		})

		Convey("Inject writes a traceparent header", func() {
			ctx, span := Start(context.Background(), "outgoing")
			defer span.End()
			h := http.Header{}
			Inject(ctx, h)
			So(h.Get("traceparent"), ShouldNotBeEmpty)

			extracted := Extract(context.Background(), h)
			So(extracted, ShouldNotBeNil)
		})
	})
}
