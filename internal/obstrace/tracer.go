// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package obstrace wires the runtime's OpenTelemetry tracer provider
// and exposes a Tracer for span creation around cell execution.
package obstrace

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const serviceName = "cellrt"

// Init dials endpoint (an OTLP/gRPC collector address) and installs a
// batching tracer provider as the global provider. It returns a
// shutdown func that flushes and closes the exporter, to be deferred
// from main. An empty endpoint is treated as "tracing disabled": Init
// still installs a provider (so every Tracer call stays valid) but one
// with no span processor, so spans are created and discarded for free.
func Init(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("obstrace: build resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
	}

	var shutdownExporter func(context.Context) error
	if endpoint != "" {
		conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("obstrace: dial collector: %w", err)
		}
		exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("obstrace: create exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)))
		shutdownExporter = exporter.Shutdown
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if shutdownExporter != nil {
			if err := shutdownExporter(ctx); err != nil {
				slog.Error("failed to shutdown OTLP exporter", "error", err)
				return err
			}
		}
		return provider.Shutdown(ctx)
	}, nil
}

// Tracer returns the package-level tracer for this service, fetched
// from whatever provider is currently installed (the one Init set up,
// or the no-op default if Init was never called — useful in tests).
func Tracer() trace.Tracer {
	return otel.Tracer(serviceName)
}

// StartCellSpan starts a span around a single cell execution, tagged
// with the session and cell identifiers so traces can be correlated
// back to a specific notebook run in the collector.
func StartCellSpan(ctx context.Context, sessionID, cellID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "cell.execute", trace.WithAttributes(
		attribute.String("cellrt.session_id", sessionID),
		attribute.String("cellrt.cell_id", cellID),
	))
}

// StartSessionSpan starts a span around session lifecycle operations
// (start, end) tagged with the session identifier.
func StartSessionSpan(ctx context.Context, op, sessionID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "session."+op, trace.WithAttributes(
		attribute.String("cellrt.session_id", sessionID),
	))
}
