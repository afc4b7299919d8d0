package observer

import (
	"context"
	"time"

	maestro "github.com/maestroflow/maestro"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
var (
	attrModel        = attribute.Key("llm.model")
	attrProvider     = attribute.Key("llm.provider")
	attrToolCount    = attribute.Key("llm.tool_count")
	attrStreamChunks = attribute.Key("llm.stream_chunks")
	attrTokensInput  = attribute.Key("llm.tokens.input")
	attrTokensOutput = attribute.Key("llm.tokens.output")
	attrCostUSD      = attribute.Key("llm.cost.usd")
)

// ObservedProvider wraps a maestro.Provider, emitting one span per call
// with token usage and USD cost attributes.
type ObservedProvider struct {
	inner  maestro.Provider
	tracer trace.Tracer
	cost   *CostCalculator
	model  string
}

// WrapProvider returns an instrumented provider.
func WrapProvider(inner maestro.Provider, model string, cost *CostCalculator) *ObservedProvider {
	if cost == nil {
		cost = NewCostCalculator(nil)
	}
	return &ObservedProvider{
		inner:  inner,
		tracer: otel.Tracer(scopeName),
		cost:   cost,
		model:  model,
	}
}

func (o *ObservedProvider) Name() string { return o.inner.Name() }

func (o *ObservedProvider) Chat(ctx context.Context, req maestro.ChatRequest) (maestro.ChatResponse, error) {
	spanName := "llm.chat"
	if len(req.Tools) > 0 {
		spanName = "llm.chat_with_tools"
	}
	ctx, span := o.tracer.Start(ctx, spanName, trace.WithAttributes(
		attrModel.String(o.model),
		attrProvider.String(o.inner.Name()),
		attrToolCount.Int(len(req.Tools)),
	))
	defer span.End()
	start := time.Now()

	resp, err := o.inner.Chat(ctx, req)
	o.record(span, err, time.Since(start), resp.Usage)
	return resp, err
}

func (o *ObservedProvider) ChatStream(ctx context.Context, req maestro.ChatRequest, ch chan<- maestro.StreamEvent) (maestro.ChatResponse, error) {
	ctx, span := o.tracer.Start(ctx, "llm.chat_stream", trace.WithAttributes(
		attrModel.String(o.model),
		attrProvider.String(o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	// Count chunks by relaying through a buffered middle channel so the
	// inner provider never blocks on send.
	mid := make(chan maestro.StreamEvent, 64)
	chunks := 0
	done := make(chan struct{})
	go func() {
		defer close(ch)
		defer close(done)
		for ev := range mid {
			chunks++
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	resp, err := o.inner.ChatStream(ctx, req, mid)
	<-done

	span.SetAttributes(attrStreamChunks.Int(chunks))
	o.record(span, err, time.Since(start), resp.Usage)
	return resp, err
}

func (o *ObservedProvider) record(span trace.Span, err error, d time.Duration, usage maestro.Usage) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attrTokensInput.Int(usage.InputTokens),
		attrTokensOutput.Int(usage.CompletionTokens),
		attrCostUSD.Float64(o.cost.Calculate(o.model, usage.InputTokens, usage.CompletionTokens)),
		attribute.Float64("llm.duration_ms", float64(d.Milliseconds())),
	)
}

// compile-time check
var _ maestro.Provider = (*ObservedProvider)(nil)
