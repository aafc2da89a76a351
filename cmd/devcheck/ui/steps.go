package ui

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// StepOutput turns validation spans into progress lines on stderr. The
// root span is the run itself; each child span is one step.
type StepOutput struct {
	provider *sdktrace.TracerProvider
}

func NewStepOutput() *StepOutput {
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(&stepSpanProcessor{}),
	)
	return &StepOutput{provider: provider}
}

func (o *StepOutput) Tracer(name string) trace.Tracer {
	if o == nil || o.provider == nil {
		return otel.Tracer(name)
	}
	return o.provider.Tracer(name)
}

func (o *StepOutput) Close() {
	if o == nil || o.provider == nil {
		return
	}
	_ = o.provider.Shutdown(context.Background())
}

type stepSpanProcessor struct{}

func (p *stepSpanProcessor) OnStart(_ context.Context, span sdktrace.ReadWriteSpan) {
	if !span.Parent().IsValid() {
		return
	}
	fmt.Fprintf(os.Stderr, "  %s %s\n", Muted("[->]"), span.Name())
}

func (p *stepSpanProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	if !span.Parent().IsValid() {
		return
	}

	status := span.Status()
	if status.Code == codes.Error {
		msg := strings.TrimSpace(status.Description)
		if msg != "" {
			fmt.Fprintf(os.Stderr, "  %s %s (%s)\n", ErrorStyle.Render("[x]"), span.Name(), msg)
			return
		}
		fmt.Fprintf(os.Stderr, "  %s %s\n", ErrorStyle.Render("[x]"), span.Name())
		return
	}
	fmt.Fprintf(os.Stderr, "  %s %s\n", SuccessStyle.Render("[ok]"), span.Name())
}

func (p *stepSpanProcessor) Shutdown(context.Context) error   { return nil }
func (p *stepSpanProcessor) ForceFlush(context.Context) error { return nil }
