package monitor

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/judgecore/sandbox/verdict"
)

const tracerName = "github.com/judgecore/sandbox/monitor"

// Span attribute keys
var (
	AttrSessionID = attribute.Key("judge.session.id")
	AttrCase      = attribute.Key("judge.case")
	AttrTarget    = attribute.Key("judge.target")
	AttrCategory  = attribute.Key("judge.verdict.category")
	AttrCPUTimeMS = attribute.Key("judge.cpu_time_ms")
	AttrMemoryKB  = attribute.Key("judge.memory_kb")
	AttrAttempts  = attribute.Key("judge.attempts")
)

func endSpan(span trace.Span, s *Session) {
	v := s.Verdict
	span.SetAttributes(
		AttrCategory.String(v.Category.String()),
		AttrAttempts.Int(s.Attempts),
	)
	if cpu, ok := v.CPUTimeMs.Get(); ok {
		span.SetAttributes(AttrCPUTimeMS.Int64(cpu))
	}
	if mem, ok := v.MemoryKB.Get(); ok {
		span.SetAttributes(AttrMemoryKB.Int64(mem))
	}
	if v.Category == verdict.SystemError {
		span.SetStatus(codes.Error, v.Message)
	}
	span.End()
}
