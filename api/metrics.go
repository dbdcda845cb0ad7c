package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	dashboardEventName   = "agenda.dashboard.request"
	dashboardEventDomain = "agenda"
	dashboardSpanName    = "GET /api/dashboard"
	dashboardRoute       = "/api/dashboard"
	tracerName           = "agenda-tracker/api"
)

var (
	forwardTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agenda",
		Name:      "forward_total",
		Help:      "Forward commands by action and outcome.",
	}, []string{"action", "result"})

	deriveSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "agenda",
		Name:      "dashboard_derive_seconds",
		Help:      "Time spent deriving a dashboard from a snapshot.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
)

type dashboardRequestMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	authDuration   time.Duration
	fetchDuration  time.Duration
	deriveDuration time.Duration
	encodeDuration time.Duration
	sheet          string
	work           string
	groupsReturned int
	tasksReturned  int
	degraded       bool
	errorStage     string
}

func newDashboardRequestMetrics(ctx context.Context, logger *log.Logger) (*dashboardRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, dashboardSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &dashboardRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *dashboardRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *dashboardRequestMetrics) ObserveFetch(d time.Duration) {
	if d > 0 {
		m.fetchDuration = d
	}
}

func (m *dashboardRequestMetrics) ObserveDerive(d time.Duration) {
	if d <= 0 {
		return
	}
	m.deriveDuration = d
	deriveSeconds.Observe(d.Seconds())
}

func (m *dashboardRequestMetrics) ObserveEncode(d time.Duration) {
	if d > 0 {
		m.encodeDuration = d
	}
}

func (m *dashboardRequestMetrics) SetFilter(sheet, work string) {
	m.sheet = sheet
	m.work = work
}

func (m *dashboardRequestMetrics) SetResult(groups, tasks int, degraded bool) {
	m.groupsReturned = max(groups, 0)
	m.tasksReturned = max(tasks, 0)
	m.degraded = degraded
}

func (m *dashboardRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log ends the span and writes one observability.event entry.
func (m *dashboardRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("http.route", dashboardRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64("agenda.dashboard.total_ms", durationToMillis(time.Since(m.start))),
		attribute.String("agenda.dashboard.sheet", m.sheet),
		attribute.String("agenda.dashboard.work", m.work),
		attribute.Int("agenda.dashboard.groups_returned", m.groupsReturned),
		attribute.Int("agenda.dashboard.tasks_returned", m.tasksReturned),
		attribute.Bool("agenda.dashboard.degraded", m.degraded),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("agenda.dashboard.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.fetchDuration > 0 {
		attrs = append(attrs, attribute.Float64("agenda.dashboard.fetch_ms", durationToMillis(m.fetchDuration)))
	}
	if m.deriveDuration > 0 {
		attrs = append(attrs, attribute.Float64("agenda.dashboard.derive_ms", durationToMillis(m.deriveDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("agenda.dashboard.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("agenda.dashboard.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	severityText, severityNumber := severityForStatus(status, err)

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", dashboardEventName),
			attribute.String("event.domain", dashboardEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		}, attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
		switch {
		case err != nil:
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		case status >= http.StatusInternalServerError:
			m.span.SetStatus(codes.Error, http.StatusText(status))
		default:
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	logged := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		logged[string(kv.Key)] = kv.Value.AsInterface()
	}
	// counts are logged as int, not the int64 AsInterface yields
	logged["http.status_code"] = status
	logged["agenda.dashboard.groups_returned"] = m.groupsReturned
	logged["agenda.dashboard.tasks_returned"] = m.tasksReturned

	fields := log.Fields{
		"event.name":      dashboardEventName,
		"event.domain":    dashboardEventDomain,
		"attributes":      logged,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	m.logger.WithFields(fields).Log(levelForSeverity(severityNumber), "observability.event")
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	case err != nil:
		return "ERROR", 17
	}
	return "INFO", 9
}

func levelForSeverity(number int) log.Level {
	switch {
	case number >= 17:
		return log.ErrorLevel
	case number >= 13:
		return log.WarnLevel
	}
	return log.InfoLevel
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
