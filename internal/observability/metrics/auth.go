package metrics

import (
	"time"

	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	obserrors "github.com/target/opsdesk-go/internal/observability/errors"
	"github.com/target/opsdesk-go/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
	ResultDeleted = "deleted"
)

// Login paths.
const (
	PathProvider  = "provider"
	PathFallback  = "fallback"
	PathSynthetic = "synthetic"
	PathRestore   = "restore"
	PathRegister  = "register"
)

// LoginMetric captures the outcome of one login attempt.
type LoginMetric struct {
	Path     string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitLogin emits login outcome and latency metrics.
func EmitLogin(sink statsd.Sink, in LoginMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"path":   in.Path,
		"result": in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		tags["error_kind"] = string(domainauth.KindOf(in.Err))
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("auth.login", 1, tags)

	if in.Duration > 0 {
		sink.Timing("auth.login.duration", in.Duration, CloneTags(tags))
	}
}

// EmitSubscriptionEvent counts live profile deliveries applied to a session.
func EmitSubscriptionEvent(sink statsd.Sink, collection domainauth.Collection, result string) {
	if sink == nil {
		return
	}
	sink.Count("auth.subscription.update", 1, map[string]string{
		"collection": string(collection),
		"result":     result,
	})
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// EmitSessionActive reports whether a session is active. An empty role means
// the session was cleared.
func EmitSessionActive(sink statsd.Sink, role domainauth.Role) {
	if sink == nil {
		return
	}
	if role == "" {
		sink.Gauge("auth.session.active", 0, nil)
		return
	}
	sink.Gauge("auth.session.active", 1, map[string]string{"role": string(role)})
}
