package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/nono-backend/internal/config"
	"github.com/yungbote/nono-backend/internal/platform/logger"
)

func TestParseHeaders(t *testing.T) {
	got := parseHeaders(" authorization=Bearer abc , x-team=chat, broken, =nokey, empty= ")
	want := map[string]string{"authorization": "Bearer abc", "x-team": "chat"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("headers mismatch (-want +got):\n%s", diff)
	}
	if parseHeaders("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestInitOTelDisabledIsNoop(t *testing.T) {
	shutdown := InitOTel(context.Background(), logger.Nop(), config.OtelConfig{Enabled: false}, "test")
	if shutdown == nil {
		t.Fatalf("shutdown must not be nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestTracerProviderExportsToStdoutFallback(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.OtelConfig{Enabled: true, ServiceName: "relay-test", SampleRatio: 1}
	tp := newTracerProvider(context.Background(), logger.Nop(), cfg, "test", &buf)

	_, span := tp.Tracer("test").Start(context.Background(), "chat.turn")
	span.End()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"chat.turn"`) || !strings.Contains(out, "relay-test") {
		t.Fatalf("stdout exporter output:\n%s", out)
	}
}

func TestServiceNameDefault(t *testing.T) {
	if got := serviceName(config.OtelConfig{ServiceName: "  "}); got != defaultServiceName {
		t.Fatalf("service name=%q", got)
	}
}
