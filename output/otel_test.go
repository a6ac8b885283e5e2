package output

import (
	"testing"

	"unravel/config"

	otelLog "go.opentelemetry.io/otel/log"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

func findAttr(kvs []otelLog.KeyValue, key string) (otelLog.Value, bool) {
	for _, kv := range kvs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return otelLog.Value{}, false
}

func TestResolveOtelEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT", "https://logs.example.test/v1/logs")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "https://fallback.example.test")

	cfg := &config.Config{OtelEndpoint: "  https://explicit.example.test  ", OtelFromEnv: true}
	if got := resolveOtelEndpoint(cfg); got != "https://explicit.example.test" {
		t.Fatalf("expected explicit endpoint, got %q", got)
	}

	cfg = &config.Config{OtelFromEnv: true}
	if got := resolveOtelEndpoint(cfg); got != "https://logs.example.test/v1/logs" {
		t.Fatalf("expected logs env endpoint, got %q", got)
	}

	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT", "")
	if got := resolveOtelEndpoint(cfg); got != "https://fallback.example.test" {
		t.Fatalf("expected fallback env endpoint, got %q", got)
	}

	cfg = &config.Config{OtelFromEnv: false}
	if got := resolveOtelEndpoint(cfg); got != "" {
		t.Fatalf("expected empty endpoint when env fallback disabled, got %q", got)
	}
}

func TestNewOtelLoggerRequiresScheme(t *testing.T) {
	if _, err := newOtelLogger(&config.Config{OtelEndpoint: "collector:4318"}); err == nil {
		t.Fatal("expected error for endpoint without scheme")
	}
	o, err := newOtelLogger(&config.Config{})
	if err != nil || o != nil {
		t.Fatalf("expected disabled logger, got %v %v", o, err)
	}
}

func TestNilOtelLoggerIsSafe(t *testing.T) {
	var o *otelLogger
	o.Emit("record", map[string]interface{}{"sha256": "x"})
	o.Shutdown()
	if o.Endpoint() != "" {
		t.Fatal("expected empty endpoint")
	}
}

func TestSanitizePayloadStripsFilePaths(t *testing.T) {
	payload := map[string]interface{}{
		"path":   "input.bin-unpacked/0x00000000-gzip",
		"parent": "input.bin",
		"data":   "input.bin-unpacked/0x00000000-gzip",
		"size":   12,
	}
	sanitized := sanitizePayload("file", payload, otelPolicy{})
	for _, key := range []string{"path", "parent", "data"} {
		if _, ok := sanitized[key]; ok {
			t.Fatalf("expected %s to be stripped", key)
		}
	}
	if _, ok := payload["path"]; !ok {
		t.Fatal("expected original payload to remain unchanged")
	}
	if sanitized["size"] != 12 {
		t.Fatalf("expected size to survive, got %v", sanitized["size"])
	}

	kept := sanitizePayload("file", payload, otelPolicy{includePaths: true})
	if kept["path"] != payload["path"] {
		t.Fatal("expected path to be kept when paths are exported")
	}

	record := map[string]interface{}{"sha256": "abc"}
	if got := sanitizePayload("record", record, otelPolicy{}); got["sha256"] != "abc" {
		t.Fatalf("unexpected record sanitization: %v", got)
	}
}

func TestContentAttributes(t *testing.T) {
	rec := &Record{
		SHA256: "abc",
		Hashes: map[string]string{"sha256": "abc", "md5": "def"},
		Labels: []string{"compressed", "gzip"},
		Size:   1 << 33,
		Parser: "gzip",
	}
	kvs := semanticAttributes("record", payloadToMap(rec), otelPolicy{})

	if v, ok := findAttr(kvs, "unravel.content.sha256"); !ok || v.AsString() != "abc" {
		t.Fatalf("missing sha256 attribute: %v", kvs)
	}
	if v, ok := findAttr(kvs, string(semconv.FileSizeKey)); !ok || v.AsInt64() != 1<<33 {
		t.Fatalf("missing size attribute: %v", kvs)
	}
	if v, ok := findAttr(kvs, "unravel.content.hash.md5"); !ok || v.AsString() != "def" {
		t.Fatalf("missing md5 attribute: %v", kvs)
	}
	labels, ok := findAttr(kvs, "unravel.content.labels")
	if !ok || len(labels.AsSlice()) != 2 {
		t.Fatalf("missing labels attribute: %v", kvs)
	}
	if _, ok := findAttr(kvs, "unravel.content.mime_type"); ok {
		t.Fatal("expected empty mime type to be omitted")
	}
}

func TestFileAttributesRespectPathPolicy(t *testing.T) {
	data := map[string]interface{}{"path": "dir/image.jpg", "size": 10}

	kvs := fileAttributes(data, otelPolicy{})
	if _, ok := findAttr(kvs, string(semconv.FilePathKey)); ok {
		t.Fatal("expected path attribute to be omitted")
	}

	kvs = fileAttributes(data, otelPolicy{includePaths: true})
	if v, ok := findAttr(kvs, string(semconv.FileNameKey)); !ok || v.AsString() != "image.jpg" {
		t.Fatalf("expected file name attribute, got %v", kvs)
	}
	if v, ok := findAttr(kvs, string(semconv.FileExtensionKey)); !ok || v.AsString() != "jpg" {
		t.Fatalf("expected extension attribute, got %v", kvs)
	}
}

func TestToLogKeyValuesSorted(t *testing.T) {
	kvs := toLogKeyValues(map[string]interface{}{"b": "2", "a": "1", "c": true})
	if len(kvs) != 3 || kvs[0].Key != "a" || kvs[1].Key != "b" || kvs[2].Key != "c" {
		t.Fatalf("expected sorted keys, got %v", kvs)
	}
	if kvs[2].Value.Kind() != otelLog.KindBool {
		t.Fatalf("expected bool value, got %v", kvs[2].Value.Kind())
	}
}
