package instrumentation

import "testing"

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"callback endpoint", "/callback", "/callback"},
		{"poll endpoint with state", "/api/callback/af0ifjsldkj", "/api/callback/{state}"},
		{"poll endpoint with uuid state", "/api/callback/6ba7b810-9dad-11d1-80b4-00c04fd430c8", "/api/callback/{state}"},
		{"poll endpoint bare", "/api/callback", "/api/callback/{state}"},
		{"health endpoint", "/health", "/health"},
		{"liveness endpoint", "/healthz", "/healthz"},
		{"detailed health endpoint", "/healthz/detailed", "/healthz/detailed"},
		{"readiness endpoint", "/readyz", "/readyz"},
		{"metrics endpoint", "/metrics", "/metrics"},
		{"unknown path", "/favicon.ico", "unknown"},
		{"empty path", "", "unknown"},
		{"traversal attempt", "/../etc/passwd", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeRoute(tt.path)
			if got != tt.want {
				t.Errorf("NormalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestOperationConstants(t *testing.T) {
	// Verify operation constants are defined correctly
	operations := map[string]string{
		OperationReceive: "receive",
		OperationConsume: "consume",
		OperationSweep:   "sweep",
		OperationWait:    "wait",
	}

	for got, want := range operations {
		if got != want {
			t.Errorf("Operation constant = %q, want %q", got, want)
		}
	}
}
