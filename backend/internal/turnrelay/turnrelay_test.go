package turnrelay

import (
	"strings"
	"testing"
)

func TestStartAndClose(t *testing.T) {
	r, err := Start(Config{
		PublicIP: "127.0.0.1",
		Port:     0,
		Realm:    "liveclass",
		Username: "user",
		Password: "pass",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !strings.HasPrefix(r.URL("127.0.0.1"), "turn:127.0.0.1:") {
		t.Fatalf("URL = %q", r.URL("127.0.0.1"))
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestStartInvalidIP(t *testing.T) {
	if _, err := Start(Config{PublicIP: "not-an-ip"}); err == nil {
		t.Fatalf("Start accepted an invalid ip")
	}
}
