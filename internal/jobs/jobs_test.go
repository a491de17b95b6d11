package jobs

import (
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
	if !strings.HasPrefix(a, SessionPrefix) {
		t.Errorf("session id %q missing prefix", a)
	}
	if !strings.HasPrefix(NewBatchID(), BatchPrefix) {
		t.Errorf("batch id missing prefix")
	}
}

func TestParseRoute(t *testing.T) {
	tests := []struct {
		path       string
		wantID     string
		wantAction string
		wantOK     bool
	}{
		{"/api/sessions/sess-abc/metadata", "sess-abc", "metadata", true},
		{"/api/sessions/abc/metadata", "sess-abc", "metadata", true},
		{"/api/sessions/abc", "", "", false},
		{"/api/sessions//metadata", "", "", false},
		{"/api/other/abc/metadata", "", "", false},
	}
	for _, tt := range tests {
		id, action, ok := ParseRoute(tt.path, "/api/sessions/", SessionPrefix)
		if ok != tt.wantOK || id != tt.wantID || action != tt.wantAction {
			t.Errorf("ParseRoute(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.path, id, action, ok, tt.wantID, tt.wantAction, tt.wantOK)
		}
	}
}
