package models

import (
	"strings"
	"testing"
)

func TestChatRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     ChatRequest
		wantErr string
	}{
		{
			name: "valid request",
			req:  ChatRequest{Mode: ModeCognito, Domain: DomainStudent, Message: "hi"},
		},
		{
			name:    "missing message",
			req:     ChatRequest{Mode: ModeCognito, Domain: DomainStudent},
			wantErr: "message is required",
		},
		{
			name:    "whitespace message",
			req:     ChatRequest{Mode: ModeCognito, Domain: DomainStudent, Message: "   "},
			wantErr: "message is required",
		},
		{
			name:    "missing mode",
			req:     ChatRequest{Domain: DomainStudent, Message: "hi"},
			wantErr: "mode is required",
		},
		{
			name:    "invalid mode",
			req:     ChatRequest{Mode: "stealth", Domain: DomainStudent, Message: "hi"},
			wantErr: "invalid mode",
		},
		{
			name:    "missing domain",
			req:     ChatRequest{Mode: ModeIncognito, Message: "hi"},
			wantErr: "domain is required",
		},
		{
			name:    "invalid domain",
			req:     ChatRequest{Mode: ModeIncognito, Domain: "alien", Message: "hi"},
			wantErr: "invalid domain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected valid request, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	ok := Success(map[string]string{"k": "v"})
	if ok.Status != StatusOK || ok.Result == nil || ok.Message != "" {
		t.Errorf("unexpected success envelope: %+v", ok)
	}
	bad := Error("something broke")
	if bad.Status != StatusError || bad.Message != "something broke" || bad.Result != nil {
		t.Errorf("unexpected error envelope: %+v", bad)
	}
}

func TestValidIntent(t *testing.T) {
	if !ValidIntent(IntentVenting) {
		t.Error("VENTING should be valid")
	}
	if ValidIntent(Intent("COMPLAINING")) {
		t.Error("unknown labels must be rejected")
	}
}

func TestValidSeverity(t *testing.T) {
	for _, s := range []Severity{SeverityLow, SeverityMedium, SeverityHigh} {
		if !ValidSeverity(s) {
			t.Errorf("%s should be valid", s)
		}
	}
	if ValidSeverity(Severity("extreme")) {
		t.Error("unknown severity must be rejected")
	}
}
