package webauthn

import "testing"

func TestVerifyTokenBindingPolicies(t *testing.T) {
	cases := []struct {
		name         string
		reported     *TokenBinding
		observed     string
		allowMissing bool
		wantErr      bool
	}{
		{"both absent, allowed", nil, "", true, false},
		{"both absent, disallowed", nil, "", false, true},
		{"matching", &TokenBinding{Status: "present", ID: "YELLOWSUBMARINE"}, "YELLOWSUBMARINE", true, false},
		{"caller missing", &TokenBinding{Status: "present", ID: "YELLOWSUBMARINE"}, "", true, true},
		{"mismatched", &TokenBinding{Status: "present", ID: "YELLOWSUBMARINE"}, "ORANGESUBMARINE", true, true},
		{"client missing", nil, "YELLOWSUBMARINE", true, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := verifyTokenBinding(c.reported, c.observed, c.allowMissing)
			if (err != nil) != c.wantErr {
				t.Errorf("verifyTokenBinding() error = %v, wantErr %v", err, c.wantErr)
			}
		})
	}
}

func TestParseClientDataMalformed(t *testing.T) {
	if _, err := parseClientData([]byte("not json")); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"https://example.com", "https://other.example"}
	if !originAllowed(allowed, "https://example.com") {
		t.Error("expected exact match to be allowed")
	}
	if originAllowed(allowed, "https://example.com.evil.com") {
		t.Error("expected suffix-only match to be rejected")
	}
	if originAllowed(nil, "https://example.com") {
		t.Error("expected empty origins list to reject everything")
	}
}
