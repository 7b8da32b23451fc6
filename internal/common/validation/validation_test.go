package validation

import (
	"strings"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{name: "valid email", email: "user@example.com", wantErr: false},
		{name: "valid with subdomain", email: "helpdesk@mail.example.com", wantErr: false},
		{name: "empty", email: "", wantErr: true},
		{name: "whitespace only", email: "   ", wantErr: true},
		{name: "missing at", email: "userexample.com", wantErr: true},
		{name: "missing local part", email: "@example.com", wantErr: true},
		{name: "missing domain", email: "user@", wantErr: true},
		{name: "two at signs", email: "user@@example.com", wantErr: true},
		{name: "surrounding whitespace trimmed", email: "  user@example.com  ", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
		})
	}
}

func TestValidateEmails(t *testing.T) {
	err := ValidateEmails([]string{"a@b.com", "not-an-email"}, "To recipients")
	if err == nil {
		t.Fatal("ValidateEmails() expected error for invalid entry")
	}
	if !strings.Contains(err.Error(), "To recipients") {
		t.Errorf("error should name the field, got: %v", err)
	}

	if err := ValidateEmails([]string{"a@b.com", "c@d.com"}, "CC recipients"); err != nil {
		t.Errorf("ValidateEmails() unexpected error: %v", err)
	}
}

func TestValidateGUID(t *testing.T) {
	tests := []struct {
		name    string
		guid    string
		wantErr bool
	}{
		{name: "valid", guid: "12345678-1234-1234-1234-123456789012", wantErr: false},
		{name: "empty", guid: "", wantErr: true},
		{name: "too short", guid: "12345678-1234", wantErr: true},
		{name: "dashes misplaced", guid: "123456781-234-1234-1234-123456789012", wantErr: true},
		{name: "too long", guid: "12345678-1234-1234-1234-1234567890123", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGUID(tt.guid, "Tenant ID")
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateGUID(%q) error = %v, wantErr %v", tt.guid, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePrefix(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		wantErr bool
	}{
		{name: "two chars", prefix: "AB", wantErr: false},
		{name: "three chars", prefix: "MSN", wantErr: false},
		{name: "four chars", prefix: "AB12", wantErr: false},
		{name: "digits only", prefix: "1234", wantErr: false},
		{name: "empty", prefix: "", wantErr: true},
		{name: "single char", prefix: "A", wantErr: true},
		{name: "five chars", prefix: "ABCDE", wantErr: true},
		{name: "lowercase rejected", prefix: "abc", wantErr: true},
		{name: "mixed case rejected", prefix: "AbC", wantErr: true},
		{name: "special chars", prefix: "A-B", wantErr: true},
		{name: "space", prefix: "A B", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePrefix(tt.prefix)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePrefix(%q) error = %v, wantErr %v", tt.prefix, err, tt.wantErr)
			}
		})
	}
}

func TestValidateThumbprint(t *testing.T) {
	tests := []struct {
		name       string
		thumbprint string
		wantErr    bool
	}{
		{name: "valid upper", thumbprint: "A909502DD82AE41433E6F83886B00D4277A32A7B", wantErr: false},
		{name: "valid lower", thumbprint: "a909502dd82ae41433e6f83886b00d4277a32a7b", wantErr: false},
		{name: "empty", thumbprint: "", wantErr: true},
		{name: "too short", thumbprint: "A909502DD82AE41433E6F838", wantErr: true},
		{name: "too long", thumbprint: "A909502DD82AE41433E6F83886B00D4277A32A7B00", wantErr: true},
		{name: "non-hex", thumbprint: "Z909502DD82AE41433E6F83886B00D4277A32A7B", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateThumbprint(tt.thumbprint, "Certificate thumbprint")
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateThumbprint(%q) error = %v, wantErr %v", tt.thumbprint, err, tt.wantErr)
			}
		})
	}
}
