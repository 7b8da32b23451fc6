package appname

import "testing"

func TestBuild(t *testing.T) {
	tests := []struct {
		name                string
		prefix              string
		scenario            string
		userEmail           string
		includeDomainSuffix bool
		dnsDomain           string
		want                string
		wantErr             bool
	}{
		{
			name:                "email app with fallback domain",
			prefix:              "MSN",
			userEmail:           "helpdesk@mydomain.com",
			includeDomainSuffix: true,
			want:                "GraphToolKit-MSN-MyDomain-As-helpdesk",
		},
		{
			name:                "domain-joined machine",
			prefix:              "MSN",
			userEmail:           "helpdesk@mydomain.com",
			includeDomainSuffix: true,
			dnsDomain:           "CONTOSO.LOCAL",
			want:                "GraphToolKit-MSN-Contoso-As-helpdesk",
		},
		{
			name:                "scenario segment included",
			prefix:              "AB12",
			scenario:            "365Audit",
			includeDomainSuffix: true,
			want:                "GraphToolKit-AB12-365Audit-MyDomain",
		},
		{
			name:   "no domain suffix no email",
			prefix: "XY",
			want:   "GraphToolKit-XY",
		},
		{
			name:                "lowercase prefix rejected",
			prefix:              "msn",
			includeDomainSuffix: true,
			wantErr:             true,
		},
		{
			name:                "prefix too long",
			prefix:              "ABCDE",
			includeDomainSuffix: true,
			wantErr:             true,
		},
		{
			name:                "invalid email rejected",
			prefix:              "MSN",
			userEmail:           "not-an-email",
			includeDomainSuffix: true,
			wantErr:             true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("USERDNSDOMAIN", tt.dnsDomain)

			got, err := Build(tt.prefix, tt.scenario, tt.userEmail, tt.includeDomainSuffix)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Build() = %q, expected error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Build() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Build() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildDeterministic(t *testing.T) {
	t.Setenv("USERDNSDOMAIN", "")

	first, err := Build("MSN", "365Audit", "audit@contoso.com", true)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	second, err := Build("MSN", "365Audit", "audit@contoso.com", true)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if first != second {
		t.Errorf("Build() not deterministic: %q vs %q", first, second)
	}
}

func TestSecretName(t *testing.T) {
	got := SecretName("GraphToolKit-MSN-MyDomain-As-helpdesk")
	want := "CN=GraphToolKit-MSN-MyDomain-As-helpdesk"
	if got != want {
		t.Errorf("SecretName() = %q, want %q", got, want)
	}
}
