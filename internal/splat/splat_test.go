package splat

import (
	"testing"
	"time"
)

func TestFormatStruct(t *testing.T) {
	in := struct {
		Name string
		Age  int
	}{Name: "John", Age: 30}

	want := "$params = @{\n    Name = \"John\"\n    Age = 30\n}"
	if got := Format(in); got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestFormatFieldOrder(t *testing.T) {
	in := struct {
		AppId      string
		TenantId   string
		Thumbprint string
	}{
		AppId:      "11111111-1111-1111-1111-111111111111",
		TenantId:   "22222222-2222-2222-2222-222222222222",
		Thumbprint: "AABBCCDDEEFF00112233445566778899AABBCCDD",
	}

	want := "$params = @{\n" +
		"    AppId = \"11111111-1111-1111-1111-111111111111\"\n" +
		"    TenantId = \"22222222-2222-2222-2222-222222222222\"\n" +
		"    Thumbprint = \"AABBCCDDEEFF00112233445566778899AABBCCDD\"\n" +
		"}"
	if got := Format(in); got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestFormatMapSortsKeys(t *testing.T) {
	in := map[string]any{
		"Zeta":  "last",
		"Alpha": 1,
		"Mid":   true,
	}

	want := "$params = @{\n" +
		"    Alpha = 1\n" +
		"    Mid = $true\n" +
		"    Zeta = \"last\"\n" +
		"}"
	if got := Format(in); got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestFormatPointerAndUnexported(t *testing.T) {
	type result struct {
		DisplayName string
		hidden      int
		Ready       bool
	}
	in := &result{DisplayName: "GraphToolKit-MSN-MyDomain", hidden: 7, Ready: false}

	want := "$params = @{\n" +
		"    DisplayName = \"GraphToolKit-MSN-MyDomain\"\n" +
		"    Ready = $false\n" +
		"}"
	if got := Format(in); got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestFormatTime(t *testing.T) {
	in := struct {
		Expires time.Time
	}{Expires: time.Date(2027, 8, 24, 12, 0, 0, 0, time.UTC)}

	want := "$params = @{\n    Expires = \"2027-08-24T12:00:00Z\"\n}"
	if got := Format(in); got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestFormatNilPointer(t *testing.T) {
	var in *struct{ Name string }
	want := "$params = @{\n}"
	if got := Format(in); got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}
