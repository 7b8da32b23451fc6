// Package appname derives deterministic display names for GraphToolKit
// app registrations. Names encode the operator's prefix, the scenario,
// the local AD domain, and the acting mailbox, so a tenant admin can tell
// at a glance what a registration is for and who published it.
package appname

import (
	"fmt"
	"os"
	"strings"

	"graphtoolkit/internal/common/validation"
)

const (
	namePrefix = "GraphToolKit"

	// fallbackDomain is used when the machine is not domain-joined
	// (USERDNSDOMAIN unset).
	fallbackDomain = "MyDomain"
)

// Build constructs an app display name of the form
//
//	GraphToolKit-{prefix}[-{scenario}][-{domain}][-As-{localPart}]
//
// prefix must be 2-4 uppercase alphanumerics. scenario is included
// verbatim when non-empty. The domain segment is the first label of
// USERDNSDOMAIN, title-cased, with a fixed fallback when unset; pass
// includeDomainSuffix=false to omit it. When userEmail is set its local
// part is appended as an "-As-" segment to mark the mailbox the app acts
// for. No collision checking happens here.
func Build(prefix, scenario, userEmail string, includeDomainSuffix bool) (string, error) {
	if err := validation.ValidatePrefix(prefix); err != nil {
		return "", err
	}

	segments := []string{namePrefix, prefix}

	if scenario != "" {
		segments = append(segments, scenario)
	}

	if includeDomainSuffix {
		segments = append(segments, domainSuffix())
	}

	if userEmail != "" {
		if err := validation.ValidateEmail(userEmail); err != nil {
			return "", err
		}
		local := userEmail[:strings.Index(userEmail, "@")]
		segments = append(segments, "As", local)
	}

	return strings.Join(segments, "-"), nil
}

// domainSuffix returns the first dot-label of USERDNSDOMAIN title-cased,
// e.g. USERDNSDOMAIN=CONTOSO.LOCAL yields "Contoso".
func domainSuffix() string {
	dnsDomain := os.Getenv("USERDNSDOMAIN")
	if dnsDomain == "" {
		return fallbackDomain
	}

	label := dnsDomain
	if i := strings.Index(dnsDomain, "."); i > 0 {
		label = dnsDomain[:i]
	}
	return titleCase(label)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

// SecretName derives the vault secret name for a registered app,
// mirroring the certificate subject convention.
func SecretName(displayName string) string {
	return fmt.Sprintf("CN=%s", displayName)
}
