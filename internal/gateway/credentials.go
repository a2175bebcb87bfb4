package gateway

import (
	"os"

	coreerrors "github.com/ragsmith/ragsmith/internal/errors"
)

// requireEnv returns a CredentialError naming envVar if it is unset, so the
// caller gets an actionable "export FOO=..." suggestion instead of an opaque
// provider-side auth failure.
func requireEnv(envVar string) (string, error) {
	v := os.Getenv(envVar)
	if v == "" {
		return "", coreerrors.CredentialError(envVar, nil)
	}
	return v, nil
}
