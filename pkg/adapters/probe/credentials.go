package probe

import (
	"context"
	"fmt"

	"github.com/helixdata/onboard-engine/pkg/models"
	"github.com/helixdata/onboard-engine/pkg/secrets"
)

// ResolveCredentials turns a source's credential reference into a
// username/password pair. A resolution failure is returned as probe
// data (second return value), not an error: a bad secret reference is
// a property of that one resource.
func ResolveCredentials(ctx context.Context, resolver secrets.Resolver, src models.DbSource) (secrets.Credentials, string) {
	if src.SecretName == "" {
		return secrets.Credentials{Username: src.Username}, ""
	}
	if resolver == nil {
		return secrets.Credentials{}, fmt.Sprintf("Error: No secret resolver configured to resolve '%s' for database '%s'", src.SecretName, src.Database)
	}

	creds, err := resolver.Resolve(ctx, src.SecretName)
	if err != nil {
		return secrets.Credentials{}, fmt.Sprintf("Error: Failed to resolve credentials '%s' for database '%s': %v", src.SecretName, src.Database, err)
	}
	if creds.Username == "" && src.Username != "" {
		creds.Username = src.Username
	}
	return creds, ""
}
