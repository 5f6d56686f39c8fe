package mesh

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// Claims are the Mesh Authorization Claims carried in a compact
// HS256-signed bearer token issued by the control plane. Mesh bearer
// tokens are signed with a secret shared directly between the control
// plane and this agent, so go-jose is used here purely as a JWS
// verifier rather than through an OIDC client.
type Claims struct {
	UserID        string    `json:"user_id"`
	OrgID         string    `json:"org_id"`
	SourceService string    `json:"source_service"`
	TargetService string    `json:"target_service"`
	WorkerID      string    `json:"worker_id,omitempty"`
	ExpiresAt     time.Time `json:"exp"`
}

// VerifyBearerToken parses token as a compact JWS, checks its HS256
// signature against secret, and returns the embedded claims. An
// expired token is rejected even if the signature is valid.
func VerifyBearerToken(secret []byte, token string) (*Claims, error) {
	sig, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("mesh: parse bearer token: %w", err)
	}

	payload, err := sig.Verify(secret)
	if err != nil {
		return nil, fmt.Errorf("mesh: verify bearer token signature: %w", err)
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("mesh: decode claims: %w", err)
	}

	if !claims.ExpiresAt.IsZero() && time.Now().After(claims.ExpiresAt) {
		return nil, fmt.Errorf("mesh: bearer token expired at %s", claims.ExpiresAt)
	}

	return &claims, nil
}
