package persona

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/sundew-sh/sundew/internal/models"
)

// Canary derives a deterministic per-response token tied to the persona.
// Embedding canaries in response bodies makes exfiltrated data attributable
// to the originating deployment.
func Canary(p *models.Persona, salt string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s:%s", p.Seed, p.CompanyName, salt)))
	return hex.EncodeToString(sum[:])[:16]
}
