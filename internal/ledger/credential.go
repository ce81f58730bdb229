package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Credential is the signing capability for one ledger account. The secret is
// unexported so it never reaches JSON, logs or format verbs; it is handed to
// the node only at signing time and never persisted.
type Credential struct {
	Address string
	secret  string
}

func NewCredential(address, secret string) Credential {
	return Credential{Address: strings.TrimSpace(address), secret: strings.TrimSpace(secret)}
}

// Valid reports whether both halves of the credential are present.
func (c Credential) Valid() bool {
	return c.Address != "" && c.secret != ""
}

func (c Credential) String() string {
	return fmt.Sprintf("Credential(%s, secret=[redacted])", c.Address)
}

func (c Credential) GoString() string {
	return c.String()
}

func (c Credential) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"address": c.Address})
}
