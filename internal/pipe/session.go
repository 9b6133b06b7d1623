// internal/pipe/session.go
package pipe

import (
	"github.com/google/uuid"
)

// sessionNamespace scopes the name-based session ids derived from chat ids.
var sessionNamespace = uuid.MustParse("5f0c8a4e-3c1b-5d6e-9a7f-0b2c4d6e8f10")

// SessionID derives the Flowise session id for a chat. The same chat id always maps
// to the same session id and distinct chat ids never share one. The id is hashed
// as given, whitespace included; only an empty chat id gets a fresh random one.
func SessionID(chatID string) string {
	if chatID == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(sessionNamespace, []byte(chatID)).String()
}
