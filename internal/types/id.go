// README: User identity key for chat sessions.
package types

// UserID is the transport-level identity of a chat user (HTTP path id, Matrix user id, console name).
type UserID string

const maxUserIDLen = 128

// Valid accepts 1..128 chars of letters, digits and the separators used by chat platforms.
func (id UserID) Valid() bool {
	if len(id) == 0 || len(id) > maxUserIDLen {
		return false
	}
	for _, c := range id {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			continue
		}
		switch c {
		case '-', '_', '.', ':', '@', '!':
			continue
		}
		return false
	}
	return true
}
