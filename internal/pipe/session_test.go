package pipe

import (
	"testing"

	"github.com/google/uuid"
)

func TestSessionIDDeterministic(t *testing.T) {
	t.Parallel()

	first := SessionID("chat-123")
	if again := SessionID("chat-123"); again != first {
		t.Fatalf("same chat id produced %q and %q", first, again)
	}
	if other := SessionID("chat-124"); other == first {
		t.Fatalf("distinct chat ids collided on %q", first)
	}

	parsed, err := uuid.Parse(first)
	if err != nil {
		t.Fatalf("session id is not a uuid: %v", err)
	}
	if parsed.Version() != 5 {
		t.Fatalf("expected a name-based uuid, got version %d", parsed.Version())
	}
}

func TestSessionIDWhitespaceIsSignificant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
	}{
		{a: "chat-1", b: " chat-1\t"},
		{a: "chat-1", b: "chat-1 "},
		{a: " ", b: "  "},
	}
	for _, tt := range tests {
		if SessionID(tt.a) == SessionID(tt.b) {
			t.Fatalf("chat ids %q and %q share a session id", tt.a, tt.b)
		}
	}

	if first, again := SessionID(" "), SessionID(" "); first != again {
		t.Fatalf("whitespace chat id produced %q and %q", first, again)
	}
}

func TestSessionIDEmptyChatIsRandom(t *testing.T) {
	t.Parallel()

	a, b := SessionID(""), SessionID("")
	if a == "" || b == "" || a == b {
		t.Fatalf("expected two distinct random ids, got %q and %q", a, b)
	}
}
