package notify

import (
	"context"
	"strings"
	"testing"
)

func TestChunkMessageShortTextStaysWhole(t *testing.T) {
	chunks := chunkMessage("done", MaxMessageLength)
	if len(chunks) != 1 || chunks[0] != "done" {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestChunkMessageSplitsAtLimit(t *testing.T) {
	text := strings.Repeat("x", MaxMessageLength*2+10)
	chunks := chunkMessage(text, MaxMessageLength)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != MaxMessageLength || len(chunks[1]) != MaxMessageLength {
		t.Fatalf("chunk sizes = %d %d", len(chunks[0]), len(chunks[1]))
	}
	if len(chunks[2]) != 10 {
		t.Fatalf("last chunk size = %d", len(chunks[2]))
	}
	if strings.Join(chunks, "") != text {
		t.Fatalf("chunks must reassemble the original text")
	}
}

func TestChunkMessageCountsRunes(t *testing.T) {
	text := strings.Repeat("é", 10)
	chunks := chunkMessage(text, 4)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for _, chunk := range chunks[:2] {
		if got := len([]rune(chunk)); got != 4 {
			t.Fatalf("chunk rune length = %d", got)
		}
	}
}

func TestEscapeText(t *testing.T) {
	if got := EscapeText(`<plan> & "quotes"`); got != "&lt;plan&gt; &amp; &#34;quotes&#34;" {
		t.Fatalf("escaped = %q", got)
	}
}

func TestNopNotifier(t *testing.T) {
	if err := (Nop{}).Send(context.Background(), "anything"); err != nil {
		t.Fatalf("nop send: %v", err)
	}
}

func TestNewTelegramFromEnvUnsetIsNop(t *testing.T) {
	t.Setenv(EnvBotToken, "")
	t.Setenv(EnvChatID, "")
	n, err := NewTelegramFromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if _, ok := n.(Nop); !ok {
		t.Fatalf("expected Nop notifier, got %T", n)
	}
}

func TestNewTelegramFromEnvRejectsBadChatID(t *testing.T) {
	t.Setenv(EnvBotToken, "token")
	t.Setenv(EnvChatID, "not-a-number")
	if _, err := NewTelegramFromEnv(); err == nil {
		t.Fatalf("expected error for unparsable chat id")
	}
}
