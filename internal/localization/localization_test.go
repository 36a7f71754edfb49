package localization

import (
	"strings"
	"testing"
)

func TestFormatEscalationMessage_WebEnglish(t *testing.T) {
	msg := FormatEscalationMessage("web", "en", "alice", "1", "support@example.com")
	if !strings.Contains(msg, "#1") {
		t.Fatalf("expected escalation id in message, got %q", msg)
	}
}

func TestFormatEscalationMessage_RegionSuffixFallsBackToBaseLang(t *testing.T) {
	msg := FormatEscalationMessage("web", "de-DE", "bob", "2", "")
	if !strings.Contains(msg, "Mitarbeiter") {
		t.Fatalf("expected German template, got %q", msg)
	}
}

func TestFormatEscalationMessage_UnknownLangFallsBackToEnglish(t *testing.T) {
	msg := FormatEscalationMessage("web", "zh", "carol", "3", "")
	if !strings.Contains(msg, "human agent") {
		t.Fatalf("expected English fallback, got %q", msg)
	}
}

func TestFormatEscalationMessage_UnknownChannelFallsBackToGeneric(t *testing.T) {
	msg := FormatEscalationMessage("unknown-channel", "en", "dave", "4", "support team")
	if !strings.Contains(msg, "support team") || !strings.Contains(msg, "#4") {
		t.Fatalf("expected generic English template, got %q", msg)
	}
}

func TestFormatEscalationMessage_EmptySupportHandleUsesDefault(t *testing.T) {
	msg := FormatEscalationMessage("matrix-like", "en", "erin", "5", "")
	if !strings.Contains(msg, "our support team") {
		t.Fatalf("expected default support handle, got %q", msg)
	}
}
