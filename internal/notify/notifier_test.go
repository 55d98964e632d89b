package notify

import "testing"

func TestRenderMessage(t *testing.T) {
	payload := map[string]string{
		"ticket_number": "GP-017",
		"position":      "4",
	}
	if got := renderMessage(KindYourTurn, payload); got != "Ticket GP-017: it is your turn now." {
		t.Fatalf("unexpected your_turn message: %s", got)
	}
	if got := renderMessage(KindRequeued, payload); got != "Ticket GP-017: you were moved to position 4." {
		t.Fatalf("unexpected requeued message: %s", got)
	}
	if got := renderMessage("unknown", payload); got != "" {
		t.Fatalf("unknown kind must render empty, got %s", got)
	}
}

func TestNewFillsGeneratedFields(t *testing.T) {
	note := New("cust-1", "org-1", KindCancelled, map[string]string{"ticket_number": "GP-001"})
	if note.NotificationID == "" {
		t.Fatal("expected notification id")
	}
	if note.CreatedAt.IsZero() {
		t.Fatal("expected created_at")
	}
	if note.Message != "Ticket GP-001: your appointment was cancelled." {
		t.Fatalf("unexpected message: %s", note.Message)
	}
}
