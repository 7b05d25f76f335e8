package classify

import (
	"strings"
	"testing"

	"github.com/flashproto/support-bot/internal/domain"
)

func TestDeterminePriority(t *testing.T) {
	cases := []struct {
		body string
		want domain.TicketPriority
	}{
		{"URGENT: transfer failed yesterday", domain.TicketPriorityHigh},
		{"money problem with my last top-up", domain.TicketPriorityHigh},
		{"just a question about fees", domain.TicketPriorityLow},
		{"need information on the FAQ", domain.TicketPriorityLow},
		{"my key stopped working", domain.TicketPriorityMedium},
		{"", domain.TicketPriorityMedium},
	}
	for _, tc := range cases {
		if got := DeterminePriority(tc.body); got != tc.want {
			t.Fatalf("DeterminePriority(%q) = %s, want %s", tc.body, got, tc.want)
		}
	}
}

func TestDeterminePriorityPrecedence(t *testing.T) {
	// A body matching both sets resolves to the urgent set.
	body := "urgent question about my account"
	if got := DeterminePriority(body); got != domain.TicketPriorityHigh {
		t.Fatalf("expected HIGH for body matching both sets, got %s", got)
	}
}

func TestKeySetMembership(t *testing.T) {
	set := NewKeySet([]string{"FP12-L3-250K-W05", "fp12-dev-5k-w24", "  FP12-TEST-100-W15  "})

	for _, code := range []string{
		"FP12-L3-250K-W05",
		"fp12-l3-250k-w05",
		"  FP12-L3-250K-W05\t",
		"FP12-DEV-5K-W24",
		"FP12-TEST-100-W15",
	} {
		if !set.Contains(code) {
			t.Fatalf("expected %q to be a known key", code)
		}
	}

	for _, code := range []string{"", "FP12-L3-250K-W06", "random text"} {
		if set.Contains(code) {
			t.Fatalf("expected %q to be unknown", code)
		}
	}
}

func TestLooksLikeWalletAddress(t *testing.T) {
	valid := "T" + strings.Repeat("a", 30)
	if !LooksLikeWalletAddress(valid) {
		t.Fatalf("expected %q to look like an address", valid)
	}
	if !LooksLikeWalletAddress("  " + valid + "  ") {
		t.Fatal("expected trimmed input to pass")
	}

	cases := []string{
		"T" + strings.Repeat("a", 23), // 24 chars, below minimum
		"T" + strings.Repeat("a", 50), // 51 chars, above maximum
		"X" + strings.Repeat("a", 30), // wrong prefix
		strings.Repeat("a", 30),       // no prefix at all
		"T" + strings.Repeat("a", 10) + "txid" + strings.Repeat("a", 10), // excluded marker
		"T" + strings.Repeat("a", 10) + "TXID" + strings.Repeat("a", 10),
	}
	for _, addr := range cases {
		if LooksLikeWalletAddress(addr) {
			t.Fatalf("expected %q to be rejected", addr)
		}
	}

	// Boundary lengths are inclusive.
	if !LooksLikeWalletAddress("T" + strings.Repeat("a", 24)) {
		t.Fatal("expected 25-char address to pass")
	}
	if !LooksLikeWalletAddress("T" + strings.Repeat("a", 49)) {
		t.Fatal("expected 50-char address to pass")
	}
}
