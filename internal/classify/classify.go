// Package classify holds the pure message-classification rules: ticket
// priority from body keywords, purchase-key membership, and the wallet
// address shape heuristic.
package classify

import (
	"regexp"
	"strings"

	"github.com/flashproto/support-bot/internal/domain"
)

// Keyword sets are checked in fixed precedence: urgent wins over
// informational, anything else is medium.
var (
	urgentMarkers = regexp.MustCompile(`(?i)(urgent|immediate|necessary|money problem|transfer failed)`)
	infoMarkers   = regexp.MustCompile(`(?i)(inquiry|question|information|faq)`)
)

// DeterminePriority classifies a ticket body. First match wins,
// case-insensitive, no normalization beyond case folding.
func DeterminePriority(body string) domain.TicketPriority {
	if urgentMarkers.MatchString(body) {
		return domain.TicketPriorityHigh
	}
	if infoMarkers.MatchString(body) {
		return domain.TicketPriorityLow
	}
	return domain.TicketPriorityMedium
}

// KeySet is the configured finite set of valid purchase keys.
type KeySet struct {
	keys map[string]struct{}
}

// NewKeySet builds a set from the configured key list. Entries are
// stored trimmed and upper-cased.
func NewKeySet(keys []string) *KeySet {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = strings.ToUpper(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		set[k] = struct{}{}
	}
	return &KeySet{keys: set}
}

// Contains reports whether code is a known purchase key after trimming
// and upper-casing. Pure membership check, no side effects.
func (s *KeySet) Contains(code string) bool {
	if s == nil || code == "" {
		return false
	}
	_, ok := s.keys[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// Wallet address shape bounds, inclusive.
const (
	walletPrefix    = "T"
	walletMinLength = 25
	walletMaxLength = 50
)

// LooksLikeWalletAddress is a shape heuristic, not validation: required
// prefix, length within bounds, and no TXID marker anywhere (transaction
// ids share the prefix and length range but are not addresses).
func LooksLikeWalletAddress(text string) bool {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, walletPrefix) {
		return false
	}
	if len(text) < walletMinLength || len(text) > walletMaxLength {
		return false
	}
	return !strings.Contains(strings.ToUpper(text), "TXID")
}
