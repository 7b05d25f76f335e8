package ticket

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/flashproto/support-bot/internal/domain"
	"github.com/flashproto/support-bot/internal/platform"
	"github.com/flashproto/support-bot/internal/store"
	apperrors "github.com/flashproto/support-bot/pkg/util"
)

type sentMessage struct {
	ChatID int64
	Text   string
	Kind   string // "text", "photo", "document"
}

// fakeSender records outbound traffic and can be told to fail specific
// chats or media kinds.
type fakeSender struct {
	mu         sync.Mutex
	sent       []sentMessage
	nextID     int64
	failChats  map[int64]bool
	failPhotos bool
	failDocs   bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{failChats: map[int64]bool{}}
}

func (f *fakeSender) deliver(chatID int64, text, kind string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failChats[chatID] {
		return 0, apperrors.NewDeliveryFailure(nil)
	}
	if kind == "photo" && f.failPhotos {
		return 0, apperrors.NewDeliveryFailure(nil)
	}
	if kind == "document" && f.failDocs {
		return 0, apperrors.NewDeliveryFailure(nil)
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text, Kind: kind})
	return f.nextID, nil
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID int64, text string, opts *platform.SendOptions) (int64, error) {
	return f.deliver(chatID, text, "text")
}

func (f *fakeSender) SendPhoto(ctx context.Context, chatID int64, fileRef, caption string, opts *platform.SendOptions) (int64, error) {
	return f.deliver(chatID, caption, "photo")
}

func (f *fakeSender) SendDocument(ctx context.Context, chatID int64, fileRef, caption string, opts *platform.SendOptions) (int64, error) {
	return f.deliver(chatID, caption, "document")
}

func (f *fakeSender) EditMessageText(ctx context.Context, chatID, messageID int64, text string, opts *platform.SendOptions) error {
	_, err := f.deliver(chatID, text, "edit")
	return err
}

func (f *fakeSender) AnswerCallback(ctx context.Context, callbackID string) error {
	return nil
}

func (f *fakeSender) sentTo(chatID int64) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

type recordedRef struct {
	ChatID    int64
	MessageID int64
	TicketID  string
}

type fakeCorrelator struct {
	mu   sync.Mutex
	refs []recordedRef
}

func (f *fakeCorrelator) Remember(chatID, messageID int64, ticketID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs = append(f.refs, recordedRef{ChatID: chatID, MessageID: messageID, TicketID: ticketID})
}

var testAdmins = []int64{900, 901}

func newTestService(t *testing.T, sender *fakeSender) (*Service, store.TicketStore) {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	notifier := NewNotifier(sender, testAdmins, &fakeCorrelator{}, zap.NewNop())
	svc := NewService(Dependencies{
		Store:    st,
		Notifier: notifier,
		Logger:   zap.NewNop(),
		Now:      func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	return svc, st
}

func requester(id int64) domain.Requester {
	return domain.Requester{ExternalID: id, DisplayName: "Client", Handle: "@client"}
}

func TestCreateAssignsSequentialIDsAndNotifies(t *testing.T) {
	ctx := context.Background()
	sender := newFakeSender()
	svc, _ := newTestService(t, sender)

	first, updated, err := svc.Create(ctx, CreateInput{
		Requester: requester(1), Category: domain.CategorySupport, Body: "my transfer failed",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if updated {
		t.Fatal("first message reported as update")
	}
	if first.ID != "FP-SUP-00001" {
		t.Fatalf("first id = %q", first.ID)
	}
	if first.Priority != domain.TicketPriorityHigh {
		t.Fatalf("priority = %q, want HIGH", first.Priority)
	}

	second, _, err := svc.Create(ctx, CreateInput{
		Requester: requester(2), Category: domain.CategorySupport, Body: "just a question",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if second.ID != "FP-SUP-00002" {
		t.Fatalf("second id = %q", second.ID)
	}
	if second.Priority != domain.TicketPriorityLow {
		t.Fatalf("priority = %q, want LOW", second.Priority)
	}

	// Both admin channels got a notice per ticket; origin refs were
	// remembered for each successful delivery.
	for _, admin := range testAdmins {
		if got := len(sender.sentTo(admin)); got != 2 {
			t.Fatalf("admin %d received %d notices, want 2", admin, got)
		}
	}
	if len(first.OriginMessages) != len(testAdmins) {
		t.Fatalf("origin refs = %d, want %d", len(first.OriginMessages), len(testAdmins))
	}

	// Requester got exactly one acknowledgment carrying the id.
	acks := sender.sentTo(1)
	if len(acks) != 1 || !strings.Contains(acks[0].Text, first.ID) {
		t.Fatalf("requester ack = %v", acks)
	}
}

func TestCreateQuotedFollowupAppendsToOpenTicket(t *testing.T) {
	ctx := context.Background()
	sender := newFakeSender()
	svc, _ := newTestService(t, sender)

	original, _, err := svc.Create(ctx, CreateInput{
		Requester: requester(1), Category: domain.CategorySupport, Body: "first report",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updatedTicket, updated, err := svc.Create(ctx, CreateInput{
		Requester:     requester(1),
		Category:      domain.CategoryClientUpdate,
		Body:          "more details",
		ReplyTargetID: original.ID,
	})
	if err != nil {
		t.Fatalf("Create follow-up: %v", err)
	}
	if !updated {
		t.Fatal("follow-up did not merge into existing ticket")
	}
	if updatedTicket.ID != original.ID {
		t.Fatalf("follow-up opened %q instead of updating %q", updatedTicket.ID, original.ID)
	}
	if !strings.Contains(updatedTicket.Body, "first report") || !strings.Contains(updatedTicket.Body, "more details") {
		t.Fatalf("merged body = %q", updatedTicket.Body)
	}
	if updatedTicket.Status.Code != domain.StatusUpdatedByClient {
		t.Fatalf("status = %q", updatedTicket.Status.Code)
	}
}

func TestCreateQuotedFollowupWrongOwnerOpensNewTicket(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, newFakeSender())

	original, _, _ := svc.Create(ctx, CreateInput{
		Requester: requester(1), Category: domain.CategorySupport, Body: "owner one",
	})

	stranger, updated, err := svc.Create(ctx, CreateInput{
		Requester:     requester(2),
		Category:      domain.CategoryClientUpdate,
		Body:          "hijack attempt",
		ReplyTargetID: original.ID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if updated {
		t.Fatal("another requester's quote merged into a foreign ticket")
	}
	if stranger.ID == original.ID {
		t.Fatal("stranger reused the original ticket")
	}
}

func TestCreateQuotedFollowupClosedTargetOpensNewTicket(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, newFakeSender())

	original, _, _ := svc.Create(ctx, CreateInput{
		Requester: requester(1), Category: domain.CategorySupport, Body: "soon closed",
	})
	if _, err := svc.Close(ctx, original.ID, "admin:900"); err != nil {
		t.Fatalf("Close: %v", err)
	}

	followUp, updated, err := svc.Create(ctx, CreateInput{
		Requester:     requester(1),
		Category:      domain.CategoryClientUpdate,
		Body:          "it broke again",
		ReplyTargetID: original.ID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if updated {
		t.Fatal("quote of a closed ticket was merged")
	}
	if followUp.ID == original.ID {
		t.Fatal("closed ticket absorbed follow-up")
	}
}

func TestCreateSurvivesPartialAdminFanoutFailure(t *testing.T) {
	ctx := context.Background()
	sender := newFakeSender()
	sender.failChats[testAdmins[0]] = true
	svc, st := newTestService(t, sender)

	created, _, err := svc.Create(ctx, CreateInput{
		Requester: requester(1), Category: domain.CategorySupport, Body: "still must exist",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := st.Get(ctx, created.ID); err != nil {
		t.Fatalf("ticket missing after fan-out failure: %v", err)
	}
	if len(created.OriginMessages) != 1 {
		t.Fatalf("origin refs = %d, want 1 (one admin unreachable)", len(created.OriginMessages))
	}
	if created.OriginMessages[0].ChatID != testAdmins[1] {
		t.Fatalf("origin chat = %d, want %d", created.OriginMessages[0].ChatID, testAdmins[1])
	}
}

func TestCreateAttachmentFallsBackToText(t *testing.T) {
	ctx := context.Background()
	sender := newFakeSender()
	sender.failPhotos = true
	sender.failDocs = true
	svc, _ := newTestService(t, sender)

	created, _, err := svc.Create(ctx, CreateInput{
		Requester: requester(1),
		Category:  domain.CategorySupportPhoto,
		Body:      "see screenshot",
		Attachment: &domain.Attachment{
			FileRef: "file-1", Kind: domain.AttachmentPhoto, FileName: "photo", Caption: "see screenshot",
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	notices := sender.sentTo(testAdmins[0])
	if len(notices) != 1 || notices[0].Kind != "text" {
		t.Fatalf("admin notices = %v, want single text fallback", notices)
	}
	if !strings.Contains(notices[0].Text, created.ID) {
		t.Fatalf("fallback notice lost ticket id: %q", notices[0].Text)
	}
}

func TestDeleteRemovesForever(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, newFakeSender())

	created, _, _ := svc.Create(ctx, CreateInput{
		Requester: requester(1), Category: domain.CategorySupport, Body: "temporary",
	})

	removed, err := svc.Delete(ctx, created.ID, "admin:900")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !removed {
		t.Fatal("Delete reported not removed")
	}
	if _, err := svc.FindByID(ctx, created.ID); !apperrors.IsNotFound(err) {
		t.Fatalf("FindByID after delete = %v, want not found", err)
	}

	removed, err = svc.Delete(ctx, created.ID, "admin:900")
	if err != nil || removed {
		t.Fatalf("repeat Delete = (%v, %v), want (false, nil)", removed, err)
	}
}

func TestResolveClientConfirmation(t *testing.T) {
	ctx := context.Background()
	sender := newFakeSender()
	svc, _ := newTestService(t, sender)

	created, _, _ := svc.Create(ctx, CreateInput{
		Requester: requester(1), Category: domain.CategorySupport, Body: "almost done",
	})

	closed, err := svc.ResolveClientConfirmation(ctx, created.ID, true)
	if err != nil {
		t.Fatalf("confirm yes: %v", err)
	}
	if closed.Status.Code != domain.StatusClosedConfirmed {
		t.Fatalf("status after yes = %q", closed.Status.Code)
	}

	reopened, err := svc.ResolveClientConfirmation(ctx, created.ID, false)
	if err != nil {
		t.Fatalf("confirm no: %v", err)
	}
	if reopened.Status.Code != domain.StatusReopened {
		t.Fatalf("status after no = %q", reopened.Status.Code)
	}
	if !reopened.Status.IsOpenLike() {
		t.Fatal("reopened ticket not open-like")
	}

	// The rejection re-alerted the admin channels.
	var found bool
	for _, m := range sender.sentTo(testAdmins[0]) {
		if strings.Contains(m.Text, "reopened") {
			found = true
		}
	}
	if !found {
		t.Fatal("no reopened notice reached admins")
	}
}

func TestFindByRequesterAndIDHidesForeignTickets(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, newFakeSender())

	created, _, _ := svc.Create(ctx, CreateInput{
		Requester: requester(1), Category: domain.CategorySupport, Body: "mine",
	})

	if _, err := svc.FindByRequesterAndID(ctx, 1, created.ID); err != nil {
		t.Fatalf("owner lookup: %v", err)
	}
	if _, err := svc.FindByRequesterAndID(ctx, 2, created.ID); !apperrors.IsNotFound(err) {
		t.Fatalf("foreign lookup = %v, want not found", err)
	}
}

func TestSearchAndListOpen(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, newFakeSender())

	a, _, _ := svc.Create(ctx, CreateInput{
		Requester: requester(1), Category: domain.CategorySupport, Body: "wallet stuck",
	})
	b, _, _ := svc.Create(ctx, CreateInput{
		Requester: requester(2), Category: domain.CategorySupport, Body: "key invalid",
	})
	if _, err := svc.Close(ctx, a.ID, "admin:900"); err != nil {
		t.Fatalf("Close: %v", err)
	}

	open, err := svc.ListOpen(ctx)
	if err != nil {
		t.Fatalf("ListOpen: %v", err)
	}
	if len(open) != 1 || open[0].ID != b.ID {
		t.Fatalf("open list = %v", open)
	}

	hits, err := svc.Search(ctx, "WALLET")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != a.ID {
		t.Fatalf("search hits = %v", hits)
	}

	stats, err := svc.DashboardStats(ctx)
	if err != nil {
		t.Fatalf("DashboardStats: %v", err)
	}
	if stats.Total != 2 || stats.OpenLike != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestConcurrentNotesAllRecorded(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, newFakeSender())

	created, _, err := svc.Create(ctx, CreateInput{
		Requester: requester(1), Category: domain.CategorySupport, Body: "need help",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const workers = 8
	const perWorker = 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(admin int64) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := svc.AddNote(ctx, created.ID, admin, "checking in"); err != nil {
					panic(err)
				}
			}
		}(testAdmins[w%len(testAdmins)])
	}
	wg.Wait()

	got, err := svc.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if len(got.Notes) != workers*perWorker {
		t.Fatalf("notes = %d, want %d (lost appends)", len(got.Notes), workers*perWorker)
	}
	// One history entry per note plus the creation record.
	if len(got.History) != workers*perWorker+1 {
		t.Fatalf("history = %d, want %d", len(got.History), workers*perWorker+1)
	}
}
