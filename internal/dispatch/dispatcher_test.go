package dispatch

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/flashproto/support-bot/internal/classify"
	"github.com/flashproto/support-bot/internal/config"
	"github.com/flashproto/support-bot/internal/domain"
	"github.com/flashproto/support-bot/internal/observability"
	"github.com/flashproto/support-bot/internal/platform"
	"github.com/flashproto/support-bot/internal/reply"
	"github.com/flashproto/support-bot/internal/store"
	"github.com/flashproto/support-bot/internal/texts"
	"github.com/flashproto/support-bot/internal/ticket"
	apperrors "github.com/flashproto/support-bot/pkg/util"
)

const (
	adminChatID = int64(900)
	clientID    = int64(42)
)

type outbound struct {
	ChatID int64
	Text   string
}

type stubSender struct {
	sent      []outbound
	nextID    int64
	failChats map[int64]bool
}

func newStubSender() *stubSender {
	return &stubSender{failChats: map[int64]bool{}}
}

func (s *stubSender) SendMessage(ctx context.Context, chatID int64, text string, opts *platform.SendOptions) (int64, error) {
	if s.failChats[chatID] {
		return 0, apperrors.NewDeliveryFailure(nil)
	}
	s.nextID++
	s.sent = append(s.sent, outbound{ChatID: chatID, Text: text})
	return s.nextID, nil
}

func (s *stubSender) SendPhoto(ctx context.Context, chatID int64, fileRef, caption string, opts *platform.SendOptions) (int64, error) {
	return s.SendMessage(ctx, chatID, caption, opts)
}

func (s *stubSender) SendDocument(ctx context.Context, chatID int64, fileRef, caption string, opts *platform.SendOptions) (int64, error) {
	return s.SendMessage(ctx, chatID, caption, opts)
}

func (s *stubSender) EditMessageText(ctx context.Context, chatID, messageID int64, text string, opts *platform.SendOptions) error {
	_, err := s.SendMessage(ctx, chatID, text, opts)
	return err
}

func (s *stubSender) AnswerCallback(ctx context.Context, callbackID string) error {
	return nil
}

func (s *stubSender) textsTo(chatID int64) []string {
	var out []string
	for _, m := range s.sent {
		if m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

func (s *stubSender) lastTo(chatID int64) string {
	msgs := s.textsTo(chatID)
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

type fixture struct {
	dispatcher *Dispatcher
	sender     *stubSender
	store      store.TicketStore
	tickets    *ticket.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sender := newStubSender()

	st, err := store.NewFileStore(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	profile := &config.BotProfile{
		QuickReplies: map[string]string{"welcome": "Welcome aboard!"},
		FAQ: map[string]config.FAQNode{
			"faq_main": {Text: "Pick a topic", Buttons: []config.FAQButton{{Label: "Fees", Key: "faq_fees"}}},
			"faq_fees": {Text: "Fees are flat."},
		},
		PurchaseKeys: []string{"FP12-L3-250K-W05"},
	}
	bot := config.BotConfig{Token: "test", AdminChatIDs: []int64{adminChatID}}

	correlator := NewMessageCorrelator()
	notifier := ticket.NewNotifier(sender, bot.AdminChatIDs, correlator, zap.NewNop())
	ticketService := ticket.NewService(ticket.Dependencies{
		Store:    st,
		Notifier: notifier,
		Logger:   zap.NewNop(),
	})
	workflow := reply.NewWorkflow(reply.Dependencies{
		Store:  st,
		Sender: sender,
		Logger: zap.NewNop(),
	})

	dispatcher := NewDispatcher(Dependencies{
		Bot:      bot,
		Profile:  profile,
		Keys:     classify.NewKeySet(profile.PurchaseKeys),
		Tickets:  ticketService,
		Workflow: workflow,
		Pending:  reply.NewMemoryPending(),
		Sender:   sender,
		Correl:   correlator,
		Metrics:  observability.NewMetrics(),
		Logger:   zap.NewNop(),
	})
	return &fixture{dispatcher: dispatcher, sender: sender, store: st, tickets: ticketService}
}

func textUpdate(userID, chatID int64, text string) platform.Update {
	return platform.Update{
		UpdateID: 1,
		Message: &platform.Message{
			MessageID: 100,
			From:      &platform.User{ID: userID, FirstName: "Test"},
			Chat:      platform.Chat{ID: chatID},
			Text:      text,
		},
	}
}

func callbackUpdate(userID, chatID int64, data string) platform.Update {
	return platform.Update{
		UpdateID: 2,
		CallbackQuery: &platform.CallbackQuery{
			ID:      "cb-1",
			From:    &platform.User{ID: userID},
			Message: &platform.Message{MessageID: 200, Chat: platform.Chat{ID: chatID}},
			Data:    data,
		},
	}
}

func (f *fixture) openTicket(t *testing.T, requesterID int64, body string) *domain.Ticket {
	t.Helper()
	created, _, err := f.tickets.Create(context.Background(), ticket.CreateInput{
		Requester: domain.Requester{ExternalID: requesterID, DisplayName: "Client"},
		Category:  domain.CategorySupport,
		Body:      body,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.sender.sent = nil
	return created
}

func (f *fixture) ticketCount(t *testing.T) int {
	t.Helper()
	all, err := f.store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return len(all)
}

func TestAdminChatterIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.HandleUpdate(context.Background(), textUpdate(adminChatID, adminChatID, "morning everyone"))

	if n := f.ticketCount(t); n != 0 {
		t.Fatalf("admin chatter opened %d tickets", n)
	}
	if len(f.sender.sent) != 0 {
		t.Fatalf("admin chatter produced output: %v", f.sender.sent)
	}
}

func TestValidKeyOpensKeyCheckTicket(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.HandleUpdate(context.Background(), textUpdate(clientID, clientID, "fp12-l3-250k-w05"))

	all, _ := f.store.List(context.Background())
	if len(all) != 1 {
		t.Fatalf("tickets = %d, want 1", len(all))
	}
	created := all[0]
	if created.Category != domain.CategoryKeyCheck {
		t.Fatalf("category = %q", created.Category)
	}
	if created.Priority != domain.TicketPriorityMedium {
		t.Fatalf("priority = %q, want MEDIUM", created.Priority)
	}
	if !strings.Contains(created.Body, "FP12-L3-250K-W05") {
		t.Fatalf("body = %q, want normalized key", created.Body)
	}

	clientMsgs := f.sender.textsTo(clientID)
	if len(clientMsgs) < 2 {
		t.Fatalf("client got %d messages, want validity + ack", len(clientMsgs))
	}
	if !strings.Contains(clientMsgs[0], "FP12-L3-250K-W05") {
		t.Fatalf("validity message = %q", clientMsgs[0])
	}
	if admin := f.sender.textsTo(adminChatID); len(admin) != 1 {
		t.Fatalf("admin notices = %d, want 1", len(admin))
	}
}

func TestWalletAddressOpensWalletCheckTicket(t *testing.T) {
	f := newFixture(t)
	addr := "T" + strings.Repeat("x", 30)
	f.dispatcher.HandleUpdate(context.Background(), textUpdate(clientID, clientID, addr))

	all, _ := f.store.List(context.Background())
	if len(all) != 1 || all[0].Category != domain.CategoryWalletCheck {
		t.Fatalf("tickets = %v", all)
	}
}

func TestPlainTextOpensSupportTicket(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.HandleUpdate(context.Background(), textUpdate(clientID, clientID, "urgent: money problem"))

	all, _ := f.store.List(context.Background())
	if len(all) != 1 {
		t.Fatalf("tickets = %d", len(all))
	}
	if all[0].Category != domain.CategorySupport {
		t.Fatalf("category = %q", all[0].Category)
	}
	if all[0].Priority != domain.TicketPriorityHigh {
		t.Fatalf("priority = %q, want HIGH", all[0].Priority)
	}
}

func TestKeyboardLabelsAnswerWithoutTicket(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.HandleUpdate(context.Background(), textUpdate(clientID, clientID, texts.LabelSendKey))

	if n := f.ticketCount(t); n != 0 {
		t.Fatalf("label press opened %d tickets", n)
	}
	if got := f.sender.lastTo(clientID); got != texts.KeyPrompt {
		t.Fatalf("prompt = %q", got)
	}
}

func TestOpsCommandDeniedForClient(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.HandleUpdate(context.Background(), textUpdate(clientID, clientID, "/tickets"))

	if got := f.sender.lastTo(clientID); got != texts.AccessDenied {
		t.Fatalf("response = %q, want denial", got)
	}
}

func TestStatusCommandHidesForeignTicket(t *testing.T) {
	f := newFixture(t)
	created := f.openTicket(t, clientID, "mine")

	other := int64(7777)
	f.dispatcher.HandleUpdate(context.Background(), textUpdate(other, other, "/status "+created.ID))

	if got := f.sender.lastTo(other); got != texts.TicketNotFound {
		t.Fatalf("response = %q, want not-found text", got)
	}
}

func TestReplyFlowThroughPendingTarget(t *testing.T) {
	f := newFixture(t)
	created := f.openTicket(t, clientID, "broken")
	ctx := context.Background()

	// /reply arms the target; the next admin text becomes the staged
	// reply; the confirm button dispatches it.
	f.dispatcher.HandleUpdate(ctx, textUpdate(adminChatID, adminChatID, "/reply "+created.ID))
	f.dispatcher.HandleUpdate(ctx, textUpdate(adminChatID, adminChatID, "try restarting"))

	staged, _ := f.store.Get(ctx, created.ID)
	if staged.PendingReply != "try restarting" {
		t.Fatalf("pending reply = %q", staged.PendingReply)
	}
	if got := f.sender.textsTo(clientID); len(got) != 0 {
		t.Fatalf("client reached before confirm: %v", got)
	}

	f.dispatcher.HandleUpdate(ctx, callbackUpdate(adminChatID, adminChatID, texts.ActionReplyConfirm+":"+created.ID))

	clientMsgs := f.sender.textsTo(clientID)
	if len(clientMsgs) != 1 || !strings.Contains(clientMsgs[0], "try restarting") {
		t.Fatalf("client messages = %v", clientMsgs)
	}
	after, _ := f.store.Get(ctx, created.ID)
	if after.Status.Code != domain.StatusAwaitingClient {
		t.Fatalf("status = %q", after.Status.Code)
	}
}

func TestQuotedAdminReplyStagesAgainstCorrelatedTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Creating through the dispatcher records the admin-notice message
	// ids in the correlator.
	f.dispatcher.HandleUpdate(ctx, textUpdate(clientID, clientID, "something odd"))
	all, _ := f.store.List(ctx)
	if len(all) != 1 {
		t.Fatalf("tickets = %d", len(all))
	}
	created := all[0]
	if len(created.OriginMessages) != 1 {
		t.Fatalf("origin refs = %d", len(created.OriginMessages))
	}
	notice := created.OriginMessages[0]
	f.sender.sent = nil

	update := textUpdate(adminChatID, adminChatID, "checking now")
	update.Message.ReplyTo = &platform.Message{
		MessageID: notice.MessageID,
		Chat:      platform.Chat{ID: notice.ChatID},
		Text:      "unrelated notice text",
	}
	f.dispatcher.HandleUpdate(ctx, update)

	staged, _ := f.store.Get(ctx, created.ID)
	if staged.PendingReply != "checking now" {
		t.Fatalf("pending reply = %q", staged.PendingReply)
	}
}

func TestQuickReplyCallbackBypassesStaging(t *testing.T) {
	f := newFixture(t)
	created := f.openTicket(t, clientID, "greeting please")
	ctx := context.Background()

	data := fmt.Sprintf("%s:%s:welcome", texts.ActionQRExec, created.ID)
	f.dispatcher.HandleUpdate(ctx, callbackUpdate(adminChatID, adminChatID, data))

	clientMsgs := f.sender.textsTo(clientID)
	if len(clientMsgs) != 1 || !strings.Contains(clientMsgs[0], "Welcome aboard!") {
		t.Fatalf("client messages = %v", clientMsgs)
	}
	after, _ := f.store.Get(ctx, created.ID)
	if after.PendingReply != "" {
		t.Fatalf("quick reply staged text: %q", after.PendingReply)
	}
}

func TestClientConfirmNoReopensAndRenotifies(t *testing.T) {
	f := newFixture(t)
	created := f.openTicket(t, clientID, "not fixed")
	ctx := context.Background()

	f.dispatcher.HandleUpdate(ctx, callbackUpdate(clientID, clientID, texts.ActionConfirmNo+":"+created.ID))

	after, _ := f.store.Get(ctx, created.ID)
	if after.Status.Code != domain.StatusReopened {
		t.Fatalf("status = %q", after.Status.Code)
	}
	if got := f.sender.lastTo(clientID); !strings.Contains(got, "reopened") {
		t.Fatalf("client response = %q", got)
	}
	var renotified bool
	for _, text := range f.sender.textsTo(adminChatID) {
		if strings.Contains(text, "reopened") {
			renotified = true
		}
	}
	if !renotified {
		t.Fatal("admins not renotified about the reopen")
	}
}

func TestClientCannotAnswerForeignConfirmation(t *testing.T) {
	f := newFixture(t)
	created := f.openTicket(t, clientID, "private")
	ctx := context.Background()

	other := int64(7777)
	f.dispatcher.HandleUpdate(ctx, callbackUpdate(other, other, texts.ActionConfirmYes+":"+created.ID))

	after, _ := f.store.Get(ctx, created.ID)
	if after.Status.IsClosed() {
		t.Fatal("foreign confirmation closed the ticket")
	}
	if got := f.sender.lastTo(other); got != texts.TicketNotFound {
		t.Fatalf("response = %q, want not-found text", got)
	}
}

func TestStaleCallbackReportsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.dispatcher.HandleUpdate(ctx, callbackUpdate(adminChatID, adminChatID, texts.ActionTicketView+":FP-SUP-09999"))

	if got := f.sender.lastTo(adminChatID); got != texts.TicketNotFound {
		t.Fatalf("response = %q, want not-found text", got)
	}
}

func TestMediaFromClientOpensTicket(t *testing.T) {
	f := newFixture(t)
	update := platform.Update{
		UpdateID: 3,
		Message: &platform.Message{
			MessageID: 300,
			From:      &platform.User{ID: clientID, FirstName: "Test"},
			Chat:      platform.Chat{ID: clientID},
			Photo:     []platform.PhotoSize{{FileID: "small"}, {FileID: "large"}},
			Caption:   "see attached",
		},
	}
	f.dispatcher.HandleUpdate(context.Background(), update)

	all, _ := f.store.List(context.Background())
	if len(all) != 1 {
		t.Fatalf("tickets = %d", len(all))
	}
	created := all[0]
	if created.Category != domain.CategorySupportPhoto {
		t.Fatalf("category = %q", created.Category)
	}
	if created.Attachment == nil || created.Attachment.FileRef != "large" {
		t.Fatalf("attachment = %+v, want largest photo", created.Attachment)
	}
}

func TestCorrelatorResolvesByMapAndPattern(t *testing.T) {
	c := NewMessageCorrelator()
	c.Remember(900, 10, "FP-SUP-00003")

	if id, ok := c.resolve(900, 10, ""); !ok || id != "FP-SUP-00003" {
		t.Fatalf("map resolve = (%q, %v)", id, ok)
	}
	if id, ok := c.resolve(900, 99, "New ticket FP-SUP-00044 from client"); !ok || id != "FP-SUP-00044" {
		t.Fatalf("pattern resolve = (%q, %v)", id, ok)
	}
	if _, ok := c.resolve(900, 99, "no id here"); ok {
		t.Fatal("resolved from text without an id")
	}

	c.Forget("FP-SUP-00003")
	if _, ok := c.resolve(900, 10, ""); ok {
		t.Fatal("forgotten ref still resolves")
	}
}
