package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarpost/paperbot/internal/domain"
	"github.com/scholarpost/paperbot/internal/observability"
	"github.com/scholarpost/paperbot/internal/ratelimit"
	"github.com/scholarpost/paperbot/internal/repository"
	"github.com/scholarpost/paperbot/internal/search"
)

// sentMessage records one outbound gateway call.
type sentMessage struct {
	kind     string // "text", "edit", "delete", "document"
	chatID   int64
	id       int64
	text     string
	keyboard *Keyboard
}

// fakeGateway records outbound operations and hands out sequential ids.
type fakeGateway struct {
	mu     sync.Mutex
	nextID int64
	sent   []sentMessage

	sendErr     error
	documentErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{}
}

func (g *fakeGateway) SendText(_ context.Context, chatID int64, text string, kb *Keyboard) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return 0, g.sendErr
	}
	g.nextID++
	g.sent = append(g.sent, sentMessage{kind: "text", chatID: chatID, id: g.nextID, text: text, keyboard: kb})
	return g.nextID, nil
}

func (g *fakeGateway) EditText(_ context.Context, chatID, messageID int64, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sentMessage{kind: "edit", chatID: chatID, id: messageID, text: text})
	return nil
}

func (g *fakeGateway) DeleteMessage(_ context.Context, chatID, messageID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sentMessage{kind: "delete", chatID: chatID, id: messageID})
	return nil
}

func (g *fakeGateway) SendDocument(_ context.Context, chatID int64, url, filename, caption string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.documentErr != nil {
		return 0, g.documentErr
	}
	g.nextID++
	g.sent = append(g.sent, sentMessage{kind: "document", chatID: chatID, id: g.nextID, text: url})
	return g.nextID, nil
}

// texts returns the text payloads of all sent text messages.
func (g *fakeGateway) texts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, m := range g.sent {
		if m.kind == "text" {
			out = append(out, m.text)
		}
	}
	return out
}

func (g *fakeGateway) containsText(substr string) bool {
	for _, t := range g.texts() {
		if strings.Contains(t, substr) {
			return true
		}
	}
	return false
}

// lastKeyboardMessage returns the most recent text message carrying an
// inline keyboard.
func (g *fakeGateway) lastKeyboardMessage() (sentMessage, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.sent) - 1; i >= 0; i-- {
		m := g.sent[i]
		if m.kind == "text" && m.keyboard != nil && m.keyboard.Inline {
			return m, true
		}
	}
	return sentMessage{}, false
}

func (g *fakeGateway) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = nil
}

// fakeSearcher serves a fixed corpus, truncated to MaxResults per call.
type fakeSearcher struct {
	mu        sync.Mutex
	total     int
	probeSize int64
	probeErr  error
	err       error
	calls     []int // MaxResults per call
}

func (f *fakeSearcher) Search(_ context.Context, params search.Params) (*search.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, params.MaxResults)
	if f.err != nil {
		return nil, f.err
	}

	n := params.MaxResults
	if n > f.total {
		n = f.total
	}
	papers := make([]*domain.Paper, 0, n)
	for i := 0; i < n; i++ {
		papers = append(papers, &domain.Paper{
			Title:         fmt.Sprintf("Paper %d", i+1),
			CanonicalLink: fmt.Sprintf("https://arxiv.org/abs/2401.%05d", i+1),
			PDFURL:        fmt.Sprintf("https://arxiv.org/pdf/2401.%05d", i+1),
			Abstract:      "An abstract.",
		})
	}
	return &search.Result{Papers: papers, TotalResults: f.total}, nil
}

func (f *fakeSearcher) ProbeSize(_ context.Context, _ string) (int64, error) {
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	return f.probeSize, nil
}

type orchestratorFixture struct {
	orch     *Orchestrator
	gateway  *fakeGateway
	searcher *fakeSearcher
	sessions *repository.MemorySessionRepository
	usage    *repository.MemoryUsageRepository
}

func newFixture(t *testing.T, cfg Config) *orchestratorFixture {
	t.Helper()

	gw := newFakeGateway()
	searcher := &fakeSearcher{total: 25, probeSize: 1 << 20}
	sessions := repository.NewMemorySessionRepository()
	usage := repository.NewMemoryUsageRepository()
	limiter := ratelimit.New(ratelimit.DefaultRequests, ratelimit.DefaultWindow)
	metrics := observability.NewMetrics("paperbot_test_" + sanitizeMetricName(t.Name()))

	orch := NewOrchestrator(cfg, sessions, usage, searcher, limiter, gw, metrics, zerolog.Nop())
	t.Cleanup(orch.Stop)

	return &orchestratorFixture{
		orch:     orch,
		gateway:  gw,
		searcher: searcher,
		sessions: sessions,
		usage:    usage,
	}
}

// sanitizeMetricName keeps per-test metric namespaces unique and legal so
// promauto's default-registry registration does not collide across tests.
func sanitizeMetricName(name string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, name)
}

func (f *orchestratorFixture) session(t *testing.T, userID int64) *domain.Session {
	t.Helper()
	s, err := f.sessions.Load(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, s.Invariant())
	return s
}

func TestOrchestrator_SearchFlow(t *testing.T) {
	t.Run("free text runs a search and presents first page", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: time.Hour})
		ctx := context.Background()

		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "deep learning"})

		session := f.session(t, 1)
		assert.Equal(t, "deep learning", session.ActiveQuery)
		assert.Equal(t, 0, session.CurrentPage)
		assert.Equal(t, domain.StateIdle, session.State)
		assert.True(t, session.LoadMoreArmed())

		// Over-fetch: one page beyond the first.
		require.NotEmpty(t, f.searcher.calls)
		assert.Equal(t, 10, f.searcher.calls[0])

		assert.True(t, f.gateway.containsText("Found 5 papers"))
		assert.True(t, f.gateway.containsText("Paper 1"))
		assert.True(t, f.gateway.containsText("Paper 5"))
		assert.False(t, f.gateway.containsText("Paper 6"))

		last, ok := f.gateway.lastKeyboardMessage()
		require.True(t, ok)
		assert.True(t, session.MatchesLoadMoreRef(last.id))
	})

	t.Run("search button prompts for keywords", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: time.Hour})
		ctx := context.Background()

		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: LabelSearch})

		session := f.session(t, 1)
		assert.Equal(t, domain.StateAwaitingQuery, session.State)
		assert.True(t, f.gateway.containsText("enter your search keywords"))
	})

	t.Run("no results replies without arming", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: time.Hour})
		f.searcher.total = 0
		ctx := context.Background()

		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "nonexistence"})

		session := f.session(t, 1)
		assert.False(t, session.LoadMoreArmed())
		assert.True(t, f.gateway.containsText("No papers found"))
	})

	t.Run("search failure is mapped to its user message", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: time.Hour})
		f.searcher.err = domain.NewSearchError(domain.SearchErrTimeout, "arXiv", 0, context.DeadlineExceeded)
		ctx := context.Background()

		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "quantum"})

		assert.True(t, f.gateway.containsText("timed out"))
		session := f.session(t, 1)
		assert.False(t, session.LoadMoreArmed())
	})

	t.Run("rate limited query is rejected without a search", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: time.Hour})
		ctx := context.Background()

		for i := 0; i < ratelimit.DefaultRequests; i++ {
			f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "topic"})
		}
		callsBefore := len(f.searcher.calls)
		f.gateway.reset()

		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "topic"})

		assert.True(t, f.gateway.containsText("too quickly"))
		assert.Len(t, f.searcher.calls, callsBefore)
		require.True(t, f.session(t, 1).Invariant())
	})

	t.Run("search ledger entry is appended per search", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: time.Hour})
		ctx := context.Background()

		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "deep learning"})

		count, err := f.usage.CountSince(ctx, 1, domain.UsageKindSearch, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestOrchestrator_LoadMore(t *testing.T) {
	t.Run("advances one page and re-arms", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: time.Hour})
		ctx := context.Background()

		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "deep learning"})
		affordance, ok := f.gateway.lastKeyboardMessage()
		require.True(t, ok)
		f.gateway.reset()

		f.orch.HandleButton(ctx, ButtonPress{UserID: 1, ChatID: 10, MessageID: affordance.id, ButtonID: ButtonLoadMore})

		session := f.session(t, 1)
		assert.Equal(t, 1, session.CurrentPage)
		assert.True(t, session.LoadMoreArmed())
		assert.False(t, session.MatchesLoadMoreRef(affordance.id))

		assert.True(t, f.gateway.containsText("Paper 6"))
		assert.True(t, f.gateway.containsText("Paper 10"))
		assert.False(t, f.gateway.containsText("Paper 11"))

		// Ceiling covers the page after next.
		assert.Equal(t, 15, f.searcher.calls[len(f.searcher.calls)-1])
	})

	t.Run("stale replay is rejected without advancing", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: time.Hour})
		ctx := context.Background()

		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "deep learning"})
		affordance, ok := f.gateway.lastKeyboardMessage()
		require.True(t, ok)

		f.orch.HandleButton(ctx, ButtonPress{UserID: 1, ChatID: 10, MessageID: affordance.id, ButtonID: ButtonLoadMore})
		require.Equal(t, 1, f.session(t, 1).CurrentPage)
		f.gateway.reset()

		// Same press again: the recorded affordance has moved on.
		f.orch.HandleButton(ctx, ButtonPress{UserID: 1, ChatID: 10, MessageID: affordance.id, ButtonID: ButtonLoadMore})

		assert.Equal(t, 1, f.session(t, 1).CurrentPage)
		assert.True(t, f.gateway.containsText("expired"))
	})

	t.Run("load more without an active query is expired", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: time.Hour})
		ctx := context.Background()

		f.orch.HandleButton(ctx, ButtonPress{UserID: 1, ChatID: 10, MessageID: 42, ButtonID: ButtonLoadMore})

		assert.True(t, f.gateway.containsText("expired"))
		assert.Equal(t, 0, f.session(t, 1).CurrentPage)
	})

	t.Run("provider exhausted reports no more papers", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: time.Hour})
		f.searcher.total = 5
		ctx := context.Background()

		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "deep learning"})

		// Exactly one page exists, so no affordance was armed.
		session := f.session(t, 1)
		assert.False(t, session.LoadMoreArmed())
	})
}

func TestOrchestrator_Reminder(t *testing.T) {
	t.Run("fires after inactivity and clears the affordance", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: 50 * time.Millisecond})
		ctx := context.Background()

		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "deep learning"})
		require.True(t, f.session(t, 1).LoadMoreArmed())

		assert.Eventually(t, func() bool {
			return f.gateway.containsText("Still interested")
		}, 2*time.Second, 10*time.Millisecond)

		session := f.session(t, 1)
		assert.False(t, session.LoadMoreArmed())
		assert.Equal(t, 0, session.CurrentPage)
	})

	t.Run("new search supersedes a pending reminder", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: 100 * time.Millisecond})
		ctx := context.Background()

		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "first topic"})
		f.searcher.mu.Lock()
		f.searcher.total = 3 // second search yields a single page
		f.searcher.mu.Unlock()
		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "second topic"})

		time.Sleep(300 * time.Millisecond)
		assert.False(t, f.gateway.containsText("Still interested"))
	})
}

func TestOrchestrator_Download(t *testing.T) {
	download := func(n int) string { return fmt.Sprintf("%s%d", ButtonDownloadPrefix, n) }

	t.Run("delivers the document and records usage", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: time.Hour})
		f.searcher.probeSize = 2 << 20
		ctx := context.Background()

		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "deep learning"})
		f.orch.HandleButton(ctx, ButtonPress{UserID: 1, ChatID: 10, ButtonID: download(3)})

		var docs int
		for _, m := range f.gateway.sent {
			if m.kind == "document" {
				docs++
				assert.Contains(t, m.text, "2401.00003")
			}
		}
		assert.Equal(t, 1, docs)

		used, err := f.usage.BytesUsedSince(ctx, 1, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, int64(2<<20), used)
	})

	t.Run("rejects out-of-range index without a provider call", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: time.Hour})
		ctx := context.Background()

		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "deep learning"})
		calls := len(f.searcher.calls)
		f.gateway.reset()

		f.orch.HandleButton(ctx, ButtonPress{UserID: 1, ChatID: 10, ButtonID: download(9999)})

		assert.Len(t, f.searcher.calls, calls)
		assert.True(t, f.gateway.containsText("expired"))
	})

	t.Run("rejects when quota is spent and writes no ledger row", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: time.Hour, DailyQuotaBytes: 2048 << 20})
		ctx := context.Background()

		require.NoError(t, f.usage.Record(ctx, domain.NewDownloadRecord(1, "https://arxiv.org/pdf/x", 2048<<20)))

		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "deep learning"})
		f.orch.HandleButton(ctx, ButtonPress{UserID: 1, ChatID: 10, ButtonID: download(1)})

		assert.True(t, f.gateway.containsText("daily download limit"))
		count, err := f.usage.CountSince(ctx, 1, domain.UsageKindDownload, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("download that crosses the threshold succeeds and blocks the next", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: time.Hour, DailyQuotaBytes: 2048 << 20})
		f.searcher.probeSize = 1 << 20
		ctx := context.Background()

		require.NoError(t, f.usage.Record(ctx, domain.NewDownloadRecord(1, "https://arxiv.org/pdf/x", 2047<<20)))

		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "deep learning"})
		f.orch.HandleButton(ctx, ButtonPress{UserID: 1, ChatID: 10, ButtonID: download(1)})

		used, err := f.usage.BytesUsedSince(ctx, 1, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, int64(2048<<20), used)

		f.gateway.reset()
		f.orch.HandleButton(ctx, ButtonPress{UserID: 1, ChatID: 10, ButtonID: download(2)})
		assert.True(t, f.gateway.containsText("daily download limit"))
	})

	t.Run("probe failure surfaces the provider-specific message", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: time.Hour})
		ctx := context.Background()

		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "deep learning"})
		f.gateway.reset()
		f.searcher.probeErr = domain.NewSearchError(domain.SearchErrTimeout, "arXiv", 0,
			errors.New("head request timed out"))

		f.orch.HandleButton(ctx, ButtonPress{UserID: 1, ChatID: 10, ButtonID: download(1)})

		assert.True(t, f.gateway.containsText("timed out"))
		assert.False(t, f.gateway.containsText(msgGenericFailure))
	})

	t.Run("oversized file is rejected", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: time.Hour, MaxSingleFileBytes: 100 << 20})
		f.searcher.probeSize = 200 << 20
		ctx := context.Background()

		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "deep learning"})
		f.orch.HandleButton(ctx, ButtonPress{UserID: 1, ChatID: 10, ButtonID: download(1)})

		assert.True(t, f.gateway.containsText("download limit"))
		used, err := f.usage.BytesUsedSince(ctx, 1, time.Time{})
		require.NoError(t, err)
		assert.Zero(t, used)
	})

	t.Run("file above the platform ceiling is offered as a link", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: time.Hour})
		f.searcher.probeSize = 50 << 20 // between 20 MB platform ceiling and 100 MB cap
		ctx := context.Background()

		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "deep learning"})
		f.gateway.reset()
		f.orch.HandleButton(ctx, ButtonPress{UserID: 1, ChatID: 10, ButtonID: download(1)})

		assert.True(t, f.gateway.containsText("arxiv.org/abs/2401.00001"))
		used, err := f.usage.BytesUsedSince(ctx, 1, time.Time{})
		require.NoError(t, err)
		assert.Zero(t, used)
	})

	t.Run("failed send writes no ledger row", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: time.Hour})
		ctx := context.Background()

		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "deep learning"})
		f.gateway.documentErr = fmt.Errorf("network unreachable")

		f.orch.HandleButton(ctx, ButtonPress{UserID: 1, ChatID: 10, ButtonID: download(1)})

		count, err := f.usage.CountSince(ctx, 1, domain.UsageKindDownload, time.Time{})
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestOrchestrator_Concurrency(t *testing.T) {
	t.Run("same-user events stay serialized", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: time.Hour})
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: fmt.Sprintf("topic %d", i)})
			}(i)
		}
		wg.Wait()

		session := f.session(t, 1)
		assert.True(t, session.Invariant())
		assert.Equal(t, 0, session.CurrentPage)
	})

	t.Run("different users run independently", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: time.Hour})
		ctx := context.Background()

		var wg sync.WaitGroup
		for u := int64(1); u <= 20; u++ {
			wg.Add(1)
			go func(u int64) {
				defer wg.Done()
				f.orch.HandleText(ctx, TextMessage{UserID: u, ChatID: u * 10, Text: "topic"})
			}(u)
		}
		wg.Wait()

		for u := int64(1); u <= 20; u++ {
			assert.True(t, f.session(t, u).Invariant())
		}
	})
}

func TestOrchestrator_MembershipChange(t *testing.T) {
	t.Run("blocking drops the pending reminder", func(t *testing.T) {
		f := newFixture(t, Config{LoadMoreTimeout: 100 * time.Millisecond})
		ctx := context.Background()

		f.orch.HandleText(ctx, TextMessage{UserID: 1, ChatID: 10, Text: "deep learning"})
		f.gateway.reset()

		f.orch.HandleMembershipChange(ctx, MembershipChange{UserID: 1, NewStatus: "kicked"})

		time.Sleep(300 * time.Millisecond)
		assert.False(t, f.gateway.containsText("Still interested"))
	})
}

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "deep learning", "deep learning"},
		{"strips markup", "deep *learning* <b>now</b>", "deep learning bnow/b"},
		{"collapses whitespace", "  deep\t\nlearning  ", "deep learning"},
		{"control characters", "deep\x00learning", "deep learning"},
		{"empty after cleaning", " \t\n ", ""},
		{"bounded length", strings.Repeat("word ", 100), strings.TrimSpace(strings.Repeat("word ", 51))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeQuery(tt.in))
		})
	}

	t.Run("multi-byte rune straddling the cut stays valid", func(t *testing.T) {
		got := sanitizeQuery(strings.Repeat("a", 255) + "é" + strings.Repeat("b", 20))
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, strings.Repeat("a", 255), got)
	})
}
