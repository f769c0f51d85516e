package bot

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholarpost/paperbot/internal/domain"
	"github.com/scholarpost/paperbot/internal/observability"
	"github.com/scholarpost/paperbot/internal/pagination"
	"github.com/scholarpost/paperbot/internal/ratelimit"
	"github.com/scholarpost/paperbot/internal/repository"
	"github.com/scholarpost/paperbot/internal/scheduler"
	"github.com/scholarpost/paperbot/internal/search"
)

// Config holds the orchestrator's conversational limits.
type Config struct {
	// ResultsPerPage is how many papers one results page shows.
	ResultsPerPage int

	// LoadMoreTimeout is the inactivity delay before a reminder fires.
	LoadMoreTimeout time.Duration

	// DailyQuotaBytes is the per-user daily download budget.
	DailyQuotaBytes int64

	// MaxSingleFileBytes rejects any single document larger than this.
	MaxSingleFileBytes int64

	// PlatformCeilingBytes is the messaging platform's hard transfer limit.
	// Documents between this and MaxSingleFileBytes are offered as a link.
	PlatformCeilingBytes int64
}

func (c *Config) applyDefaults() {
	if c.ResultsPerPage <= 0 {
		c.ResultsPerPage = 5
	}
	if c.LoadMoreTimeout <= 0 {
		c.LoadMoreTimeout = scheduler.DefaultDelay
	}
	if c.DailyQuotaBytes <= 0 {
		c.DailyQuotaBytes = 2048 << 20
	}
	if c.MaxSingleFileBytes <= 0 {
		c.MaxSingleFileBytes = 100 << 20
	}
	if c.PlatformCeilingBytes <= 0 {
		c.PlatformCeilingBytes = 20 << 20
	}
}

// Orchestrator is the per-user conversational state machine. It admits
// events through the rate limiter, mutates the session store, asks the
// search gateway for pages, arms and disarms reminder timeouts, enforces
// the download quota against the usage ledger, and emits replies through
// the gateway. Events for the same user are serialized; different users
// run concurrently.
type Orchestrator struct {
	config   Config
	sessions repository.SessionRepository
	usage    repository.UsageRepository
	searcher search.Searcher
	limiter  *ratelimit.Limiter
	sched    *scheduler.Scheduler
	gateway  Gateway
	metrics  *observability.Metrics
	logger   zerolog.Logger
	users    *keyedMutex
	now      func() time.Time
}

// NewOrchestrator wires an orchestrator from its collaborators. The reminder
// scheduler is owned internally so its fire callback can re-validate session
// state before sending.
func NewOrchestrator(
	cfg Config,
	sessions repository.SessionRepository,
	usage repository.UsageRepository,
	searcher search.Searcher,
	limiter *ratelimit.Limiter,
	gateway Gateway,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Orchestrator {
	cfg.applyDefaults()

	o := &Orchestrator{
		config:   cfg,
		sessions: sessions,
		usage:    usage,
		searcher: searcher,
		limiter:  limiter,
		gateway:  gateway,
		metrics:  metrics,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		users:    newKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	o.sched = scheduler.New(o.onReminderElapsed, logger)

	return o
}

// Stop cancels all pending reminders. Called on shutdown.
func (o *Orchestrator) Stop() {
	o.sched.Stop()
}

// HandleText processes an inbound text message: commands, reply-keyboard
// labels, and free text (treated as a search query).
func (o *Orchestrator) HandleText(ctx context.Context, msg TextMessage) {
	o.dispatch(ctx, "text", msg.UserID, msg.ChatID, func(ctx context.Context) error {
		text := strings.TrimSpace(msg.Text)
		switch text {
		case "/start":
			return o.sendStatic(ctx, msg.ChatID, msgWelcome)
		case "/help", LabelHelp:
			return o.sendStatic(ctx, msg.ChatID, msgHelp)
		case LabelSearch:
			return o.handleSearchRequest(ctx, msg.UserID, msg.ChatID)
		default:
			return o.handleQueryText(ctx, msg.UserID, msg.ChatID, text)
		}
	})
}

// HandleButton processes an inline button press.
func (o *Orchestrator) HandleButton(ctx context.Context, press ButtonPress) {
	o.dispatch(ctx, "button", press.UserID, press.ChatID, func(ctx context.Context) error {
		switch {
		case press.ButtonID == ButtonLoadMore:
			return o.handleLoadMore(ctx, press.UserID, press.ChatID, press.MessageID)
		case strings.HasPrefix(press.ButtonID, ButtonDownloadPrefix):
			n, err := strconv.Atoi(strings.TrimPrefix(press.ButtonID, ButtonDownloadPrefix))
			if err != nil {
				return domain.NewValidationError("button_id", "malformed download index")
			}
			return o.handleDownloadRequest(ctx, press.UserID, press.ChatID, n)
		default:
			o.logger.Debug().Str("button_id", press.ButtonID).Msg("ignoring unknown button")
			return nil
		}
	})
}

// HandleMembershipChange reacts to the user blocking or removing the bot:
// any pending reminder is dropped so it cannot fire into a dead chat.
func (o *Orchestrator) HandleMembershipChange(ctx context.Context, change MembershipChange) {
	o.users.Lock(change.UserID)
	defer o.users.Unlock(change.UserID)

	o.sched.DisarmUser(change.UserID)
	o.logger.Info().
		Int64("user_id", change.UserID).
		Str("status", change.NewStatus).
		Msg("membership changed")
}

// dispatch is the outermost handler boundary: it serializes per user,
// records metrics, and converts panics and unhandled errors into a generic
// failure reply so no event can crash the processing loop.
func (o *Orchestrator) dispatch(ctx context.Context, eventType string, userID, chatID int64, fn func(context.Context) error) {
	o.metrics.EventsReceived.WithLabelValues(eventType).Inc()
	start := time.Now()

	o.users.Lock(userID)
	defer o.users.Unlock(userID)

	logger := observability.WithUserContext(o.logger, userID, chatID)

	defer func() {
		o.metrics.EventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			o.metrics.EventsFailed.WithLabelValues(eventType).Inc()
			logger.Error().
				Interface("panic", r).
				Str("event_type", eventType).
				Msg("handler panicked")
			o.replyGenericFailure(ctx, chatID)
		}
	}()

	if err := fn(ctx); err != nil {
		o.metrics.EventsFailed.WithLabelValues(eventType).Inc()
		logger.Error().
			Err(err).
			Str("event_type", eventType).
			Msg("handler failed")
		o.replyGenericFailure(ctx, chatID)
	}
}

// handleSearchRequest moves the session to AwaitingQuery and prompts for
// keywords, clearing any armed load-more affordance along the way.
func (o *Orchestrator) handleSearchRequest(ctx context.Context, userID, chatID int64) error {
	session, err := o.sessions.Load(ctx, userID)
	if err != nil {
		return err
	}

	o.sched.DisarmUser(userID)
	session.ClearLoadMore()
	session.State = domain.StateAwaitingQuery

	if err := o.sessions.Save(ctx, session); err != nil {
		return err
	}

	_, err = o.gateway.SendText(ctx, chatID, msgPromptQuery, removeKeyboard())
	return err
}

// handleQueryText treats free text as a new search regardless of the
// current state: sanitize, admit, search, present the first page, and arm
// the load-more reminder when further pages exist.
func (o *Orchestrator) handleQueryText(ctx context.Context, userID, chatID int64, text string) error {
	query := sanitizeQuery(text)
	if query == "" {
		_, err := o.gateway.SendText(ctx, chatID, msgEmptyQuery, mainKeyboard())
		return err
	}

	if !o.limiter.Admit(userID) {
		o.metrics.RateLimitRejections.Inc()
		o.logger.Info().Int64("user_id", userID).Msg("query rejected by rate limiter")
		_, err := o.gateway.SendText(ctx, chatID, msgRateLimited, mainKeyboard())
		return err
	}

	session, err := o.sessions.Load(ctx, userID)
	if err != nil {
		return err
	}

	o.sched.DisarmUser(userID)
	session.BeginQuery(query, o.now())

	processingID, err := o.gateway.SendText(ctx, chatID, msgSearching, removeKeyboard())
	if err != nil {
		return err
	}

	result, err := o.runSearch(ctx, chatID, processingID, query, pagination.FetchCeiling(0, o.config.ResultsPerPage))
	o.deleteQuietly(ctx, chatID, processingID)
	if err != nil {
		return o.replySearchError(ctx, chatID, userID, err)
	}

	session.TotalResultsKnown = result.TotalResults
	if session.TotalResultsKnown < len(result.Papers) {
		session.TotalResultsKnown = len(result.Papers)
	}

	if err := o.recordSearch(ctx, userID); err != nil {
		o.logger.Warn().Err(err).Int64("user_id", userID).Msg("search ledger write failed")
	}

	visible, hasMore := pagination.SlicePage(result.Papers, 0, o.config.ResultsPerPage, false)
	o.metrics.PagesServed.WithLabelValues("first").Inc()

	if len(visible) == 0 {
		if err := o.sessions.Save(ctx, session); err != nil {
			return err
		}
		_, err := o.gateway.SendText(ctx, chatID, msgNoResults, mainKeyboard())
		return err
	}

	lastMsgID, err := o.presentPage(ctx, chatID, visible, 1, hasMore)
	if err != nil {
		return err
	}

	if hasMore {
		o.armLoadMore(session, chatID, lastMsgID)
	}

	return o.sessions.Save(ctx, session)
}

// handleLoadMore serves the next page for the active query. The pressed
// message must be the affordance message currently on record; a stale or
// replayed press gets a session-expired reply and no page advance.
func (o *Orchestrator) handleLoadMore(ctx context.Context, userID, chatID, messageID int64) error {
	session, err := o.sessions.Load(ctx, userID)
	if err != nil {
		return err
	}

	if session.ActiveQuery == "" || !session.MatchesLoadMoreRef(messageID) {
		_, err := o.gateway.SendText(ctx, chatID, msgSessionExpired, mainKeyboard())
		return err
	}

	nextPage := session.CurrentPage + 1
	ceiling := pagination.FetchCeiling(nextPage, o.config.ResultsPerPage)

	result, err := o.runSearch(ctx, chatID, 0, session.ActiveQuery, ceiling)
	if err != nil {
		return o.replySearchError(ctx, chatID, userID, err)
	}

	o.sched.DisarmUser(userID)
	o.metrics.RemindersDisarmed.Inc()
	session.ClearLoadMore()
	session.CurrentPage = nextPage
	if total := result.TotalResults; total > session.TotalResultsKnown {
		session.TotalResultsKnown = total
	}

	visible, hasMore := pagination.SlicePage(result.Papers, nextPage, o.config.ResultsPerPage, true)
	o.metrics.PagesServed.WithLabelValues("continuation").Inc()

	if len(visible) == 0 {
		if err := o.sessions.Save(ctx, session); err != nil {
			return err
		}
		_, err := o.gateway.SendText(ctx, chatID, msgNoMorePapers, mainKeyboard())
		return err
	}

	firstIndex := nextPage*o.config.ResultsPerPage + 1
	lastMsgID, err := o.presentPage(ctx, chatID, visible, firstIndex, hasMore)
	if err != nil {
		return err
	}

	if hasMore {
		o.armLoadMore(session, chatID, lastMsgID)
	}

	return o.sessions.Save(ctx, session)
}

// handleDownloadRequest delivers one paper's PDF. itemIndex is one-based
// within the full result sequence for the active query. Result sets are
// not cached, so the item is re-resolved from the provider.
func (o *Orchestrator) handleDownloadRequest(ctx context.Context, userID, chatID int64, itemIndex int) error {
	session, err := o.sessions.Load(ctx, userID)
	if err != nil {
		return err
	}

	if session.ActiveQuery == "" {
		_, err := o.gateway.SendText(ctx, chatID, msgSessionExpired, mainKeyboard())
		return err
	}
	if itemIndex < 1 || itemIndex > session.TotalResultsKnown {
		o.metrics.DownloadsRejected.WithLabelValues("out_of_range").Inc()
		_, err := o.gateway.SendText(ctx, chatID, msgSessionExpired, mainKeyboard())
		return err
	}

	o.metrics.DownloadsStarted.Inc()

	result, err := o.searcher.Search(ctx, search.Params{
		Query:      session.ActiveQuery,
		MaxResults: itemIndex,
	})
	if err != nil {
		return o.replySearchError(ctx, chatID, userID, err)
	}
	if len(result.Papers) < itemIndex {
		o.metrics.DownloadsRejected.WithLabelValues("out_of_range").Inc()
		_, err := o.gateway.SendText(ctx, chatID, msgSessionExpired, mainKeyboard())
		return err
	}
	paper := result.Papers[itemIndex-1]

	size, err := o.searcher.ProbeSize(ctx, paper.PDFURL)
	if err != nil {
		return o.replySearchError(ctx, chatID, userID, fmt.Errorf("size probe: %w", err))
	}

	if size > o.config.MaxSingleFileBytes {
		o.metrics.DownloadsRejected.WithLabelValues("file_too_large").Inc()
		_, err := o.gateway.SendText(ctx, chatID, fileTooLargeText(o.config.MaxSingleFileBytes>>20), mainKeyboard())
		return err
	}
	if size > o.config.PlatformCeilingBytes {
		o.metrics.DownloadsRejected.WithLabelValues("transfer_ceiling").Inc()
		_, err := o.gateway.SendText(ctx, chatID, transferCeilingText(paper.CanonicalLink), mainKeyboard())
		return err
	}

	used, err := o.usage.BytesUsedSince(ctx, userID, domain.StartOfDay(o.now()))
	if err != nil {
		return err
	}
	if used >= o.config.DailyQuotaBytes {
		o.metrics.DownloadsRejected.WithLabelValues("quota").Inc()
		o.logger.Info().
			Int64("user_id", userID).
			Int64("used_bytes", used).
			Msg("download rejected by daily quota")
		_, err := o.gateway.SendText(ctx, chatID, msgQuotaExceeded, mainKeyboard())
		return err
	}

	caption := fmt.Sprintf(msgDownloadCaption, paper.Title)
	if _, err := o.gateway.SendDocument(ctx, chatID, paper.PDFURL, documentFilename(paper.PDFURL), caption); err != nil {
		return fmt.Errorf("send document: %w", err)
	}

	// The ledger row is written only after the transport accepted the
	// document, so a failed send never counts against the quota.
	if err := o.usage.Record(ctx, domain.NewDownloadRecord(userID, paper.PDFURL, size)); err != nil {
		o.logger.Error().Err(err).Int64("user_id", userID).Msg("download ledger write failed")
	}

	o.metrics.DownloadsCompleted.Inc()
	o.metrics.DownloadBytes.Add(float64(size))
	return nil
}

// onReminderElapsed is the scheduler's fire callback. It re-validates the
// armed state from the store before sending: a reminder armed for a page
// the user has since left, or already cleared, stays silent.
func (o *Orchestrator) onReminderElapsed(userID, chatRef int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	o.users.Lock(userID)
	defer o.users.Unlock(userID)

	session, err := o.sessions.Load(ctx, userID)
	if err != nil {
		o.logger.Error().Err(err).Int64("user_id", userID).Msg("reminder session load failed")
		return
	}
	if !session.LoadMoreArmed() {
		return
	}
	if o.now().Sub(*session.LoadMoreArmedAt)+time.Second < o.config.LoadMoreTimeout {
		// Re-armed more recently than this reminder's delay; stale fire.
		return
	}

	session.ClearLoadMore()
	if err := o.sessions.Save(ctx, session); err != nil {
		o.logger.Error().Err(err).Int64("user_id", userID).Msg("reminder session save failed")
		return
	}

	if _, err := o.gateway.SendText(ctx, chatRef, reminderText(), mainKeyboard()); err != nil {
		o.logger.Warn().Err(err).Int64("user_id", userID).Msg("reminder send failed")
		return
	}

	o.metrics.RemindersFired.Inc()
	o.logger.Info().Int64("user_id", userID).Msg("load-more reminder sent")
}

// runSearch calls the gateway adapter with progress edits applied to the
// processing message (when one exists). Progress failures never affect the
// search outcome.
func (o *Orchestrator) runSearch(ctx context.Context, chatID, processingID int64, query string, maxResults int) (*search.Result, error) {
	o.metrics.SearchesStarted.Inc()

	var progress search.ProgressFunc
	if processingID != 0 {
		progress = o.progressEditor(ctx, chatID, processingID)
	}

	result, err := o.searcher.Search(ctx, search.Params{
		Query:      query,
		MaxResults: maxResults,
		Progress:   progress,
	})
	if err != nil {
		return nil, err
	}

	o.metrics.SearchesCompleted.Inc()
	o.metrics.SearchDuration.Observe(result.Duration.Seconds())
	searchLogger := observability.WithSearchContext(o.logger, query, search.SourceName)
	searchLogger.Info().
		Int("total_results", result.TotalResults).
		Dur("duration", result.Duration).
		Msg("search completed")
	return result, nil
}

// progressEditor returns a ProgressFunc that rewrites the processing
// message at adapter checkpoints, throttled so rapid checkpoints do not
// hammer the transport.
func (o *Orchestrator) progressEditor(ctx context.Context, chatID, messageID int64) search.ProgressFunc {
	var lastEdit time.Time
	labels := map[search.ProgressStage]string{
		search.StageConnecting: "🔄 Searching... connecting",
		search.StageRequesting: "🔄 Searching... querying the index",
		search.StageReceiving:  "🔄 Searching... receiving results",
		search.StageProcessing: "🔄 Searching... processing results",
	}

	return func(stage search.ProgressStage) {
		if time.Since(lastEdit) < 500*time.Millisecond {
			return
		}
		lastEdit = time.Now()

		text, ok := labels[stage]
		if !ok {
			return
		}
		if err := o.gateway.EditText(ctx, chatID, messageID, text); err != nil {
			o.logger.Debug().Err(err).Msg("progress edit failed")
		}
	}
}

// presentPage sends the found-count banner and one message per paper. The
// last message carries the download buttons and, when hasMore, the Load
// More control; its id is returned for affordance tracking.
func (o *Orchestrator) presentPage(ctx context.Context, chatID int64, visible []*domain.Paper, firstIndex int, hasMore bool) (int64, error) {
	if _, err := o.gateway.SendText(ctx, chatID, foundText(len(visible)), nil); err != nil {
		return 0, err
	}

	var lastMsgID int64
	for i, paper := range visible {
		var kb *Keyboard
		if i == len(visible)-1 {
			kb = resultsKeyboard(firstIndex, len(visible), hasMore)
		}

		id, err := o.gateway.SendText(ctx, chatID, paperText(firstIndex+i, paper), kb)
		if err != nil {
			return 0, fmt.Errorf("send paper %d: %w", firstIndex+i, err)
		}
		lastMsgID = id
	}

	if !hasMore {
		// Restore the reply keyboard; no affordance message follows.
		if _, err := o.gateway.SendText(ctx, chatID, msgEndOfResults, mainKeyboard()); err != nil {
			o.logger.Debug().Err(err).Msg("keyboard restore failed")
		}
	}

	return lastMsgID, nil
}

// armLoadMore records the affordance on the session and schedules the
// inactivity reminder.
func (o *Orchestrator) armLoadMore(session *domain.Session, chatID, messageID int64) {
	session.ArmLoadMore(messageID, o.now())
	o.sched.Arm(session.UserID, chatID, o.config.LoadMoreTimeout)
	o.metrics.RemindersArmed.Inc()
}

// replySearchError maps a classified search failure to its user-facing
// message. Unclassified errors propagate to the dispatch boundary.
func (o *Orchestrator) replySearchError(ctx context.Context, chatID, userID int64, err error) error {
	se, ok := domain.AsSearchError(err)
	if !ok {
		return err
	}

	o.metrics.SearchesFailed.WithLabelValues(string(se.Kind)).Inc()
	o.logger.Warn().
		Err(err).
		Int64("user_id", userID).
		Str("kind", string(se.Kind)).
		Msg("search failed")

	_, sendErr := o.gateway.SendText(ctx, chatID, "❌ "+se.UserMessage(), mainKeyboard())
	return sendErr
}

// deleteQuietly removes a transient message, logging failures only.
func (o *Orchestrator) deleteQuietly(ctx context.Context, chatID, messageID int64) {
	if err := o.gateway.DeleteMessage(ctx, chatID, messageID); err != nil {
		o.logger.Debug().Err(err).Int64("message_id", messageID).Msg("message cleanup failed")
	}
}

// recordSearch appends a search event to the usage ledger.
func (o *Orchestrator) recordSearch(ctx context.Context, userID int64) error {
	return o.usage.Record(ctx, domain.NewSearchRecord(userID))
}

// replyGenericFailure sends the catch-all apology. Failures here are only
// logged; there is nothing further to fall back to.
func (o *Orchestrator) replyGenericFailure(ctx context.Context, chatID int64) {
	if _, err := o.gateway.SendText(ctx, chatID, msgGenericFailure, mainKeyboard()); err != nil {
		o.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("failure reply not delivered")
	}
}

// sendStatic sends a fixed reply with the main keyboard attached.
func (o *Orchestrator) sendStatic(ctx context.Context, chatID int64, text string) error {
	_, err := o.gateway.SendText(ctx, chatID, text, mainKeyboard())
	return err
}

// documentFilename derives a filename from the PDF URL path.
func documentFilename(pdfURL string) string {
	base := path.Base(pdfURL)
	if base == "." || base == "/" || base == "" {
		return "paper.pdf"
	}
	if !strings.HasSuffix(base, ".pdf") {
		base += ".pdf"
	}
	return base
}
