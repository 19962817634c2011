// Package board implements the shared Knowledge Board (C2): TTL-bounded
// posts indexed by category/author/tag with query, relevance search,
// and best-effort category subscriptions.
//
// Grounded on original_source's hive_board.py for the exact category
// set, TTL default, view/access-tracking and relevance formula, and
// redis_hive_board.py for the sorted-set index shape (ported into the
// process-local index here, not copied verbatim). The Board is
// process-local and in-memory: posts live only as long as the Queen
// process runs, expiring by TTL and subject to GC, with no bbolt or
// other on-disk persistence tier.
package board

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/omakh-hive/queen/internal/metrics"
)

// Category is one of the fixed board categories. Unknown categories
// silently coerce to CategoryGeneral.
type Category string

const (
	CategoryMarketData      Category = "market_data"
	CategoryPoolHealth      Category = "pool_health"
	CategoryTreasuryStatus  Category = "treasury_status"
	CategorySecurityAlerts  Category = "security_alerts"
	CategoryGasPrices       Category = "gas_prices"
	CategoryStakingInfo     Category = "staking_info"
	CategoryPatternAnalysis Category = "pattern_analysis"
	CategoryBeeStatus       Category = "bee_status"
	CategoryDecisionOutcome Category = "decision_outcomes"
	CategoryGeneral         Category = "general"
)

var validCategories = map[Category]bool{
	CategoryMarketData: true, CategoryPoolHealth: true, CategoryTreasuryStatus: true,
	CategorySecurityAlerts: true, CategoryGasPrices: true, CategoryStakingInfo: true,
	CategoryPatternAnalysis: true, CategoryBeeStatus: true, CategoryDecisionOutcome: true,
	CategoryGeneral: true,
}

// Normalize coerces an arbitrary category string to a valid Category,
// falling back to CategoryGeneral.
func Normalize(raw string) Category {
	c := Category(raw)
	if validCategories[c] {
		return c
	}
	return CategoryGeneral
}

// Post is a single board entry.
type Post struct {
	ID         int64
	Author     string
	Category   Category
	Title      string
	Content    string
	Tags       []string
	Priority   int
	CreatedAt  time.Time
	ExpiresAt  *time.Time
	Views      int
	AccessedBy map[string]bool
}

func (p *Post) expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// Query filters Board.Query results.
type Query struct {
	Category    *Category
	Author      string
	Tags        []string
	Since       *time.Time
	MinPriority int
	Limit       int
}

// Stats summarizes the board's current state.
type Stats struct {
	TotalPosts   int
	ByCategory   map[Category]int
	ExpiredTotal int
}

// SubscribeHandler is invoked, best-effort, once per matching post at
// creation time.
type SubscribeHandler func(Post)

// Board is the Knowledge Board. A single instance is shared by every
// worker and the Supervisor.
type Board struct {
	defaultTTL time.Duration
	metrics    *metrics.Metrics
	log        *zap.Logger

	mu       sync.RWMutex
	posts    map[int64]*Post
	nextID   int64
	byCat    map[Category]map[int64]bool
	byAuthor map[string]map[int64]bool

	subMu sync.Mutex
	subs  map[Category][]SubscribeHandler
}

// New builds an empty Board.
func New(defaultTTL time.Duration, m *metrics.Metrics, log *zap.Logger) *Board {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &Board{
		defaultTTL: defaultTTL,
		metrics:    m,
		log:        log,
		posts:      make(map[int64]*Post),
		byCat:      make(map[Category]map[int64]bool),
		byAuthor:   make(map[string]map[int64]bool),
		subs:       make(map[Category][]SubscribeHandler),
	}
}

// Post creates a new board entry and returns its ID. A zero ttl
// applies the board's default TTL; a negative ttl means indefinite.
func (b *Board) Post(author string, category Category, title, content string, tags []string, priority int, ttl time.Duration) int64 {
	category = Normalize(string(category))

	b.mu.Lock()
	b.nextID++
	id := b.nextID

	var expiresAt *time.Time
	switch {
	case ttl == 0:
		t := time.Now().Add(b.defaultTTL)
		expiresAt = &t
	case ttl > 0:
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	post := &Post{
		ID:         id,
		Author:     author,
		Category:   category,
		Title:      title,
		Content:    content,
		Tags:       tags,
		Priority:   priority,
		CreatedAt:  time.Now(),
		ExpiresAt:  expiresAt,
		AccessedBy: make(map[string]bool),
	}
	b.posts[id] = post

	if b.byCat[category] == nil {
		b.byCat[category] = make(map[int64]bool)
	}
	b.byCat[category][id] = true
	if b.byAuthor[author] == nil {
		b.byAuthor[author] = make(map[int64]bool)
	}
	b.byAuthor[author][id] = true
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.BoardPostsTotal.WithLabelValues(string(category)).Inc()
	}

	b.notifySubscribers(category, *post)
	return id
}

func (b *Board) notifySubscribers(category Category, post Post) {
	b.subMu.Lock()
	handlers := append([]SubscribeHandler{}, b.subs[category]...)
	b.subMu.Unlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil && b.log != nil {
					b.log.Warn("board subscriber handler panicked", zap.Any("recover", r))
				}
			}()
			h(post)
		}()
	}
}

// Get returns a post by ID, recording reader as an accessor and
// incrementing its view count. Returns (nil, false) if the post does
// not exist or has expired.
func (b *Board) Get(postID int64, reader string) (*Post, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	post, ok := b.posts[postID]
	if !ok || post.expired(time.Now()) {
		return nil, false
	}
	post.Views++
	if reader != "" {
		post.AccessedBy[reader] = true
	}
	cp := *post
	return &cp, true
}

// Query returns posts matching q, sorted by (priority desc, created-at
// desc). Expired posts touched by a category scan are lazily removed.
func (b *Board) Query(q Query) []Post {
	if b.metrics != nil {
		b.metrics.BoardQueriesTotal.Inc()
	}

	now := time.Now()
	b.mu.Lock()
	var candidates []int64
	if q.Category != nil {
		cat := Normalize(string(*q.Category))
		b.gcCategoryLocked(cat, now)
		for id := range b.byCat[cat] {
			candidates = append(candidates, id)
		}
	} else {
		for id := range b.posts {
			candidates = append(candidates, id)
		}
	}

	var results []Post
	for _, id := range candidates {
		post, ok := b.posts[id]
		if !ok || post.expired(now) {
			continue
		}
		if q.Author != "" && post.Author != q.Author {
			continue
		}
		if q.Since != nil && post.CreatedAt.Before(*q.Since) {
			continue
		}
		if post.Priority < q.MinPriority {
			continue
		}
		if len(q.Tags) > 0 && !hasAnyTag(post.Tags, q.Tags) {
			continue
		}
		results = append(results, *post)
	}
	b.mu.Unlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Priority != results[j].Priority {
			return results[i].Priority > results[j].Priority
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results
}

func hasAnyTag(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if set[t] {
			return true
		}
	}
	return false
}

// Search ranks every non-expired post against query using the fixed
// relevance formula: 10*title-hit + 5*category-hit + 3*tag-hit +
// 2*priority + max(0, 10 - age-hours).
func (b *Board) Search(query string, limit int) []Post {
	if b.metrics != nil {
		b.metrics.BoardSearchesTotal.Inc()
	}

	q := strings.ToLower(query)
	now := time.Now()

	b.mu.RLock()
	type scored struct {
		post  Post
		score float64
	}
	var ranked []scored
	for _, post := range b.posts {
		if post.expired(now) {
			continue
		}
		score := relevance(post, q, now)
		if score > 0 {
			ranked = append(ranked, scored{post: *post, score: score})
		}
	}
	b.mu.RUnlock()

	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}
	out := make([]Post, limit)
	for i := 0; i < limit; i++ {
		out[i] = ranked[i].post
	}
	return out
}

func relevance(post *Post, query string, now time.Time) float64 {
	score := 0.0
	if strings.Contains(strings.ToLower(post.Title), query) {
		score += 10
	}
	if strings.Contains(strings.ToLower(string(post.Category)), query) {
		score += 5
	}
	for _, tag := range post.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			score += 3
			break
		}
	}
	score += 2 * float64(post.Priority)
	ageHours := now.Sub(post.CreatedAt).Hours()
	if recency := 10 - ageHours; recency > 0 {
		score += recency
	}
	return score
}

// Subscribe registers handler to fire, best-effort, once per new post
// in category.
func (b *Board) Subscribe(category Category, handler SubscribeHandler) {
	category = Normalize(string(category))
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.subs[category] = append(b.subs[category], handler)
}

// Stats summarizes the board.
func (b *Board) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	now := time.Now()
	s := Stats{ByCategory: make(map[Category]int)}
	for _, post := range b.posts {
		if post.expired(now) {
			s.ExpiredTotal++
			continue
		}
		s.TotalPosts++
		s.ByCategory[post.Category]++
	}
	return s
}

// gcCategoryLocked removes expired posts from category's index and
// the main table. Caller must hold b.mu.
func (b *Board) gcCategoryLocked(cat Category, now time.Time) {
	for id := range b.byCat[cat] {
		post, ok := b.posts[id]
		if !ok {
			delete(b.byCat[cat], id)
			continue
		}
		if post.expired(now) {
			delete(b.posts, id)
			delete(b.byCat[cat], id)
			if m := b.byAuthor[post.Author]; m != nil {
				delete(m, id)
			}
			if b.metrics != nil {
				b.metrics.BoardPostsExpired.Inc()
			}
		}
	}
}

// Sweep runs a full-board GC pass, intended to be called periodically
// by the Supervisor in addition to the lazy per-query GC.
func (b *Board) Sweep() int {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for id, post := range b.posts {
		if post.expired(now) {
			delete(b.posts, id)
			if m := b.byCat[post.Category]; m != nil {
				delete(m, id)
			}
			if m := b.byAuthor[post.Author]; m != nil {
				delete(m, id)
			}
			removed++
		}
	}
	if b.metrics != nil && removed > 0 {
		b.metrics.BoardPostsExpired.Add(float64(removed))
	}
	return removed
}
