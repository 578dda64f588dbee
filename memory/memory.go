// CLAUDE:SUMMARY Learned answer store keyed by normalized question signatures: learn, recall (exact then fuzzy), merge with a remote copy, delete.
// Package memory stores answers the user gave to questions the classifier
// could not map to a profile field, keyed by a normalized signature of the
// question text.
//
// The whole memory lives under one key of the key-value store. Read-modify-
// write cycles are serialized inside one process; two processes sharing a
// store can still race.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/formfill/fuzzy"
	"github.com/hazyhaar/formfill/kvstore"
)

// StorageKey is the key-value store key holding the memory.
const StorageKey = "answerMemory"

// DefaultFieldTag is recorded when a learned answer carries no tag.
const DefaultFieldTag = "input"

var (
	ErrNotFound = errors.New("memory: no such answer")
	ErrNoRemote = errors.New("memory: no remote store configured")
)

// Entry is one remembered answer.
type Entry struct {
	Key      string `json:"normalizedKey" firestore:"normalizedKey"`
	Question string `json:"question" firestore:"question"`
	Answer   string `json:"answer" firestore:"answer"`
	FieldTag string `json:"fieldTag" firestore:"fieldTag"`
	LastUsed int64  `json:"lastUsed" firestore:"lastUsed"`
	UseCount int    `json:"useCount" firestore:"useCount"`
}

// Learned is a captured question/answer pair.
type Learned struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	FieldTag string `json:"fieldTag,omitempty"`
}

// LearnResult reports a Learn call.
type LearnResult struct {
	Saved       int `json:"saved"`
	TotalStored int `json:"totalStored"`
}

// Recall is a remembered answer for a label.
type Recall struct {
	Answer     string           `json:"answer"`
	Confidence fuzzy.Confidence `json:"confidence"`
	Key        string           `json:"key"`
}

// SyncResult reports a Sync call.
type SyncResult struct {
	Pulled int `json:"pulled"`
	Pushed int `json:"pushed"`
	Total  int `json:"total"`
}

// RemoteStore is the remote copy of the memory.
type RemoteStore interface {
	PullAll(ctx context.Context) ([]Entry, error)
	UpsertMany(ctx context.Context, entries []Entry) error
	DeleteOne(ctx context.Context, key string) error
}

// Config wires a Memory.
type Config struct {
	Store   kvstore.Store
	Remote  RemoteStore   // optional
	Matcher *fuzzy.Matcher // nil: fuzzy.Default()
	Logger  *slog.Logger
	Now     func() time.Time
}

// Memory is the answer store.
type Memory struct {
	mu      sync.Mutex
	store   kvstore.Store
	remote  RemoteStore
	matcher *fuzzy.Matcher
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Memory over cfg.Store.
func New(cfg Config) *Memory {
	m := &Memory{
		store:   cfg.Store,
		remote:  cfg.Remote,
		matcher: cfg.Matcher,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
	if m.matcher == nil {
		m.matcher = fuzzy.Default()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// HasRemote reports whether a remote store is configured.
func (m *Memory) HasRemote() bool { return m.remote != nil }

// Learn upserts every pair with a non-empty question, answer and key.
func (m *Memory) Learn(ctx context.Context, entries []Learned) (LearnResult, error) {
	if len(entries) == 0 {
		return LearnResult{}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	mem, err := m.load(ctx)
	if err != nil {
		return LearnResult{}, err
	}
	saved := 0
	for _, e := range entries {
		if e.Question == "" || e.Answer == "" {
			continue
		}
		key := Normalize(e.Question)
		if key == "" {
			continue
		}
		prev, ok := mem[key]
		next := Entry{
			Key:      key,
			Question: e.Question,
			Answer:   e.Answer,
			FieldTag: e.FieldTag,
			LastUsed: m.now().UnixMilli(),
			UseCount: prev.UseCount + 1,
		}
		if ok && prev.Question != "" {
			next.Question = prev.Question
		}
		if next.FieldTag == "" {
			next.FieldTag = prev.FieldTag
		}
		if next.FieldTag == "" {
			next.FieldTag = DefaultFieldTag
		}
		mem[key] = next
		saved++
	}
	if err := m.save(ctx, mem); err != nil {
		return LearnResult{}, err
	}
	return LearnResult{Saved: saved, TotalStored: len(mem)}, nil
}

// Recall finds the answer for label: exact key first, then the fuzzy
// matcher over all keys. Storage failures are logged and read as a miss.
func (m *Memory) Recall(ctx context.Context, label string) *Recall {
	key := Normalize(label)
	if key == "" {
		return nil
	}
	m.mu.Lock()
	mem, err := m.load(ctx)
	m.mu.Unlock()
	if err != nil {
		m.logger.Warn("memory: recall failed", "label", label, "error", err)
		return nil
	}
	if len(mem) == 0 {
		return nil
	}
	if e, ok := mem[key]; ok {
		return &Recall{Answer: e.Answer, Confidence: fuzzy.High, Key: key}
	}
	keys := sortedKeys(mem)
	res := m.matcher.MatchTiered(key, keys)
	if res == nil {
		return nil
	}
	return &Recall{Answer: mem[res.Match].Answer, Confidence: res.Confidence, Key: res.Match}
}

// MarkUsed records a reuse of key.
func (m *Memory) MarkUsed(ctx context.Context, key string) error {
	return m.modify(ctx, key, func(e *Entry) {
		e.UseCount++
		e.LastUsed = m.now().UnixMilli()
	})
}

// Update replaces the answer of key.
func (m *Memory) Update(ctx context.Context, key, answer string) error {
	if answer == "" {
		return fmt.Errorf("memory: update %q: empty answer", key)
	}
	return m.modify(ctx, key, func(e *Entry) {
		e.Answer = answer
		e.UseCount++
		e.LastUsed = m.now().UnixMilli()
	})
}

func (m *Memory) modify(ctx context.Context, key string, fn func(*Entry)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, err := m.load(ctx)
	if err != nil {
		return err
	}
	e, ok := mem[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	fn(&e)
	mem[key] = e
	return m.save(ctx, mem)
}

// Delete removes key locally, then from the remote store. A remote
// failure is logged and does not undo the local delete.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	mem, err := m.load(ctx)
	if err == nil {
		delete(mem, key)
		err = m.save(ctx, mem)
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if m.remote != nil {
		if err := m.remote.DeleteOne(ctx, key); err != nil {
			m.logger.Warn("memory: remote delete failed", "key", key, "error", err)
		}
	}
	return nil
}

// List returns every entry, most recently used first.
func (m *Memory) List(ctx context.Context) ([]Entry, error) {
	m.mu.Lock()
	mem, err := m.load(ctx)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(mem))
	for _, e := range mem {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUsed != out[j].LastUsed {
			return out[i].LastUsed > out[j].LastUsed
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// Merge folds remote entries into the local memory: an entry absent
// locally is adopted, one with a strictly greater remote use count
// replaces the local one, anything else keeps the local copy. The merged
// view is returned even when it cannot be read or persisted.
func (m *Memory) Merge(ctx context.Context, remote []Entry) map[string]Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	mem, err := m.load(ctx)
	persist := err == nil
	if err != nil {
		m.logger.Warn("memory: merge read failed", "error", err)
		mem = make(map[string]Entry)
	}
	changed := false
	for _, r := range remote {
		if r.Key == "" {
			r.Key = Normalize(r.Question)
		}
		if r.Key == "" || r.Answer == "" {
			continue
		}
		l, ok := mem[r.Key]
		if !ok || r.UseCount > l.UseCount {
			mem[r.Key] = r
			changed = true
		}
	}
	if persist && changed {
		if err := m.save(ctx, mem); err != nil {
			m.logger.Warn("memory: merge save failed", "error", err)
		}
	}
	return mem
}

// Sync pulls the remote copy, merges it and pushes the merged memory back.
func (m *Memory) Sync(ctx context.Context) (SyncResult, error) {
	if m.remote == nil {
		return SyncResult{}, ErrNoRemote
	}
	remote, err := m.remote.PullAll(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("memory: pull: %w", err)
	}
	merged := m.Merge(ctx, remote)
	entries := make([]Entry, 0, len(merged))
	for _, k := range sortedKeys(merged) {
		entries = append(entries, merged[k])
	}
	if err := m.remote.UpsertMany(ctx, entries); err != nil {
		return SyncResult{}, fmt.Errorf("memory: push: %w", err)
	}
	m.logger.Info("memory: synced", "pulled", len(remote), "total", len(merged))
	return SyncResult{Pulled: len(remote), Pushed: len(entries), Total: len(merged)}, nil
}

func (m *Memory) load(ctx context.Context) (map[string]Entry, error) {
	mem := make(map[string]Entry)
	if _, err := kvstore.GetJSON(ctx, m.store, StorageKey, &mem); err != nil {
		return nil, fmt.Errorf("memory: load: %w", err)
	}
	for k, e := range mem {
		if e.Key != k {
			e.Key = k
			mem[k] = e
		}
	}
	return mem, nil
}

func (m *Memory) save(ctx context.Context, mem map[string]Entry) error {
	if err := kvstore.SetJSON(ctx, m.store, StorageKey, mem); err != nil {
		return fmt.Errorf("memory: save: %w", err)
	}
	return nil
}

func sortedKeys(mem map[string]Entry) []string {
	keys := make([]string, 0, len(mem))
	for k := range mem {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`do you are what how please select enter provide
		your the a an is it to of for in and or if this that we us i my will would
		can could should have has had be been being with from on at by as was were
		not no yes any all each every following below above`) {
		stopWords[w] = struct{}{}
	}
}

// Normalize turns a question into its lookup key: lower-cased, stripped of
// punctuation and stop-words, tokens sorted and joined by single spaces.
func Normalize(question string) string {
	var toks []string
	for _, t := range fuzzy.Clean(question) {
		if _, ok := stopWords[t]; !ok {
			toks = append(toks, t)
		}
	}
	sort.Strings(toks)
	return strings.Join(toks, " ")
}
