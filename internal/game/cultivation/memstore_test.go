package cultivation

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/cultivation/internal/data"
	"github.com/udisondev/cultivation/internal/model"
)

// ownedKinds mirrors the owned collections of a character in the database.
var ownedKinds = []string{"plots", "companions", "sect_contributions", "feature_progress", "battle_history", "partner_bonds"}

// memState is the whole store content; transactions work on a clone.
type memState struct {
	chars   map[int64]model.Character
	items   map[int64]map[int32]int64
	owned   map[int64]map[string]int
	records map[uuid.UUID]model.TribulationRecord
	nextID  int64
}

func (s memState) clone() memState {
	c := memState{
		chars:   maps.Clone(s.chars),
		items:   make(map[int64]map[int32]int64, len(s.items)),
		owned:   make(map[int64]map[string]int, len(s.owned)),
		records: maps.Clone(s.records),
		nextID:  s.nextID,
	}
	for id, inv := range s.items {
		c.items[id] = maps.Clone(inv)
	}
	for id, o := range s.owned {
		c.owned[id] = maps.Clone(o)
	}
	return c
}

// memStore implements Store for tests. Transactions are serialized and
// applied only on success, like a real database transaction.
type memStore struct {
	mu      sync.Mutex
	st      memState
	failOn  map[string]error
	commits int
}

func newMemStore() *memStore {
	return &memStore{
		st: memState{
			chars:   make(map[int64]model.Character),
			items:   make(map[int64]map[int32]int64),
			owned:   make(map[int64]map[string]int),
			records: make(map[uuid.UUID]model.TribulationRecord),
			nextID:  1,
		},
		failOn: make(map[string]error),
	}
}

func (s *memStore) direct() *memTx {
	return &memTx{lock: &s.mu, st: &s.st, store: s, immediate: true}
}

func (s *memStore) Characters() Characters { return s.direct() }
func (s *memStore) Inventory() Inventory   { return s.direct() }
func (s *memStore) Records() Records       { return recordsView{s.direct()} }
func (s *memStore) AfterCommit(fn func())  { fn() }

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	work := s.st.clone()
	tx := &memTx{st: &work, store: s}
	err := fn(ctx, tx)
	if err == nil {
		s.st = work
		s.commits++
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	for _, h := range tx.hooks {
		h()
	}
	return nil
}

// memTx implements Tx and all repository interfaces over a memState.
type memTx struct {
	lock      *sync.Mutex // set for store-level access only
	st        *memState
	store     *memStore
	hooks     []func()
	immediate bool
}

func (t *memTx) guard() func() {
	if t.lock == nil {
		return func() {}
	}
	t.lock.Lock()
	return t.lock.Unlock
}

func (t *memTx) fail(op string) error {
	return t.store.failOn[op]
}

func (t *memTx) Characters() Characters { return t }
func (t *memTx) Inventory() Inventory   { return t }
func (t *memTx) Records() Records       { return recordsView{t} }

func (t *memTx) AfterCommit(fn func()) {
	if t.immediate {
		fn()
		return
	}
	t.hooks = append(t.hooks, fn)
}

// --- Characters ---

func (t *memTx) LoadByID(_ context.Context, id int64) (*model.Character, error) {
	defer t.guard()()
	if err := t.fail("LoadByID"); err != nil {
		return nil, err
	}
	ch, ok := t.st.chars[id]
	if !ok {
		return nil, nil
	}
	return &ch, nil
}

func (t *memTx) LockByID(ctx context.Context, id int64) (*model.Character, error) {
	return t.LoadByID(ctx, id)
}

func (t *memTx) Update(_ context.Context, ch model.Character) error {
	defer t.guard()()
	if err := t.fail("Update"); err != nil {
		return err
	}
	if _, ok := t.st.chars[ch.ID]; !ok {
		return fmt.Errorf("character %d not found", ch.ID)
	}
	t.st.chars[ch.ID] = ch
	return nil
}

func (t *memTx) Create(_ context.Context, ch model.Character) (int64, error) {
	defer t.guard()()
	if err := t.fail("Create"); err != nil {
		return 0, err
	}
	ch.ID = t.st.nextID
	t.st.nextID++
	t.st.chars[ch.ID] = ch
	return ch.ID, nil
}

func (t *memTx) UserHasLivingCharacter(_ context.Context, userID int64) (bool, error) {
	defer t.guard()()
	for _, ch := range t.st.chars {
		if ch.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) NameTaken(_ context.Context, name string) (bool, error) {
	defer t.guard()()
	for _, ch := range t.st.chars {
		if ch.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) Teardown(_ context.Context, id int64) error {
	defer t.guard()()
	// Удаляем по одной коллекции, чтобы сбой посередине оставлял частичное состояние в рабочей копии.
	delete(t.st.items, id)
	if err := t.fail("Teardown"); err != nil {
		return err
	}
	delete(t.st.owned, id)
	delete(t.st.chars, id)
	return nil
}

// --- Inventory ---

func (t *memTx) HasItems(_ context.Context, id int64, items []model.ItemStack) (bool, error) {
	defer t.guard()()
	if err := t.fail("HasItems"); err != nil {
		return false, err
	}
	inv := t.st.items[id]
	for _, need := range model.MergeStacks(items) {
		if inv[need.ItemID] < need.Quantity {
			return false, nil
		}
	}
	return true, nil
}

func (t *memTx) ConsumeItems(_ context.Context, id int64, items []model.ItemStack) error {
	defer t.guard()()
	inv := t.st.items[id]
	need := model.MergeStacks(items)
	for _, n := range need {
		if inv[n.ItemID] < n.Quantity {
			return fmt.Errorf("item %d: %w", n.ItemID, ErrInsufficientItems)
		}
	}
	for _, n := range need {
		inv[n.ItemID] -= n.Quantity
		if inv[n.ItemID] == 0 {
			delete(inv, n.ItemID)
		}
	}
	return nil
}

func (t *memTx) RestoreItem(_ context.Context, id int64, itemID int32, qty int64) error {
	defer t.guard()()
	if err := t.fail("RestoreItem"); err != nil {
		return err
	}
	inv, ok := t.st.items[id]
	if !ok {
		inv = make(map[int32]int64)
		t.st.items[id] = inv
	}
	inv[itemID] += qty
	return nil
}

func (t *memTx) ListAll(_ context.Context, id int64) ([]model.ItemStack, error) {
	defer t.guard()()
	out := make([]model.ItemStack, 0, len(t.st.items[id]))
	for itemID, qty := range t.st.items[id] {
		out = append(out, model.ItemStack{ItemID: itemID, Quantity: qty})
	}
	return model.MergeStacks(out), nil
}

// --- Records ---

// recordsView adapts memTx to Records; Create/LockByID clash with the Characters methods.
type recordsView struct{ t *memTx }

func (r recordsView) Create(_ context.Context, rec *model.TribulationRecord) error {
	defer r.t.guard()()
	if err := r.t.fail("CreateRecord"); err != nil {
		return err
	}
	if _, dup := r.t.st.records[rec.ID]; dup {
		return fmt.Errorf("duplicate record %s", rec.ID)
	}
	r.t.st.records[rec.ID] = *rec
	return nil
}

func (r recordsView) LockByID(_ context.Context, id uuid.UUID) (*model.TribulationRecord, error) {
	defer r.t.guard()()
	rec, ok := r.t.st.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r recordsView) MarkRolledBack(_ context.Context, id uuid.UUID, operatorID string, at time.Time, restoredID int64) error {
	defer r.t.guard()()
	rec, ok := r.t.st.records[id]
	if !ok || rec.RolledBack {
		return fmt.Errorf("record %s not eligible", id)
	}
	rec.RolledBack = true
	rec.RolledBackBy = &operatorID
	rec.RolledBackAt = &at
	rec.RestoredCharacterID = &restoredID
	r.t.st.records[id] = rec
	return nil
}

func (r recordsView) ListRollbackCandidates(_ context.Context, since time.Time, limit int) ([]*model.TribulationRecord, error) {
	defer r.t.guard()()
	var out []*model.TribulationRecord
	for _, rec := range r.t.st.records {
		if rec.Success || rec.RolledBack || rec.Snapshot == nil || rec.AttemptedAt.Before(since) {
			continue
		}
		out = append(out, &rec)
	}
	sortNewestFirst(out)
	return out[:min(limit, len(out))], nil
}

func (r recordsView) ListByCharacter(_ context.Context, characterID int64, limit int) ([]*model.TribulationRecord, error) {
	defer r.t.guard()()
	var out []*model.TribulationRecord
	for _, rec := range r.t.st.records {
		if rec.CharacterID == characterID {
			out = append(out, &rec)
		}
	}
	sortNewestFirst(out)
	return out[:min(limit, len(out))], nil
}

func sortNewestFirst(recs []*model.TribulationRecord) {
	slices.SortFunc(recs, func(a, b *model.TribulationRecord) int {
		return b.AttemptedAt.Compare(a.AttemptedAt)
	})
}

// --- test fixtures ---

// seqRandom returns the given values in order and counts draws.
type seqRandom struct {
	values []float64
	draws  int
}

func (r *seqRandom) Float64() float64 {
	v := r.values[r.draws%len(r.values)]
	r.draws++
	return v
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type notice struct {
	characterID int64
	event       string
	payload     any
}

// recordingNotifier captures notifications.
type recordingNotifier struct {
	mu        sync.Mutex
	broadcast []notice
	direct    []notice
}

func (n *recordingNotifier) Broadcast(event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcast = append(n.broadcast, notice{event: event, payload: payload})
}

func (n *recordingNotifier) NotifyCharacter(id int64, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.direct = append(n.direct, notice{characterID: id, event: event, payload: payload})
}

func (n *recordingNotifier) broadcastEvents() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.broadcast))
	for _, b := range n.broadcast {
		out = append(out, b.event)
	}
	return out
}

// env bundles a service with its fakes.
type env struct {
	store    *memStore
	rng      *seqRandom
	clock    *fakeClock
	notifier *recordingNotifier
	ladder   *model.RealmLadder
	policies *model.TribulationPolicies
	svc      *Service
}

func newEnv(t *testing.T, rolls ...float64) *env {
	t.Helper()
	return newEnvWith(t, data.DefaultRealmLevels(), data.DefaultTribulationPolicies(), rolls...)
}

func newEnvWith(t *testing.T, levels []model.RealmLevel, policies []model.TribulationPolicy, rolls ...float64) *env {
	t.Helper()
	if len(rolls) == 0 {
		rolls = []float64{0.0}
	}
	ladder, err := model.NewRealmLadder(levels)
	require.NoError(t, err)
	tp, err := model.NewTribulationPolicies(policies)
	require.NoError(t, err)

	e := &env{
		store:    newMemStore(),
		rng:      &seqRandom{values: rolls},
		clock:    newFakeClock(),
		notifier: &recordingNotifier{},
		ladder:   ladder,
		policies: tp,
	}
	e.svc, err = New(e.store, Options{
		Ladder:    ladder,
		Policies:  tp,
		BaseStats: model.StatBonuses{HP: 100, MP: 50, Attack: 10, Defense: 5},
		Random:    e.rng,
		Notifier:  e.notifier,
		Now:       e.clock.Now,
	})
	require.NoError(t, err)
	return e
}

// addCharacter inserts a character at pos with exp and inventory plus one row in every owned collection.
func (e *env) addCharacter(t *testing.T, userID int64, name string, pos model.RealmPosition, exp uint64, inv ...model.ItemStack) model.Character {
	t.Helper()
	level, ok := e.ladder.Find(pos)
	require.True(t, ok, "realm %s", pos)

	ch := model.Character{
		UserID:       userID,
		Name:         name,
		Experience:   exp,
		Realm:        pos,
		BaseStats:    model.StatBonuses{HP: 100, MP: 50, Attack: 10, Defense: 5},
		SpiritStones: 1234,
		Sect:         model.Sect{SectID: 7, Rank: "inner disciple", Contribution: 560},
		CreatedAt:    e.clock.Now().Add(-30 * 24 * time.Hour),
	}
	ch.RecomputeStats(level)

	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	ch.ID = e.store.st.nextID
	e.store.st.nextID++
	e.store.st.chars[ch.ID] = ch
	e.store.st.items[ch.ID] = make(map[int32]int64)
	for _, s := range inv {
		e.store.st.items[ch.ID][s.ItemID] += s.Quantity
	}
	e.store.st.owned[ch.ID] = make(map[string]int)
	for _, kind := range ownedKinds {
		e.store.st.owned[ch.ID][kind] = 1
	}
	return ch
}

func (e *env) character(id int64) (model.Character, bool) {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	ch, ok := e.store.st.chars[id]
	return ch, ok
}

func (e *env) inventory(id int64) map[int32]int64 {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	return maps.Clone(e.store.st.items[id])
}

func (e *env) ownedRows(id int64) int {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	total := 0
	for _, n := range e.store.st.owned[id] {
		total += n
	}
	return total
}

func (e *env) records() []model.TribulationRecord {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	out := slices.Collect(maps.Values(e.store.st.records))
	slices.SortFunc(out, func(a, b model.TribulationRecord) int {
		return cmp.Compare(a.AttemptedAt.UnixNano(), b.AttemptedAt.UnixNano())
	})
	return out
}

func stack(itemID int32, qty int64) model.ItemStack {
	return model.ItemStack{ItemID: itemID, Quantity: qty}
}

// coreFormationItems is the full item set required by the core formation gate.
func coreFormationItems() []model.ItemStack {
	return []model.ItemStack{stack(data.ItemGoldenCorePill, 1), stack(data.ItemLightningWard, 3)}
}
