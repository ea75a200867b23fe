package index

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/telmaren/mailbase/internal/model"
	"github.com/telmaren/mailbase/internal/repository"
)

type fakeMirror struct {
	inserts []model.MessageMetadata
	updates []model.UpdatedFlags
	deletes []model.UID

	failFirst int // fail this many write calls before succeeding
	calls     int
}

var _ repository.UIDIndex = (*fakeMirror)(nil)

func (f *fakeMirror) write() error {
	f.calls++
	if f.calls <= f.failFirst {
		return errors.New("mirror down")
	}
	return nil
}

func (f *fakeMirror) Insert(_ context.Context, m model.MessageMetadata) error {
	if err := f.write(); err != nil {
		return err
	}
	f.inserts = append(f.inserts, m)
	return nil
}

func (f *fakeMirror) Update(_ context.Context, _ uuid.UUID, upd model.UpdatedFlags) error {
	if err := f.write(); err != nil {
		return err
	}
	f.updates = append(f.updates, upd)
	return nil
}

func (f *fakeMirror) Delete(_ context.Context, _ uuid.UUID, uid model.UID) error {
	if err := f.write(); err != nil {
		return err
	}
	f.deletes = append(f.deletes, uid)
	return nil
}

func (f *fakeMirror) List(_ context.Context, _ uuid.UUID, _ model.MessageRange, _ int) ([]model.MessageMetadata, error) {
	return nil, nil
}

func (f *fakeMirror) ListUIDs(_ context.Context, _ uuid.UUID, _ func(model.UID) error) error {
	return nil
}

type fakeUIDSet struct {
	added   []model.UID
	removed []model.UID
	err     error
}

func (f *fakeUIDSet) Add(_ context.Context, _ uuid.UUID, uid model.UID) error {
	f.added = append(f.added, uid)
	return f.err
}

func (f *fakeUIDSet) Remove(_ context.Context, _ uuid.UUID, uid model.UID) error {
	f.removed = append(f.removed, uid)
	return f.err
}

type fakeRecents struct{ fakeUIDSet }

var _ repository.RecentsIndex = (*fakeRecents)(nil)

func (f *fakeRecents) List(_ context.Context, _ uuid.UUID) ([]model.UID, error) { return nil, nil }

type fakeFirstUnseen struct{ fakeUIDSet }

var _ repository.FirstUnseenIndex = (*fakeFirstUnseen)(nil)

func (f *fakeFirstUnseen) First(_ context.Context, _ uuid.UUID) (model.UID, bool, error) {
	return 0, false, nil
}

type fakeDeleted struct{ fakeUIDSet }

var _ repository.DeletedIndex = (*fakeDeleted)(nil)

func (f *fakeDeleted) List(_ context.Context, _ uuid.UUID, _ model.MessageRange) ([]model.UID, error) {
	return nil, nil
}

type fakeApplicable struct {
	unions []model.Flags
	err    error
}

var _ repository.ApplicableFlagsIndex = (*fakeApplicable)(nil)

func (f *fakeApplicable) Union(_ context.Context, _ uuid.UUID, flags model.Flags) error {
	f.unions = append(f.unions, flags)
	return f.err
}

func (f *fakeApplicable) Retrieve(_ context.Context, _ uuid.UUID) (model.Flags, error) {
	return nil, nil
}

type fakeCounters struct {
	adjusts   [][2]int64
	adjustErr error
}

var _ repository.CounterStore = (*fakeCounters)(nil)

func (f *fakeCounters) Retrieve(_ context.Context, mailboxID uuid.UUID) (model.MailboxCounters, error) {
	return model.EmptyCounters(mailboxID), nil
}

func (f *fakeCounters) Adjust(_ context.Context, _ uuid.UUID, deltaTotal, deltaUnseen int64) error {
	f.adjusts = append(f.adjusts, [2]int64{deltaTotal, deltaUnseen})
	return f.adjustErr
}

func (f *fakeCounters) Store(_ context.Context, _ model.MailboxCounters) error { return nil }

type fixture struct {
	mirror      *fakeMirror
	recents     *fakeRecents
	firstUnseen *fakeFirstUnseen
	applicable  *fakeApplicable
	deleted     *fakeDeleted
	counters    *fakeCounters
	m           *Maintainer
}

func newFixture() *fixture {
	f := &fixture{
		mirror:      &fakeMirror{},
		recents:     &fakeRecents{},
		firstUnseen: &fakeFirstUnseen{},
		applicable:  &fakeApplicable{},
		deleted:     &fakeDeleted{},
		counters:    &fakeCounters{},
	}
	f.m = NewMaintainer(Stores{
		Mirror:      f.mirror,
		Recents:     f.recents,
		FirstUnseen: f.firstUnseen,
		Applicable:  f.applicable,
		Deleted:     f.deleted,
		Counters:    f.counters,
	}, zap.NewNop())
	f.m.firstBackoff = time.Millisecond
	f.m.maxBackoff = time.Millisecond
	return f
}

func meta(mailboxID uuid.UUID, uid model.UID, flags ...string) model.MessageMetadata {
	return model.MessageMetadata{
		MessageIdentity: model.MessageIdentity{
			MailboxID: mailboxID,
			UID:       uid,
			MessageID: uuid.Must(uuid.NewV4()),
		},
		Flags:  model.NewFlags(flags...),
		ModSeq: 1,
	}
}

func TestMaintainer_OnAdd_FansOut(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	mailboxID := uuid.Must(uuid.NewV4())

	err := f.m.OnAdd(ctx, mailboxID, []model.MessageMetadata{
		meta(mailboxID, 1, model.FlagRecent, model.FlagDeleted),
	})
	if err != nil {
		t.Fatalf("OnAdd: %v", err)
	}
	if len(f.mirror.inserts) != 1 || f.mirror.inserts[0].UID != 1 {
		t.Fatalf("mirror inserts: %+v", f.mirror.inserts)
	}
	if len(f.firstUnseen.added) != 1 || f.firstUnseen.added[0] != 1 {
		t.Fatalf("first unseen adds: %v", f.firstUnseen.added)
	}
	if len(f.recents.added) != 1 || len(f.deleted.added) != 1 {
		t.Fatalf("recents=%v deleted=%v", f.recents.added, f.deleted.added)
	}
	if len(f.counters.adjusts) != 1 || f.counters.adjusts[0] != [2]int64{1, 1} {
		t.Fatalf("counter adjusts: %v", f.counters.adjusts)
	}
	if len(f.applicable.unions) != 1 || f.applicable.unions[0].Has(model.FlagRecent) {
		t.Fatalf("applicable must never record \\Recent: %v", f.applicable.unions)
	}
	if !f.applicable.unions[0].Has(model.FlagDeleted) {
		t.Fatalf("applicable lost a flag: %v", f.applicable.unions)
	}
}

func TestMaintainer_OnAdd_SeenMessageSkipsUnseen(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	mailboxID := uuid.Must(uuid.NewV4())

	if err := f.m.OnAdd(ctx, mailboxID, []model.MessageMetadata{meta(mailboxID, 2, model.FlagSeen)}); err != nil {
		t.Fatalf("OnAdd: %v", err)
	}
	if len(f.firstUnseen.added) != 0 {
		t.Fatalf("seen message must not enter first unseen: %v", f.firstUnseen.added)
	}
	if f.counters.adjusts[0] != [2]int64{1, 0} {
		t.Fatalf("counter adjusts: %v", f.counters.adjusts)
	}
}

func TestMaintainer_OnAdd_BatchedCounterDelta(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	mailboxID := uuid.Must(uuid.NewV4())

	err := f.m.OnAdd(ctx, mailboxID, []model.MessageMetadata{
		meta(mailboxID, 1),
		meta(mailboxID, 2, model.FlagSeen),
		meta(mailboxID, 3),
	})
	if err != nil {
		t.Fatalf("OnAdd: %v", err)
	}
	if len(f.counters.adjusts) != 1 {
		t.Fatalf("counter writes must be batched, got %d", len(f.counters.adjusts))
	}
	if f.counters.adjusts[0] != [2]int64{3, 2} {
		t.Fatalf("counter adjusts: %v", f.counters.adjusts)
	}
}

func TestMaintainer_OnAdd_MirrorRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.mirror.failFirst = 2
	ctx := context.Background()
	mailboxID := uuid.Must(uuid.NewV4())

	if err := f.m.OnAdd(ctx, mailboxID, []model.MessageMetadata{meta(mailboxID, 1)}); err != nil {
		t.Fatalf("OnAdd after transient mirror failures: %v", err)
	}
	if f.mirror.calls != 3 {
		t.Fatalf("mirror calls want 3, got %d", f.mirror.calls)
	}
	if len(f.mirror.inserts) != 1 {
		t.Fatalf("mirror inserts: %+v", f.mirror.inserts)
	}
}

func TestMaintainer_OnAdd_MirrorExhaustedPropagates(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.m.maxRetries = 2
	f.mirror.failFirst = 100
	ctx := context.Background()
	mailboxID := uuid.Must(uuid.NewV4())

	err := f.m.OnAdd(ctx, mailboxID, []model.MessageMetadata{meta(mailboxID, 1)})
	if err == nil {
		t.Fatalf("want error after mirror retry exhaustion")
	}
	if f.mirror.calls != 3 {
		t.Fatalf("mirror calls want 1+2 retries, got %d", f.mirror.calls)
	}
	if len(f.counters.adjusts) != 0 {
		t.Fatalf("projections must not run after mirror failure: %v", f.counters.adjusts)
	}
}

func TestMaintainer_OnAdd_ProjectionFailuresSwallowed(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.recents.err = errors.New("recents down")
	f.firstUnseen.err = errors.New("unseen down")
	f.applicable.err = errors.New("applicable down")
	f.deleted.err = errors.New("deleted down")
	f.counters.adjustErr = errors.New("counters down")
	ctx := context.Background()
	mailboxID := uuid.Must(uuid.NewV4())

	err := f.m.OnAdd(ctx, mailboxID, []model.MessageMetadata{
		meta(mailboxID, 1, model.FlagRecent, model.FlagDeleted),
	})
	if err != nil {
		t.Fatalf("projection failures must not surface: %v", err)
	}
}

func TestMaintainer_OnFlagsUpdate_SeenToggle(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	mailboxID := uuid.Must(uuid.NewV4())

	err := f.m.OnFlagsUpdate(ctx, mailboxID, []model.UpdatedFlags{{
		UID:      4,
		ModSeq:   9,
		OldFlags: nil,
		NewFlags: model.NewFlags(model.FlagSeen),
	}})
	if err != nil {
		t.Fatalf("OnFlagsUpdate: %v", err)
	}
	if len(f.mirror.updates) != 1 || f.mirror.updates[0].UID != 4 {
		t.Fatalf("mirror updates: %+v", f.mirror.updates)
	}
	if len(f.firstUnseen.removed) != 1 || f.firstUnseen.removed[0] != 4 {
		t.Fatalf("first unseen removes: %v", f.firstUnseen.removed)
	}
	if f.counters.adjusts[0] != [2]int64{0, -1} {
		t.Fatalf("counter adjusts: %v", f.counters.adjusts)
	}

	err = f.m.OnFlagsUpdate(ctx, mailboxID, []model.UpdatedFlags{{
		UID:      4,
		ModSeq:   10,
		OldFlags: model.NewFlags(model.FlagSeen),
		NewFlags: nil,
	}})
	if err != nil {
		t.Fatalf("OnFlagsUpdate: %v", err)
	}
	if len(f.firstUnseen.added) != 1 || f.counters.adjusts[1] != [2]int64{0, 1} {
		t.Fatalf("unsetting \\Seen: adds=%v adjusts=%v", f.firstUnseen.added, f.counters.adjusts)
	}
}

func TestMaintainer_OnFlagsUpdate_RecentAndDeletedToggles(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	mailboxID := uuid.Must(uuid.NewV4())

	err := f.m.OnFlagsUpdate(ctx, mailboxID, []model.UpdatedFlags{
		{UID: 1, ModSeq: 5, OldFlags: nil, NewFlags: model.NewFlags(model.FlagRecent, model.FlagDeleted)},
		{UID: 2, ModSeq: 5, OldFlags: model.NewFlags(model.FlagRecent, model.FlagDeleted), NewFlags: nil},
	})
	if err != nil {
		t.Fatalf("OnFlagsUpdate: %v", err)
	}
	if len(f.recents.added) != 1 || f.recents.added[0] != 1 || len(f.recents.removed) != 1 || f.recents.removed[0] != 2 {
		t.Fatalf("recents: added=%v removed=%v", f.recents.added, f.recents.removed)
	}
	if len(f.deleted.added) != 1 || f.deleted.added[0] != 1 || len(f.deleted.removed) != 1 || f.deleted.removed[0] != 2 {
		t.Fatalf("deleted: added=%v removed=%v", f.deleted.added, f.deleted.removed)
	}
}

func TestMaintainer_OnFlagsUpdate_UnchangedFlagsTouchNothing(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	mailboxID := uuid.Must(uuid.NewV4())

	flags := model.NewFlags(model.FlagSeen, model.FlagFlagged)
	err := f.m.OnFlagsUpdate(ctx, mailboxID, []model.UpdatedFlags{
		{UID: 7, ModSeq: 8, OldFlags: flags, NewFlags: flags},
	})
	if err != nil {
		t.Fatalf("OnFlagsUpdate: %v", err)
	}
	if len(f.firstUnseen.added)+len(f.firstUnseen.removed)+len(f.recents.added)+len(f.recents.removed) != 0 {
		t.Fatalf("no projection membership should change")
	}
	if f.counters.adjusts[0] != [2]int64{0, 0} {
		t.Fatalf("counter adjusts: %v", f.counters.adjusts)
	}
}

func TestMaintainer_OnDelete_RemovesEverywhere(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	mailboxID := uuid.Must(uuid.NewV4())

	err := f.m.OnDelete(ctx, mailboxID, []model.MessageMetadata{
		meta(mailboxID, 1, model.FlagSeen),
		meta(mailboxID, 2),
	})
	if err != nil {
		t.Fatalf("OnDelete: %v", err)
	}
	if len(f.mirror.deletes) != 2 {
		t.Fatalf("mirror deletes: %v", f.mirror.deletes)
	}
	if len(f.firstUnseen.removed) != 2 || len(f.recents.removed) != 2 || len(f.deleted.removed) != 2 {
		t.Fatalf("projection removals must be unconditional")
	}
	if f.counters.adjusts[0] != [2]int64{-2, -1} {
		t.Fatalf("counter adjusts: %v", f.counters.adjusts)
	}
}

func TestMaintainer_OnDelete_MirrorFailurePropagates(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.m.maxRetries = 1
	f.mirror.failFirst = 100
	ctx := context.Background()
	mailboxID := uuid.Must(uuid.NewV4())

	if err := f.m.OnDelete(ctx, mailboxID, []model.MessageMetadata{meta(mailboxID, 1)}); err == nil {
		t.Fatalf("want mirror delete failure to propagate")
	}
	if len(f.counters.adjusts) != 0 {
		t.Fatalf("projections must not run after mirror failure")
	}
}
