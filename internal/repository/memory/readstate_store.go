package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
)

type unreadKey struct {
	reader uuid.UUID
	scope  domain.Scope
}

type notificationKey struct {
	user    uuid.UUID
	message uuid.UUID
	kind    domain.NotificationKind
}

type readStateData struct {
	states        map[unreadKey]domain.UnreadState
	marks         map[unreadKey]map[uuid.UUID]struct{}
	notifications map[uuid.UUID]domain.Notification
	byKey         map[notificationKey]uuid.UUID

	// undo is set while a write transaction runs.
	undo *undoLog
}

func newReadStateData() *readStateData {
	return &readStateData{
		states:        make(map[unreadKey]domain.UnreadState),
		marks:         make(map[unreadKey]map[uuid.UUID]struct{}),
		notifications: make(map[uuid.UUID]domain.Notification),
		byKey:         make(map[notificationKey]uuid.UUID),
	}
}

// undoLog holds the value every touched key had before the transaction
// began. A nil entry means the key did not exist.
type undoLog struct {
	states        map[unreadKey]*domain.UnreadState
	marks         map[unreadKey]map[uuid.UUID]struct{}
	notifications map[uuid.UUID]*domain.Notification
	byKey         map[notificationKey]*uuid.UUID
}

func newUndoLog() *undoLog {
	return &undoLog{
		states:        make(map[unreadKey]*domain.UnreadState),
		marks:         make(map[unreadKey]map[uuid.UUID]struct{}),
		notifications: make(map[uuid.UUID]*domain.Notification),
		byKey:         make(map[notificationKey]*uuid.UUID),
	}
}

func (d *readStateData) touchState(key unreadKey) {
	if d.undo == nil {
		return
	}
	if _, seen := d.undo.states[key]; seen {
		return
	}
	var prev *domain.UnreadState
	if st, ok := d.states[key]; ok {
		prev = &st
	}
	d.undo.states[key] = prev
}

// touchMarks copies the mark set, which is changed in place.
func (d *readStateData) touchMarks(key unreadKey) {
	if d.undo == nil {
		return
	}
	if _, seen := d.undo.marks[key]; seen {
		return
	}
	var prev map[uuid.UUID]struct{}
	if set, ok := d.marks[key]; ok {
		prev = make(map[uuid.UUID]struct{}, len(set))
		maps.Copy(prev, set)
	}
	d.undo.marks[key] = prev
}

func (d *readStateData) touchNotification(id uuid.UUID) {
	if d.undo == nil {
		return
	}
	if _, seen := d.undo.notifications[id]; seen {
		return
	}
	var prev *domain.Notification
	if n, ok := d.notifications[id]; ok {
		prev = &n
	}
	d.undo.notifications[id] = prev
}

func (d *readStateData) touchKey(key notificationKey) {
	if d.undo == nil {
		return
	}
	if _, seen := d.undo.byKey[key]; seen {
		return
	}
	var prev *uuid.UUID
	if id, ok := d.byKey[key]; ok {
		prev = &id
	}
	d.undo.byKey[key] = prev
}

func (d *readStateData) rollback() {
	u := d.undo
	for key, prev := range u.states {
		if prev == nil {
			delete(d.states, key)
		} else {
			d.states[key] = *prev
		}
	}
	for key, prev := range u.marks {
		if prev == nil {
			delete(d.marks, key)
		} else {
			d.marks[key] = prev
		}
	}
	for id, prev := range u.notifications {
		if prev == nil {
			delete(d.notifications, id)
		} else {
			d.notifications[id] = *prev
		}
	}
	for key, prev := range u.byKey {
		if prev == nil {
			delete(d.byKey, key)
		} else {
			d.byKey[key] = *prev
		}
	}
}

// ReadStateStore serializes every transaction behind one lock. A failed
// transaction puts back what it touched.
type ReadStateStore struct {
	mu   sync.Mutex
	data *readStateData
}

func NewReadStateStore() *ReadStateStore {
	return &ReadStateStore{data: newReadStateData()}
}

func (s *ReadStateStore) WithinTx(ctx context.Context, fn func(tx repository.ReadStateTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.undo = newUndoLog()
	defer func() { s.data.undo = nil }()

	if err := fn(&readStateTx{d: s.data}); err != nil {
		s.data.rollback()
		return err
	}
	return nil
}

func (s *ReadStateStore) Read(ctx context.Context, fn func(tx repository.ReadStateTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&readStateTx{d: s.data})
}

type readStateTx struct {
	d *readStateData
}

func (t *readStateTx) Unread() repository.UnreadRepository {
	return &unreadRepo{d: t.d}
}

func (t *readStateTx) Notifications() repository.NotificationRepository {
	return &notificationRepo{d: t.d}
}

type unreadRepo struct {
	d *readStateData
}

func (r *unreadRepo) Get(_ context.Context, readerID uuid.UUID, scope domain.Scope) (*domain.UnreadState, error) {
	st, ok := r.d.states[unreadKey{reader: readerID, scope: scope}]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (r *unreadRepo) row(key unreadKey) domain.UnreadState {
	st, ok := r.d.states[key]
	if !ok {
		st = domain.UnreadState{ReaderID: key.reader, Scope: key.scope}
	}
	return st
}

func (r *unreadRepo) Mark(_ context.Context, readerID uuid.UUID, scope domain.Scope, workspaceID *uuid.UUID, messageID uuid.UUID) (bool, error) {
	key := unreadKey{reader: readerID, scope: scope}
	r.d.touchState(key)
	r.d.touchMarks(key)
	st := r.row(key)
	if st.WorkspaceID == nil && workspaceID != nil {
		ws := *workspaceID
		st.WorkspaceID = &ws
	}
	r.d.states[key] = st

	if st.HasRead(messageID) {
		return false, nil
	}
	set, ok := r.d.marks[key]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		r.d.marks[key] = set
	}
	if _, dup := set[messageID]; dup {
		return false, nil
	}
	set[messageID] = struct{}{}
	st.Count = len(set)
	r.d.states[key] = st
	return true, nil
}

func (r *unreadRepo) ClearUpTo(_ context.Context, readerID uuid.UUID, scope domain.Scope, upto uuid.UUID, at time.Time) (*domain.UnreadState, error) {
	key := unreadKey{reader: readerID, scope: scope}
	r.d.touchState(key)
	r.d.touchMarks(key)
	st := r.row(key)

	set := r.d.marks[key]
	for id := range set {
		if domain.CompareMessageIDs(id, upto) <= 0 {
			delete(set, id)
		}
	}
	if len(set) == 0 {
		delete(r.d.marks, key)
	}
	st.Count = len(set)

	if st.LastReadMessageID == nil || domain.CompareMessageIDs(upto, *st.LastReadMessageID) > 0 {
		pointer := upto
		st.LastReadMessageID = &pointer
	}
	st.LastReadAt = &at
	r.d.states[key] = st
	return &st, nil
}

func (r *unreadRepo) ListUnread(_ context.Context, readerID uuid.UUID, workspaceID *uuid.UUID) ([]domain.UnreadState, error) {
	var out []domain.UnreadState
	for key, st := range r.d.states {
		if key.reader != readerID || st.Count <= 0 {
			continue
		}
		if workspaceID != nil && (st.WorkspaceID == nil || *st.WorkspaceID != *workspaceID) {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope.String() < out[j].Scope.String() })
	return out, nil
}

func (r *unreadRepo) DeleteScope(_ context.Context, scope domain.Scope) error {
	for key := range r.d.states {
		if key.scope == scope {
			r.d.touchState(key)
			r.d.touchMarks(key)
			delete(r.d.states, key)
			delete(r.d.marks, key)
		}
	}
	return nil
}

type notificationRepo struct {
	d *readStateData
}

func (r *notificationRepo) Create(_ context.Context, n *domain.Notification) (bool, error) {
	key := notificationKey{user: n.UserID, message: n.MessageID, kind: n.Kind}
	if _, dup := r.d.byKey[key]; dup {
		return false, nil
	}
	r.d.touchKey(key)
	r.d.touchNotification(n.ID)
	r.d.byKey[key] = n.ID
	r.d.notifications[n.ID] = *n
	return true, nil
}

func (r *notificationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Notification, error) {
	n, ok := r.d.notifications[id]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

func (r *notificationRepo) ListByUser(_ context.Context, userID uuid.UUID, onlyUnread bool, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	for _, n := range r.d.notifications {
		if n.UserID != userID || (onlyUnread && n.Read) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := domain.CompareMessageIDs(out[i].MessageID, out[j].MessageID); c != 0 {
			return c > 0
		}
		return out[i].Kind < out[j].Kind
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *notificationRepo) MarkRead(_ context.Context, id uuid.UUID) error {
	n, ok := r.d.notifications[id]
	if !ok {
		return nil
	}
	r.d.touchNotification(id)
	n.Read = true
	r.d.notifications[id] = n
	return nil
}

func (r *notificationRepo) MarkReadUpTo(_ context.Context, userID uuid.UUID, scope domain.Scope, upto uuid.UUID) (int, error) {
	changed := 0
	for id, n := range r.d.notifications {
		if n.Read || n.UserID != userID || n.Scope() != scope {
			continue
		}
		if domain.CompareMessageIDs(n.MessageID, upto) > 0 {
			continue
		}
		r.d.touchNotification(id)
		n.Read = true
		r.d.notifications[id] = n
		changed++
	}
	return changed, nil
}

func (r *notificationRepo) DeleteByScope(_ context.Context, scope domain.Scope) error {
	for id, n := range r.d.notifications {
		if n.Scope() == scope {
			key := notificationKey{user: n.UserID, message: n.MessageID, kind: n.Kind}
			r.d.touchNotification(id)
			r.d.touchKey(key)
			delete(r.d.notifications, id)
			delete(r.d.byKey, key)
		}
	}
	return nil
}
