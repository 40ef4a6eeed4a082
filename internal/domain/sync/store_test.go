package sync

import (
	"context"
	"maps"
	"slices"
)

// memStore хранилище узла в памяти: WithinTx работает с копией и подменяет состояние только при успехе
type memStore struct {
	state *memState
	// failOn ошибка, которую вернет операция с таким именем
	failOn map[string]error
}

type memState struct {
	caps  Capabilities
	users map[int64]User
	evts  map[int64]Event
	regs  map[int64]Registration
	certs map[int64]Certificate
}

func newMemStore() *memStore {
	return &memStore{
		state: &memState{
			caps:  Capabilities{SchemaVersion: 4, CertificatePDFPath: true, CertificateMetadata: true},
			users: map[int64]User{},
			evts:  map[int64]Event{},
			regs:  map[int64]Registration{},
			certs: map[int64]Certificate{},
		},
		failOn: map[string]error{},
	}
}

func (s *memState) clone() *memState {
	return &memState{
		caps:  s.caps,
		users: maps.Clone(s.users),
		evts:  maps.Clone(s.evts),
		regs:  maps.Clone(s.regs),
		certs: maps.Clone(s.certs),
	}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	work := m.state.clone()
	if err := fn(ctx, &memTx{s: work, failOn: m.failOn}); err != nil {
		return err
	}
	m.state = work
	return nil
}

type memTx struct {
	s      *memState
	failOn map[string]error
}

func (t *memTx) fail(op string) error {
	return t.failOn[op]
}

func sortedValues[T any](m map[int64]T) []T {
	keys := slices.Sorted(maps.Keys(m))
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func nextID[T any](m map[int64]T) int64 {
	var top int64
	for id := range m {
		if id > top {
			top = id
		}
	}
	return top + 1
}

func (t *memTx) Capabilities(context.Context) (Capabilities, error) {
	return t.s.caps, nil
}

func (t *memTx) ListUsers(context.Context) ([]User, error) {
	return sortedValues(t.s.users), nil
}

func (t *memTx) FindUserByCPF(_ context.Context, cpf string) (*User, error) {
	for _, u := range t.s.users {
		if u.CPF == cpf {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) FindUserByID(_ context.Context, id int64) (*User, error) {
	u, ok := t.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (t *memTx) InsertUser(_ context.Context, u *User) error {
	if err := t.fail("InsertUser"); err != nil {
		return err
	}
	if u.ID == 0 {
		u.ID = nextID(t.s.users)
	}
	t.s.users[u.ID] = *u
	return nil
}

func (t *memTx) UpdateUser(_ context.Context, u User) error {
	if _, ok := t.s.users[u.ID]; !ok {
		return ErrNotFound
	}
	t.s.users[u.ID] = u
	return nil
}

func (t *memTx) RemapUserID(_ context.Context, from, to int64) error {
	u := t.s.users[from]
	delete(t.s.users, from)
	u.ID = to
	t.s.users[to] = u

	for id, r := range t.s.regs {
		if r.UserID == from {
			r.UserID = to
			t.s.regs[id] = r
		}
	}
	for id, c := range t.s.certs {
		if c.UserID != nil && *c.UserID == from {
			c.UserID = &to
			t.s.certs[id] = c
		}
	}
	return nil
}

func (t *memTx) ListEvents(context.Context) ([]Event, error) {
	return sortedValues(t.s.evts), nil
}

func (t *memTx) FindEvent(_ context.Context, id int64) (*Event, error) {
	e, ok := t.s.evts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (t *memTx) InsertEvent(_ context.Context, e *Event) error {
	if err := t.fail("InsertEvent"); err != nil {
		return err
	}
	t.s.evts[e.ID] = *e
	return nil
}

func (t *memTx) UpdateEvent(_ context.Context, e Event) error {
	t.s.evts[e.ID] = e
	return nil
}

func (t *memTx) ListRegistrations(context.Context) ([]Registration, error) {
	return sortedValues(t.s.regs), nil
}

func (t *memTx) FindRegistration(_ context.Context, eventID, userID int64) (*Registration, error) {
	for _, r := range sortedValues(t.s.regs) {
		if r.EventID == eventID && r.UserID == userID {
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) RegistrationIDExists(_ context.Context, id int64) (bool, error) {
	_, ok := t.s.regs[id]
	return ok, nil
}

func (t *memTx) InsertRegistration(_ context.Context, r *Registration) error {
	if r.ID == 0 {
		r.ID = nextID(t.s.regs)
	}
	t.s.regs[r.ID] = *r
	return nil
}

func (t *memTx) UpdateRegistration(_ context.Context, r Registration) error {
	t.s.regs[r.ID] = r
	return nil
}

func (t *memTx) ListCertificates(_ context.Context, caps Capabilities) ([]Certificate, error) {
	out := sortedValues(t.s.certs)
	for i := range out {
		out[i] = gateCertificate(out[i], caps)
	}
	return out, nil
}

func (t *memTx) FindCertificate(_ context.Context, id int64, caps Capabilities) (*Certificate, error) {
	c, ok := t.s.certs[id]
	if !ok {
		return nil, ErrNotFound
	}
	c = gateCertificate(c, caps)
	return &c, nil
}

func (t *memTx) InsertCertificate(_ context.Context, c *Certificate, caps Capabilities) error {
	t.s.certs[c.ID] = gateCertificate(*c, caps)
	return nil
}

func (t *memTx) UpdateCertificate(_ context.Context, c Certificate, caps Capabilities) error {
	t.s.certs[c.ID] = gateCertificate(c, caps)
	return nil
}

func (t *memTx) SyncSequences(context.Context) error {
	return t.fail("SyncSequences")
}

// gateCertificate отбрасывает колонки, которых нет в схеме
func gateCertificate(c Certificate, caps Capabilities) Certificate {
	if !caps.CertificatePDFPath {
		c.PDFPath = nil
	}
	if !caps.CertificateMetadata {
		c.Metadata = nil
	}
	return c
}
