package sync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

// loopbackPeer отдает снимок сервису другого узла через JSON, как по сети
type loopbackPeer struct {
	remote *Service
	calls  int
}

func (p *loopbackPeer) Exchange(ctx context.Context, req FullSyncRequest) (*FullSyncResponse, error) {
	p.calls++
	var wire FullSyncRequest
	if err := roundTripJSON(req, &wire); err != nil {
		return nil, err
	}
	resp, err := p.remote.Receive(ctx, wire)
	if err != nil {
		return nil, &TransportError{StatusCode: 500, Err: err}
	}
	var out FullSyncResponse
	if err := roundTripJSON(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func roundTripJSON(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

type stubPeer struct {
	resp *FullSyncResponse
	err  error
}

func (p *stubPeer) Exchange(context.Context, FullSyncRequest) (*FullSyncResponse, error) {
	return p.resp, p.err
}

// MockHistory is a mock implementation of HistoryRepository
type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) SaveSession(ctx context.Context, s Summary) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockHistory) LastSession(ctx context.Context, role Role) (*Summary, error) {
	args := m.Called(ctx, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Summary), args.Error(1)
}

func newTestService(store Store, peer Peer, history HistoryRepository) *Service {
	return NewService(store, peer, history, slog.Default(), &ServiceConfig{Now: fixedNow})
}

func seedNodeA(s *memStore) {
	s.state.users[1] = User{ID: 1, CPF: "11111111111", Name: str("Ana"), Completed: boolPtr(false), CreatedAt: ts(t1), UpdatedAt: ts(t1)}
	s.state.evts[1] = Event{ID: 1, Title: str("Opening"), StartAt: ts(t1), IsAllDay: boolPtr(false), IsPublic: boolPtr(true), CreatedAt: ts(t1), UpdatedAt: ts(t1)}
	s.state.regs[1] = Registration{ID: 1, EventID: 1, UserID: 1, Status: str(StatusConfirmed), CreatedAt: ts(t1), UpdatedAt: ts(t1)}
	s.state.certs[1] = Certificate{ID: 1, UserID: i64(1), EventID: i64(1), Code: str("CERT-1"), Metadata: str(`{"hours":4}`), CreatedAt: ts(t1), UpdatedAt: ts(t1)}
}

func seedNodeB(s *memStore) {
	// id 1 занят другим cpf
	s.state.users[1] = User{ID: 1, CPF: "22222222222", Name: str("Bia"), Completed: boolPtr(true), CreatedAt: ts(t1), UpdatedAt: ts(t1)}
	s.state.evts[2] = Event{ID: 2, Title: str("Closing"), StartAt: ts(t2), IsAllDay: boolPtr(true), IsPublic: boolPtr(true), CreatedAt: ts(t1), UpdatedAt: ts(t1)}
	s.state.regs[1] = Registration{ID: 1, EventID: 2, UserID: 1, Status: str(StatusPending), CreatedAt: ts(t1), UpdatedAt: ts(t1)}
}

func userByCPF(t *testing.T, s *memStore, cpf string) User {
	t.Helper()
	for _, u := range s.state.users {
		if u.CPF == cpf {
			return u
		}
	}
	t.Fatalf("user %s not found", cpf)
	return User{}
}

func TestService_RoundTrip(t *testing.T) {
	storeA, storeB := newMemStore(), newMemStore()
	seedNodeA(storeA)
	seedNodeB(storeB)

	responder := newTestService(storeB, nil, nil)
	initiator := newTestService(storeA, &loopbackPeer{remote: responder}, nil)

	summary, err := initiator.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateCommitted, summary.State)
	assert.Equal(t, 4, summary.Sent)
	assert.Equal(t, now.Format(time.RFC3339), summary.ServerTime)

	for _, s := range []*memStore{storeA, storeB} {
		assert.Len(t, s.state.users, 2)
		assert.Len(t, s.state.evts, 2)
		assert.Len(t, s.state.regs, 2)
		assert.Len(t, s.state.certs, 1)
	}

	// Ana на узле B получила новый id, ссылки переведены
	anaOnB := userByCPF(t, storeB, "11111111111")
	assert.NotEqual(t, int64(1), anaOnB.ID)
	reg, err := (&memTx{s: storeB.state}).FindRegistration(context.Background(), 1, anaOnB.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, *reg.Status)
	assert.Equal(t, anaOnB.ID, *storeB.state.certs[1].UserID)

	// Bia на узле A сохранила completed
	biaOnA := userByCPF(t, storeA, "22222222222")
	assert.True(t, *biaOnA.Completed)
	regBia, err := (&memTx{s: storeA.state}).FindRegistration(context.Background(), 2, biaOnA.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, *regBia.Status)

	// metadata передан, так как обе схемы его поддерживают
	assert.Equal(t, `{"hours":4}`, *storeB.state.certs[1].Metadata)
}

func TestService_RoundTrip_Idempotent(t *testing.T) {
	storeA, storeB := newMemStore(), newMemStore()
	seedNodeA(storeA)
	seedNodeB(storeB)

	responder := newTestService(storeB, nil, nil)
	initiator := newTestService(storeA, &loopbackPeer{remote: responder}, nil)

	_, err := initiator.Run(context.Background())
	require.NoError(t, err)

	second, err := initiator.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Stats.Mutations())

	last, err := responder.LastSummary(context.Background(), RoleResponder)
	require.NoError(t, err)
	assert.Zero(t, last.Stats.Mutations())
}

func TestService_RoundTrip_NewerSideTakesMissingFields(t *testing.T) {
	storeA, storeB := newMemStore(), newMemStore()
	storeA.state.users[1] = User{ID: 1, CPF: "11111111111", Name: str("Ana"), Email: str("ana@x"), UpdatedAt: ts(t1)}
	storeB.state.users[1] = User{ID: 1, CPF: "11111111111", Phone: str("555"), UpdatedAt: ts(t2)}

	responder := newTestService(storeB, nil, nil)
	initiator := newTestService(storeA, &loopbackPeer{remote: responder}, nil)

	_, err := initiator.Run(context.Background())
	require.NoError(t, err)

	for _, s := range []*memStore{storeA, storeB} {
		u := s.state.users[1]
		assert.Equal(t, str("Ana"), u.Name)
		assert.Equal(t, str("ana@x"), u.Email)
		assert.Equal(t, str("555"), u.Phone)
		assert.True(t, t2.Equal(*u.UpdatedAt))
	}

	second, err := initiator.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Stats.Mutations())
}

func TestService_Receive_RemapCascades(t *testing.T) {
	store := newMemStore()
	store.state.users[5] = User{ID: 5, CPF: "33333333333", Name: str("Caio"), UpdatedAt: ts(t1)}
	store.state.evts[1] = Event{ID: 1, Title: str("Talk"), StartAt: ts(t1), UpdatedAt: ts(t1)}
	store.state.regs[1] = Registration{ID: 1, EventID: 1, UserID: 5, Status: str(StatusConfirmed), UpdatedAt: ts(t1)}
	store.state.certs[3] = Certificate{ID: 3, UserID: i64(5), EventID: i64(1), UpdatedAt: ts(t1)}

	svc := newTestService(store, nil, nil)
	_, err := svc.Receive(context.Background(), FullSyncRequest{
		Users: []UserDTO{{ID: i64(7), CPF: "333.333.333-33", UpdatedAt: FormatTimestamp(ts(t1))}},
	})
	require.NoError(t, err)

	_, oldExists := store.state.users[5]
	assert.False(t, oldExists)
	assert.Equal(t, "Caio", *store.state.users[7].Name)
	assert.Equal(t, int64(7), store.state.regs[1].UserID)
	assert.Equal(t, int64(7), *store.state.certs[3].UserID)
}

func TestService_Receive_SkipsRows(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil, nil)

	resp, err := svc.Receive(context.Background(), FullSyncRequest{
		Users:        []UserDTO{{CPF: "..."}},
		Certificates: []CertificateDTO{{ID: 9, EventID: i64(5)}},
	})
	require.NoError(t, err)

	assert.Empty(t, store.state.users)
	assert.Empty(t, store.state.certs)
	assert.Empty(t, resp.Users)
	assert.NotNil(t, resp.Certificates)

	last, err := svc.LastSummary(context.Background(), RoleResponder)
	require.NoError(t, err)
	assert.Equal(t, 1, last.Stats.Users.Skipped)
	assert.Equal(t, 1, last.Stats.Certificates.Skipped)
}

func TestService_Receive_InvalidSnapshot(t *testing.T) {
	tests := []struct {
		name string
		req  FullSyncRequest
	}{
		{name: "event without id", req: FullSyncRequest{Events: []EventDTO{{Title: str("x")}}}},
		{name: "unknown status", req: FullSyncRequest{Registrations: []RegistrationDTO{{EventID: 1, UserID: 1, Status: str("maybe")}}}},
		{name: "user without cpf", req: FullSyncRequest{Users: []UserDTO{{Name: str("x")}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newMemStore(), nil, nil)

			_, err := svc.Receive(context.Background(), tt.req)

			assert.ErrorIs(t, err, ErrInvalidSnapshot)
		})
	}
}

func TestService_Receive_RollsBackOnFailure(t *testing.T) {
	store := newMemStore()
	store.failOn["InsertEvent"] = errors.New("disk full")
	history := new(MockHistory)
	history.On("SaveSession", mock.Anything, mock.MatchedBy(func(s Summary) bool {
		return s.State == StateAborted && s.Error != ""
	})).Return(nil)

	svc := newTestService(store, nil, history)
	_, err := svc.Receive(context.Background(), FullSyncRequest{
		Users:  []UserDTO{{CPF: "44444444444", UpdatedAt: FormatTimestamp(ts(t1))}},
		Events: []EventDTO{{ID: 1, Title: str("Talk")}},
	})

	assert.ErrorIs(t, err, ErrMerge)
	assert.Empty(t, store.state.users, "user insert must be rolled back")
	assert.Empty(t, store.state.evts)
	history.AssertExpectations(t)
}

func TestService_Run_Errors(t *testing.T) {
	tests := []struct {
		name    string
		peer    Peer
		wantErr error
	}{
		{name: "no peer", peer: nil, wantErr: ErrNoPeer},
		{name: "transport failure", peer: &stubPeer{err: &TransportError{StatusCode: 503}}, wantErr: ErrTransport},
		{
			name:    "malformed response",
			peer:    &stubPeer{resp: &FullSyncResponse{FullSyncRequest: FullSyncRequest{Events: []EventDTO{{ID: 0}}}}},
			wantErr: ErrInvalidSnapshot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			seedNodeA(store)
			before := store.state.clone()

			svc := newTestService(store, tt.peer, nil)
			summary, err := svc.Run(context.Background())

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, store.state, "local store must not change")
			if tt.peer != nil {
				require.NotNil(t, summary)
				assert.Equal(t, StateAborted, summary.State)
			}
		})
	}
}

func TestService_Run_MergeFailureAborts(t *testing.T) {
	store := newMemStore()
	store.failOn["SyncSequences"] = errors.New("sequence gone")
	peer := &stubPeer{resp: &FullSyncResponse{
		FullSyncRequest: FullSyncRequest{Events: []EventDTO{{ID: 4, Title: str("Remote")}}},
		ServerTime:      "2024-06-01T12:00:00Z",
	}}

	svc := newTestService(store, peer, nil)
	summary, err := svc.Run(context.Background())

	assert.ErrorIs(t, err, ErrMerge)
	assert.Equal(t, StateAborted, summary.State)
	assert.Empty(t, store.state.evts)
}

func TestService_SingleSessionPerNode(t *testing.T) {
	svc := newTestService(newMemStore(), &stubPeer{}, nil)
	svc.running.Store(true)

	_, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)

	_, err = svc.Receive(context.Background(), FullSyncRequest{})
	assert.ErrorIs(t, err, ErrSyncInProgress)
}

func TestService_LastSummary(t *testing.T) {
	t.Run("falls back to history", func(t *testing.T) {
		history := new(MockHistory)
		stored := &Summary{SessionID: "s-1", Role: RoleInitiator, State: StateCommitted}
		history.On("LastSession", mock.Anything, RoleInitiator).Return(stored, nil)

		svc := newTestService(newMemStore(), nil, history)
		got, err := svc.LastSummary(context.Background(), RoleInitiator)

		require.NoError(t, err)
		assert.Equal(t, "s-1", got.SessionID)
	})

	t.Run("nothing recorded", func(t *testing.T) {
		svc := newTestService(newMemStore(), nil, nil)

		_, err := svc.LastSummary(context.Background(), RoleResponder)

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("history failure does not fail the round", func(t *testing.T) {
		history := new(MockHistory)
		history.On("SaveSession", mock.Anything, mock.Anything).Return(errors.New("db gone"))

		svc := newTestService(newMemStore(), nil, history)
		_, err := svc.Receive(context.Background(), FullSyncRequest{})

		require.NoError(t, err)
		last, err := svc.LastSummary(context.Background(), RoleResponder)
		require.NoError(t, err)
		assert.Equal(t, StateCommitted, last.State)
	})
}
