package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/exp/slog"
)

// Servicer интерфейс сервиса синхронизации
type Servicer interface {
	// Run выполняет раунд как инициатор: снимок → обмен → слияние ответа
	Run(ctx context.Context) (*Summary, error)

	// Receive выполняет раунд как отвечающий узел и возвращает снимок после слияния
	Receive(ctx context.Context, req FullSyncRequest) (*FullSyncResponse, error)

	// LastSummary возвращает итог последнего раунда в указанной роли
	LastSummary(ctx context.Context, role Role) (*Summary, error)
}

type ServiceConfig struct {
	// Now источник времени для значений по умолчанию
	Now func() time.Time
	// HistoryTimeout ограничивает запись итога раунда
	HistoryTimeout time.Duration
}

// Service реализация сервиса синхронизации
type Service struct {
	store    Store
	peer     Peer
	history  HistoryRepository
	log      *slog.Logger
	config   *ServiceConfig
	merger   *Merger
	validate *validator.Validate

	running       atomic.Bool
	lastInitiator atomic.Pointer[Summary]
	lastResponder atomic.Pointer[Summary]
}

// NewService создает новый сервис синхронизации; peer и history могут быть nil
func NewService(store Store, peer Peer, history HistoryRepository, log *slog.Logger, config *ServiceConfig) *Service {
	if config == nil {
		config = &ServiceConfig{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.HistoryTimeout <= 0 {
		config.HistoryTimeout = 5 * time.Second
	}

	return &Service{
		store:    store,
		peer:     peer,
		history:  history,
		log:      log.With(slog.String("component", "sync")),
		config:   config,
		merger:   NewMerger(config.Now),
		validate: validator.New(),
	}
}

// Validate проверяет структуру снимка до любой обработки строк
func (s *Service) Validate(req FullSyncRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) (*Summary, error) {
	if s.peer == nil {
		return nil, ErrNoPeer
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer s.running.Store(false)

	sess := newSession(RoleInitiator, s.config.Now(), s.log)
	err := s.runInitiator(ctx, sess)
	if err != nil {
		sess.abort(err)
	}

	summary := sess.finish(s.config.Now())
	s.remember(ctx, summary)
	if err != nil {
		return &summary, err
	}

	sess.log.Info("Sync session committed",
		slog.Int("sent", summary.Sent),
		slog.Int("received", summary.Received),
		slog.Int("mutations", summary.Stats.Mutations()),
		slog.Duration("duration", summary.Duration()))
	return &summary, nil
}

func (s *Service) runInitiator(ctx context.Context, sess *session) error {
	if err := sess.moveTo(StateCollecting); err != nil {
		return err
	}

	var req FullSyncRequest
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		caps, err := tx.Capabilities(ctx)
		if err != nil {
			return fmt.Errorf("probe schema: %w", err)
		}
		snap, err := collect(ctx, tx, caps)
		if err != nil {
			return err
		}
		req = NewCodec(caps, sess.log).Encode(snap)
		return nil
	})
	if err != nil {
		return fmt.Errorf("collect snapshot: %w", err)
	}
	sess.summary.Sent = req.rowCount()

	if err := sess.moveTo(StateSending); err != nil {
		return err
	}
	resp, err := s.peer.Exchange(ctx, req)
	if err != nil {
		return err
	}
	if err := s.Validate(resp.FullSyncRequest); err != nil {
		return &TransportError{StatusCode: 200, Err: err}
	}
	sess.summary.Received = resp.rowCount()
	sess.summary.ServerTime = resp.ServerTime

	if err := sess.moveTo(StateMergingResponse); err != nil {
		return err
	}
	var stats MergeStats
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		caps, err := tx.Capabilities(ctx)
		if err != nil {
			return fmt.Errorf("probe schema: %w", err)
		}
		stats, err = s.apply(ctx, tx, caps, resp.FullSyncRequest, sess.log)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMerge, err)
	}
	sess.summary.Stats = stats

	return sess.moveTo(StateCommitted)
}

func (s *Service) Receive(ctx context.Context, req FullSyncRequest) (*FullSyncResponse, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer s.running.Store(false)

	sess := newSession(RoleResponder, s.config.Now(), s.log)
	sess.summary.Received = req.rowCount()

	resp, err := s.runResponder(ctx, sess, req)
	if err != nil {
		sess.abort(err)
	}

	summary := sess.finish(s.config.Now())
	s.remember(ctx, summary)
	if err != nil {
		return nil, err
	}

	sess.log.Info("Sync session committed",
		slog.Int("received", summary.Received),
		slog.Int("sent", summary.Sent),
		slog.Int("mutations", summary.Stats.Mutations()),
		slog.Duration("duration", summary.Duration()))
	return resp, nil
}

func (s *Service) runResponder(ctx context.Context, sess *session, req FullSyncRequest) (*FullSyncResponse, error) {
	if err := sess.moveTo(StateAwaitingPeerMerge); err != nil {
		return nil, err
	}

	resp := &FullSyncResponse{}
	var stats MergeStats
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		caps, err := tx.Capabilities(ctx)
		if err != nil {
			return fmt.Errorf("probe schema: %w", err)
		}
		stats, err = s.apply(ctx, tx, caps, req, sess.log)
		if err != nil {
			return err
		}
		snap, err := collect(ctx, tx, caps)
		if err != nil {
			return err
		}
		resp.FullSyncRequest = NewCodec(caps, sess.log).Encode(snap)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMerge, err)
	}

	resp.ServerTime = s.config.Now().UTC().Format(time.RFC3339)
	sess.summary.Sent = resp.rowCount()
	sess.summary.Stats = stats
	sess.summary.ServerTime = resp.ServerTime

	if err := sess.moveTo(StateCommitted); err != nil {
		return nil, err
	}
	return resp, nil
}

// apply прогоняет входящий снимок через KeyReconciler и Merger: пользователи, события,
// записи, сертификаты. Любая ошибка записи прерывает весь раунд.
func (s *Service) apply(ctx context.Context, tx Tx, caps Capabilities, req FullSyncRequest, log *slog.Logger) (MergeStats, error) {
	var stats MergeStats
	codec := NewCodec(caps, log)
	rec := NewKeyReconciler(tx, log)

	for _, d := range req.Users {
		in := codec.DecodeUser(d)
		if in.CPF == "" {
			log.Warn("Skipping user without cpf digits", slog.Any("id", d.ID))
			stats.Users.add(OutcomeSkipped)
			continue
		}
		peerID := in.ID

		local, aligned, err := rec.ResolveUser(ctx, in)
		if err != nil {
			return stats, err
		}
		merged, outcome := s.merger.MergeUser(local, aligned)
		switch outcome {
		case OutcomeInserted:
			if err := tx.InsertUser(ctx, &merged); err != nil {
				return stats, fmt.Errorf("insert user %s: %w", merged.CPF, err)
			}
			rec.BindUser(peerID, merged.ID)
		case OutcomeUpdated:
			if err := tx.UpdateUser(ctx, merged); err != nil {
				return stats, fmt.Errorf("update user %d: %w", merged.ID, err)
			}
		}
		stats.Users.add(outcome)
	}

	for _, d := range req.Events {
		in := codec.DecodeEvent(d)
		local, err := rec.ResolveEvent(ctx, in)
		if err != nil {
			return stats, err
		}
		merged, outcome := s.merger.MergeEvent(local, in)
		switch outcome {
		case OutcomeInserted:
			if err := tx.InsertEvent(ctx, &merged); err != nil {
				return stats, fmt.Errorf("insert event %d: %w", merged.ID, err)
			}
		case OutcomeUpdated:
			if err := tx.UpdateEvent(ctx, merged); err != nil {
				return stats, fmt.Errorf("update event %d: %w", merged.ID, err)
			}
		}
		stats.Events.add(outcome)
	}

	for _, d := range req.Registrations {
		local, aligned, err := rec.ResolveRegistration(ctx, codec.DecodeRegistration(d))
		if err != nil {
			return stats, err
		}
		merged, outcome := s.merger.MergeRegistration(local, aligned)
		switch outcome {
		case OutcomeInserted:
			if err := tx.InsertRegistration(ctx, &merged); err != nil {
				return stats, fmt.Errorf("insert registration (%d, %d): %w", merged.EventID, merged.UserID, err)
			}
		case OutcomeUpdated:
			if err := tx.UpdateRegistration(ctx, merged); err != nil {
				return stats, fmt.Errorf("update registration %d: %w", merged.ID, err)
			}
		}
		stats.Registrations.add(outcome)
	}

	for _, d := range req.Certificates {
		local, aligned, err := rec.ResolveCertificate(ctx, codec.DecodeCertificate(d), caps)
		if err != nil {
			return stats, err
		}
		merged, outcome, err := s.merger.MergeCertificate(local, aligned)
		if errors.Is(err, ErrSkipRow) {
			log.Warn("Skipping certificate", slog.Int64("id", d.ID), slog.String("reason", err.Error()))
			stats.Certificates.add(OutcomeSkipped)
			continue
		}
		if err != nil {
			return stats, err
		}
		switch outcome {
		case OutcomeInserted:
			if err := tx.InsertCertificate(ctx, &merged, caps); err != nil {
				return stats, fmt.Errorf("insert certificate %d: %w", merged.ID, err)
			}
		case OutcomeUpdated:
			if err := tx.UpdateCertificate(ctx, merged, caps); err != nil {
				return stats, fmt.Errorf("update certificate %d: %w", merged.ID, err)
			}
		}
		stats.Certificates.add(outcome)
	}

	if err := tx.SyncSequences(ctx); err != nil {
		return stats, fmt.Errorf("sync sequences: %w", err)
	}
	return stats, nil
}

func collect(ctx context.Context, tx Tx, caps Capabilities) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	if snap.Users, err = tx.ListUsers(ctx); err != nil {
		return snap, fmt.Errorf("list users: %w", err)
	}
	if snap.Events, err = tx.ListEvents(ctx); err != nil {
		return snap, fmt.Errorf("list events: %w", err)
	}
	if snap.Registrations, err = tx.ListRegistrations(ctx); err != nil {
		return snap, fmt.Errorf("list registrations: %w", err)
	}
	if snap.Certificates, err = tx.ListCertificates(ctx, caps); err != nil {
		return snap, fmt.Errorf("list certificates: %w", err)
	}
	return snap, nil
}

// remember keeps the summary in memory and persists it; persistence failures are only logged.
func (s *Service) remember(ctx context.Context, summary Summary) {
	if summary.Role == RoleInitiator {
		s.lastInitiator.Store(&summary)
	} else {
		s.lastResponder.Store(&summary)
	}

	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.HistoryTimeout)
	defer cancel()
	if err := s.history.SaveSession(ctx, summary); err != nil {
		s.log.Warn("Failed to save sync session", "error", err)
	}
}

func (s *Service) LastSummary(ctx context.Context, role Role) (*Summary, error) {
	last := s.lastResponder.Load()
	if role == RoleInitiator {
		last = s.lastInitiator.Load()
	}
	if last != nil {
		return last, nil
	}
	if s.history == nil {
		return nil, ErrNotFound
	}
	summary, err := s.history.LastSession(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("failed to get last sync session: %w", err)
	}
	return summary, nil
}

// Running reports whether a session is in flight on this node.
func (s *Service) Running() bool {
	return s.running.Load()
}
