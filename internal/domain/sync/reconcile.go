package sync

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/exp/slog"
)

// KeyReconciler сопоставляет входящие строки с локальными.
//
// Пользователи ищутся по cpf. Если у найденной строки другой id, а входящий id свободен,
// пользователь переносится на входящий id вместе с ссылками из event_registrations и
// certificates в той же транзакции. Если входящий id занят другим cpf, локальный id
// сохраняется, а входящий запоминается как псевдоним; внешние ключи последующих строк
// переводятся через эту таблицу.
type KeyReconciler struct {
	tx      Tx
	log     *slog.Logger
	userIDs map[int64]int64
}

func NewKeyReconciler(tx Tx, log *slog.Logger) *KeyReconciler {
	return &KeyReconciler{
		tx:      tx,
		log:     log,
		userIDs: make(map[int64]int64),
	}
}

// LocalUserID translates a peer user id into the local one.
func (r *KeyReconciler) LocalUserID(peerID int64) int64 {
	if id, ok := r.userIDs[peerID]; ok {
		return id
	}
	return peerID
}

// BindUser records that peerID refers to localID on this node.
func (r *KeyReconciler) BindUser(peerID, localID int64) {
	if peerID != 0 {
		r.userIDs[peerID] = localID
	}
}

// ResolveUser returns the local counterpart (nil if absent) and the incoming row with its id
// aligned: the local id when matched, 0 when the incoming id is held by another user.
func (r *KeyReconciler) ResolveUser(ctx context.Context, in User) (*User, User, error) {
	local, err := r.tx.FindUserByCPF(ctx, in.CPF)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, in, fmt.Errorf("find user by cpf: %w", err)
	}

	if local == nil {
		if in.ID != 0 {
			taken, err := r.userIDTaken(ctx, in.ID)
			if err != nil {
				return nil, in, err
			}
			if taken {
				r.log.Warn("Incoming user id is taken by another cpf, assigning a new id",
					slog.Int64("peer_id", in.ID))
				in.ID = 0
			}
		}
		return nil, in, nil
	}

	if in.ID != 0 && in.ID != local.ID {
		taken, err := r.userIDTaken(ctx, in.ID)
		if err != nil {
			return nil, in, err
		}
		if taken {
			r.log.Warn("Cannot align user id, keeping local id",
				slog.Int64("local_id", local.ID),
				slog.Int64("peer_id", in.ID))
		} else {
			if err := r.tx.RemapUserID(ctx, local.ID, in.ID); err != nil {
				return nil, in, fmt.Errorf("remap user %d to %d: %w", local.ID, in.ID, err)
			}
			r.log.Info("User id remapped",
				slog.Int64("from", local.ID),
				slog.Int64("to", in.ID))
			local.ID = in.ID
		}
	}

	r.BindUser(in.ID, local.ID)
	in.ID = local.ID
	return local, in, nil
}

func (r *KeyReconciler) userIDTaken(ctx context.Context, id int64) (bool, error) {
	_, err := r.tx.FindUserByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find user by id: %w", err)
	}
	return true, nil
}

func (r *KeyReconciler) ResolveEvent(ctx context.Context, in Event) (*Event, error) {
	local, err := r.tx.FindEvent(ctx, in.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}
	return local, nil
}

// ResolveRegistration matches by (event_id, user_id) after translating user_id.
func (r *KeyReconciler) ResolveRegistration(ctx context.Context, in Registration) (*Registration, Registration, error) {
	in.UserID = r.LocalUserID(in.UserID)

	local, err := r.tx.FindRegistration(ctx, in.EventID, in.UserID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, in, fmt.Errorf("find registration: %w", err)
	}
	if local != nil {
		in.ID = local.ID
		return local, in, nil
	}

	if in.ID != 0 {
		exists, err := r.tx.RegistrationIDExists(ctx, in.ID)
		if err != nil {
			return nil, in, fmt.Errorf("check registration id: %w", err)
		}
		if exists {
			in.ID = 0
		}
	}
	return nil, in, nil
}

func (r *KeyReconciler) ResolveCertificate(ctx context.Context, in Certificate, caps Capabilities) (*Certificate, Certificate, error) {
	if in.UserID != nil {
		id := r.LocalUserID(*in.UserID)
		in.UserID = &id
	}

	local, err := r.tx.FindCertificate(ctx, in.ID, caps)
	if errors.Is(err, ErrNotFound) {
		return nil, in, nil
	}
	if err != nil {
		return nil, in, fmt.Errorf("find certificate: %w", err)
	}
	return local, in, nil
}
