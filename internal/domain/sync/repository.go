package sync

import (
	"context"
)

// Store открывает локальные транзакции; соединение выбирается один раз при создании Store.
type Store interface {
	// WithinTx commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx построчный доступ к четырем таблицам внутри одной транзакции.
// Find* возвращают ErrNotFound, если строки нет.
type Tx interface {
	Capabilities(ctx context.Context) (Capabilities, error)

	ListUsers(ctx context.Context) ([]User, error)
	FindUserByCPF(ctx context.Context, cpf string) (*User, error)
	FindUserByID(ctx context.Context, id int64) (*User, error)
	InsertUser(ctx context.Context, u *User) error
	UpdateUser(ctx context.Context, u User) error
	// RemapUserID moves a user to a new id and repoints registrations and certificates.
	RemapUserID(ctx context.Context, from, to int64) error

	ListEvents(ctx context.Context) ([]Event, error)
	FindEvent(ctx context.Context, id int64) (*Event, error)
	InsertEvent(ctx context.Context, e *Event) error
	UpdateEvent(ctx context.Context, e Event) error

	ListRegistrations(ctx context.Context) ([]Registration, error)
	FindRegistration(ctx context.Context, eventID, userID int64) (*Registration, error)
	RegistrationIDExists(ctx context.Context, id int64) (bool, error)
	InsertRegistration(ctx context.Context, r *Registration) error
	UpdateRegistration(ctx context.Context, r Registration) error

	ListCertificates(ctx context.Context, caps Capabilities) ([]Certificate, error)
	FindCertificate(ctx context.Context, id int64, caps Capabilities) (*Certificate, error)
	InsertCertificate(ctx context.Context, c *Certificate, caps Capabilities) error
	UpdateCertificate(ctx context.Context, c Certificate, caps Capabilities) error

	// SyncSequences aligns id generators with explicitly inserted ids.
	SyncSequences(ctx context.Context) error
}

// Peer удаленный узел, с которым обмениваемся снимками
type Peer interface {
	Exchange(ctx context.Context, req FullSyncRequest) (*FullSyncResponse, error)
}

// HistoryRepository хранит итоги раундов синхронизации
type HistoryRepository interface {
	SaveSession(ctx context.Context, s Summary) error
	LastSession(ctx context.Context, role Role) (*Summary, error)
}
