package sync

import (
	"time"
)

// Registration statuses
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCanceled  = "canceled"
)

// UntitledEvent заглушка для события без заголовка
const UntitledEvent = "Untitled event"

// User пользователь; идентичность между узлами задается cpf
type User struct {
	ID        int64
	CPF       string
	Name      *string
	Email     *string
	Phone     *string
	Password  *string
	Completed *bool
	CreatedAt *time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
}

// Event событие; идентичность задается суррогатным id
type Event struct {
	ID          int64
	Title       *string
	Description *string
	Location    *string
	StartAt     *time.Time
	EndAt       *time.Time
	IsAllDay    *bool
	IsPublic    *bool
	Capacity    *int64
	CreatedAt   *time.Time
	UpdatedAt   *time.Time
	DeletedAt   *time.Time
}

// Registration запись на событие; идентичность задается парой (event_id, user_id)
type Registration struct {
	ID         int64
	EventID    int64
	UserID     int64
	Status     *string
	PresenceAt *time.Time
	CreatedAt  *time.Time
	UpdatedAt  *time.Time
	DeletedAt  *time.Time
}

// Certificate сертификат участия; UserID и EventID обязательны после слияния
type Certificate struct {
	ID           int64
	UserID       *int64
	EventID      *int64
	UserName     *string
	UserCPF      *string
	EventTitle   *string
	EventStartAt *time.Time
	Code         *string
	IssuedAt     *time.Time
	PDFURL       *string
	PDFPath      *string
	Metadata     *string
	CreatedAt    *time.Time
	UpdatedAt    *time.Time
	DeletedAt    *time.Time
}

// Snapshot полный срез четырех таблиц узла, включая мягко удаленные строки
type Snapshot struct {
	Users         []User
	Events        []Event
	Registrations []Registration
	Certificates  []Certificate
}

// Capabilities describes which optional columns the local schema has.
// Computed once per session.
type Capabilities struct {
	SchemaVersion       uint
	CertificatePDFPath  bool
	CertificateMetadata bool
}

// Entity kinds
const (
	KindUsers         = "users"
	KindEvents        = "events"
	KindRegistrations = "event_registrations"
	KindCertificates  = "certificates"
)

// Outcome результат слияния одной строки
type Outcome int

const (
	OutcomeUnchanged Outcome = iota
	OutcomeInserted
	OutcomeUpdated
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unchanged"
	}
}

// KindStats счетчики по одному виду сущностей
type KindStats struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

func (k *KindStats) add(o Outcome) {
	switch o {
	case OutcomeInserted:
		k.Inserted++
	case OutcomeUpdated:
		k.Updated++
	case OutcomeSkipped:
		k.Skipped++
	default:
		k.Unchanged++
	}
}

// Merged число строк, реально записанных в хранилище
func (k KindStats) Merged() int {
	return k.Inserted + k.Updated
}

// MergeStats счетчики слияния по всем видам сущностей
type MergeStats struct {
	Users         KindStats `json:"users"`
	Events        KindStats `json:"events"`
	Registrations KindStats `json:"event_registrations"`
	Certificates  KindStats `json:"certificates"`
}

// Mutations общее число вставок и обновлений
func (m MergeStats) Mutations() int {
	return m.Users.Merged() + m.Events.Merged() + m.Registrations.Merged() + m.Certificates.Merged()
}

// Role of a node in a session
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// Summary итог одного раунда синхронизации
type Summary struct {
	SessionID  string     `json:"session_id"`
	Role       Role       `json:"role"`
	State      State      `json:"state"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Sent       int        `json:"sent"`
	Received   int        `json:"received"`
	Stats      MergeStats `json:"stats"`
	ServerTime string     `json:"server_time,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Duration of the session
func (s Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

func (s Snapshot) rowCount() int {
	return len(s.Users) + len(s.Events) + len(s.Registrations) + len(s.Certificates)
}
