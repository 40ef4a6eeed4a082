package sync

// Плоские записи на проводе: любое поле, кроме идентификаторов, может быть null или отсутствовать.
// Временные метки передаются строками, чтобы нераспознанное значение не ломало весь запрос.

type UserDTO struct {
	_         struct{} `json:"-" additionalProperties:"true"`
	ID        *int64   `json:"id" required:"false" nullable:"true"`
	CPF       string   `json:"cpf" minLength:"1" validate:"required"`
	Name      *string  `json:"name" required:"false" nullable:"true"`
	Email     *string  `json:"email" required:"false" nullable:"true"`
	Phone     *string  `json:"phone" required:"false" nullable:"true"`
	Password  *string  `json:"password" required:"false" nullable:"true"`
	Completed *bool    `json:"completed" required:"false" nullable:"true"`
	CreatedAt *string  `json:"created_at" required:"false" nullable:"true"`
	UpdatedAt *string  `json:"updated_at" required:"false" nullable:"true"`
	DeletedAt *string  `json:"deleted_at" required:"false" nullable:"true"`
}

type EventDTO struct {
	_           struct{} `json:"-" additionalProperties:"true"`
	ID          int64    `json:"id" minimum:"1" validate:"required,gt=0"`
	Title       *string  `json:"title" required:"false" nullable:"true"`
	Description *string  `json:"description" required:"false" nullable:"true"`
	Location    *string  `json:"location" required:"false" nullable:"true"`
	StartAt     *string  `json:"start_at" required:"false" nullable:"true"`
	EndAt       *string  `json:"end_at" required:"false" nullable:"true"`
	IsAllDay    *bool    `json:"is_all_day" required:"false" nullable:"true"`
	IsPublic    *bool    `json:"is_public" required:"false" nullable:"true"`
	Capacity    *int64   `json:"capacity" required:"false" nullable:"true"`
	CreatedAt   *string  `json:"created_at" required:"false" nullable:"true"`
	UpdatedAt   *string  `json:"updated_at" required:"false" nullable:"true"`
	DeletedAt   *string  `json:"deleted_at" required:"false" nullable:"true"`
}

type RegistrationDTO struct {
	_          struct{} `json:"-" additionalProperties:"true"`
	ID         *int64   `json:"id" required:"false" nullable:"true"`
	EventID    int64    `json:"event_id" minimum:"1" validate:"required,gt=0"`
	UserID     int64    `json:"user_id" minimum:"1" validate:"required,gt=0"`
	Status     *string  `json:"status" required:"false" nullable:"true" validate:"omitempty,oneof=pending confirmed canceled"`
	PresenceAt *string  `json:"presence_at" required:"false" nullable:"true"`
	CreatedAt  *string  `json:"created_at" required:"false" nullable:"true"`
	UpdatedAt  *string  `json:"updated_at" required:"false" nullable:"true"`
	DeletedAt  *string  `json:"deleted_at" required:"false" nullable:"true"`
}

type CertificateDTO struct {
	_            struct{} `json:"-" additionalProperties:"true"`
	ID           int64    `json:"id" minimum:"1" validate:"required,gt=0"`
	UserID       *int64   `json:"user_id" required:"false" nullable:"true"`
	EventID      *int64   `json:"event_id" required:"false" nullable:"true"`
	UserName     *string  `json:"user_name" required:"false" nullable:"true"`
	UserCPF      *string  `json:"user_cpf" required:"false" nullable:"true"`
	EventTitle   *string  `json:"event_title" required:"false" nullable:"true"`
	EventStartAt *string  `json:"event_start_at" required:"false" nullable:"true"`
	Code         *string  `json:"code" required:"false" nullable:"true"`
	IssuedAt     *string  `json:"issued_at" required:"false" nullable:"true"`
	PDFURL       *string  `json:"pdf_url" required:"false" nullable:"true"`
	PDFPath      *string  `json:"pdf_path,omitempty" required:"false" nullable:"true"`
	Metadata     *string  `json:"metadata,omitempty" required:"false" nullable:"true"`
	CreatedAt    *string  `json:"created_at" required:"false" nullable:"true"`
	UpdatedAt    *string  `json:"updated_at" required:"false" nullable:"true"`
	DeletedAt    *string  `json:"deleted_at" required:"false" nullable:"true"`
}

// FullSyncRequest тело POST /api/v1/sync/full
type FullSyncRequest struct {
	Users         []UserDTO         `json:"users" required:"false" validate:"dive"`
	Events        []EventDTO        `json:"events" required:"false" validate:"dive"`
	Registrations []RegistrationDTO `json:"event_registrations" required:"false" validate:"dive"`
	Certificates  []CertificateDTO  `json:"certificates" required:"false" validate:"dive"`
}

// FullSyncResponse снимок отвечающего узла после слияния
type FullSyncResponse struct {
	FullSyncRequest
	ServerTime string `json:"server_time" doc:"Responder clock at commit, RFC 3339"`
}

func (r FullSyncRequest) rowCount() int {
	return len(r.Users) + len(r.Events) + len(r.Registrations) + len(r.Certificates)
}
