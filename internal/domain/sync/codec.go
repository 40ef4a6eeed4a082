package sync

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/exp/slog"
)

// Форматы меток времени, которые встречаются у узлов: RFC 3339 и "сырой" формат SQL без зоны.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// Codec converts between typed records and flat wire records.
// Optional certificate columns pass only when caps says the local schema has them.
type Codec struct {
	caps Capabilities
	log  *slog.Logger
}

func NewCodec(caps Capabilities, log *slog.Logger) *Codec {
	return &Codec{caps: caps, log: log}
}

// NormalizeTime приводит метку к UTC с точностью до микросекунды (точность PostgreSQL).
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ParseTimestamp returns nil for absent, empty or unparseable values.
func ParseTimestamp(s *string) *time.Time {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = NormalizeTime(t)
			return &t
		}
	}
	return nil
}

func FormatTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := NormalizeTime(*t).Format(time.RFC3339Nano)
	return &s
}

// NormalizeCPF оставляет только цифры
func NormalizeCPF(cpf string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, cpf)
}

func (c *Codec) passwordHash(cpf string, p *string) *string {
	if p == nil || *p == "" {
		return p
	}
	if _, err := bcrypt.Cost([]byte(*p)); err != nil {
		c.log.Warn("Dropping password that is not a bcrypt hash", slog.String("cpf", cpf))
		return nil
	}
	return p
}

func (c *Codec) DecodeUser(d UserDTO) User {
	cpf := NormalizeCPF(d.CPF)
	u := User{
		CPF:       cpf,
		Name:      d.Name,
		Email:     d.Email,
		Phone:     d.Phone,
		Password:  c.passwordHash(cpf, d.Password),
		Completed: d.Completed,
		CreatedAt: ParseTimestamp(d.CreatedAt),
		UpdatedAt: ParseTimestamp(d.UpdatedAt),
		DeletedAt: ParseTimestamp(d.DeletedAt),
	}
	if d.ID != nil {
		u.ID = *d.ID
	}
	return u
}

func (c *Codec) EncodeUser(u User) UserDTO {
	return UserDTO{
		ID:        idPtr(u.ID),
		CPF:       u.CPF,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Password:  u.Password,
		Completed: u.Completed,
		CreatedAt: FormatTimestamp(u.CreatedAt),
		UpdatedAt: FormatTimestamp(u.UpdatedAt),
		DeletedAt: FormatTimestamp(u.DeletedAt),
	}
}

func (c *Codec) DecodeEvent(d EventDTO) Event {
	return Event{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Location:    d.Location,
		StartAt:     ParseTimestamp(d.StartAt),
		EndAt:       ParseTimestamp(d.EndAt),
		IsAllDay:    d.IsAllDay,
		IsPublic:    d.IsPublic,
		Capacity:    d.Capacity,
		CreatedAt:   ParseTimestamp(d.CreatedAt),
		UpdatedAt:   ParseTimestamp(d.UpdatedAt),
		DeletedAt:   ParseTimestamp(d.DeletedAt),
	}
}

func (c *Codec) EncodeEvent(e Event) EventDTO {
	return EventDTO{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		StartAt:     FormatTimestamp(e.StartAt),
		EndAt:       FormatTimestamp(e.EndAt),
		IsAllDay:    e.IsAllDay,
		IsPublic:    e.IsPublic,
		Capacity:    e.Capacity,
		CreatedAt:   FormatTimestamp(e.CreatedAt),
		UpdatedAt:   FormatTimestamp(e.UpdatedAt),
		DeletedAt:   FormatTimestamp(e.DeletedAt),
	}
}

func (c *Codec) DecodeRegistration(d RegistrationDTO) Registration {
	r := Registration{
		EventID:    d.EventID,
		UserID:     d.UserID,
		Status:     d.Status,
		PresenceAt: ParseTimestamp(d.PresenceAt),
		CreatedAt:  ParseTimestamp(d.CreatedAt),
		UpdatedAt:  ParseTimestamp(d.UpdatedAt),
		DeletedAt:  ParseTimestamp(d.DeletedAt),
	}
	if d.ID != nil {
		r.ID = *d.ID
	}
	return r
}

func (c *Codec) EncodeRegistration(r Registration) RegistrationDTO {
	return RegistrationDTO{
		ID:         idPtr(r.ID),
		EventID:    r.EventID,
		UserID:     r.UserID,
		Status:     r.Status,
		PresenceAt: FormatTimestamp(r.PresenceAt),
		CreatedAt:  FormatTimestamp(r.CreatedAt),
		UpdatedAt:  FormatTimestamp(r.UpdatedAt),
		DeletedAt:  FormatTimestamp(r.DeletedAt),
	}
}

func (c *Codec) DecodeCertificate(d CertificateDTO) Certificate {
	cert := Certificate{
		ID:           d.ID,
		UserID:       d.UserID,
		EventID:      d.EventID,
		UserName:     d.UserName,
		UserCPF:      d.UserCPF,
		EventTitle:   d.EventTitle,
		EventStartAt: ParseTimestamp(d.EventStartAt),
		Code:         d.Code,
		IssuedAt:     ParseTimestamp(d.IssuedAt),
		PDFURL:       d.PDFURL,
		CreatedAt:    ParseTimestamp(d.CreatedAt),
		UpdatedAt:    ParseTimestamp(d.UpdatedAt),
		DeletedAt:    ParseTimestamp(d.DeletedAt),
	}
	if cert.UserCPF != nil {
		cpf := NormalizeCPF(*cert.UserCPF)
		cert.UserCPF = &cpf
	}
	if c.caps.CertificatePDFPath {
		cert.PDFPath = d.PDFPath
	}
	if c.caps.CertificateMetadata {
		cert.Metadata = d.Metadata
	}
	return cert
}

func (c *Codec) EncodeCertificate(cert Certificate) CertificateDTO {
	d := CertificateDTO{
		ID:           cert.ID,
		UserID:       cert.UserID,
		EventID:      cert.EventID,
		UserName:     cert.UserName,
		UserCPF:      cert.UserCPF,
		EventTitle:   cert.EventTitle,
		EventStartAt: FormatTimestamp(cert.EventStartAt),
		Code:         cert.Code,
		IssuedAt:     FormatTimestamp(cert.IssuedAt),
		PDFURL:       cert.PDFURL,
		CreatedAt:    FormatTimestamp(cert.CreatedAt),
		UpdatedAt:    FormatTimestamp(cert.UpdatedAt),
		DeletedAt:    FormatTimestamp(cert.DeletedAt),
	}
	if c.caps.CertificatePDFPath {
		d.PDFPath = cert.PDFPath
	}
	if c.caps.CertificateMetadata {
		d.Metadata = cert.Metadata
	}
	return d
}

// Decode converts a whole wire snapshot.
func (c *Codec) Decode(req FullSyncRequest) Snapshot {
	s := Snapshot{
		Users:         make([]User, 0, len(req.Users)),
		Events:        make([]Event, 0, len(req.Events)),
		Registrations: make([]Registration, 0, len(req.Registrations)),
		Certificates:  make([]Certificate, 0, len(req.Certificates)),
	}
	for _, d := range req.Users {
		s.Users = append(s.Users, c.DecodeUser(d))
	}
	for _, d := range req.Events {
		s.Events = append(s.Events, c.DecodeEvent(d))
	}
	for _, d := range req.Registrations {
		s.Registrations = append(s.Registrations, c.DecodeRegistration(d))
	}
	for _, d := range req.Certificates {
		s.Certificates = append(s.Certificates, c.DecodeCertificate(d))
	}
	return s
}

// Encode converts a whole snapshot to its wire form; empty tables become empty arrays.
func (c *Codec) Encode(s Snapshot) FullSyncRequest {
	req := FullSyncRequest{
		Users:         make([]UserDTO, 0, len(s.Users)),
		Events:        make([]EventDTO, 0, len(s.Events)),
		Registrations: make([]RegistrationDTO, 0, len(s.Registrations)),
		Certificates:  make([]CertificateDTO, 0, len(s.Certificates)),
	}
	for _, u := range s.Users {
		req.Users = append(req.Users, c.EncodeUser(u))
	}
	for _, e := range s.Events {
		req.Events = append(req.Events, c.EncodeEvent(e))
	}
	for _, r := range s.Registrations {
		req.Registrations = append(req.Registrations, c.EncodeRegistration(r))
	}
	for _, cert := range s.Certificates {
		req.Certificates = append(req.Certificates, c.EncodeCertificate(cert))
	}
	return req
}

func idPtr(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
