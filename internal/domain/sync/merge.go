package sync

import (
	"time"
)

// Merger реализует политику слияния одной строки.
//
// Базовое правило, LWW по updated_at: строго более поздняя метка побеждает, равенство оставляет
// локальную строку. Входящая строка без updated_at ничего не меняет; локальная без updated_at
// считается старше любой входящей с меткой.
//
// Исключения:
//   - User.completed сливается логическим ИЛИ независимо от меток;
//   - пустое описательное поле победившей стороны берет непустое значение проигравшей, в какую бы
//     сторону ни решился LWW; известное значение при этом никогда не заменяется;
//   - deleted_at подчиняется LWW без заполнения, но при равных метках удаление побеждает;
//   - Registration.presence_at устанавливается один раз.
type Merger struct {
	now func() time.Time
}

func NewMerger(now func() time.Time) *Merger {
	if now == nil {
		now = time.Now
	}
	return &Merger{now: now}
}

func (m *Merger) timestamp() *time.Time {
	t := NormalizeTime(m.now())
	return &t
}

func (m *Merger) MergeUser(local *User, in User) (User, Outcome) {
	if local == nil {
		out := in
		out.Completed = boolPtr(boolVal(in.Completed))
		out.CreatedAt = orDefault(out.CreatedAt, m.timestamp())
		out.UpdatedAt = orDefault(out.UpdatedAt, m.timestamp())
		return out, OutcomeInserted
	}

	merged := *local
	if incomingWins(local.UpdatedAt, in.UpdatedAt) {
		merged.Name = fillString(in.Name, local.Name)
		merged.Email = fillString(in.Email, local.Email)
		merged.Phone = fillString(in.Phone, local.Phone)
		merged.Password = fillString(in.Password, local.Password)
		merged.CreatedAt = fillPtr(in.CreatedAt, local.CreatedAt)
		merged.UpdatedAt = in.UpdatedAt
		merged.DeletedAt = in.DeletedAt
	} else if in.UpdatedAt != nil {
		merged.Name = fillString(local.Name, in.Name)
		merged.Email = fillString(local.Email, in.Email)
		merged.Phone = fillString(local.Phone, in.Phone)
		merged.Password = fillString(local.Password, in.Password)
		merged.CreatedAt = fillPtr(local.CreatedAt, in.CreatedAt)
		if deleteWinsTie(local.UpdatedAt, in.UpdatedAt, local.DeletedAt, in.DeletedAt) {
			merged.DeletedAt = in.DeletedAt
		}
	}

	if boolVal(local.Completed) || boolVal(in.Completed) {
		merged.Completed = boolPtr(true)
	}

	return merged, outcomeOf(local.equal(merged))
}

func (m *Merger) MergeEvent(local *Event, in Event) (Event, Outcome) {
	if local == nil {
		out := in
		if out.IsAllDay == nil {
			out.IsAllDay = boolPtr(false)
		}
		if out.IsPublic == nil {
			out.IsPublic = boolPtr(true)
		}
		out.CreatedAt = orDefault(out.CreatedAt, m.timestamp())
		out.UpdatedAt = orDefault(out.UpdatedAt, m.timestamp())
		m.normalizeEvent(&out)
		return out, OutcomeInserted
	}

	merged := *local
	if incomingWins(local.UpdatedAt, in.UpdatedAt) {
		merged.Title = fillString(in.Title, local.Title)
		merged.Description = fillString(in.Description, local.Description)
		merged.Location = fillString(in.Location, local.Location)
		merged.StartAt = fillPtr(in.StartAt, local.StartAt)
		merged.EndAt = fillPtr(in.EndAt, local.EndAt)
		merged.IsAllDay = fillPtr(in.IsAllDay, local.IsAllDay)
		merged.IsPublic = fillPtr(in.IsPublic, local.IsPublic)
		merged.Capacity = fillPtr(in.Capacity, local.Capacity)
		merged.CreatedAt = fillPtr(in.CreatedAt, local.CreatedAt)
		merged.UpdatedAt = in.UpdatedAt
		merged.DeletedAt = in.DeletedAt
		m.normalizeEvent(&merged)
	} else if in.UpdatedAt != nil {
		merged.Description = fillString(local.Description, in.Description)
		merged.Location = fillString(local.Location, in.Location)
		merged.EndAt = fillPtr(local.EndAt, in.EndAt)
		merged.Capacity = fillPtr(local.Capacity, in.Capacity)
		merged.CreatedAt = fillPtr(local.CreatedAt, in.CreatedAt)
		m.normalizeEvent(&merged)
		if deleteWinsTie(local.UpdatedAt, in.UpdatedAt, local.DeletedAt, in.DeletedAt) {
			merged.DeletedAt = in.DeletedAt
		}
	}

	return merged, outcomeOf(local.equal(merged))
}

// normalizeEvent enforces title/start_at presence, end_at >= start_at and capacity >= 0.
func (m *Merger) normalizeEvent(e *Event) {
	if isEmptyString(e.Title) {
		title := UntitledEvent
		e.Title = &title
	}
	if e.StartAt == nil {
		e.StartAt = m.timestamp()
	}
	if e.EndAt != nil && e.EndAt.Before(*e.StartAt) {
		e.EndAt = nil
	}
	if e.Capacity != nil && *e.Capacity < 0 {
		e.Capacity = nil
	}
}

func (m *Merger) MergeRegistration(local *Registration, in Registration) (Registration, Outcome) {
	if local == nil {
		out := in
		if isEmptyString(out.Status) {
			status := StatusPending
			out.Status = &status
		}
		out.CreatedAt = orDefault(out.CreatedAt, m.timestamp())
		out.UpdatedAt = orDefault(out.UpdatedAt, m.timestamp())
		return out, OutcomeInserted
	}

	merged := *local
	if incomingWins(local.UpdatedAt, in.UpdatedAt) {
		merged.Status = fillString(in.Status, local.Status)
		merged.PresenceAt = fillPtr(local.PresenceAt, in.PresenceAt)
		merged.CreatedAt = fillPtr(in.CreatedAt, local.CreatedAt)
		merged.UpdatedAt = in.UpdatedAt
		merged.DeletedAt = in.DeletedAt
	} else if in.UpdatedAt != nil {
		merged.PresenceAt = fillPtr(local.PresenceAt, in.PresenceAt)
		merged.CreatedAt = fillPtr(local.CreatedAt, in.CreatedAt)
		if deleteWinsTie(local.UpdatedAt, in.UpdatedAt, local.DeletedAt, in.DeletedAt) {
			merged.DeletedAt = in.DeletedAt
		}
	}

	return merged, outcomeOf(local.equal(merged))
}

// MergeCertificate returns ErrSkipRow for certificates without an owner or event.
func (m *Merger) MergeCertificate(local *Certificate, in Certificate) (Certificate, Outcome, error) {
	if in.UserID == nil || in.EventID == nil {
		return Certificate{}, OutcomeSkipped, skipRow("certificate %d has no user_id or event_id", in.ID)
	}

	if local == nil {
		out := in
		out.CreatedAt = orDefault(out.CreatedAt, m.timestamp())
		out.UpdatedAt = orDefault(out.UpdatedAt, m.timestamp())
		return out, OutcomeInserted, nil
	}

	merged := *local
	if incomingWins(local.UpdatedAt, in.UpdatedAt) {
		merged.UserID = in.UserID
		merged.EventID = in.EventID
		merged.UserName = fillString(in.UserName, local.UserName)
		merged.UserCPF = fillString(in.UserCPF, local.UserCPF)
		merged.EventTitle = fillString(in.EventTitle, local.EventTitle)
		merged.EventStartAt = fillPtr(in.EventStartAt, local.EventStartAt)
		merged.Code = fillString(in.Code, local.Code)
		merged.IssuedAt = fillPtr(in.IssuedAt, local.IssuedAt)
		merged.PDFURL = fillString(in.PDFURL, local.PDFURL)
		merged.PDFPath = fillString(in.PDFPath, local.PDFPath)
		merged.Metadata = fillString(in.Metadata, local.Metadata)
		merged.CreatedAt = fillPtr(in.CreatedAt, local.CreatedAt)
		merged.UpdatedAt = in.UpdatedAt
		merged.DeletedAt = in.DeletedAt
	} else if in.UpdatedAt != nil {
		merged.UserName = fillString(local.UserName, in.UserName)
		merged.UserCPF = fillString(local.UserCPF, in.UserCPF)
		merged.EventTitle = fillString(local.EventTitle, in.EventTitle)
		merged.EventStartAt = fillPtr(local.EventStartAt, in.EventStartAt)
		merged.Code = fillString(local.Code, in.Code)
		merged.IssuedAt = fillPtr(local.IssuedAt, in.IssuedAt)
		merged.PDFURL = fillString(local.PDFURL, in.PDFURL)
		merged.PDFPath = fillString(local.PDFPath, in.PDFPath)
		merged.Metadata = fillString(local.Metadata, in.Metadata)
		merged.CreatedAt = fillPtr(local.CreatedAt, in.CreatedAt)
		if deleteWinsTie(local.UpdatedAt, in.UpdatedAt, local.DeletedAt, in.DeletedAt) {
			merged.DeletedAt = in.DeletedAt
		}
	}

	return merged, outcomeOf(local.equal(merged)), nil
}

func incomingWins(local, incoming *time.Time) bool {
	if incoming == nil {
		return false
	}
	if local == nil {
		return true
	}
	return incoming.After(*local)
}

// deleteWinsTie: при равных updated_at удаление побеждает живую строку.
func deleteWinsTie(localTS, inTS, localDel, inDel *time.Time) bool {
	if localTS == nil || inTS == nil || !localTS.Equal(*inTS) {
		return false
	}
	return localDel == nil && inDel != nil
}

func outcomeOf(unchanged bool) Outcome {
	if unchanged {
		return OutcomeUnchanged
	}
	return OutcomeUpdated
}

func isEmptyString(s *string) bool {
	return s == nil || *s == ""
}

func fillString(win, lose *string) *string {
	if isEmptyString(win) && !isEmptyString(lose) {
		return lose
	}
	return win
}

func fillPtr[T any](win, lose *T) *T {
	if win == nil {
		return lose
	}
	return win
}

func orDefault(v, def *time.Time) *time.Time {
	if v == nil {
		return def
	}
	return v
}

func boolPtr(b bool) *bool {
	return &b
}

func boolVal(b *bool) bool {
	return b != nil && *b
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (u User) equal(o User) bool {
	return u.ID == o.ID &&
		u.CPF == o.CPF &&
		eqPtr(u.Name, o.Name) &&
		eqPtr(u.Email, o.Email) &&
		eqPtr(u.Phone, o.Phone) &&
		eqPtr(u.Password, o.Password) &&
		boolVal(u.Completed) == boolVal(o.Completed) &&
		eqTime(u.CreatedAt, o.CreatedAt) &&
		eqTime(u.UpdatedAt, o.UpdatedAt) &&
		eqTime(u.DeletedAt, o.DeletedAt)
}

func (e Event) equal(o Event) bool {
	return e.ID == o.ID &&
		eqPtr(e.Title, o.Title) &&
		eqPtr(e.Description, o.Description) &&
		eqPtr(e.Location, o.Location) &&
		eqTime(e.StartAt, o.StartAt) &&
		eqTime(e.EndAt, o.EndAt) &&
		eqPtr(e.IsAllDay, o.IsAllDay) &&
		eqPtr(e.IsPublic, o.IsPublic) &&
		eqPtr(e.Capacity, o.Capacity) &&
		eqTime(e.CreatedAt, o.CreatedAt) &&
		eqTime(e.UpdatedAt, o.UpdatedAt) &&
		eqTime(e.DeletedAt, o.DeletedAt)
}

func (r Registration) equal(o Registration) bool {
	return r.ID == o.ID &&
		r.EventID == o.EventID &&
		r.UserID == o.UserID &&
		eqPtr(r.Status, o.Status) &&
		eqTime(r.PresenceAt, o.PresenceAt) &&
		eqTime(r.CreatedAt, o.CreatedAt) &&
		eqTime(r.UpdatedAt, o.UpdatedAt) &&
		eqTime(r.DeletedAt, o.DeletedAt)
}

func (c Certificate) equal(o Certificate) bool {
	return c.ID == o.ID &&
		eqPtr(c.UserID, o.UserID) &&
		eqPtr(c.EventID, o.EventID) &&
		eqPtr(c.UserName, o.UserName) &&
		eqPtr(c.UserCPF, o.UserCPF) &&
		eqPtr(c.EventTitle, o.EventTitle) &&
		eqTime(c.EventStartAt, o.EventStartAt) &&
		eqPtr(c.Code, o.Code) &&
		eqTime(c.IssuedAt, o.IssuedAt) &&
		eqPtr(c.PDFURL, o.PDFURL) &&
		eqPtr(c.PDFPath, o.PDFPath) &&
		eqPtr(c.Metadata, o.Metadata) &&
		eqTime(c.CreatedAt, o.CreatedAt) &&
		eqTime(c.UpdatedAt, o.UpdatedAt) &&
		eqTime(c.DeletedAt, o.DeletedAt)
}
