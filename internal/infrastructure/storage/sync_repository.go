package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"eventsync/internal/domain/sync"

	"golang.org/x/exp/slog"
)

const (
	userColumns         = "id, cpf, name, email, phone, password, completed, created_at, updated_at, deleted_at"
	eventColumns        = "id, title, description, location, start_at, end_at, is_all_day, is_public, capacity, created_at, updated_at, deleted_at"
	registrationColumns = "id, event_id, user_id, status, presence_at, created_at, updated_at, deleted_at"
	certificateColumns  = "id, user_id, event_id, user_name, user_cpf, event_title, event_start_at, code, issued_at, pdf_url, created_at, updated_at, deleted_at"
)

// SyncRepository реализация sync.Store поверх PostgreSQL или SQLite
type SyncRepository struct {
	db  DB
	log *slog.Logger
}

// NewSyncRepository создает новый репозиторий синхронизации
func NewSyncRepository(db DB, log *slog.Logger) *SyncRepository {
	return &SyncRepository{
		db:  db,
		log: log.With(slog.String("component", "sync_repository"), slog.String("driver", db.Driver())),
	}
}

func (r *SyncRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx sync.Tx) error) error {
	return WithinTx(ctx, r.db, func(ctx context.Context, c Conn) error {
		return fn(ctx, &syncTx{conn: c, log: r.log, explicitIDs: make(map[string]bool)})
	})
}

type syncTx struct {
	conn        Conn
	log         *slog.Logger
	explicitIDs map[string]bool
}

type scanner interface {
	Scan(dest ...any) error
}

func (t *syncTx) Capabilities(ctx context.Context) (sync.Capabilities, error) {
	cols, err := t.conn.Columns(ctx, "certificates")
	if err != nil {
		return sync.Capabilities{}, err
	}

	caps := sync.Capabilities{
		CertificatePDFPath:  cols["pdf_path"],
		CertificateMetadata: cols["metadata"],
	}

	// schema_migrations ведет golang-migrate; на узле без миграций таблицы нет
	migrationCols, err := t.conn.Columns(ctx, "schema_migrations")
	if err != nil {
		return caps, err
	}
	if migrationCols["version"] {
		var version int64
		err := t.conn.QueryRow(ctx, `SELECT version FROM schema_migrations LIMIT 1`).Scan(&version)
		if err != nil && !errors.Is(err, ErrNoRows) {
			return caps, fmt.Errorf("failed to read schema version: %w", err)
		}
		if version > 0 {
			caps.SchemaVersion = uint(version)
		}
	}

	t.log.Debug("Schema capabilities probed",
		slog.Uint64("version", uint64(caps.SchemaVersion)),
		slog.Bool("pdf_path", caps.CertificatePDFPath),
		slog.Bool("metadata", caps.CertificateMetadata))
	return caps, nil
}

// Users

func scanUser(s scanner) (*sync.User, error) {
	var u sync.User
	var completed bool
	if err := s.Scan(&u.ID, &u.CPF, &u.Name, &u.Email, &u.Phone, &u.Password, &completed,
		&u.CreatedAt, &u.UpdatedAt, &u.DeletedAt); err != nil {
		return nil, err
	}
	u.Completed = &completed
	normalizeTimes(&u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	return &u, nil
}

func (t *syncTx) ListUsers(ctx context.Context) ([]sync.User, error) {
	rows, err := t.conn.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]sync.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (t *syncTx) FindUserByCPF(ctx context.Context, cpf string) (*sync.User, error) {
	u, err := scanUser(t.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE cpf = ?`, cpf))
	return u, notFound(err)
}

func (t *syncTx) FindUserByID(ctx context.Context, id int64) (*sync.User, error) {
	u, err := scanUser(t.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	return u, notFound(err)
}

func (t *syncTx) InsertUser(ctx context.Context, u *sync.User) error {
	id, err := t.insert(ctx, "users", u.ID,
		[]string{"cpf", "name", "email", "phone", "password", "completed", "created_at", "updated_at", "deleted_at"},
		[]any{u.CPF, u.Name, u.Email, u.Phone, u.Password, boolOr(u.Completed, false), u.CreatedAt, u.UpdatedAt, u.DeletedAt})
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

func (t *syncTx) UpdateUser(ctx context.Context, u sync.User) error {
	return t.update(ctx, "users", `
		UPDATE users
		SET name = ?, email = ?, phone = ?, password = ?, completed = ?,
		    created_at = ?, updated_at = ?, deleted_at = ?
		WHERE id = ?`,
		u.Name, u.Email, u.Phone, u.Password, boolOr(u.Completed, false),
		u.CreatedAt, u.UpdatedAt, u.DeletedAt, u.ID)
}

func (t *syncTx) RemapUserID(ctx context.Context, from, to int64) error {
	if err := t.update(ctx, "users", `UPDATE users SET id = ? WHERE id = ?`, to, from); err != nil {
		return err
	}
	if _, err := t.conn.Exec(ctx, `UPDATE event_registrations SET user_id = ? WHERE user_id = ?`, to, from); err != nil {
		return fmt.Errorf("failed to repoint registrations: %w", err)
	}
	if _, err := t.conn.Exec(ctx, `UPDATE certificates SET user_id = ? WHERE user_id = ?`, to, from); err != nil {
		return fmt.Errorf("failed to repoint certificates: %w", err)
	}
	t.explicitIDs["users"] = true
	return nil
}

// Events

func scanEvent(s scanner) (*sync.Event, error) {
	var e sync.Event
	if err := s.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.StartAt, &e.EndAt,
		&e.IsAllDay, &e.IsPublic, &e.Capacity, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt); err != nil {
		return nil, err
	}
	normalizeTimes(&e.StartAt, &e.EndAt, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt)
	return &e, nil
}

func (t *syncTx) ListEvents(ctx context.Context) ([]sync.Event, error) {
	rows, err := t.conn.Query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := make([]sync.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (t *syncTx) FindEvent(ctx context.Context, id int64) (*sync.Event, error) {
	e, err := scanEvent(t.conn.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	return e, notFound(err)
}

func (t *syncTx) InsertEvent(ctx context.Context, e *sync.Event) error {
	id, err := t.insert(ctx, "events", e.ID,
		[]string{"title", "description", "location", "start_at", "end_at", "is_all_day", "is_public", "capacity", "created_at", "updated_at", "deleted_at"},
		[]any{e.Title, e.Description, e.Location, e.StartAt, e.EndAt, boolOr(e.IsAllDay, false), boolOr(e.IsPublic, true),
			e.Capacity, e.CreatedAt, e.UpdatedAt, e.DeletedAt})
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

func (t *syncTx) UpdateEvent(ctx context.Context, e sync.Event) error {
	return t.update(ctx, "events", `
		UPDATE events
		SET title = ?, description = ?, location = ?, start_at = ?, end_at = ?,
		    is_all_day = ?, is_public = ?, capacity = ?,
		    created_at = ?, updated_at = ?, deleted_at = ?
		WHERE id = ?`,
		e.Title, e.Description, e.Location, e.StartAt, e.EndAt,
		boolOr(e.IsAllDay, false), boolOr(e.IsPublic, true), e.Capacity,
		e.CreatedAt, e.UpdatedAt, e.DeletedAt, e.ID)
}

// Registrations

func scanRegistration(s scanner) (*sync.Registration, error) {
	var r sync.Registration
	if err := s.Scan(&r.ID, &r.EventID, &r.UserID, &r.Status, &r.PresenceAt,
		&r.CreatedAt, &r.UpdatedAt, &r.DeletedAt); err != nil {
		return nil, err
	}
	normalizeTimes(&r.PresenceAt, &r.CreatedAt, &r.UpdatedAt, &r.DeletedAt)
	return &r, nil
}

func (t *syncTx) ListRegistrations(ctx context.Context) ([]sync.Registration, error) {
	rows, err := t.conn.Query(ctx, `SELECT `+registrationColumns+` FROM event_registrations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	regs := make([]sync.Registration, 0)
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		regs = append(regs, *r)
	}
	return regs, rows.Err()
}

// FindRegistration prefers a non-canceled row for the pair, then the most recent one.
func (t *syncTx) FindRegistration(ctx context.Context, eventID, userID int64) (*sync.Registration, error) {
	r, err := scanRegistration(t.conn.QueryRow(ctx, `
		SELECT `+registrationColumns+`
		FROM event_registrations
		WHERE event_id = ? AND user_id = ?
		ORDER BY CASE WHEN status = 'canceled' THEN 1 ELSE 0 END, id DESC
		LIMIT 1`, eventID, userID))
	return r, notFound(err)
}

func (t *syncTx) RegistrationIDExists(ctx context.Context, id int64) (bool, error) {
	var found int64
	err := t.conn.QueryRow(ctx, `SELECT id FROM event_registrations WHERE id = ?`, id).Scan(&found)
	if errors.Is(err, ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *syncTx) InsertRegistration(ctx context.Context, r *sync.Registration) error {
	id, err := t.insert(ctx, "event_registrations", r.ID,
		[]string{"event_id", "user_id", "status", "presence_at", "created_at", "updated_at", "deleted_at"},
		[]any{r.EventID, r.UserID, r.Status, r.PresenceAt, r.CreatedAt, r.UpdatedAt, r.DeletedAt})
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

func (t *syncTx) UpdateRegistration(ctx context.Context, r sync.Registration) error {
	return t.update(ctx, "event_registrations", `
		UPDATE event_registrations
		SET status = ?, presence_at = ?, created_at = ?, updated_at = ?, deleted_at = ?
		WHERE id = ?`,
		r.Status, r.PresenceAt, r.CreatedAt, r.UpdatedAt, r.DeletedAt, r.ID)
}

// Certificates

func certificateSelect(caps sync.Capabilities) string {
	cols := certificateColumns
	if caps.CertificatePDFPath {
		cols += ", pdf_path"
	}
	if caps.CertificateMetadata {
		cols += ", metadata"
	}
	return `SELECT ` + cols + ` FROM certificates`
}

func scanCertificate(s scanner, caps sync.Capabilities) (*sync.Certificate, error) {
	var c sync.Certificate
	dest := []any{&c.ID, &c.UserID, &c.EventID, &c.UserName, &c.UserCPF, &c.EventTitle, &c.EventStartAt,
		&c.Code, &c.IssuedAt, &c.PDFURL, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt}
	if caps.CertificatePDFPath {
		dest = append(dest, &c.PDFPath)
	}
	if caps.CertificateMetadata {
		dest = append(dest, &c.Metadata)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	normalizeTimes(&c.EventStartAt, &c.IssuedAt, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	return &c, nil
}

func (t *syncTx) ListCertificates(ctx context.Context, caps sync.Capabilities) ([]sync.Certificate, error) {
	rows, err := t.conn.Query(ctx, certificateSelect(caps)+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	defer rows.Close()

	certs := make([]sync.Certificate, 0)
	for rows.Next() {
		c, err := scanCertificate(rows, caps)
		if err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}
		certs = append(certs, *c)
	}
	return certs, rows.Err()
}

func (t *syncTx) FindCertificate(ctx context.Context, id int64, caps sync.Capabilities) (*sync.Certificate, error) {
	c, err := scanCertificate(t.conn.QueryRow(ctx, certificateSelect(caps)+` WHERE id = ?`, id), caps)
	return c, notFound(err)
}

func certificateValues(c sync.Certificate, caps sync.Capabilities) ([]string, []any) {
	cols := []string{"user_id", "event_id", "user_name", "user_cpf", "event_title", "event_start_at",
		"code", "issued_at", "pdf_url", "created_at", "updated_at", "deleted_at"}
	args := []any{c.UserID, c.EventID, c.UserName, c.UserCPF, c.EventTitle, c.EventStartAt,
		c.Code, c.IssuedAt, c.PDFURL, c.CreatedAt, c.UpdatedAt, c.DeletedAt}
	if caps.CertificatePDFPath {
		cols = append(cols, "pdf_path")
		args = append(args, c.PDFPath)
	}
	if caps.CertificateMetadata {
		cols = append(cols, "metadata")
		args = append(args, c.Metadata)
	}
	return cols, args
}

func (t *syncTx) InsertCertificate(ctx context.Context, c *sync.Certificate, caps sync.Capabilities) error {
	cols, args := certificateValues(*c, caps)
	id, err := t.insert(ctx, "certificates", c.ID, cols, args)
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

func (t *syncTx) UpdateCertificate(ctx context.Context, c sync.Certificate, caps sync.Capabilities) error {
	cols, args := certificateValues(c, caps)
	assignments := make([]string, len(cols))
	for i, col := range cols {
		assignments[i] = col + " = ?"
	}
	query := `UPDATE certificates SET ` + strings.Join(assignments, ", ") + ` WHERE id = ?`
	return t.update(ctx, "certificates", query, append(args, c.ID)...)
}

func (t *syncTx) SyncSequences(ctx context.Context) error {
	for _, table := range []string{"users", "events", "event_registrations", "certificates"} {
		if !t.explicitIDs[table] {
			continue
		}
		if err := t.conn.SyncSequence(ctx, table); err != nil {
			return fmt.Errorf("failed to sync %s sequence: %w", table, err)
		}
	}
	return nil
}

// insert добавляет строку; id != 0 записывается явно, иначе его выдает база.
func (t *syncTx) insert(ctx context.Context, table string, id int64, cols []string, args []any) (int64, error) {
	if id != 0 {
		cols = append([]string{"id"}, cols...)
		args = append([]any{id}, args...)
		t.explicitIDs[table] = true
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING id`, table, strings.Join(cols, ", "), placeholders)

	var newID int64
	if err := t.conn.QueryRow(ctx, query, args...).Scan(&newID); err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return newID, nil
}

func (t *syncTx) update(ctx context.Context, table, query string, args ...any) error {
	n, err := t.conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	if n == 0 {
		return fmt.Errorf("failed to update %s: %w", table, sync.ErrNotFound)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, ErrNoRows) {
		return sync.ErrNotFound
	}
	return err
}

func normalizeTimes(ts ...**time.Time) {
	for _, t := range ts {
		if *t != nil {
			n := sync.NormalizeTime(**t)
			*t = &n
		}
	}
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
