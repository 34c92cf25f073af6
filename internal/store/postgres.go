package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store on a pgx pool.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the schema. The (owner_id, content_hash) and fingerprint
// unique constraints are load-bearing: concurrent writers race on them and
// recover by re-reading.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id            UUID PRIMARY KEY,
			username      VARCHAR(100) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS images (
			id           UUID PRIMARY KEY,
			owner_id     UUID NOT NULL REFERENCES users(id),
			object_key   VARCHAR(255) NOT NULL UNIQUE,
			mime_type    VARCHAR(100),
			content_hash VARCHAR(128) NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT uq_owner_hash UNIQUE (owner_id, content_hash)
		);

		CREATE TABLE IF NOT EXISTS query_cache (
			id            BIGSERIAL PRIMARY KEY,
			fingerprint   VARCHAR(255) NOT NULL UNIQUE,
			prompt        TEXT NOT NULL,
			fields_json   TEXT NOT NULL,
			image_hash    VARCHAR(128),
			response_json TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *Postgres) InsertUser(ctx context.Context, u User) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO users (id, username, password_hash)
		VALUES ($1, $2, $3)
	`, u.ID, u.Username, u.PasswordHash)
	return mapError(err, "insert user")
}

func (p *Postgres) UserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := p.db.QueryRow(ctx, `
		SELECT id, username, password_hash, created_at
		FROM users WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	return u, mapError(err, "user by username")
}

func (p *Postgres) UserByID(ctx context.Context, id uuid.UUID) (User, error) {
	var u User
	err := p.db.QueryRow(ctx, `
		SELECT id, username, password_hash, created_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	return u, mapError(err, "user by id")
}

func (p *Postgres) InsertImage(ctx context.Context, img StoredImage) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO images (id, owner_id, object_key, mime_type, content_hash)
		VALUES ($1, $2, $3, $4, $5)
	`, img.ID, img.OwnerID, img.ObjectKey, img.MimeType, img.ContentHash)
	return mapError(err, "insert image")
}

func (p *Postgres) ImageByOwnerAndHash(ctx context.Context, owner uuid.UUID, contentHash string) (StoredImage, error) {
	var img StoredImage
	err := p.db.QueryRow(ctx, `
		SELECT id, owner_id, object_key, mime_type, content_hash, created_at
		FROM images WHERE owner_id = $1 AND content_hash = $2
	`, owner, contentHash).Scan(
		&img.ID, &img.OwnerID, &img.ObjectKey, &img.MimeType, &img.ContentHash, &img.CreatedAt)
	return img, mapError(err, "image by owner and hash")
}

func (p *Postgres) ImageByID(ctx context.Context, id uuid.UUID) (StoredImage, error) {
	var img StoredImage
	err := p.db.QueryRow(ctx, `
		SELECT id, owner_id, object_key, mime_type, content_hash, created_at
		FROM images WHERE id = $1
	`, id).Scan(
		&img.ID, &img.OwnerID, &img.ObjectKey, &img.MimeType, &img.ContentHash, &img.CreatedAt)
	return img, mapError(err, "image by id")
}

func (p *Postgres) InsertCacheEntry(ctx context.Context, e CacheEntry) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO query_cache (fingerprint, prompt, fields_json, image_hash, response_json)
		VALUES ($1, $2, $3, $4, $5)
	`, e.Fingerprint, e.Prompt, e.FieldsJSON, e.ImageHash, string(e.ResponseJSON))
	return mapError(err, "insert cache entry")
}

func (p *Postgres) CacheEntryByFingerprint(ctx context.Context, fingerprint string) (CacheEntry, error) {
	var e CacheEntry
	var response string
	err := p.db.QueryRow(ctx, `
		SELECT id, fingerprint, prompt, fields_json, image_hash, response_json, created_at
		FROM query_cache WHERE fingerprint = $1
	`, fingerprint).Scan(
		&e.ID, &e.Fingerprint, &e.Prompt, &e.FieldsJSON, &e.ImageHash, &response, &e.CreatedAt)
	e.ResponseJSON = []byte(response)
	return e, mapError(err, "cache entry by fingerprint")
}

// mapError translates pgx failures into the package's sentinel errors so
// callers can branch on errors.Is without importing pgx.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
