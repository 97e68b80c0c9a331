package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jo-hoe/bannerforge/internal/banner"
	_ "modernc.org/sqlite"
)

type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string
	now              func() time.Time
}

func NewSQLiteDatabase(connectionString string) (*SQLiteDatabase, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// every connection to ":memory:" is a separate database
	db.SetMaxOpenConns(1)

	return &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
		now:              time.Now,
	}, nil
}

func (s *SQLiteDatabase) CreateDatabase(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS banners (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		prompt_details TEXT NOT NULL,
		input_image_url TEXT NOT NULL,
		generated_urls TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS banners_user_created ON banners (user_id, created_at DESC)`)
	return err
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) DoesDatabaseExist() bool {
	// In SQLite, the database file is created when you connect to it.
	// So we can assume it exists if we can successfully ping the database.
	err := s.db.Ping()
	return err == nil
}

func (s *SQLiteDatabase) InsertBanner(ctx context.Context, record *banner.BannerRecord) error {
	promptDetails, err := json.Marshal(record.PromptDetails)
	if err != nil {
		return fmt.Errorf("failed to encode prompt details: %w", err)
	}
	urls := record.GeneratedURLs
	if urls == nil {
		urls = []string{}
	}
	generatedURLs, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("failed to encode generated urls: %w", err)
	}

	id := record.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := s.now().UTC()

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO banners (id, user_id, prompt_details, input_image_url, generated_urls, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, record.UserID, string(promptDetails), record.InputImageURL, string(generatedURLs), createdAt.UnixNano())
	if err != nil {
		return err
	}

	record.ID = id
	record.CreatedAt = createdAt
	return nil
}

func (s *SQLiteDatabase) ListBannersByUser(ctx context.Context, userID string) ([]banner.BannerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, prompt_details, input_image_url, generated_urls, created_at FROM banners WHERE user_id = ? ORDER BY created_at DESC, rowid DESC",
		userID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as we're already returning an error from the function
	}()

	records := []banner.BannerRecord{}
	for rows.Next() {
		var (
			record        banner.BannerRecord
			promptDetails string
			generatedURLs string
			createdAt     int64
		)
		if err := rows.Scan(&record.ID, &record.UserID, &promptDetails, &record.InputImageURL, &generatedURLs, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(promptDetails), &record.PromptDetails); err != nil {
			return nil, fmt.Errorf("failed to decode prompt details of %s: %w", record.ID, err)
		}
		if err := json.Unmarshal([]byte(generatedURLs), &record.GeneratedURLs); err != nil {
			return nil, fmt.Errorf("failed to decode generated urls of %s: %w", record.ID, err)
		}
		record.CreatedAt = time.Unix(0, createdAt).UTC()
		records = append(records, record)
	}
	return records, rows.Err()
}
