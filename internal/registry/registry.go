// Package registry maps Telegram user ids to registered mechanics.
package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pitlog/internal/records"
	"pitlog/internal/storage"
)

const (
	colUserID       = "user_id"
	colFullName     = "fullname"
	colUsername     = "username"
	colRegisteredAt = "registered_at"
)

type User struct {
	ID           int64  `json:"id"`
	FullName     string `json:"fullname"`
	Username     string `json:"username"`
	RegisteredAt string `json:"registered_at"`
}

// Service stores users as rows of a single table. Register does not check
// for an existing row; callers look the user up first.
type Service struct {
	store storage.Store
	table storage.Table
	now   func() time.Time
}

func New(store storage.Store, tableName string) *Service {
	if tableName == "" {
		tableName = records.DefaultUsersTable
	}
	return &Service{
		store: store,
		table: storage.Table{Name: tableName, Columns: []string{colUserID, colFullName, colUsername, colRegisteredAt}},
		now:   time.Now,
	}
}

// Lookup returns the first row registered for id, or nil.
func (s *Service) Lookup(ctx context.Context, id int64) (*User, error) {
	rows, err := s.store.LoadAll(ctx, s.table)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for _, r := range rows {
		if u, ok := fromRow(r); ok && u.ID == id {
			return &u, nil
		}
	}
	return nil, nil
}

func (s *Service) Register(ctx context.Context, id int64, fullName, username string) (User, error) {
	u := User{
		ID:           id,
		FullName:     strings.TrimSpace(fullName),
		Username:     username,
		RegisteredAt: s.now().Format(records.TimeLayout),
	}
	_, err := s.store.Append(ctx, s.table, map[string]string{
		colUserID:       strconv.FormatInt(u.ID, 10),
		colFullName:     u.FullName,
		colUsername:     u.Username,
		colRegisteredAt: u.RegisteredAt,
	})
	if err != nil {
		return User{}, fmt.Errorf("register user %d: %w", id, err)
	}
	return u, nil
}

// List returns registered users in registration order, one per id.
func (s *Service) List(ctx context.Context) ([]User, error) {
	rows, err := s.store.LoadAll(ctx, s.table)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	seen := make(map[int64]bool, len(rows))
	out := make([]User, 0, len(rows))
	for _, r := range rows {
		u, ok := fromRow(r)
		if !ok || seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		out = append(out, u)
	}
	return out, nil
}

func fromRow(r storage.Row) (User, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.Get(colUserID)), 10, 64)
	if err != nil {
		return User{}, false
	}
	return User{
		ID:           id,
		FullName:     r.Get(colFullName),
		Username:     r.Get(colUsername),
		RegisteredAt: r.Get(colRegisteredAt),
	}, true
}
