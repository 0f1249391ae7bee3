// Package notes stores dictated notes as a single JSON list in a key-value
// store, newest first.
package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const storageKey = "voicenotes"

const DefaultTitle = "Untitled note"

var (
	ErrNotFound     = errors.New("note not found")
	ErrEmptyContent = errors.New("note content is empty")
)

type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Service serialises read-modify-write cycles on the note list within one
// process.
type Service struct {
	kv    KV
	mu    sync.Mutex
	nowFn func() time.Time
	newID func() string
}

func NewService(kv KV) *Service {
	return &Service{
		kv:    kv,
		nowFn: func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
}

func (s *Service) load(ctx context.Context) ([]Note, error) {
	raw, err := s.kv.Get(ctx, storageKey)
	if errors.Is(err, ErrNoValue) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	var list []Note
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}
	return list, nil
}

func (s *Service) save(ctx context.Context, list []Note) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode notes: %w", err)
	}
	if err := s.kv.Put(ctx, storageKey, raw); err != nil {
		return fmt.Errorf("save notes: %w", err)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, title, content string) (Note, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if content == "" {
		return Note{}, ErrEmptyContent
	}
	if title == "" {
		title = DefaultTitle
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.load(ctx)
	if err != nil {
		return Note{}, err
	}
	now := s.nowFn()
	n := Note{ID: s.newID(), Title: title, Content: content, CreatedAt: now, UpdatedAt: now}
	list = append([]Note{n}, list...)
	if err := s.save(ctx, list); err != nil {
		return Note{}, err
	}
	return n, nil
}

func (s *Service) Update(ctx context.Context, id, title, content string) (Note, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if content == "" {
		return Note{}, ErrEmptyContent
	}
	if title == "" {
		title = DefaultTitle
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.load(ctx)
	if err != nil {
		return Note{}, err
	}
	for i := range list {
		if list[i].ID != id {
			continue
		}
		list[i].Title = title
		list[i].Content = content
		list[i].UpdatedAt = s.nowFn()
		if err := s.save(ctx, list); err != nil {
			return Note{}, err
		}
		return list[i], nil
	}
	return Note{}, ErrNotFound
}

func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, n := range list {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	if len(kept) == len(list) {
		return ErrNotFound
	}
	return s.save(ctx, kept)
}

func (s *Service) Get(ctx context.Context, id string) (Note, error) {
	list, err := s.load(ctx)
	if err != nil {
		return Note{}, err
	}
	for _, n := range list {
		if n.ID == id {
			return n, nil
		}
	}
	return Note{}, ErrNotFound
}

// List returns notes whose title or content contains query, ignoring case.
// An empty query returns everything.
func (s *Service) List(ctx context.Context, query string) ([]Note, error) {
	list, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return list, nil
	}
	var out []Note
	for _, n := range list {
		if strings.Contains(strings.ToLower(n.Title), query) || strings.Contains(strings.ToLower(n.Content), query) {
			out = append(out, n)
		}
	}
	return out, nil
}
