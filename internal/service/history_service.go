package service

import (
	"context"

	"github.com/stemsi/exstem-prep/internal/model"
	"github.com/stemsi/exstem-prep/internal/response"
)

// AttemptLister reads persisted attempts.
type AttemptLister interface {
	ListByCandidate(ctx context.Context, candidateID, limit, offset int) ([]model.Attempt, int, error)
}

// BookmarkLister reads persisted bookmarks.
type BookmarkLister interface {
	ListByCandidate(ctx context.Context, candidateID int, subject string) ([]model.Bookmark, error)
}

// HistoryService serves a candidate's past attempts and bookmarks.
type HistoryService struct {
	attempts  AttemptLister
	bookmarks BookmarkLister
}

// NewHistoryService creates a new HistoryService.
func NewHistoryService(attempts AttemptLister, bookmarks BookmarkLister) *HistoryService {
	return &HistoryService{attempts: attempts, bookmarks: bookmarks}
}

// ListAttempts retrieves a page of the candidate's attempts, newest first.
func (s *HistoryService) ListAttempts(ctx context.Context, candidateID, page, perPage int) ([]model.Attempt, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	attempts, total, err := s.attempts.ListByCandidate(ctx, candidateID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	return attempts, response.NewPagination(page, perPage, total), nil
}

// ListBookmarks retrieves the candidate's bookmarks, optionally for one subject.
func (s *HistoryService) ListBookmarks(ctx context.Context, candidateID int, subject string) ([]model.Bookmark, error) {
	bookmarks, err := s.bookmarks.ListByCandidate(ctx, candidateID, subject)
	if err != nil {
		return nil, err
	}
	if bookmarks == nil {
		bookmarks = []model.Bookmark{}
	}
	return bookmarks, nil
}
