package main

import (
	"context"
	"time"

	"github.com/MrEthical07/examauth"
)

// memoryStore is read-only after seeding.
type memoryStore struct {
	byEmail map[string]*examauth.Credential
	byID    map[string]*examauth.Credential
}

func (s *memoryStore) FindByEmail(_ context.Context, email string) (*examauth.Credential, error) {
	if c, ok := s.byEmail[email]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, examauth.ErrUserNotFound
}

func (s *memoryStore) FindByID(_ context.Context, id string) (*examauth.Credential, error) {
	if c, ok := s.byID[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, examauth.ErrUserNotFound
}

func (s *memoryStore) UpdateLastLogin(context.Context, string, time.Time) error { return nil }
