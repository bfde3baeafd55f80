package session

import (
	"context"

	"koikhabo/internal/storage"
)

const (
	actorKey       = "session"
	institutionKey = "institution"
)

type Institution struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Store keeps one actor per session id under a single key, so logging in as
// one kind always replaces the other kinds.
type Store struct {
	json *storage.JSONStore
}

func NewStore(json *storage.JSONStore) *Store {
	return &Store{json: json}
}

func key(base, sessionID string) string {
	return base + ":" + sessionID
}

func (s *Store) Get(ctx context.Context, sessionID string) (Actor, bool, error) {
	var actor Actor
	if err := s.json.Load(ctx, key(actorKey, sessionID), &actor); err != nil {
		return Actor{}, false, err
	}
	if !actor.Valid() {
		return Actor{}, false, nil
	}
	return actor, true, nil
}

func (s *Store) Put(ctx context.Context, sessionID string, actor Actor) error {
	return s.json.Save(ctx, key(actorKey, sessionID), actor)
}

func (s *Store) Institution(ctx context.Context, sessionID string) (*Institution, error) {
	var inst *Institution
	if err := s.json.Load(ctx, key(institutionKey, sessionID), &inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *Store) SetInstitution(ctx context.Context, sessionID string, inst Institution) error {
	return s.json.Save(ctx, key(institutionKey, sessionID), inst)
}

// Clear drops the actor and the selected institution.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	return s.json.Delete(ctx, key(actorKey, sessionID), key(institutionKey, sessionID))
}
