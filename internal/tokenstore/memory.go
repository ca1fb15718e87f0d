package tokenstore

import (
	"context"
	"sync"

	"github.com/Alixandros/edugrader-client/internal/models"
)

// MemoryStore — потокобезопасное хранилище в памяти.
// Используется в тестах и в режиме работы без сохранения сессии на диск.
type MemoryStore struct {
	mu   sync.Mutex
	pair models.TokenPair
	set  bool
}

// NewMemoryStore создает пустой MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (models.TokenPair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.set || !s.pair.Present() {
		return models.TokenPair{}, false
	}

	return s.pair, true
}

func (s *MemoryStore) Save(_ context.Context, pair models.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pair = pair
	s.set = true

	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pair = models.TokenPair{}
	s.set = false

	return nil
}
