package basket

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/api"
)

// DraftKey is the single slot a guest basket is staged under.
const DraftKey = "pendingBasket"

// Draft is a basket composed before sign-in.
type Draft struct {
	ShopID     string  `json:"shopId"`
	Amount     float64 `json:"amount"`
	Link       string  `json:"link,omitempty"`
	Note       string  `json:"note,omitempty"`
	LocationID string  `json:"locationId,omitempty"`
	Currency   string  `json:"currency,omitempty"`
}

// Input converts the draft to the create_basket_and_join_pool payload.
func (d Draft) Input() api.BasketInput {
	return api.BasketInput{
		ShopID:     d.ShopID,
		Amount:     d.Amount,
		Link:       optional(d.Link),
		Note:       optional(d.Note),
		LocationID: optional(d.LocationID),
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// DraftStore persists at most one draft. Saving replaces whatever was there.
type DraftStore interface {
	Load() (*Draft, error)
	Save(d Draft) error
	Clear() error
}

// FileStore keeps the draft as {Dir}/pendingBasket.json.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) path() string {
	return filepath.Join(s.Dir, DraftKey+".json")
}

// Load returns nil without error when no draft is stored.
func (s *FileStore) Load() (*Draft, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *FileStore) Save(d Draft) error {
	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path())
}

func (s *FileStore) Clear() error {
	err := os.Remove(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

type MemoryStore struct {
	mu    sync.Mutex
	draft *Draft
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return nil, nil
	}
	d := *s.draft
	return &d, nil
}

func (s *MemoryStore) Save(d Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = &d
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = nil
	return nil
}
