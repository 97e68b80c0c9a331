package email

import "sync"

// Store keeps one draft per user in memory. Drafts are lost on restart.
type Store struct {
	mu     sync.RWMutex
	drafts map[string]*Draft
}

func NewStore() *Store {
	return &Store{drafts: make(map[string]*Draft)}
}

// Update runs fn on the user's draft under the write lock, creating the draft
// on first use.
func (s *Store) Update(userID string, fn func(*Draft) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, ok := s.drafts[userID]
	if !ok {
		draft = &Draft{}
		s.drafts[userID] = draft
	}
	return fn(draft)
}

// View runs fn on the user's draft under the read lock. Users without a draft
// see an empty one.
func (s *Store) View(userID string, fn func(*Draft)) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	draft, ok := s.drafts[userID]
	if !ok {
		draft = &Draft{}
	}
	fn(draft)
}

func (s *Store) AddImage(userID, url string) (block Block, err error) {
	err = s.Update(userID, func(d *Draft) error {
		block, err = d.AddImage(url)
		return err
	})
	return block, err
}

func (s *Store) AddText(userID, text string) (block Block, err error) {
	err = s.Update(userID, func(d *Draft) error {
		block, err = d.AddText(text)
		return err
	})
	return block, err
}

func (s *Store) Move(userID, blockID string, direction Direction) error {
	return s.Update(userID, func(d *Draft) error {
		return d.Move(blockID, direction)
	})
}

func (s *Store) Remove(userID, blockID string) error {
	return s.Update(userID, func(d *Draft) error {
		return d.Remove(blockID)
	})
}

func (s *Store) Blocks(userID string) (blocks []Block) {
	s.View(userID, func(d *Draft) {
		blocks = d.Blocks()
	})
	return blocks
}

func (s *Store) HTML(userID string) (document string) {
	s.View(userID, func(d *Draft) {
		document = d.HTML()
	})
	return document
}
