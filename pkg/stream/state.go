package stream

import "sync"

// State is the per-transaction, assembler-owned record of everything
// streamed so far. Policy hooks read it through the query methods below;
// only the Assembler mutates it.
type State struct {
	mu sync.RWMutex

	MessageID string
	Model     string
	Role      string

	blocks       []*Block
	finishReason string
	finished     bool
}

// NewState creates an empty State.
func NewState() *State {
	return &State{}
}

// Blocks returns a snapshot copy of the blocks assembled so far, ordered
// by index.
func (s *State) Blocks() []Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Block, len(s.blocks))
	for i, b := range s.blocks {
		out[i] = *b
	}
	return out
}

// Block returns a copy of the block at index, if present.
func (s *State) Block(index int) (Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.blocks {
		if b.Index == index {
			return *b, true
		}
	}
	return Block{}, false
}

// FinishReason returns the canonical finish reason once the message has
// stopped, or "" if it hasn't yet.
func (s *State) FinishReason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finishReason
}

// Finished reports whether EventMessageStop has been observed.
func (s *State) Finished() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finished
}

func (s *State) blockAt(index int) *Block {
	for _, b := range s.blocks {
		if b.Index == index {
			return b
		}
	}
	return nil
}

func (s *State) startBlock(b *Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, b)
}

func (s *State) stopBlock(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.blockAt(index); b != nil {
		b.Complete = true
	}
}

func (s *State) setFinished(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
	s.finishReason = reason
}
