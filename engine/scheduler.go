package engine

import "container/list"

// Scheduler moves sequences between the waiting and running queues and decides
// whether the next step is a prefill or a decode step.
type Scheduler struct {
	maxSeqs          int
	maxBatchedTokens int
	eos              int
	blockManager     *BlockManager
	waiting          *list.List
	running          *list.List
}

// NewScheduler creates a new scheduler
func NewScheduler(config *Config) *Scheduler {
	return &Scheduler{
		maxSeqs:          config.MaxSeqs,
		maxBatchedTokens: config.MaxBatchedTokens,
		eos:              config.EOS,
		blockManager:     NewBlockManager(config.NumKVCacheBlocks, config.KVCacheBlockSize),
		waiting:          list.New(),
		running:          list.New(),
	}
}

// IsFinished returns true if there are no more sequences to process
func (s *Scheduler) IsFinished() bool {
	return s.waiting.Len() == 0 && s.running.Len() == 0
}

// Add places a sequence on the waiting queue
func (s *Scheduler) Add(seq *Sequence) {
	s.waiting.PushBack(seq)
}

// Schedule picks the sequences for the next step. It returns the scheduled
// sequences and whether this is a prefill step.
func (s *Scheduler) Schedule() ([]*Sequence, bool) {
	scheduled := make([]*Sequence, 0)
	numSeqs := 0
	numBatchedTokens := 0

	for s.waiting.Len() > 0 && numSeqs < s.maxSeqs {
		elem := s.waiting.Front()
		seq := elem.Value.(*Sequence)

		if numBatchedTokens+seq.Len() > s.maxBatchedTokens || !s.blockManager.CanAllocate(seq) {
			break
		}

		numSeqs++
		s.blockManager.Allocate(seq)
		numBatchedTokens += seq.Len() - seq.NumCachedTokens
		seq.Status = StatusRunning

		s.waiting.Remove(elem)
		s.running.PushBack(seq)
		scheduled = append(scheduled, seq)
	}

	if len(scheduled) > 0 {
		return scheduled, true
	}

	// Decode phase.
	for s.running.Len() > 0 && numSeqs < s.maxSeqs {
		elem := s.running.Front()
		seq := elem.Value.(*Sequence)
		s.running.Remove(elem)

		for !s.blockManager.CanAppend(seq) {
			if s.running.Len() > 0 {
				// Preempt from the back of the running queue.
				lastElem := s.running.Back()
				s.running.Remove(lastElem)
				s.preempt(lastElem.Value.(*Sequence))
			} else {
				s.preempt(seq)
				break
			}
		}

		if seq.Status == StatusRunning {
			numSeqs++
			s.blockManager.MayAppend(seq)
			scheduled = append(scheduled, seq)
		}
	}

	if len(scheduled) == 0 {
		panic("no sequences scheduled")
	}

	for i := len(scheduled) - 1; i >= 0; i-- {
		s.running.PushFront(scheduled[i])
	}

	return scheduled, false
}

func (s *Scheduler) preempt(seq *Sequence) {
	seq.Status = StatusWaiting
	s.blockManager.Deallocate(seq)
	s.waiting.PushFront(seq)
}

// Cancel retires a sequence without completing it, releasing its blocks
func (s *Scheduler) Cancel(seq *Sequence) {
	seq.Status = StatusFinished
	s.blockManager.Deallocate(seq)
	for _, q := range []*list.List{s.waiting, s.running} {
		for elem := q.Front(); elem != nil; elem = elem.Next() {
			if elem.Value.(*Sequence).SeqID == seq.SeqID {
				q.Remove(elem)
				break
			}
		}
	}
}

// Postprocess appends the sampled tokens and retires finished sequences
func (s *Scheduler) Postprocess(seqs []*Sequence, tokenIDs []int) {
	for i, seq := range seqs {
		tokenID := tokenIDs[i]
		seq.AppendToken(tokenID)

		if (!seq.IgnoreEOS && tokenID == s.eos) || seq.NumCompletionTokens() >= seq.MaxNewTokens {
			seq.Status = StatusFinished
			s.blockManager.Deallocate(seq)
			for elem := s.running.Front(); elem != nil; elem = elem.Next() {
				if elem.Value.(*Sequence).SeqID == seq.SeqID {
					s.running.Remove(elem)
					break
				}
			}
		}
	}
}
