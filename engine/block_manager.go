package engine

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Block represents one KV cache block
type Block struct {
	BlockID  int
	RefCount int
	Hash     uint64
	TokenIDs []int
}

// Update records the hash and token contents of a full block
func (b *Block) Update(hash uint64, tokenIDs []int) {
	b.Hash = hash
	b.TokenIDs = make([]int, len(tokenIDs))
	copy(b.TokenIDs, tokenIDs)
}

// Reset prepares the block for reuse
func (b *Block) Reset() {
	b.RefCount = 1
	b.Hash = 0
	b.TokenIDs = nil
}

// BlockManager hands out KV cache blocks and caches full blocks by their
// chained content hash so a repeated prompt prefix reuses existing blocks.
type BlockManager struct {
	blockSize     int
	blocks        []*Block
	hashToBlockID map[uint64]int
	freeBlockIDs  []int
	usedBlockIDs  map[int]bool
}

// NewBlockManager creates a new block manager
func NewBlockManager(numBlocks, blockSize int) *BlockManager {
	blocks := make([]*Block, numBlocks)
	freeBlockIDs := make([]int, numBlocks)
	for i := range blocks {
		blocks[i] = &Block{BlockID: i}
		freeBlockIDs[i] = i
	}

	return &BlockManager{
		blockSize:     blockSize,
		blocks:        blocks,
		hashToBlockID: make(map[uint64]int),
		freeBlockIDs:  freeBlockIDs,
		usedBlockIDs:  make(map[int]bool),
	}
}

// ComputeHash hashes a block of token IDs chained onto the previous block's hash
func (bm *BlockManager) ComputeHash(tokenIDs []int, prefixHash uint64) uint64 {
	h := xxhash.New()

	var buf [8]byte
	if prefixHash != 0 {
		binary.LittleEndian.PutUint64(buf[:], prefixHash)
		h.Write(buf[:])
	}

	for _, tokenID := range tokenIDs {
		binary.LittleEndian.PutUint32(buf[:4], uint32(tokenID))
		h.Write(buf[:4])
	}

	return h.Sum64()
}

func (bm *BlockManager) allocateBlock(blockID int) *Block {
	block := bm.blocks[blockID]
	if block.RefCount != 0 {
		panic("block is already allocated")
	}

	block.Reset()

	for i, id := range bm.freeBlockIDs {
		if id == blockID {
			bm.freeBlockIDs = append(bm.freeBlockIDs[:i], bm.freeBlockIDs[i+1:]...)
			break
		}
	}

	bm.usedBlockIDs[blockID] = true
	return block
}

func (bm *BlockManager) deallocateBlock(blockID int) {
	if bm.blocks[blockID].RefCount != 0 {
		panic("block still has references")
	}

	delete(bm.usedBlockIDs, blockID)
	bm.freeBlockIDs = append(bm.freeBlockIDs, blockID)
}

// CanAllocate checks if there are enough free blocks for a sequence
func (bm *BlockManager) CanAllocate(seq *Sequence) bool {
	return len(bm.freeBlockIDs) >= seq.NumBlocks()
}

// Allocate assigns blocks to a sequence, reusing prefix-cached blocks where
// the chained hash and token contents match.
func (bm *BlockManager) Allocate(seq *Sequence) {
	if len(seq.BlockTable) > 0 {
		panic("sequence already has blocks allocated")
	}

	var h uint64
	cacheMiss := false

	for i := 0; i < seq.NumBlocks(); i++ {
		tokenIDs := seq.Block(i)

		// Only full blocks participate in the prefix cache.
		if len(tokenIDs) == bm.blockSize {
			h = bm.ComputeHash(tokenIDs, h)
		} else {
			h = 0
		}

		blockID := -1
		if h != 0 {
			if id, ok := bm.hashToBlockID[h]; ok && tokensEqual(bm.blocks[id].TokenIDs, tokenIDs) {
				blockID = id
			}
		}

		if blockID == -1 {
			cacheMiss = true
		}

		if cacheMiss {
			blockID = bm.freeBlockIDs[0]
			bm.allocateBlock(blockID)
		} else {
			seq.NumCachedTokens += bm.blockSize
			if bm.usedBlockIDs[blockID] {
				bm.blocks[blockID].RefCount++
			} else {
				bm.allocateBlock(blockID)
			}
		}

		if h != 0 {
			bm.blocks[blockID].Update(h, tokenIDs)
			bm.hashToBlockID[h] = blockID
		}

		seq.BlockTable = append(seq.BlockTable, blockID)
	}
}

// Deallocate releases a sequence's blocks
func (bm *BlockManager) Deallocate(seq *Sequence) {
	for i := len(seq.BlockTable) - 1; i >= 0; i-- {
		blockID := seq.BlockTable[i]
		block := bm.blocks[blockID]
		block.RefCount--
		if block.RefCount == 0 {
			bm.deallocateBlock(blockID)
		}
	}

	seq.NumCachedTokens = 0
	seq.BlockTable = seq.BlockTable[:0]
}

// CanAppend checks whether appending one token could be satisfied
func (bm *BlockManager) CanAppend(seq *Sequence) bool {
	if seq.Len()%bm.blockSize == 1 {
		return len(bm.freeBlockIDs) >= 1
	}
	return true
}

// MayAppend prepares block bookkeeping for one appended token
func (bm *BlockManager) MayAppend(seq *Sequence) {
	blockTable := seq.BlockTable
	lastBlock := bm.blocks[blockTable[len(blockTable)-1]]

	switch seq.Len() % bm.blockSize {
	case 1:
		// Crossed into a fresh block.
		if lastBlock.Hash == 0 {
			panic("last block should have a hash")
		}
		blockID := bm.freeBlockIDs[0]
		bm.allocateBlock(blockID)
		seq.BlockTable = append(seq.BlockTable, blockID)
	case 0:
		// Last block just filled up, make it cacheable.
		if lastBlock.Hash != 0 {
			panic("last block should not have a hash")
		}
		tokenIDs := seq.Block(seq.NumBlocks() - 1)
		var prefixHash uint64
		if len(blockTable) > 1 {
			prefixHash = bm.blocks[blockTable[len(blockTable)-2]].Hash
		}
		h := bm.ComputeHash(tokenIDs, prefixHash)
		lastBlock.Update(h, tokenIDs)
		bm.hashToBlockID[h] = lastBlock.BlockID
	default:
		if lastBlock.Hash != 0 {
			panic("last block should not have a hash")
		}
	}
}

// NumFreeBlocks returns the number of unallocated blocks
func (bm *BlockManager) NumFreeBlocks() int {
	return len(bm.freeBlockIDs)
}

func tokensEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
