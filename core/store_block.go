package core

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var blockStoreLog = logrus.WithField("subsystem", "store.block")

// BlockStore indexes blocks two ways: by number along the current main
// chain, and by blockstamp for everything the fork tree still remembers
// (main chain and every tracked side branch), grounded on the
// append-then-index WAL pattern of the teacher's Ledger.
type BlockStore struct {
	mu sync.RWMutex

	wal *os.File

	mainChain map[BlockNumber]*Block
	byStamp   map[Blockstamp]*Block
}

// NewBlockStore opens (creating if absent) the block WAL at walPath and
// replays it to rebuild the in-memory index.
func NewBlockStore(walPath string) (bs *BlockStore, err error) {
	f, err := os.OpenFile(walPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: open block WAL: %v", ErrStore, err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
		}
	}()

	bs = &BlockStore{
		wal:       f,
		mainChain: make(map[BlockNumber]*Block),
		byStamp:   make(map[Blockstamp]*Block),
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		text, decodeErr := base64.StdEncoding.DecodeString(scanner.Text())
		if decodeErr != nil {
			return nil, fmt.Errorf("%w: block WAL decode: %v", ErrStore, decodeErr)
		}
		b, parseErr := ParseBlock(string(text))
		if parseErr != nil {
			return nil, fmt.Errorf("%w: block WAL parse: %v", ErrStore, parseErr)
		}
		b.Hash = b.ComputeOuterHash()
		bs.index(b, true)
	}
	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: block WAL scan: %v", ErrStore, err)
	}
	blockStoreLog.Infof("replayed %d blocks from WAL", len(bs.mainChain))
	return bs, nil
}

func (bs *BlockStore) index(b *Block, onMainChain bool) {
	stamp := Blockstamp{Number: b.Number, Hash: Hash(b.Hash)}
	bs.byStamp[stamp] = b
	if onMainChain {
		bs.mainChain[b.Number] = b
	}
}

// Put appends the block to the WAL and indexes it; mainChain selects
// whether it also becomes reachable by block number (the fork tree decides
// this for non-tip-extending blocks, see §4.F).
func (bs *BlockStore) Put(b *Block, onMainChain bool) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	line := base64.StdEncoding.EncodeToString([]byte(b.FullText())) + "\n"
	if _, err := bs.wal.Write([]byte(line)); err != nil {
		return fmt.Errorf("%w: append block WAL: %v", ErrStore, err)
	}
	bs.index(b, onMainChain)
	return nil
}

// PromoteToMainChain marks an already-indexed blockstamp as part of the
// main chain, used by the fork tree's rollback-reapply (§4.F).
func (bs *BlockStore) PromoteToMainChain(stamp Blockstamp) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	b, ok := bs.byStamp[stamp]
	if !ok {
		return ErrUnknownBlock
	}
	bs.mainChain[b.Number] = b
	return nil
}

// DemoteFromMainChain removes a block number from the main-chain index
// without discarding it from the by-blockstamp index, used during revert.
func (bs *BlockStore) DemoteFromMainChain(n BlockNumber) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	delete(bs.mainChain, n)
}

// ByNumber returns the main-chain block at n, if any.
func (bs *BlockStore) ByNumber(n BlockNumber) (*Block, bool) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	b, ok := bs.mainChain[n]
	return b, ok
}

// ByBlockstamp returns any indexed block (main chain or tracked fork) at
// the given blockstamp.
func (bs *BlockStore) ByBlockstamp(stamp Blockstamp) (*Block, bool) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	b, ok := bs.byStamp[stamp]
	return b, ok
}

// CurrentBlockstamp returns the tip of the main chain, or the zero value
// if the store is empty.
func (bs *BlockStore) CurrentBlockstamp() Blockstamp {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	var top BlockNumber
	var tip *Block
	for n, b := range bs.mainChain {
		if tip == nil || n > top {
			top, tip = n, b
		}
	}
	if tip == nil {
		return Blockstamp{}
	}
	return Blockstamp{Number: tip.Number, Hash: Hash(tip.Hash)}
}

// Close flushes and closes the WAL file.
func (bs *BlockStore) Close() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.wal.Close()
}
