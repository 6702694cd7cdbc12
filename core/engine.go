package core

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

var engineLog = logrus.WithField("subsystem", "engine")

const (
	// ChunkSize is the number of contiguous blocks requested per fetch,
	// CHUNK_SIZE in §4.G.3.
	ChunkSize = 50
	// MaxBlocksRequest caps in-flight block-range requests, MAX_BLOCKS_REQUEST
	// in §4.G.3.
	MaxBlocksRequest = 500
	// fetchTimerInterval and orphanTimerInterval both fire "every ~20s"
	// per §4.G's timer sources.
	fetchTimerInterval  = 20 * time.Second
	orphanTimerInterval = 20 * time.Second
)

// EngineEvent is emitted by the engine loop for other subsystems to
// observe (§4.G/§5): StackUpValidBlock, RevertBlocks, RefusedBlock, Orphan,
// ForkCandidate.
type EngineEvent struct {
	Kind       string // "StackUpValidBlock" | "RevertBlocks" | "RefusedBlock" | "Orphan" | "ForkCandidate"
	Blockstamp Blockstamp
	Reason     string
}

// ReceiveDocuments is a network-message: a batch of non-block documents
// pushed or gossiped by a peer.
type ReceiveDocuments struct {
	Identities     []*Identity
	Memberships    []*Membership
	Certifications []*Certification
	Revocations    []*Revocation
	Transactions   []*Transaction
}

// ReceiveBlocks is a network-message: a contiguous chunk of candidate
// blocks, e.g. answering a BLOCKS_CHUNK request.
type ReceiveBlocks struct {
	Blocks []*Block
}

// ConsensusAnnounce is a network-message: a peer's advertised chain tip.
type ConsensusAnnounce struct {
	Blockstamp Blockstamp
}

// engineMessage is the sum type accepted by the engine's queue; the
// concrete payload determines how it's dispatched.
type engineMessage struct {
	documents  *ReceiveDocuments
	blocks     *ReceiveBlocks
	consensus  *ConsensusAnnounce
	query      *engineQuery
}

type engineQuery struct {
	kind    string
	pubkeys []PubKey
	reply   chan any
}

// Engine is the single-threaded blockchain engine loop: it owns the
// stores, the WoT graph, the fork tree and the mempool, and is the only
// goroutine that ever mutates them (§5 "Shared resources").
type Engine struct {
	Stores   *Stores
	ForkTree *ForkTree
	Mempool  *Mempool
	Params   *Parameters

	queue  chan engineMessage
	events chan EngineEvent

	peerConsensus Blockstamp
	inFlight      int
}

// NewEngine wires a fresh engine around the given stores/fork tree, with
// a reasonably deep queue so that WS2P reader threads never block on a
// busy engine (§5).
func NewEngine(stores *Stores, ft *ForkTree, mp *Mempool, genesisParams *Parameters) *Engine {
	return &Engine{
		Stores:   stores,
		ForkTree: ft,
		Mempool:  mp,
		Params:   genesisParams,
		queue:    make(chan engineMessage, 1024),
		events:   make(chan EngineEvent, 256),
	}
}

// Events returns the channel the engine publishes lifecycle events on.
func (e *Engine) Events() <-chan EngineEvent { return e.events }

// SubmitBlocks enqueues a ReceiveBlocks network message. Safe to call from
// any goroutine (the WS2P reader threads, per §5).
func (e *Engine) SubmitBlocks(blocks []*Block) {
	e.queue <- engineMessage{blocks: &ReceiveBlocks{Blocks: blocks}}
}

// SubmitDocuments enqueues a ReceiveDocuments network message.
func (e *Engine) SubmitDocuments(docs *ReceiveDocuments) {
	e.queue <- engineMessage{documents: docs}
}

// SubmitConsensus enqueues a peer's advertised chain tip.
func (e *Engine) SubmitConsensus(stamp Blockstamp) {
	e.queue <- engineMessage{consensus: &ConsensusAnnounce{Blockstamp: stamp}}
}

// CurrentBlock answers the §4.G "Request messages" CurrentBlock query
// synchronously by round-tripping through the engine's own queue, so the
// answer always reflects a consistent, non-racing snapshot.
func (e *Engine) CurrentBlock(ctx context.Context) (Blockstamp, error) {
	reply := make(chan any, 1)
	e.queue <- engineMessage{query: &engineQuery{kind: "CurrentBlock", reply: reply}}
	select {
	case v := <-reply:
		return v.(Blockstamp), nil
	case <-ctx.Done():
		return Blockstamp{}, ctx.Err()
	}
}

// Run is the blocking single-threaded event loop (§4.G, §5): it consumes
// the message queue with a 1-second receive timeout and fires the two
// ~20s timers. It returns when ctx is cancelled. The orphan timer only
// evicts expired mempool documents; parked orphans are released when
// ingestBlock applies their parent to the main chain, not on a timer.
func (e *Engine) Run(ctx context.Context) {
	fetchTicker := time.NewTicker(fetchTimerInterval)
	orphanTicker := time.NewTicker(orphanTimerInterval)
	defer fetchTicker.Stop()
	defer orphanTicker.Stop()

	recvTimeout := time.NewTimer(time.Second)
	defer recvTimeout.Stop()

	for {
		select {
		case <-ctx.Done():
			engineLog.Info("engine loop stopping")
			return
		case msg := <-e.queue:
			e.dispatch(msg)
		case <-recvTimeout.C:
			recvTimeout.Reset(time.Second)
		case <-fetchTicker.C:
			e.requestFetchIfBehind()
		case <-orphanTicker.C:
			e.Mempool.EvictExpired()
		}
	}
}

func (e *Engine) dispatch(msg engineMessage) {
	switch {
	case msg.blocks != nil:
		for _, b := range msg.blocks.Blocks {
			e.ingestBlock(b)
		}
	case msg.documents != nil:
		e.ingestDocuments(msg.documents)
	case msg.consensus != nil:
		e.peerConsensus = msg.consensus.Blockstamp
	case msg.query != nil:
		e.answerQuery(msg.query)
	}
}

func (e *Engine) answerQuery(q *engineQuery) {
	switch q.kind {
	case "CurrentBlock":
		q.reply <- e.Stores.Blocks.CurrentBlockstamp()
	default:
		q.reply <- nil
	}
}

// ingestBlock implements §4.G.1: validate, apply on success, update the
// fork tree, emit StackUpValidBlock; on a side-branch candidate, record
// it and let the chooser decide whether to roll over (§4.F).
func (e *Engine) ingestBlock(b *Block) {
	current := e.Stores.Blocks.CurrentBlockstamp()
	vctx := &ValidationContext{Stores: e.Stores, Current: current, Params: e.Params}

	if b.Number > 0 {
		if _, ok := e.Stores.Blocks.ByBlockstamp(Blockstamp{Number: b.Number - 1, Hash: b.PreviousHash}); !ok && !current.IsZero() {
			e.ForkTree.ParkOrphan(b)
			e.events <- EngineEvent{Kind: "Orphan", Blockstamp: Blockstamp{Number: b.Number, Hash: Hash(b.Hash)}}
			return
		}
	}

	ws, err := ValidateBlock(vctx, b)
	if err != nil {
		e.events <- EngineEvent{Kind: "RefusedBlock", Reason: err.Error()}
		return
	}

	stamp := Blockstamp{Number: b.Number, Hash: Hash(b.Hash)}
	onMainChain := current.IsZero() || b.PreviousHash == current.Hash

	scoreParams := e.Params
	if b.Number == 0 {
		scoreParams = b.Parameters
	}
	ceiling := commonDifficultyCeiling(vctx, b, scoreParams)
	prevScore, _ := e.ForkTree.ScoreAt(Blockstamp{Number: b.Number - 1, Hash: b.PreviousHash})
	score := ForkScore{Height: b.Number, Complement: prevScore.Complement + int64(ceiling-b.PoWMin)}

	if err := e.Stores.Apply(ws, onMainChain); err != nil {
		e.events <- EngineEvent{Kind: "RefusedBlock", Reason: err.Error()}
		return
	}
	e.ForkTree.Record(stamp, Blockstamp{Number: b.Number - 1, Hash: b.PreviousHash}, ws, score)

	if onMainChain {
		e.ForkTree.SetMainTip(stamp)
		for _, entry := range b.Transactions {
			if entry.Tx != nil {
				e.Mempool.RemoveTransaction(entry.Tx.Hash())
			}
		}
		e.events <- EngineEvent{Kind: "StackUpValidBlock", Blockstamp: stamp}
		for _, orphan := range e.ForkTree.ReleaseOrphans(Hash(b.Hash)) {
			e.ingestBlock(orphan)
		}
	} else {
		e.events <- EngineEvent{Kind: "ForkCandidate", Blockstamp: stamp}
		e.maybeRollover()
	}
}

// maybeRollover implements §4.F's rollback-reapply when a side tip has
// overtaken the main tip by the configured margin.
func (e *Engine) maybeRollover() {
	sideTip, shouldRoll := e.ForkTree.BestSideTip()
	if !shouldRoll {
		return
	}
	mainTip := e.ForkTree.MainTip()
	ancestor, ok := e.ForkTree.CommonAncestor(mainTip, sideTip)
	if !ok {
		return
	}

	revertPath := e.ForkTree.PathTo(ancestor, mainTip)
	for i := len(revertPath) - 1; i >= 0; i-- {
		ws, ok := e.ForkTree.WriteSetAt(revertPath[i])
		if !ok {
			continue
		}
		_ = e.Stores.Revert(ws)
		e.events <- EngineEvent{Kind: "RevertBlocks", Blockstamp: revertPath[i]}
	}

	reapplyPath := e.ForkTree.PathTo(ancestor, sideTip)
	var applied []Blockstamp
	ok = true
	for _, stamp := range reapplyPath {
		ws, found := e.ForkTree.WriteSetAt(stamp)
		if !found {
			ok = false
			break
		}
		if err := e.Stores.Apply(ws, true); err != nil {
			ok = false
			break
		}
		_ = e.Stores.Blocks.PromoteToMainChain(stamp)
		applied = append(applied, stamp)
	}
	if !ok {
		// unwind whatever of the new branch was buffered, then restore main.
		for i := len(applied) - 1; i >= 0; i-- {
			if ws, found := e.ForkTree.WriteSetAt(applied[i]); found {
				_ = e.Stores.Revert(ws)
			}
		}
		for _, stamp := range revertPath {
			if ws, found := e.ForkTree.WriteSetAt(stamp); found {
				_ = e.Stores.Apply(ws, true)
				_ = e.Stores.Blocks.PromoteToMainChain(stamp)
			}
		}
		return
	}
	e.ForkTree.SetMainTip(sideTip)
	for _, stamp := range reapplyPath {
		e.events <- EngineEvent{Kind: "StackUpValidBlock", Blockstamp: stamp}
	}
}

// ingestDocuments implements §4.G.2: non-block documents are forwarded to
// the mempool collaborator, not indexed by the engine itself.
func (e *Engine) ingestDocuments(docs *ReceiveDocuments) {
	params := e.Params
	if params == nil {
		return
	}
	for _, id := range docs.Identities {
		e.Mempool.AddIdentity(id, params.IdtyWindow)
	}
	for _, m := range docs.Memberships {
		e.Mempool.AddMembership(m, params.MsWindow)
	}
	for _, c := range docs.Certifications {
		e.Mempool.AddCertification(c, params.SigWindow)
	}
	for _, r := range docs.Revocations {
		e.Mempool.AddRevocation(r)
	}
	for _, tx := range docs.Transactions {
		e.Mempool.AddTransaction(tx)
	}
}

// requestFetchIfBehind implements §4.G.3/4: when the advertised network
// consensus is ahead of the current tip, request up to MaxBlocksRequest
// blocks in ChunkSize pieces. The actual wire request is issued by the
// ws2p package; this only decides whether and how much to ask for.
func (e *Engine) requestFetchIfBehind() (fromNumber BlockNumber, count int, shouldFetch bool) {
	current := e.Stores.Blocks.CurrentBlockstamp()
	if e.peerConsensus.Number <= current.Number {
		return 0, 0, false
	}
	gap := int(e.peerConsensus.Number - current.Number)
	if gap > MaxBlocksRequest {
		gap = MaxBlocksRequest
	}
	if gap > ChunkSize {
		gap = ChunkSize
	}
	return current.Number + 1, gap, true
}
