package core

import (
	"context"
	"testing"
	"time"
)

func TestEngineIngestsGenesisAndAnswersCurrentBlock(t *testing.T) {
	issuer := genKeyPair(t)
	genesis := buildGenesis(t, issuer)

	stores := newTestStores()
	stores.Blocks = newTestBlockStore(t)
	ft := NewForkTree()
	mp := NewMempool()
	params, err := ParseParameters("0.0488:86400:1000:432000:100:5259600:63115200:5:5259600:5259600:0.8:31557600:5:24:300:12:0.67:1488970800:1490094000:15778800")
	if err != nil {
		t.Fatalf("parameters: %v", err)
	}
	eng := NewEngine(stores, ft, mp, params)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)

	eng.SubmitBlocks([]*Block{genesis})

	var got Blockstamp
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		qctx, qcancel := context.WithTimeout(ctx, 200*time.Millisecond)
		got, err = eng.CurrentBlock(qctx)
		qcancel()
		if err == nil && got.Number == 0 && !got.Hash.IsZero() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got.Hash.IsZero() {
		t.Fatalf("expected engine to ingest genesis block and set the tip")
	}
}

func TestEngineParksOrphanUntilParentArrives(t *testing.T) {
	issuer := genKeyPair(t)
	genesis := buildGenesis(t, issuer)

	stores := newTestStores()
	stores.Blocks = newTestBlockStore(t)
	ft := NewForkTree()
	mp := NewMempool()
	eng := NewEngine(stores, ft, mp, nil)

	orphan := &Block{Number: 5, PreviousHash: Hash{0xAB}}
	eng.ingestBlock(genesis)
	eng.ingestBlock(orphan)

	if got := ft.ReleaseOrphans(Hash{0xAB}); len(got) != 1 {
		t.Fatalf("expected orphan parked awaiting its missing parent, got %d", len(got))
	}
}

func TestEngineRequestFetchIfBehind(t *testing.T) {
	stores := newTestStores()
	stores.Blocks = newTestBlockStore(t)
	eng := NewEngine(stores, NewForkTree(), NewMempool(), nil)

	if _, _, should := eng.requestFetchIfBehind(); should {
		t.Fatalf("expected no fetch needed when peer consensus is unknown")
	}

	eng.peerConsensus = Blockstamp{Number: 120}
	from, count, should := eng.requestFetchIfBehind()
	if !should || from != 1 || count != ChunkSize {
		t.Fatalf("expected fetch from=1 count=%d, got from=%d count=%d should=%v", ChunkSize, from, count, should)
	}
}
