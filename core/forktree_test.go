package core

import "testing"

func stamp(n BlockNumber, tag byte) Blockstamp {
	var h Hash
	h[0] = tag
	return Blockstamp{Number: n, Hash: h}
}

func TestForkScoreLess(t *testing.T) {
	a := ForkScore{Height: 10, Complement: 5}
	b := ForkScore{Height: 11, Complement: 100}
	if !a.Less(b) {
		t.Fatalf("expected shorter chain to score worse regardless of complement")
	}
	c := ForkScore{Height: 10, Complement: 2}
	if !a.Less(c) {
		t.Fatalf("expected higher complement to score worse at equal height")
	}
}

func TestForkTreeBestSideTipRequiresMargin(t *testing.T) {
	ft := NewForkTree()
	genesis := stamp(0, 1)
	ft.Record(genesis, Blockstamp{}, &WriteSet{}, ForkScore{Height: 0})
	ft.SetMainTip(genesis)

	main1 := stamp(1, 2)
	ft.Record(main1, genesis, &WriteSet{}, ForkScore{Height: 1})
	ft.SetMainTip(main1)

	side1 := stamp(1, 3)
	ft.Record(side1, genesis, &WriteSet{}, ForkScore{Height: 1})

	if _, overtakes := ft.BestSideTip(); overtakes {
		t.Fatalf("equal-height side tip should not yet overtake")
	}

	side2 := stamp(2, 4)
	ft.Record(side2, side1, &WriteSet{}, ForkScore{Height: 2})
	side3 := stamp(3, 5)
	ft.Record(side3, side2, &WriteSet{}, ForkScore{Height: 3})
	side4 := stamp(4, 6)
	ft.Record(side4, side3, &WriteSet{}, ForkScore{Height: 4})

	best, overtakes := ft.BestSideTip()
	if best != side4 {
		t.Fatalf("expected side4 as best side tip, got %v", best)
	}
	if !overtakes {
		t.Fatalf("expected side4 (height 4) to overtake main tip (height 1) by the reapply margin")
	}
}

func TestForkTreeCommonAncestorAndPath(t *testing.T) {
	ft := NewForkTree()
	genesis := stamp(0, 1)
	ft.Record(genesis, Blockstamp{}, &WriteSet{}, ForkScore{Height: 0})
	ft.SetMainTip(genesis)

	main1 := stamp(1, 2)
	ft.Record(main1, genesis, &WriteSet{}, ForkScore{Height: 1})
	main2 := stamp(2, 3)
	ft.Record(main2, main1, &WriteSet{}, ForkScore{Height: 2})
	ft.SetMainTip(main2)

	side1 := stamp(1, 4)
	ft.Record(side1, genesis, &WriteSet{}, ForkScore{Height: 1})
	side2 := stamp(2, 5)
	ft.Record(side2, side1, &WriteSet{}, ForkScore{Height: 2})

	ancestor, ok := ft.CommonAncestor(main2, side2)
	if !ok || ancestor != genesis {
		t.Fatalf("expected common ancestor genesis, got %v ok=%v", ancestor, ok)
	}

	path := ft.PathTo(ancestor, side2)
	if len(path) != 2 || path[0] != side1 || path[1] != side2 {
		t.Fatalf("expected path [side1 side2], got %v", path)
	}
}

func TestForkTreeOrphanParkAndRelease(t *testing.T) {
	ft := NewForkTree()
	missingParent := Hash{0xAB}
	orphan := &Block{Number: 5, PreviousHash: missingParent}
	ft.ParkOrphan(orphan)

	if got := ft.ReleaseOrphans(Hash{0xCD}); len(got) != 0 {
		t.Fatalf("expected no orphans released for unrelated parent hash")
	}
	released := ft.ReleaseOrphans(missingParent)
	if len(released) != 1 || released[0] != orphan {
		t.Fatalf("expected the parked orphan to be released")
	}
	if got := ft.ReleaseOrphans(missingParent); len(got) != 0 {
		t.Fatalf("expected orphan pool to be empty after release")
	}
}
