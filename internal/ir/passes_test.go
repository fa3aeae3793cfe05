package ir

import (
	"testing"
)

func TestNewPipeline(t *testing.T) {
	pipeline := NewPipeline()
	if pipeline == nil {
		t.Fatal("NewPipeline should not return nil")
	}
	if len(pipeline.passes) == 0 {
		t.Error("the default pipeline should have passes")
	}
}

func TestPipelineRun(t *testing.T) {
	fn := buildDiamond()
	pipeline := NewPipeline()
	pipeline.Run(fn)

	if n := cellAccesses(fn); n != 0 {
		t.Errorf("the pipeline should promote the cell, found %d accesses", n)
	}
	if err := fn.Verify(); err != nil {
		t.Errorf("function invalid after pipeline: %s", err)
	}
}

func TestDCERemovesUnreachableBlocks(t *testing.T) {
	fn := NewFunction("deadblocks", i32)
	entry := fn.NewBlock("entry")
	island := fn.NewBlock("island")
	tail := fn.NewBlock("tail")

	entry.SetJump(tail)
	island.SetJump(tail)
	phi := NewPhi("m", i32, 2)
	tail.AppendPhi(phi)
	phi.AddIncoming(NewConst(i32, 1), entry)
	phi.AddIncoming(NewConst(i32, 2), island)
	tail.SetRet(phi)

	fn.Renumber()
	fn.RecomputeCFG()

	dce := &DeadCodeElimination{}
	if !dce.Apply(fn) {
		t.Fatal("DCE should remove the island")
	}
	if len(fn.Blocks) != 2 {
		t.Fatalf("expected 2 surviving blocks, got %d", len(fn.Blocks))
	}
	if len(phi.Incomings) != 1 || phi.Incomings[0].Pred != entry {
		t.Errorf("the phi should keep only the live edge, got %s", phi)
	}
	if err := fn.Verify(); err != nil {
		t.Errorf("function invalid after DCE: %s", err)
	}
}

func TestDCERemovesUnusedInstructions(t *testing.T) {
	fn := NewFunction("deadinstrs", i32, NewParam("a", i32))
	a := fn.Params[0]
	entry := fn.NewBlock("entry")
	used := entry.NewBinOp("used", "add", i32, a, NewConst(i32, 1))
	dead := entry.NewBinOp("dead", "mul", i32, used, used)
	deader := entry.NewBinOp("deader", "add", i32, dead, a)
	_ = deader
	entry.SetRet(used)

	fn.Renumber()
	fn.RecomputeCFG()

	dce := &DeadCodeElimination{}
	if !dce.Apply(fn) {
		t.Fatal("DCE should remove the unused chain")
	}
	if len(entry.Instrs) != 1 || entry.Instrs[0] != Instruction(used) {
		t.Errorf("only the used instruction should survive, got %d instructions", len(entry.Instrs))
	}
}

func TestDCEKeepsStores(t *testing.T) {
	fn := NewFunction("keepstores", i32)
	entry := fn.NewBlock("entry")
	c := entry.NewAlloca("c", i32)
	entry.NewStore(c, NewConst(i32, 1))
	v := entry.NewLoad("v", c)
	entry.SetRet(v)

	fn.Renumber()
	fn.RecomputeCFG()

	(&DeadCodeElimination{}).Apply(fn)
	if n := cellAccesses(fn); n != 3 {
		t.Errorf("DCE alone must not remove live cell accesses, found %d of 3", n)
	}
}
