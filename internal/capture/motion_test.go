package capture

import (
	"testing"

	"gocv.io/x/gocv"
)

func TestMotionGate_Disabled(t *testing.T) {
	g := NewMotionGate(0)
	defer g.Close()

	if g.Enabled() {
		t.Fatal("zero threshold gate should be disabled")
	}

	open, _ := g.Open(nil)
	if !open {
		t.Error("disabled gate should let every frame through")
	}
}

func TestMotionGate_NilIsDisabled(t *testing.T) {
	var g *MotionGate
	if g.Enabled() {
		t.Error("nil gate should be disabled")
	}
}

func TestMotionGate_FirstFrameOpens(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	g := NewMotionGate(1.0)
	defer g.Close()

	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	open, _ := g.Open(&frame)
	if !open {
		t.Error("first frame should open the gate")
	}
}

func TestMotionGate_StaticSceneStaysClosed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	g := NewMotionGate(1.0)
	defer g.Close()

	frame1 := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame1.Close()
	frame2 := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame2.Close()

	g.Open(&frame1)
	open, changed := g.Open(&frame2)
	if open {
		t.Errorf("identical frames should keep the gate closed, changed = %f", changed)
	}
}

func TestMotionGate_SceneChangeOpens(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	g := NewMotionGate(1.0)
	defer g.Close()

	black := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer black.Close()
	white := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer white.Close()
	white.SetTo(gocv.NewScalar(255, 255, 255, 0))

	g.Open(&black)
	open, changed := g.Open(&white)
	if !open {
		t.Errorf("black to white should open the gate, changed = %f", changed)
	}
	if changed < 50.0 {
		t.Errorf("changed = %f, expected > 50%%", changed)
	}
}

func TestMotionGate_ResetPrimesAgain(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	g := NewMotionGate(1.0)
	defer g.Close()

	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	g.Open(&frame)
	g.Reset()

	if g.primed {
		t.Error("gate should not be primed after Reset")
	}
	open, _ := g.Open(&frame)
	if !open {
		t.Error("first frame after Reset should open the gate")
	}
}

func TestMotionGate_CloseTwice(t *testing.T) {
	g := NewMotionGate(1.0)
	g.Close()
	g.Close()
}

func TestMotionGate_UseAfterClose(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping gocv test in short mode")
	}

	g := NewMotionGate(1.0)
	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	g.Open(&frame)
	g.Close()
	if !g.closed || g.primed {
		t.Fatalf("closed=%v primed=%v after Close", g.closed, g.primed)
	}

	// The freed reference frame must not be touched or replaced.
	g.Reset()
	if open, _ := g.Open(&frame); !open {
		t.Error("a closed gate should let frames through")
	}
	if g.primed {
		t.Error("Open after Close primed the gate again")
	}
}
