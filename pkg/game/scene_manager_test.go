package game

import (
	"testing"

	"github.com/hajimehoshi/ebiten/v2"
)

// MockScene is a mock implementation of the Scene interface for testing.
type MockScene struct {
	updateCalled bool
	drawCalled   bool
	deltaTime    float64
	disposed     int
}

// Update records that Update was called and stores the deltaTime.
func (m *MockScene) Update(deltaTime float64) {
	m.updateCalled = true
	m.deltaTime = deltaTime
}

// Draw records that Draw was called.
func (m *MockScene) Draw(screen *ebiten.Image) {
	m.drawCalled = true
}

// Dispose counts how many times the scene was torn down.
func (m *MockScene) Dispose() {
	m.disposed++
}

// TestSceneManagerUpdate verifies that Update calls the current scene's Update method.
func TestSceneManagerUpdate(t *testing.T) {
	sm := NewSceneManager(nil)
	mockScene := &MockScene{}
	sm.SwitchTo(mockScene)

	deltaTime := 1.0 / 60
	sm.Update(deltaTime)

	if !mockScene.updateCalled {
		t.Error("Scene's Update method was not called")
	}
	if mockScene.deltaTime != deltaTime {
		t.Errorf("Expected deltaTime %.3f, got %.3f", deltaTime, mockScene.deltaTime)
	}
}

// TestSceneManagerNoScene verifies that Update and Draw handle a nil scene gracefully.
func TestSceneManagerNoScene(t *testing.T) {
	sm := NewSceneManager(nil)
	sm.Update(0.016)
	sm.Draw(ebiten.NewImage(64, 64))
	sm.Close()
}

// TestSceneManagerDraw verifies that Draw calls the current scene's Draw method.
func TestSceneManagerDraw(t *testing.T) {
	sm := NewSceneManager(nil)
	mockScene := &MockScene{}
	sm.SwitchTo(mockScene)

	sm.Draw(ebiten.NewImage(800, 600))

	if !mockScene.drawCalled {
		t.Error("Scene's Draw method was not called")
	}
}

// TestSceneManagerDisposesReplacedScene verifies that switching and closing dispose scenes once.
func TestSceneManagerDisposesReplacedScene(t *testing.T) {
	sm := NewSceneManager(nil)
	scene1 := &MockScene{}
	scene2 := &MockScene{}

	sm.SwitchTo(scene1)
	sm.SwitchTo(scene1)
	if scene1.disposed != 0 {
		t.Error("Switching to the same scene must not dispose it")
	}

	sm.SwitchTo(scene2)
	sm.Update(0.016)
	if scene1.disposed != 1 {
		t.Errorf("scene1 disposed %d times, want 1", scene1.disposed)
	}
	if scene1.updateCalled || !scene2.updateCalled {
		t.Error("Only the active scene should be updated")
	}

	sm.Close()
	if scene2.disposed != 1 || sm.GetCurrentScene() != nil {
		t.Error("Close should dispose the active scene and clear it")
	}
}
