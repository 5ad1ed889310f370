package game

import (
	"os"
	"testing"

	"github.com/decker502/scratchcard/pkg/reward"
)

// TestOpenStorage 测试存储打开后可以被卡片缓存使用
func TestOpenStorage(t *testing.T) {
	tempDir := t.TempDir()
	originalHome := os.Getenv("HOME")
	os.Setenv("HOME", tempDir)
	t.Cleanup(func() { os.Setenv("HOME", originalHome) })

	gm := OpenStorage("test_open_storage", nil)
	if gm == nil {
		t.Fatal("OpenStorage() returned nil")
	}

	cache := NewCardCache(gm, nil)
	if err := cache.Save(reward.Card{ID: 9, Status: reward.StatusPending}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if !gm.ObjectPropExists(cardCacheObject, cardCacheProperty) {
		t.Error("Expected cache to be written to storage")
	}
}
