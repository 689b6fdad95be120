// internal/services/lock_manager.go
package services

import (
	"sync"
	"time"
)

// LockManager 论文级别的锁管理器
//
// 同一论文的管线操作串行化，避免两个请求同时推进同一个工作区。
type LockManager struct {
	paperLocks map[string]*lockInfo
	globalLock sync.RWMutex
}

type lockInfo struct {
	mutex    *sync.RWMutex
	lastUsed time.Time
}

// NewLockManager 创建锁管理器
func NewLockManager() *LockManager {
	lm := &LockManager{
		paperLocks: make(map[string]*lockInfo),
	}

	lm.startCleanup()
	return lm
}

// getPaperLock 获取论文锁，不存在时创建
func (lm *LockManager) getPaperLock(paperID string) *sync.RWMutex {
	lm.globalLock.RLock()
	if info, exists := lm.paperLocks[paperID]; exists {
		lm.globalLock.RUnlock()
		info.lastUsed = time.Now()
		return info.mutex
	}
	lm.globalLock.RUnlock()

	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	// 双重检查
	if info, exists := lm.paperLocks[paperID]; exists {
		info.lastUsed = time.Now()
		return info.mutex
	}

	mutex := &sync.RWMutex{}
	lm.paperLocks[paperID] = &lockInfo{mutex: mutex, lastUsed: time.Now()}
	return mutex
}

// ExecuteWithPaperLock 在论文写锁保护下执行操作
func (lm *LockManager) ExecuteWithPaperLock(paperID string, fn func() error) error {
	lock := lm.getPaperLock(paperID)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// ExecuteWithPaperReadLock 在论文读锁保护下执行操作
func (lm *LockManager) ExecuteWithPaperReadLock(paperID string, fn func() error) error {
	lock := lm.getPaperLock(paperID)
	lock.RLock()
	defer lock.RUnlock()
	return fn()
}

// 定期清理长时间未使用的锁
func (lm *LockManager) startCleanup() {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			lm.cleanupUnusedLocks()
		}
	}()
}

func (lm *LockManager) cleanupUnusedLocks() {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	const maxLocks = 200
	const lockTimeout = 30 * time.Minute

	if len(lm.paperLocks) <= maxLocks {
		return
	}

	now := time.Now()
	for paperID, info := range lm.paperLocks {
		if now.Sub(info.lastUsed) > lockTimeout {
			delete(lm.paperLocks, paperID)
		}
	}
}
