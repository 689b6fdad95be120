// internal/credential/pool.go
package credential

import (
	"fmt"
	"sync"

	"github.com/Corphon/PaperStudioMCP/internal/utils"
)

// Capability 标识凭证所服务的外部能力
type Capability string

const (
	CapabilityText   Capability = "text"   // 文本生成（Gemini）
	CapabilitySpeech Capability = "speech" // 语音合成（Sarvam）
	CapabilityImage  Capability = "image"  // 图像生成后端
)

// Pool 按能力维护一组轮换凭证
//
// 同一能力下的密钥按注册顺序轮转，索引在 Rotate 时前进并回绕。
// Pool 不做密钥拉黑：调用方以池大小作为重试上限。
type Pool struct {
	mu    sync.RWMutex
	slots map[Capability]*slot
}

type slot struct {
	keys  []string
	index int
}

// NewPool 创建空凭证池
func NewPool() *Pool {
	return &Pool{
		slots: make(map[Capability]*slot),
	}
}

// Set 替换某能力下的全部密钥，轮转索引归零
func (p *Pool) Set(cap Capability, keys []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	filtered := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			filtered = append(filtered, k)
		}
	}

	p.slots[cap] = &slot{keys: filtered}

	utils.GetLogger().Infof("能力 %s 凭证池已更新，共 %d 个密钥", cap, len(filtered))
}

// Current 返回当前生效的密钥
func (p *Pool) Current(cap Capability) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.slots[cap]
	if !ok || len(s.keys) == 0 {
		return "", fmt.Errorf("能力 %s 未配置任何凭证", cap)
	}
	return s.keys[s.index], nil
}

// Rotate 将某能力的凭证切换到下一个，返回是否发生了切换
//
// 单密钥池轮转后仍指向同一密钥，此时返回 false。
func (p *Pool) Rotate(cap Capability) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.slots[cap]
	if !ok || len(s.keys) == 0 {
		return false
	}

	prev := s.index
	s.index = (s.index + 1) % len(s.keys)

	utils.GetLogger().Warnf("能力 %s 凭证从 #%d 轮换到 #%d", cap, prev+1, s.index+1)

	return len(s.keys) > 1
}

// Size 返回某能力下的密钥数量
func (p *Pool) Size(cap Capability) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.slots[cap]
	if !ok {
		return 0
	}
	return len(s.keys)
}

// Index 返回当前生效密钥的序号（从0开始），用于状态上报
func (p *Pool) Index(cap Capability) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.slots[cap]
	if !ok {
		return 0
	}
	return s.index
}
