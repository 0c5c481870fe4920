package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/meywd/benchforge/internal/config"
)

// ResourceManager 按组织记账并发配额。每次运行在启动前必须先取得预留，
// 结束时（无论成功、失败还是取消）必须归还。
type ResourceManager struct {
	defaults config.ResourceBudget
	orgs     map[string]config.ResourceBudget

	mu    sync.Mutex
	inUse map[string]int // 组织 ID -> 已占用的并发数
}

// Reservation 是一次运行持有的资源预留。
type Reservation struct {
	OrganizationID string
	Concurrency    int           // 授予的并发上限
	MaxDuration    time.Duration // 本次运行的时长上限

	mgr      *ResourceManager
	mu       sync.Mutex
	released bool
}

// NewResourceManager 根据配置创建一个 ResourceManager。
func NewResourceManager(cfg config.ResourcesConfig) *ResourceManager {
	return &ResourceManager{
		defaults: cfg.Default,
		orgs:     cfg.Orgs,
		inUse:    make(map[string]int),
	}
}

// Budget 返回组织的资源预算，未单独配置的组织使用缺省预算。
func (m *ResourceManager) Budget(orgID string) config.ResourceBudget {
	if b, ok := m.orgs[orgID]; ok {
		return b
	}
	return m.defaults
}

// Reserve 为一次运行申请至多 want 的并发额度。授予量是申请量与组织剩余
// 额度的较小值；组织额度已耗尽时返回错误。
func (m *ResourceManager) Reserve(orgID string, want int) (*Reservation, error) {
	budget := m.Budget(orgID)
	if want <= 0 {
		want = budget.MaxConcurrency
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	available := budget.MaxConcurrency - m.inUse[orgID]
	if available <= 0 {
		return nil, fmt.Errorf("组织 %s 的并发额度已耗尽 (上限 %d)", orgID, budget.MaxConcurrency)
	}
	granted := want
	if granted > available {
		granted = available
	}
	m.inUse[orgID] += granted

	return &Reservation{
		OrganizationID: orgID,
		Concurrency:    granted,
		MaxDuration:    budget.MaxDuration.Std(),
		mgr:            m,
	}, nil
}

// Release 归还预留。可以安全地重复调用。
func (r *Reservation) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	r.released = true

	r.mgr.mu.Lock()
	r.mgr.inUse[r.OrganizationID] -= r.Concurrency
	if r.mgr.inUse[r.OrganizationID] <= 0 {
		delete(r.mgr.inUse, r.OrganizationID)
	}
	r.mgr.mu.Unlock()
}

// InUse 返回组织当前占用的并发数。
func (m *ResourceManager) InUse(orgID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inUse[orgID]
}
