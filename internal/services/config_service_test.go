// internal/services/config_service_test.go
package services

import (
	"testing"

	"github.com/Corphon/PaperStudioMCP/internal/config"
	"github.com/Corphon/PaperStudioMCP/internal/credential"
)

func TestSetDebugModePersists(t *testing.T) {
	if err := config.InitConfig(t.TempDir()); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}

	svc := NewConfigService(credential.NewPool(), nil)

	if err := svc.SetDebugMode(false); err != nil {
		t.Fatalf("关闭调试模式失败: %v", err)
	}
	if config.GetCurrentConfig().DebugMode {
		t.Errorf("调试模式应已关闭")
	}

	if err := svc.SetDebugMode(true); err != nil {
		t.Fatalf("开启调试模式失败: %v", err)
	}
	if !config.GetCurrentConfig().DebugMode {
		t.Errorf("调试模式应已开启")
	}

	history := svc.GetChangeHistory(0)
	if len(history) != 2 {
		t.Fatalf("应记录2条变更, 实际 %d", len(history))
	}
	if history[0].Section != "debug_mode" || history[1].Section != "debug_mode" {
		t.Errorf("变更记录类型错误: %+v", history)
	}
}

func TestGetChangeHistoryLimit(t *testing.T) {
	if err := config.InitConfig(t.TempDir()); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}

	svc := NewConfigService(credential.NewPool(), nil)
	for i := 0; i < 5; i++ {
		if err := svc.SetDebugMode(i%2 == 0); err != nil {
			t.Fatalf("第 %d 次变更失败: %v", i, err)
		}
	}

	if got := svc.GetChangeHistory(3); len(got) != 3 {
		t.Errorf("限制3条应返回3条, 实际 %d", len(got))
	}
	if got := svc.GetChangeHistory(0); len(got) != 5 {
		t.Errorf("不限制应返回全部5条, 实际 %d", len(got))
	}
	if got := svc.GetChangeHistory(100); len(got) != 5 {
		t.Errorf("限制超过总数应返回全部, 实际 %d", len(got))
	}
}
