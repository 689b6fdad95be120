// internal/services/progress_service_test.go
package services

import (
	"testing"
	"time"
)

func TestCreateTrackerIsIdempotent(t *testing.T) {
	svc := NewProgressService()

	a := svc.CreateTracker("task-1")
	b := svc.CreateTracker("task-1")

	if a != b {
		t.Errorf("同一任务ID应返回同一跟踪器")
	}

	if _, exists := svc.GetTracker("task-1"); !exists {
		t.Errorf("创建后的跟踪器应可查询")
	}
	if _, exists := svc.GetTracker("no-such-task"); exists {
		t.Errorf("不存在的任务不应返回跟踪器")
	}
}

func TestSubscribeReceivesCurrentState(t *testing.T) {
	svc := NewProgressService()
	tracker := svc.CreateTracker("task-1")
	tracker.UpdateProgress(40, "处理中")

	updates := tracker.Subscribe()
	defer tracker.Unsubscribe(updates)

	select {
	case update := <-updates:
		if update.Progress != 40 || update.Status != "running" {
			t.Errorf("订阅时应立即收到当前状态: %+v", update)
		}
	case <-time.After(time.Second):
		t.Fatalf("订阅后未收到初始状态")
	}
}

func TestProgressNeverDecreases(t *testing.T) {
	svc := NewProgressService()
	tracker := svc.CreateTracker("task-1")

	tracker.UpdateProgress(60, "")
	tracker.UpdateProgress(30, "迟到的更新")

	if tracker.Progress != 60 {
		t.Errorf("进度不应回退: %d", tracker.Progress)
	}
}

func TestCompleteBroadcastsAndClosesDone(t *testing.T) {
	svc := NewProgressService()
	tracker := svc.CreateTracker("task-1")

	updates := tracker.Subscribe()
	<-updates // 初始状态

	tracker.Complete("全部完成")

	select {
	case update := <-updates:
		if update.Status != "completed" || update.Progress != 100 {
			t.Errorf("完成广播错误: %+v", update)
		}
	case <-time.After(time.Second):
		t.Fatalf("完成后未收到广播")
	}

	select {
	case <-tracker.Done:
	case <-time.After(time.Second):
		t.Fatalf("完成后Done应关闭")
	}
}

func TestCleanupCompletedTasks(t *testing.T) {
	svc := NewProgressService()

	done := svc.CreateTracker("done-task")
	done.Complete("")
	done.UpdateTime = time.Now().Add(-2 * time.Hour)

	running := svc.CreateTracker("running-task")
	running.UpdateTime = time.Now().Add(-2 * time.Hour)

	svc.CleanupCompletedTasks(time.Hour)

	if _, exists := svc.GetTracker("done-task"); exists {
		t.Errorf("超龄的已完成任务应被清理")
	}
	if _, exists := svc.GetTracker("running-task"); !exists {
		t.Errorf("运行中的任务不应被清理")
	}
}
