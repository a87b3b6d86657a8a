package orchestrator

import "github.com/shaiso/Orderflow/internal/domain"

// Progress — статистика tasks заказа.
type Progress struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Ready     int `json:"ready"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Summarize считает tasks по статусам.
func Summarize(tasks []domain.Task) Progress {
	p := Progress{Total: len(tasks)}
	for i := range tasks {
		switch tasks[i].Status {
		case domain.TaskStatusPending:
			p.Pending++
		case domain.TaskStatusReady:
			p.Ready++
		case domain.TaskStatusRunning:
			p.Running++
		case domain.TaskStatusCompleted:
			p.Completed++
		case domain.TaskStatusFailed:
			p.Failed++
		}
	}
	return p
}

// Percent возвращает долю завершённых tasks (0–100).
func (p Progress) Percent() int {
	if p.Total == 0 {
		return 0
	}
	return p.Completed * 100 / p.Total
}

// IsComplete проверяет, что все tasks завершены.
func (p Progress) IsComplete() bool {
	return p.Total > 0 && p.Completed == p.Total
}
