package views

import (
	"context"
	"sereno/services"
)

type ToastKind string

const (
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
	ToastInfo    ToastKind = "info"

	DefaultToastDurationMS = 5000
)

// Toast - transient message shown to one user
type Toast struct {
	Message    string    `json:"message"`
	Kind       ToastKind `json:"kind"`
	DurationMS int64     `json:"duration_ms"`
}

func NewToast(kind ToastKind, message string) Toast {
	return Toast{Message: message, Kind: kind, DurationMS: DefaultToastDurationMS}
}

// Toaster shows toasts; implementations must not block for long
type Toaster interface {
	Show(ctx context.Context, userID string, toast Toast)
}

// RealtimeToaster pushes toasts to the user's WebSocket connections
type RealtimeToaster struct {
	realtime *services.Realtime
}

func NewRealtimeToaster(realtime *services.Realtime) *RealtimeToaster {
	return &RealtimeToaster{realtime: realtime}
}

func (t *RealtimeToaster) Show(ctx context.Context, userID string, toast Toast) {
	t.realtime.Deliver(ctx, userID, "toast", toast)
}
