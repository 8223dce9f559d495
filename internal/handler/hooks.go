package handler

import (
	"fmt"
	"sync"
)

// Event identifies a hook point
type Event int

const (
	MOTDRequest Event = iota
	PlayerJoinedMessage
	PlayerLeftMessage
	SystemChat
	PlayerChat
	PlayerCommand
	PlayerMove
	PlayerInteract
	BlockPlace
	BlockBreak
	UseItem
	TabListHeaderRequest
	TabListFooterRequest
	EditBook
	HeldItemChange
	InventoryClick
	CheckBlockDigProtection
	CheckBlockPlaceProtection
	CheckItemUseProtection
	CheckEntityInteractProtection
	CheckContainerClickProtection
	GameModeChange
	ClearProtection
	eventCount
)

var eventNames = [eventCount]string{
	"motd_request", "player_joined_message", "player_left_message", "system_chat",
	"player_chat", "player_command", "player_move", "player_interact", "block_place",
	"block_break", "use_item", "tab_list_header_request", "tab_list_footer_request",
	"edit_book", "held_item_change", "inventory_click", "check_block_dig_protection",
	"check_block_place_protection", "check_item_use_protection",
	"check_entity_interact_protection", "check_container_click_protection",
	"game_mode_change", "clear_protection",
}

func (e Event) String() string {
	if e >= 0 && e < eventCount {
		return eventNames[e]
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Hook handles one event. A nil result means "no opinion".
type Hook interface {
	Handle(payload any) (any, error)
}

// HookFunc adapts a function to Hook
type HookFunc func(payload any) (any, error)

func (f HookFunc) Handle(payload any) (any, error) { return f(payload) }

// Hooks is a dispatch table keyed by Event. Hooks run synchronously in
// registration order on the calling connection's goroutine.
type Hooks struct {
	mu    sync.RWMutex
	table [eventCount][]Hook
}

// NewHooks creates an empty dispatch table
func NewHooks() *Hooks {
	return &Hooks{}
}

// Register appends a hook for ev
func (h *Hooks) Register(ev Event, hook Hook) {
	if ev < 0 || ev >= eventCount {
		return
	}
	h.mu.Lock()
	h.table[ev] = append(h.table[ev], hook)
	h.mu.Unlock()
}

// RegisterFunc is Register for plain functions
func (h *Hooks) RegisterFunc(ev Event, fn func(payload any) (any, error)) {
	h.Register(ev, HookFunc(fn))
}

// Has reports whether any hook listens on ev
func (h *Hooks) Has(ev Event) bool {
	if ev < 0 || ev >= eventCount {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.table[ev]) > 0
}

// Dispatch runs every hook for ev and returns their results in order.
// Failing hooks contribute nil.
func (h *Hooks) Dispatch(ev Event, payload any) []any {
	if ev < 0 || ev >= eventCount {
		return nil
	}
	h.mu.RLock()
	hooks := h.table[ev]
	h.mu.RUnlock()

	results := make([]any, 0, len(hooks))
	for _, hook := range hooks {
		results = append(results, callHook(ev, hook, payload))
	}
	return results
}

// First returns the first non-nil result, or nil
func (h *Hooks) First(ev Event, payload any) any {
	for _, r := range h.Dispatch(ev, payload) {
		if r != nil {
			return r
		}
	}
	return nil
}

// Blocked reports whether the first non-nil result of a protection check is true
func (h *Hooks) Blocked(ev Event, payload any) bool {
	b, ok := h.First(ev, payload).(bool)
	return ok && b
}

// AnyTrue reports whether any hook returned true
func (h *Hooks) AnyTrue(ev Event, payload any) bool {
	for _, r := range h.Dispatch(ev, payload) {
		if b, ok := r.(bool); ok && b {
			return true
		}
	}
	return false
}

// FirstText returns the first non-empty string result
func (h *Hooks) FirstText(ev Event, payload any) (string, bool) {
	for _, r := range h.Dispatch(ev, payload) {
		if s, ok := r.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func callHook(ev Event, hook Hook, payload any) (result any) {
	defer func() {
		if rec := recover(); rec != nil {
			reportFailure("hook_"+ev.String(), playerOf(payload), -1, fmt.Errorf("panic: %v", rec))
			result = nil
		}
	}()
	res, err := hook.Handle(payload)
	if err != nil {
		reportFailure("hook_"+ev.String(), playerOf(payload), -1, err)
		return nil
	}
	return res
}
