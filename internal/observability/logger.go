package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeClassify    EventType = "classify"
	EventTypePlan        EventType = "plan"
	EventTypeStep        EventType = "step"
	EventTypeToolCall    EventType = "tool_call"
	EventTypeToolResult  EventType = "tool_result"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeLLM         EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging. Events go to zap; LLM exchanges are also
// appended to a JSONL file for offline review.
type Logger struct {
	zl         *zap.Logger
	llmLogPath string
	maxSize    int64
	fileMu     sync.Mutex
}

func NewLogger(zl *zap.Logger) *Logger {
	if zl == nil {
		zl = zap.NewNop()
	}
	return &Logger{
		zl:         zl,
		llmLogPath: filepath.Join("logs", "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// NewNopLogger discards everything, including the LLM file.
func NewNopLogger() *Logger {
	return &Logger{zl: zap.NewNop()}
}

// WithLLMLog overrides where LLM exchanges are written. Empty disables the file.
func (l *Logger) WithLLMLog(path string) *Logger {
	l.llmLogPath = path
	return l
}

// Zap exposes the underlying logger for components that log free-form.
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

// Log emits a structured event.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	l.zl.Info(string(evt.Type),
		zap.String("chat_id", evt.ChatID),
		zap.String("task_id", evt.TaskID),
		zap.Any("data", evt.Data),
		zap.Time("ts", evt.Timestamp),
	)

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		data, err := json.Marshal(evt)
		if err != nil {
			l.zl.Warn("failed to marshal llm event", zap.Error(err))
			return
		}
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	l.fileMu.Lock()
	defer l.fileMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		l.zl.Warn("failed to create log directory", zap.Error(err))
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.zl.Warn("failed to open log file", zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		l.zl.Warn("failed to write to log file", zap.Error(err))
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogClassification(chatID, persona, intent, subject string) {
	l.Log(Event{
		Type:   EventTypeClassify,
		ChatID: chatID,
		Data: map[string]string{
			"persona": persona,
			"intent":  intent,
			"subject": subject,
		},
	})
}

func (l *Logger) LogPlan(chatID, planID, mode string, tools []string) {
	l.Log(Event{
		Type:   EventTypePlan,
		ChatID: chatID,
		TaskID: planID,
		Data: map[string]any{
			"mode":  mode,
			"tools": tools,
		},
	})
}

func (l *Logger) LogStep(planID string, stepID int, tool, status string, err error) {
	data := map[string]any{
		"step":   stepID,
		"tool":   tool,
		"status": status,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	l.Log(Event{
		Type:   EventTypeStep,
		TaskID: planID,
		Data:   data,
	})
}

func (l *Logger) LogToolCall(planID, tool, args string) {
	l.Log(Event{
		Type:   EventTypeToolCall,
		TaskID: planID,
		Data: map[string]string{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogToolResult(planID, tool string, d time.Duration, result string) {
	l.Log(Event{
		Type:   EventTypeToolResult,
		TaskID: planID,
		Data: map[string]any{
			"tool":        tool,
			"duration_ms": d.Milliseconds(),
			"bytes":       len(result),
		},
	})
}

func (l *Logger) LogPolicyCheck(planID, tool, effect, reason string) {
	l.Log(Event{
		Type:   EventTypePolicyCheck,
		TaskID: planID,
		Data: map[string]string{
			"tool":   tool,
			"effect": effect,
			"reason": reason,
		},
	})
}

func (l *Logger) LogLLM(chatID, taskID string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:   EventTypeLLM,
		ChatID: chatID,
		TaskID: taskID,
		Data: map[string]any{
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}
