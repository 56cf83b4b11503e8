package providers

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// sessionEntry mirrors one line of a Claude ~/.claude/projects/*/<id>.jsonl
// transcript: only the fields needed to recover the first user message.
type sessionEntry struct {
	Type    string `json:"type"`
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
}

const firstMessagePreviewRunes = 35

// pathToClaudeFolder mirrors Claude CLI's own transcript-folder naming:
// /home/lee/src/amux -> -home-lee-src-amux
func pathToClaudeFolder(path string) string {
	trimmed := strings.TrimRight(path, "/")
	return strings.ReplaceAll(trimmed, "/", "-")
}

// FirstUserMessage returns a short preview of the first real user message
// in a Claude session transcript, for display as a session's description.
// Returns "" if no transcript exists or no user message is found.
func FirstUserMessage(homeDir, worktreePath, sessionID string) string {
	folder := pathToClaudeFolder(worktreePath)
	transcriptPath := filepath.Join(homeDir, ".claude", "projects", folder, sessionID+".jsonl")

	f, err := os.Open(transcriptPath)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var entry sessionEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if entry.Type != "user" || entry.Message == nil {
			continue
		}
		content := entry.Message.Content
		if content == "" || strings.HasPrefix(content, "<system-reminder>") {
			continue
		}
		line := strings.SplitN(content, "\n", 2)[0]
		return truncateRunes(line, firstMessagePreviewRunes)
	}
	return ""
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
