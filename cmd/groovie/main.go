// Command groovie is the terminal client for the Groovie chat API.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"groovie/internal/ui/chat"
	"groovie/internal/util"
	"groovie/pkg/apiclient"
	"groovie/pkg/domain"
)

const defaultAPIURL = "http://localhost:8080"

func main() {
	logOut, closeLog := openLog(os.Getenv("GROOVIE_LOG_FILE"))
	defer closeLog()
	util.InitLoggerTo(logOut, getenv("GROOVIE_LOG_LEVEL", "info"))

	if os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	userID := strings.TrimSpace(os.Getenv("GROOVIE_USER_ID"))
	client := apiclient.NewClient(apiclient.Options{
		BaseURL:     getenv("GROOVIE_API_URL", defaultAPIURL),
		Token:       os.Getenv("GROOVIE_TOKEN"),
		UserID:      userID,
		AccessLevel: os.Getenv("GROOVIE_ACCESS_LEVEL"),
	})

	mode := domain.DefaultMode
	if raw := os.Getenv("GROOVIE_MODE"); raw != "" {
		parsed, err := domain.ParseChatMode(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "groovie: %v\n", err)
			os.Exit(2)
		}
		mode = parsed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	level, err := client.AccessLevel(ctx)
	cancel()
	if err != nil {
		slog.Warn("access level lookup failed; continuing as free", "err", err)
		level = domain.AccessFree
	}

	model, err := chat.New(chat.Config{
		Backend:     client,
		UserID:      userID,
		AccessLevel: level,
		Mode:        mode,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "groovie: %v\n", err)
		os.Exit(1)
	}

	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "groovie: %v\n", err)
		os.Exit(1)
	}
}

// openLog keeps logs off the terminal the UI draws on.
func openLog(path string) (io.Writer, func()) {
	if path == "" {
		return io.Discard, func() {}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "groovie: open log file: %v\n", err)
		return io.Discard, func() {}
	}
	return f, func() { _ = f.Close() }
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
