package ipc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/Maximelego/custom-workspaces/internal/util"
)

// Event represents a Hyprland event stream payload.
type Event struct {
	Kind    string
	Payload string
}

// Subscribe connects to the Hyprland event socket and streams events until
// context cancellation. The channel is closed when the stream ends.
func Subscribe(ctx context.Context, logger *util.Logger) (<-chan Event, error) {
	socket, err := eventSocketPath()
	if err != nil {
		return nil, err
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socket)
	if err != nil {
		return nil, fmt.Errorf("connect event socket: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	events := make(chan Event)
	go func() {
		defer close(events)
		defer stop()
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			select {
			case events <- parseEvent(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			logger.Warnf("event stream error: %v", err)
		}
	}()
	return events, nil
}

func parseEvent(line string) Event {
	parts := strings.SplitN(line, ">>", 2)
	ev := Event{Kind: parts[0]}
	if len(parts) == 2 {
		ev.Payload = parts[1]
	}
	return ev
}

// parseOpenWindow decodes an openwindow payload:
// ADDRESS,WORKSPACENAME,CLASS,TITLE. The title may contain commas.
func parseOpenWindow(payload string) (Window, bool) {
	parts := strings.SplitN(payload, ",", 4)
	if len(parts) < 3 || parts[0] == "" {
		return Window{}, false
	}
	w := Window{Address: normalizeAddress(parts[0]), Class: parts[2]}
	if len(parts) == 4 {
		w.Title = parts[3]
	}
	return w, true
}

func normalizeAddress(addr string) string {
	if strings.HasPrefix(addr, "0x") {
		return addr
	}
	return "0x" + addr
}

func eventSocketPath() (string, error) {
	dir, err := instanceDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".socket2.sock"), nil
}
