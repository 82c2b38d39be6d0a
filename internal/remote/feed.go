package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coder/websocket"
)

// Subscribe opens the table's websocket change feed. The connection stays
// open until Close or a transport error; the subscription manager handles
// reconnects.
func (c *HTTPClient) Subscribe(ctx context.Context, table string) (Feed, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/v1/" + table + "/feed"

	opts := &websocket.DialOptions{HTTPClient: c.httpClient}
	if c.token != "" {
		opts.HTTPHeader = map[string][]string{
			"Authorization": {"Bearer " + c.token},
		}
	}

	conn, _, err := websocket.Dial(ctx, wsURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s feed: %w", table, err)
	}

	return &wsFeed{conn: conn, table: table}, nil
}

type wsFeed struct {
	conn  *websocket.Conn
	table string
}

func (f *wsFeed) Next(ctx context.Context) (Change, error) {
	_, data, err := f.conn.Read(ctx)
	if err != nil {
		return Change{}, fmt.Errorf("%s feed read failed: %w", f.table, err)
	}

	var change Change
	if err := json.Unmarshal(data, &change); err != nil {
		return Change{}, fmt.Errorf("failed to decode %s feed message: %w", f.table, err)
	}
	if change.Table == "" {
		change.Table = f.table
	}
	return change, nil
}

func (f *wsFeed) Close() error {
	return f.conn.Close(websocket.StatusNormalClosure, "")
}
