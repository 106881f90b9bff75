package channel_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeineduck/creek/channel"
	"github.com/caffeineduck/creek/dispatch"
	"github.com/caffeineduck/creek/interp/interptest"
)

func newDispatcher(t *testing.T, funcs map[string]interptest.Func) *dispatch.Dispatcher {
	t.Helper()
	rt, _ := interptest.NewRuntime(funcs)
	t.Cleanup(func() { rt.Close() })
	return dispatch.New(rt)
}

func serve(t *testing.T, d *dispatch.Dispatcher, input string) []channel.Reply {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, channel.NewServer(d).Serve(context.Background(), strings.NewReader(input), &out))

	var replies []channel.Reply
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var r channel.Reply
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r), scanner.Text())
		replies = append(replies, r)
	}
	return replies
}

func byID(replies []channel.Reply) map[string]channel.Reply {
	m := make(map[string]channel.Reply, len(replies))
	for _, r := range replies {
		m[r.ID] = r
	}
	return m
}

func TestServeAnswersEveryRequest(t *testing.T) {
	d := newDispatcher(t, map[string]interptest.Func{
		"analyze_layout.analyze_single_image": func(args []any, host interptest.Host) (any, error) {
			return "layout of " + args[0].(string), nil
		},
		"instagram_downloader.download_instagram_image": func(args []any, host interptest.Host) (any, error) {
			return nil, nil
		},
	})

	input := strings.Join([]string{
		`{"id":"1","method":"analyzeLayout","args":{"imagePath":"/a.jpg"}}`,
		`{"id":"2","method":"downloadInstagramImage","args":{"url":"https://x/y.jpg","outputDir":"/tmp"}}`,
		`{"id":"3","method":"analyzeLayout"}`,
		``,
		`{"id":"4","method":"nope"}`,
		`{"id":"5"}`,
	}, "\n")

	replies := byID(serve(t, d, input))
	require.Len(t, replies, 5)

	assert.True(t, replies["1"].OK)
	assert.Equal(t, "layout of /a.jpg", replies["1"].Payload)
	assert.Equal(t, dispatch.CodeDownloadError, replies["2"].Code)
	assert.Equal(t, dispatch.CodeInvalidArgument, replies["3"].Code)
	assert.Equal(t, dispatch.CodeNotImplemented, replies["4"].Code)
	assert.Equal(t, dispatch.CodeInvalidArgument, replies["5"].Code)
}

func TestServeIntent(t *testing.T) {
	d := newDispatcher(t, nil)
	input := `{"id":"i","intent":"com.creek.ui.ShareToFiles"}` + "\n"

	replies := serve(t, d, input)
	require.Len(t, replies, 1)
	assert.True(t, replies[0].OK)
	assert.Equal(t, "files", d.Intent().ShareSource())

	replies = serve(t, d, `{"id":"s","method":"getShareSource"}`+"\n")
	require.Len(t, replies, 1)
	assert.Equal(t, "files", replies[0].Payload)
}

func TestServeMalformedLine(t *testing.T) {
	replies := serve(t, newDispatcher(t, nil), "{not json\n")
	require.Len(t, replies, 1)
	assert.False(t, replies[0].OK)
	assert.Equal(t, dispatch.CodeInvalidArgument, replies[0].Code)
	assert.Contains(t, replies[0].Message, "malformed request")
}

func TestServeAssignsIDs(t *testing.T) {
	replies := serve(t, newDispatcher(t, nil), `{"method":"getShareSource"}`+"\n")
	require.Len(t, replies, 1)
	assert.Len(t, replies[0].ID, 36)
}

func TestServeRepliesInCompletionOrder(t *testing.T) {
	slow := make(chan struct{})
	d := newDispatcher(t, map[string]interptest.Func{
		"analyze_layout.analyze_single_image": func(args []any, host interptest.Host) (any, error) {
			if args[0] == "/slow.jpg" {
				<-slow
			}
			return args[0], nil
		},
	})

	pr, pw := io.Pipe()
	out := &lockedBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- channel.NewServer(d, channel.WithName("test")).Serve(context.Background(), pr, out)
	}()

	_, err := io.WriteString(pw, `{"id":"slow","method":"analyzeLayout","args":{"imagePath":"/slow.jpg"}}`+"\n")
	require.NoError(t, err)
	_, err = io.WriteString(pw, `{"id":"fast","method":"analyzeLayout","args":{"imagePath":"/fast.jpg"}}`+"\n")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return strings.Contains(out.String(), `"fast"`) }, 2*time.Second, time.Millisecond)
	assert.NotContains(t, out.String(), `"slow"`)

	close(slow)
	require.NoError(t, pw.Close())
	require.NoError(t, <-done)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"id":"fast"`)
	assert.Contains(t, lines[1], `"id":"slow"`)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
