package chat

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/chatline/internal/model"
)

// fakeTransport はテスト用のTransport実装
type fakeTransport struct {
	inbox chan []byte

	mu       sync.Mutex
	sent     [][]byte
	writeErr error
	// block が非nilの場合、WriteMessageはblockが閉じられるかctxが終わるまで待つ
	block chan struct{}

	closed    chan struct{}
	closeOnce sync.Once
	closes    int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbox:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.inbox:
		return data, nil
	case <-f.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) WriteMessage(ctx context.Context, data []byte) error {
	f.mu.Lock()
	block := f.block
	writeErr := f.writeErr
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if writeErr != nil {
		return writeErr
	}
	select {
	case <-f.closed:
		return errors.New("write on closed transport")
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) setWriteErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// waitFor は条件が満たされるまで最大2秒待つ
func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

// mockMessageStore はテスト用のMessageStore実装
type mockMessageStore struct {
	saveFn func(ctx context.Context, authorID int64, authorName, body string) (*model.Message, error)

	mu    sync.Mutex
	saved []*model.Message
}

func (m *mockMessageStore) Save(ctx context.Context, authorID int64, authorName, body string) (*model.Message, error) {
	if m.saveFn != nil {
		return m.saveFn(ctx, authorID, authorName, body)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := authorID
	msg := &model.Message{
		ID:         int64(len(m.saved) + 1),
		AuthorID:   &id,
		AuthorName: authorName,
		Body:       body,
		CreatedAt:  fixedTime,
	}
	m.saved = append(m.saved, msg)
	return msg, nil
}

func (m *mockMessageStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

var fixedTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
