// ABOUTME: Tests for the feedback recorder: last-write-wins semantics,
// ABOUTME: optimistic state, validation, and fire-and-forget failure handling.

package feedback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medassist/chatsync/internal/transport"
)

// feedbackServer fakes POST /api/feedback/.
type feedbackServer struct {
	mu     sync.Mutex
	count  int
	last   submitRequest
	fail   bool
	server *httptest.Server
}

func newFeedbackServer(t *testing.T) *feedbackServer {
	t.Helper()
	f := &feedbackServer{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.count++
		fail := f.fail
		json.NewDecoder(r.Body).Decode(&f.last)
		f.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(f.server.Close)
	return f
}

// fixedConversation is a static ConversationSource.
type fixedConversation string

func (f fixedConversation) CurrentConversationID() string { return string(f) }

func newTestRecorder(t *testing.T, f *feedbackServer) *Recorder {
	t.Helper()
	client, err := transport.New(f.server.URL, "token",
		transport.WithRetryPolicy(transport.RetryPolicy{MaxAttempts: 1, Delay: time.Millisecond}))
	require.NoError(t, err)
	return NewRecorder(client, nil)
}

func TestRecorder_Submit_RecordsAndSends(t *testing.T) {
	f := newFeedbackServer(t)
	r := newTestRecorder(t, f)
	r.SetConversationSource(fixedConversation("c1"))

	fb, err := r.Submit(context.Background(), "m1", TypeHelpful, "great answer")
	require.NoError(t, err)
	assert.Equal(t, TypeHelpful, fb.Type)
	assert.Equal(t, "c1", fb.ConversationID)

	r.Wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, 1, f.count)
	assert.Equal(t, "m1", f.last.MessageID)
	assert.Equal(t, "helpful", f.last.Type)
	assert.Equal(t, "great answer", f.last.Details)
	assert.NotEmpty(t, f.last.FeedbackID)
}

func TestRecorder_Submit_LastWriteWins(t *testing.T) {
	f := newFeedbackServer(t)
	r := newTestRecorder(t, f)
	ctx := context.Background()

	_, err := r.Submit(ctx, "m1", TypeHelpful, "")
	require.NoError(t, err)

	second, err := r.Submit(ctx, "m1", TypeNeedsImprovement, "actually wrong")
	require.NoError(t, err)

	current, ok := r.Current("m1")
	require.True(t, ok)
	assert.Equal(t, second.ID, current.ID, "later submission supersedes")
	assert.Equal(t, TypeNeedsImprovement, current.Type)

	r.Wait()
}

func TestRecorder_Submit_OptimisticBeforeNetwork(t *testing.T) {
	f := newFeedbackServer(t)
	f.fail = true
	r := newTestRecorder(t, f)

	fb, err := r.Submit(context.Background(), "m1", TypeHelpful, "")
	require.NoError(t, err, "network failure never surfaces to the caller")

	// Local state holds the submission even though the network write failed
	current, ok := r.Current("m1")
	require.True(t, ok)
	assert.Equal(t, fb.ID, current.ID)

	r.Wait()
}

func TestRecorder_Submit_Validation(t *testing.T) {
	f := newFeedbackServer(t)
	r := newTestRecorder(t, f)
	ctx := context.Background()

	var vErr *transport.ValidationError

	_, err := r.Submit(ctx, "", TypeHelpful, "")
	require.ErrorAs(t, err, &vErr)

	_, err = r.Submit(ctx, "m1", Type("love-it"), "")
	require.ErrorAs(t, err, &vErr)

	r.Wait()
	assert.Equal(t, 0, f.count, "invalid submissions never reach the network")
}

func TestRecorder_Current_Unknown(t *testing.T) {
	f := newFeedbackServer(t)
	r := newTestRecorder(t, f)

	_, ok := r.Current("never-rated")
	assert.False(t, ok)
}

func TestRecorder_Current_ReturnsCopy(t *testing.T) {
	f := newFeedbackServer(t)
	r := newTestRecorder(t, f)

	_, err := r.Submit(context.Background(), "m1", TypeHelpful, "")
	require.NoError(t, err)

	got, _ := r.Current("m1")
	got.Type = TypeNeedsImprovement

	again, _ := r.Current("m1")
	assert.Equal(t, TypeHelpful, again.Type)

	r.Wait()
}

func TestType_Valid(t *testing.T) {
	assert.True(t, TypeHelpful.Valid())
	assert.True(t, TypeNeedsImprovement.Valid())
	assert.False(t, Type("like").Valid())
	assert.False(t, Type("").Valid())
}
