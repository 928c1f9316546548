package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/observability"
)

const testQueue = "render-jobs"

// fakeRenderer records rendered job IDs and optionally blocks until
// released, simulating a long encode.
type fakeRenderer struct {
	mu       sync.Mutex
	rendered []models.ULID
	block    chan struct{}
	started  chan models.ULID
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{started: make(chan models.ULID, 16)}
}

func (r *fakeRenderer) Render(_ context.Context, jobID models.ULID) error {
	r.started <- jobID
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rendered = append(r.rendered, jobID)
	return nil
}

func (r *fakeRenderer) renderedIDs() []models.ULID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ULID(nil), r.rendered...)
}

func setupAcquirer(t *testing.T, renderer Renderer) (*miniredis.Miniredis, *Acquirer) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	log := observability.NewLogger(config.LoggingConfig{Level: "error", Format: "text"})
	a := NewAcquirer(client, testQueue, nil, renderer, time.Hour, log)
	return mr, a
}

func payloadFor(jobID models.ULID) string {
	b, _ := json.Marshal(QueuePayload{JobID: jobID.String(), ProjectID: models.NewULID().String()})
	return string(b)
}

func TestAcquirerConsumesQueue(t *testing.T) {
	renderer := newFakeRenderer()
	mr, a := setupAcquirer(t, renderer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	jobID := models.NewULID()
	_, err := mr.Lpush(testQueue, payloadFor(jobID))
	require.NoError(t, err)

	select {
	case got := <-renderer.started:
		assert.Equal(t, jobID, got)
	case <-time.After(5 * time.Second):
		t.Fatal("job was never consumed")
	}
}

func TestAcquirerRequeuesWhileBusy(t *testing.T) {
	renderer := newFakeRenderer()
	renderer.block = make(chan struct{})
	mr, a := setupAcquirer(t, renderer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	first := models.NewULID()
	second := models.NewULID()
	_, err := mr.Lpush(testQueue, payloadFor(first))
	require.NoError(t, err)

	// Wait until the first job holds the busy flag.
	select {
	case <-renderer.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first job never started")
	}
	assert.True(t, a.Busy())

	// The second job must be handed back to the queue, not dropped.
	_, err = mr.Lpush(testQueue, payloadFor(second))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		items, err := mr.List(testQueue)
		return err == nil && len(items) >= 1
	}, 5*time.Second, 20*time.Millisecond, "busy job was not requeued")

	close(renderer.block)
	require.Eventually(t, func() bool {
		return len(renderer.renderedIDs()) == 2
	}, 5*time.Second, 20*time.Millisecond, "requeued job never rendered")
}

func TestAcquirerDiscardsMalformedPayload(t *testing.T) {
	renderer := newFakeRenderer()
	mr, a := setupAcquirer(t, renderer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	_, err := mr.Lpush(testQueue, "not json")
	require.NoError(t, err)
	jobID := models.NewULID()
	_, err = mr.Lpush(testQueue, payloadFor(jobID))
	require.NoError(t, err)

	select {
	case got := <-renderer.started:
		assert.Equal(t, jobID, got)
	case <-time.After(5 * time.Second):
		t.Fatal("valid job after malformed payload was never consumed")
	}
}

func TestAcquirerQueueHealth(t *testing.T) {
	renderer := newFakeRenderer()
	mr, a := setupAcquirer(t, renderer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	_, err := mr.Lpush(testQueue, payloadFor(models.NewULID()))
	require.NoError(t, err)
	<-renderer.started

	assert.True(t, a.QueueConnected())
}

func TestSubmitBusyDiscipline(t *testing.T) {
	renderer := newFakeRenderer()
	renderer.block = make(chan struct{})
	log := observability.NewLogger(config.LoggingConfig{Level: "error", Format: "text"})
	a := NewAcquirer(nil, testQueue, nil, renderer, time.Hour, log)

	first := models.NewULID()
	require.True(t, a.Submit(first))
	<-renderer.started

	// A second push while busy is refused.
	assert.False(t, a.Submit(models.NewULID()))

	close(renderer.block)
	require.Eventually(t, func() bool { return !a.Busy() }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []models.ULID{first}, renderer.renderedIDs())
}

func TestParsePayload(t *testing.T) {
	p, err := parsePayload(`{"jobId": "01J5X", "projectId": "01J5Y"}`)
	require.NoError(t, err)
	assert.Equal(t, "01J5X", p.JobID)

	_, err = parsePayload(`{}`)
	assert.Error(t, err)

	_, err = parsePayload(`garbage`)
	assert.Error(t, err)
}
