package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/makeit-app/render-orchestrator/entity"
	"github.com/makeit-app/render-orchestrator/infra"
	"github.com/makeit-app/render-orchestrator/infra/produce"
	"github.com/makeit-app/render-orchestrator/webhook"
)

const (
	designVersion  = "design-v1"
	upscaleVersion = "upscale-v1"
)

type fakeCache struct {
	statuses   map[string]string
	initialIDs map[string]string
	deleted    []string
	cleared    []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		statuses:   map[string]string{},
		initialIDs: map[string]string{},
	}
}

func (c *fakeCache) GetStatus(_ context.Context, jobID string) (string, bool, error) {
	status, ok := c.statuses[jobID]
	return status, ok, nil
}

func (c *fakeCache) SetStatus(_ context.Context, jobID, status string) error {
	c.statuses[jobID] = status
	return nil
}

func (c *fakeCache) AcquireProcessing(_ context.Context, jobID string) (bool, error) {
	if _, ok := c.statuses[jobID]; ok {
		return false, nil
	}
	c.statuses[jobID] = entity.StatusProcessing
	return true, nil
}

func (c *fakeCache) DeleteStatus(_ context.Context, jobID string) error {
	delete(c.statuses, jobID)
	c.deleted = append(c.deleted, jobID)
	return nil
}

func (c *fakeCache) SetInitialID(_ context.Context, jobID, initialJobID string) error {
	c.initialIDs[jobID] = initialJobID
	return nil
}

func (c *fakeCache) Clear(_ context.Context, jobID string) error {
	delete(c.statuses, jobID)
	delete(c.initialIDs, jobID)
	c.cleared = append(c.cleared, jobID)
	return nil
}

type fakeJobs struct {
	jobs map[string]*entity.GenerationJob
}

func newFakeJobs(jobs ...*entity.GenerationJob) *fakeJobs {
	f := &fakeJobs{jobs: map[string]*entity.GenerationJob{}}
	for _, job := range jobs {
		f.jobs[job.JobID] = job
	}
	return f
}

func (f *fakeJobs) FindByJobID(jobID string) (*entity.GenerationJob, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return job, nil
}

func (f *fakeJobs) FindTerminalByJobID(jobID string) (*entity.GenerationJob, error) {
	job, ok := f.jobs[jobID]
	if !ok || !job.IsTerminal() {
		return nil, nil
	}
	return job, nil
}

func (f *fakeJobs) PromoteToUpscaling(oldJobID, newJobID string) (int64, error) {
	job, ok := f.jobs[oldJobID]
	if !ok || job.IsTerminal() {
		return 0, nil
	}
	delete(f.jobs, oldJobID)
	job.JobID = newJobID
	job.Phase = entity.PhaseUpscaling
	job.Status = entity.StatusUpscaling
	f.jobs[newJobID] = job
	return 1, nil
}

func (f *fakeJobs) Complete(jobID, outputImageURL string, sizeBytes int64) (int64, error) {
	job, ok := f.jobs[jobID]
	if !ok || job.IsTerminal() {
		return 0, nil
	}
	job.OutputImageURL = outputImageURL
	job.Status = entity.StatusCompleted
	job.SizeBytes = sizeBytes
	return 1, nil
}

func (f *fakeJobs) Fail(jobID, placeholderURL string) (int64, error) {
	job, ok := f.jobs[jobID]
	if !ok || job.IsTerminal() {
		return 0, nil
	}
	job.OutputImageURL = placeholderURL
	job.Status = entity.StatusFailed
	return 1, nil
}

type fakeOwners struct {
	slots        map[string]string // jobID -> url
	quotaBumps   int
	storageBumps int64
}

func newFakeOwners(jobIDs ...string) *fakeOwners {
	f := &fakeOwners{slots: map[string]string{}}
	for _, id := range jobIDs {
		f.slots[id] = ""
	}
	return f
}

func (f *fakeOwners) MoveRenderSlot(_ uuid.UUID, oldJobID, newJobID string) (int64, error) {
	value, ok := f.slots[oldJobID]
	if !ok {
		return 0, nil
	}
	delete(f.slots, oldJobID)
	f.slots[newJobID] = value
	return 1, nil
}

func (f *fakeOwners) RecordCompletedRender(_ uuid.UUID, jobID, renderURL string, sizeBytes int64) (int64, error) {
	if _, ok := f.slots[jobID]; !ok {
		return 0, nil
	}
	f.slots[jobID] = renderURL
	f.quotaBumps++
	f.storageBumps += sizeBytes
	return 1, nil
}

func (f *fakeOwners) SetRenderURL(_ uuid.UUID, jobID, renderURL string) (int64, error) {
	if _, ok := f.slots[jobID]; !ok {
		return 0, nil
	}
	f.slots[jobID] = renderURL
	return 1, nil
}

type fakeProvider struct {
	prediction *infra.Prediction
	err        error
	prompts    []string
	images     []string
}

func (f *fakeProvider) CreateUpscalePrediction(_ context.Context, prompt, imageURL string) (*infra.Prediction, error) {
	f.prompts = append(f.prompts, prompt)
	f.images = append(f.images, imageURL)
	if f.err != nil {
		return nil, f.err
	}
	return f.prediction, nil
}

type fakeUploader struct {
	keys []string
	data [][]byte
}

func (f *fakeUploader) UploadRender(_ context.Context, key string, data []byte, _ string) (string, error) {
	f.keys = append(f.keys, key)
	f.data = append(f.data, data)
	return "https://cdn.makeit.app/" + key, nil
}

type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	return f.data, f.err
}

type fakeEvents struct {
	messages []produce.JobEventMessage
}

func (f *fakeEvents) PublishJobEvent(_ context.Context, msg produce.JobEventMessage) error {
	f.messages = append(f.messages, msg)
	return nil
}

type fixture struct {
	cache    *fakeCache
	jobs     *fakeJobs
	owners   *fakeOwners
	provider *fakeProvider
	uploader *fakeUploader
	fetcher  *fakeFetcher
	events   *fakeEvents
	r        *Reconciler
}

func newFixture(jobs *fakeJobs, owners *fakeOwners) *fixture {
	f := &fixture{
		cache:    newFakeCache(),
		jobs:     jobs,
		owners:   owners,
		provider: &fakeProvider{prediction: &infra.Prediction{ID: "up-1"}},
		uploader: &fakeUploader{},
		fetcher:  &fakeFetcher{data: testJPEG()},
		events:   &fakeEvents{},
	}
	f.r = &Reconciler{
		Cache:               f.cache,
		Jobs:                f.jobs,
		Owners:              f.owners,
		Provider:            f.provider,
		Renders:             f.uploader,
		Images:              f.fetcher,
		Events:              f.events,
		Logger:              infra.NewStdoutLogger(),
		InitialModelVersion: designVersion,
		UpscaleModelVersion: upscaleVersion,
	}
	return f
}

func testJPEG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 120, G: 80, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}

func successEvent(jobID, version, prompt, output string) *webhook.PredictionEvent {
	event := &webhook.PredictionEvent{
		ID:      jobID,
		Status:  "succeeded",
		Version: version,
	}
	event.Input.Prompt = prompt
	if output != "" {
		event.Output = json.RawMessage(fmt.Sprintf("%q", output))
	}
	return event
}

func pendingJob(jobID string, ownerID uuid.UUID) *entity.GenerationJob {
	return &entity.GenerationJob{
		ID:      uuid.New(),
		JobID:   jobID,
		OwnerID: ownerID,
		Phase:   entity.PhaseInitial,
		Status:  entity.StatusPending,
		Prompt:  "a cozy space",
	}
}

func TestProcessDuplicateFromCache(t *testing.T) {
	owner := uuid.New()
	f := newFixture(newFakeJobs(pendingJob("pred-1", owner)), newFakeOwners("pred-1"))
	f.cache.statuses["pred-1"] = entity.StatusCompleted

	outcome, err := f.r.Process(context.Background(), successEvent("pred-1", upscaleVersion, "", "https://out/x.png"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Zero(t, f.owners.quotaBumps)
	assert.Empty(t, f.uploader.keys)
}

func TestProcessBackfillsCacheFromStore(t *testing.T) {
	owner := uuid.New()
	job := pendingJob("pred-1", owner)
	job.Status = entity.StatusCompleted
	f := newFixture(newFakeJobs(job), newFakeOwners("pred-1"))

	outcome, err := f.r.Process(context.Background(), successEvent("pred-1", upscaleVersion, "", "https://out/x.png"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, entity.StatusCompleted, f.cache.statuses["pred-1"])
	assert.Zero(t, f.owners.quotaBumps)
}

func TestChainUpscale(t *testing.T) {
	owner := uuid.New()
	f := newFixture(newFakeJobs(pendingJob("pred-1", owner)), newFakeOwners("pred-1"))

	event := successEvent("pred-1", designVersion, "a cozy space", "https://out/design.png")
	outcome, err := f.r.Process(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeChained, outcome)

	require.Len(t, f.provider.prompts, 1)
	assert.Equal(t, "a cozy space"+UpscalePromptSuffix, f.provider.prompts[0])
	assert.Equal(t, "https://out/design.png", f.provider.images[0])

	job, err := f.jobs.FindByJobID("up-1")
	require.NoError(t, err)
	assert.Equal(t, entity.PhaseUpscaling, job.Phase)
	assert.Equal(t, entity.StatusUpscaling, job.Status)

	assert.Equal(t, entity.StatusUpscaling, f.cache.statuses["up-1"])
	assert.Equal(t, "pred-1", f.cache.initialIDs["up-1"])

	_, ok := f.owners.slots["up-1"]
	assert.True(t, ok, "render slot should follow the new job id")
	_, ok = f.owners.slots["pred-1"]
	assert.False(t, ok)
}

func TestChainUpscaleDuplicateWhenClaimHeld(t *testing.T) {
	owner := uuid.New()
	f := newFixture(newFakeJobs(pendingJob("pred-1", owner)), newFakeOwners("pred-1"))
	f.cache.statuses["pred-1"] = entity.StatusProcessing

	outcome, err := f.r.Process(context.Background(), successEvent("pred-1", designVersion, "p", "https://out/design.png"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Empty(t, f.provider.prompts)
}

func TestChainUpscaleSubmitFailureRollsBackClaim(t *testing.T) {
	owner := uuid.New()
	f := newFixture(newFakeJobs(pendingJob("pred-1", owner)), newFakeOwners("pred-1"))
	f.provider.err = errors.New("provider down")

	_, err := f.r.Process(context.Background(), successEvent("pred-1", designVersion, "p", "https://out/design.png"))
	assert.ErrorIs(t, err, ErrChainingFailed)

	_, held := f.cache.statuses["pred-1"]
	assert.False(t, held, "processing claim should be rolled back for redelivery")
}

func TestChainUpscaleMissingOutputFailsChaining(t *testing.T) {
	owner := uuid.New()
	f := newFixture(newFakeJobs(pendingJob("pred-1", owner)), newFakeOwners("pred-1"))

	_, err := f.r.Process(context.Background(), successEvent("pred-1", designVersion, "p", ""))
	assert.ErrorIs(t, err, ErrChainingFailed)
	assert.Empty(t, f.provider.prompts)
}

func TestChainUpscaleMissingRecord(t *testing.T) {
	f := newFixture(newFakeJobs(), newFakeOwners())

	_, err := f.r.Process(context.Background(), successEvent("pred-unknown", designVersion, "p", "https://out/design.png"))
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestCompleteRender(t *testing.T) {
	owner := uuid.New()
	job := pendingJob("up-1", owner)
	job.Phase = entity.PhaseUpscaling
	job.Status = entity.StatusUpscaling
	f := newFixture(newFakeJobs(job), newFakeOwners("up-1"))
	f.cache.statuses["up-1"] = entity.StatusUpscaling

	outcome, err := f.r.Process(context.Background(), successEvent("up-1", upscaleVersion, "", "https://out/final.png"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	require.Len(t, f.uploader.keys, 1)
	assert.Equal(t, fmt.Sprintf("%s/up-1.jpg", owner), f.uploader.keys[0])

	stored, err := f.jobs.FindByJobID("up-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, stored.Status)
	assert.Equal(t, "https://cdn.makeit.app/"+f.uploader.keys[0], stored.OutputImageURL)
	assert.Equal(t, int64(len(f.uploader.data[0])), stored.SizeBytes)

	assert.Equal(t, 1, f.owners.quotaBumps)
	assert.Equal(t, stored.SizeBytes, f.owners.storageBumps)
	assert.Equal(t, stored.OutputImageURL, f.owners.slots["up-1"])

	assert.Contains(t, f.cache.cleared, "up-1")

	require.Len(t, f.events.messages, 1)
	assert.Equal(t, entity.StatusCompleted, f.events.messages[0].Status)
	assert.Equal(t, owner.String(), f.events.messages[0].OwnerID)
}

func TestCompleteRenderIsExactlyOnce(t *testing.T) {
	owner := uuid.New()
	job := pendingJob("up-1", owner)
	job.Phase = entity.PhaseUpscaling
	job.Status = entity.StatusUpscaling
	f := newFixture(newFakeJobs(job), newFakeOwners("up-1"))

	event := successEvent("up-1", upscaleVersion, "", "https://out/final.png")

	outcome, err := f.r.Process(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, outcome)

	// Redelivery after the cache entry is gone: the store short-circuits it.
	outcome, err = f.r.Process(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	assert.Equal(t, 1, f.owners.quotaBumps, "quota must be incremented exactly once")
	assert.Len(t, f.uploader.keys, 1)
}

func TestCompleteRenderOwnerMismatch(t *testing.T) {
	owner := uuid.New()
	job := pendingJob("up-1", owner)
	job.Status = entity.StatusUpscaling
	f := newFixture(newFakeJobs(job), newFakeOwners())

	_, err := f.r.Process(context.Background(), successEvent("up-1", upscaleVersion, "", "https://out/final.png"))
	assert.ErrorIs(t, err, ErrOwnerMismatch)
}

func TestCompleteRenderFetchFailureLeavesStateRetryable(t *testing.T) {
	owner := uuid.New()
	job := pendingJob("up-1", owner)
	job.Status = entity.StatusUpscaling
	f := newFixture(newFakeJobs(job), newFakeOwners("up-1"))
	f.fetcher.err = errors.New("cdn unreachable")

	_, err := f.r.Process(context.Background(), successEvent("up-1", upscaleVersion, "", "https://out/final.png"))
	require.Error(t, err)

	stored, err := f.jobs.FindByJobID("up-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusUpscaling, stored.Status, "job must stay non-terminal so redelivery can retry")
	assert.Zero(t, f.owners.quotaBumps)
}

func TestRecordFailure(t *testing.T) {
	owner := uuid.New()
	f := newFixture(newFakeJobs(pendingJob("pred-1", owner)), newFakeOwners("pred-1"))

	event := &webhook.PredictionEvent{ID: "pred-1", Status: "failed", Error: "NSFW content detected"}
	outcome, err := f.r.Process(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailedRecorded, outcome)

	stored, err := f.jobs.FindByJobID("pred-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, stored.Status)
	assert.Equal(t, FailedRenderURL, stored.OutputImageURL)

	assert.Equal(t, FailedRenderURL, f.owners.slots["pred-1"])
	assert.Zero(t, f.owners.quotaBumps, "failed renders must not consume quota")

	assert.Equal(t, entity.StatusFailed, f.cache.statuses["pred-1"])

	require.Len(t, f.events.messages, 1)
	assert.Equal(t, entity.StatusFailed, f.events.messages[0].Status)
}

func TestRecordFailureDuplicate(t *testing.T) {
	owner := uuid.New()
	f := newFixture(newFakeJobs(pendingJob("pred-1", owner)), newFakeOwners("pred-1"))

	event := &webhook.PredictionEvent{ID: "pred-1", Status: "failed"}
	_, err := f.r.Process(context.Background(), event)
	require.NoError(t, err)

	outcome, err := f.r.Process(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	require.Len(t, f.events.messages, 1, "duplicate failure must not publish a second event")
}

func TestIgnoreIntermediateStatus(t *testing.T) {
	owner := uuid.New()
	f := newFixture(newFakeJobs(pendingJob("pred-1", owner)), newFakeOwners("pred-1"))

	event := &webhook.PredictionEvent{ID: "pred-1", Status: "starting"}
	outcome, err := f.r.Process(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	stored, err := f.jobs.FindByJobID("pred-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, stored.Status)
	assert.Empty(t, f.events.messages)
	assert.Empty(t, f.cache.statuses)
}
