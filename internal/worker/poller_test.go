package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/harvestd/harvestd/internal/audit"
	"github.com/harvestd/harvestd/internal/dataset"
	"github.com/harvestd/harvestd/internal/item"
	"github.com/harvestd/harvestd/internal/job"
	"github.com/harvestd/harvestd/internal/pagination"
	"github.com/harvestd/harvestd/internal/runner"
)

type mockJobRepo struct {
	mock.Mock
}

func (m *mockJobRepo) Create(ctx context.Context, j *job.Job) error {
	return m.Called(ctx, j).Error(0)
}

func (m *mockJobRepo) GetByID(ctx context.Context, jobID string) (*job.Job, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *mockJobRepo) GetVisible(ctx context.Context, jobID, tenantID string) (*job.Job, error) {
	args := m.Called(ctx, jobID, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *mockJobRepo) ListVisible(ctx context.Context, tenantID string, f job.ListFilter, limit int, cur *pagination.Cursor) ([]*job.Job, error) {
	args := m.Called(ctx, tenantID, f, limit, cur)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*job.Job), args.Error(1)
}

func (m *mockJobRepo) ClaimOldestQueued(ctx context.Context) (*job.Job, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *mockJobRepo) UpdateProgress(ctx context.Context, jobID string, progress int, stats map[string]any) error {
	return m.Called(ctx, jobID, progress, stats).Error(0)
}

func (m *mockJobRepo) MarkSucceeded(ctx context.Context, jobID string, stats map[string]any) error {
	return m.Called(ctx, jobID, stats).Error(0)
}

func (m *mockJobRepo) MarkFailed(ctx context.Context, jobID, message string) error {
	return m.Called(ctx, jobID, message).Error(0)
}

func (m *mockJobRepo) MarkCanceled(ctx context.Context, jobID string) error {
	return m.Called(ctx, jobID).Error(0)
}

func (m *mockJobRepo) HasQueuedQuickCheck(ctx context.Context, datasetID string) (bool, error) {
	args := m.Called(ctx, datasetID)
	return args.Bool(0), args.Error(1)
}

type mockDatasetRepo struct {
	mock.Mock
}

func (m *mockDatasetRepo) Create(ctx context.Context, d *dataset.Dataset) error {
	return m.Called(ctx, d).Error(0)
}

func (m *mockDatasetRepo) GetByID(ctx context.Context, datasetID string) (*dataset.Dataset, error) {
	args := m.Called(ctx, datasetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dataset.Dataset), args.Error(1)
}

func (m *mockDatasetRepo) GetVisible(ctx context.Context, datasetID, tenantID string) (*dataset.Dataset, error) {
	args := m.Called(ctx, datasetID, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dataset.Dataset), args.Error(1)
}

func (m *mockDatasetRepo) ListVisible(ctx context.Context, tenantID string, f dataset.ListFilter) ([]*dataset.Dataset, error) {
	args := m.Called(ctx, tenantID, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*dataset.Dataset), args.Error(1)
}

func (m *mockDatasetRepo) ListEnabled(ctx context.Context) ([]*dataset.Dataset, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*dataset.Dataset), args.Error(1)
}

func (m *mockDatasetRepo) Update(ctx context.Context, d *dataset.Dataset) error {
	return m.Called(ctx, d).Error(0)
}

type mockItemRepo struct {
	mock.Mock
}

func (m *mockItemRepo) Insert(ctx context.Context, it *item.Item) error {
	return m.Called(ctx, it).Error(0)
}

func (m *mockItemRepo) GetByDatasetURL(ctx context.Context, datasetID, url string) (*item.Item, error) {
	args := m.Called(ctx, datasetID, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*item.Item), args.Error(1)
}

func (m *mockItemRepo) UpdatePayload(ctx context.Context, it *item.Item) error {
	return m.Called(ctx, it).Error(0)
}

func (m *mockItemRepo) TouchObserved(ctx context.Context, itemID string, observedAt time.Time) error {
	return m.Called(ctx, itemID, observedAt).Error(0)
}

func (m *mockItemRepo) GetVisible(ctx context.Context, itemID, tenantID string) (*item.Item, error) {
	args := m.Called(ctx, itemID, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*item.Item), args.Error(1)
}

func (m *mockItemRepo) ListVisible(ctx context.Context, tenantID string, f item.ListFilter, limit int, cur *pagination.Cursor) ([]*item.Item, error) {
	args := m.Called(ctx, tenantID, f, limit, cur)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*item.Item), args.Error(1)
}

// stubRunner drives Execute without touching the network.
type stubRunner struct {
	run func(ctx context.Context, d *dataset.Dataset, opts runner.Options, emit func(item.RawRecord) error) (runner.Stats, error)
}

func (s *stubRunner) Run(ctx context.Context, d *dataset.Dataset, opts runner.Options, emit func(item.RawRecord) error) (runner.Stats, error) {
	return s.run(ctx, d, opts, emit)
}

type pollerFixture struct {
	jobRepo     *mockJobRepo
	datasetRepo *mockDatasetRepo
	itemRepo    *mockItemRepo
	registry    *runner.Registry
	poller      *Poller
}

func newPollerFixture(t *testing.T) *pollerFixture {
	t.Helper()

	f := &pollerFixture{
		jobRepo:     new(mockJobRepo),
		datasetRepo: new(mockDatasetRepo),
		itemRepo:    new(mockItemRepo),
		registry:    runner.NewRegistry(),
	}

	datasets := dataset.NewService(f.datasetRepo, audit.NewSlogLogger(), false)
	jobs := job.NewService(f.jobRepo, datasets, job.NopNotifier{}, audit.NewSlogLogger())
	items := item.NewService(f.itemRepo)

	cfg := Config{
		PollerID:      "poller-test",
		PollInterval:  10 * time.Millisecond,
		RunnerTimeout: time.Minute,
	}
	log := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	f.poller = NewPoller(cfg, jobs, datasets, items, f.registry, nil, log)
	return f
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func runningJob(mode string) *job.Job {
	started := time.Now()
	return &job.Job{
		ID:        "job-1",
		DatasetID: "ds-1",
		TenantID:  "tenant-1",
		Status:    job.StatusRunning,
		Stats:     map[string]any{job.StatsModeKey: mode},
		CreatedAt: started.Add(-time.Second),
		StartedAt: &started,
	}
}

func enabledDataset() *dataset.Dataset {
	owner := "tenant-1"
	return &dataset.Dataset{
		ID:            "ds-1",
		OwnerTenantID: &owner,
		Name:          "news",
		EntityType:    "article",
		Extractor:     "stub",
		IsEnabled:     true,
	}
}

// TestPurpose: claimed job runs to SUCCEEDED with ingestion counters folded
// into the final stats.
//
// Scope: Poller.Execute happy path, full-run mode.
//
// Expected: every emitted record is ingested, MarkSucceeded receives the
// runner's stats merged with items_created/updated/unchanged, and no failure
// transition happens.
//
// Test Case ID: WORK-01
func TestPoller_Execute_Success(t *testing.T) {
	f := newPollerFixture(t)
	j := runningJob(job.ModeFull)

	f.datasetRepo.On("GetByID", mock.Anything, "ds-1").Return(enabledDataset(), nil)

	f.registry.Register("stub", &stubRunner{
		run: func(ctx context.Context, d *dataset.Dataset, opts runner.Options, emit func(item.RawRecord) error) (runner.Stats, error) {
			require.False(t, opts.QuickCheck)
			for _, url := range []string{"https://ex.com/a", "https://ex.com/b"} {
				err := emit(item.RawRecord{
					EntityType: d.EntityType,
					URL:        url,
					Source:     "ex.com",
					Data:       map[string]any{"title": url},
				})
				require.NoError(t, err)
			}
			return runner.Stats{"pages_crawled": 1}, nil
		},
	})

	// Both URLs are new: lookup misses, insert succeeds.
	f.itemRepo.On("GetByDatasetURL", mock.Anything, "ds-1", mock.Anything).Return(nil, item.ErrItemNotFound)
	f.itemRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	// Post-run status peek and the follow-up-run probe inside Succeed.
	f.jobRepo.On("GetByID", mock.Anything, "job-1").Return(j, nil)
	f.jobRepo.On("MarkSucceeded", mock.Anything, "job-1", mock.MatchedBy(func(stats map[string]any) bool {
		return stats["pages_crawled"] == 1 &&
			stats["items_created"] == 2 &&
			stats["items_updated"] == 0 &&
			stats["items_unchanged"] == 0
	})).Return(nil)

	f.poller.Execute(context.Background(), j)

	f.jobRepo.AssertExpectations(t)
	f.itemRepo.AssertNumberOfCalls(t, "Insert", 2)
	f.jobRepo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
}

// TestPurpose: a quick check that created items records the discovery flag
// so a full run is triggered.
//
// Scope: Poller.Execute, quick-check mode, stats new-items signal.
//
// Expected: MarkSucceeded stats carry new_items_found=true; the job service
// then enqueues a follow-up full run.
//
// Test Case ID: WORK-02
func TestPoller_Execute_QuickCheckTriggersFullRun(t *testing.T) {
	f := newPollerFixture(t)
	j := runningJob(job.ModeQuickCheck)

	f.datasetRepo.On("GetByID", mock.Anything, "ds-1").Return(enabledDataset(), nil)

	f.registry.Register("stub", &stubRunner{
		run: func(ctx context.Context, d *dataset.Dataset, opts runner.Options, emit func(item.RawRecord) error) (runner.Stats, error) {
			require.True(t, opts.QuickCheck)
			require.NoError(t, emit(item.RawRecord{
				EntityType: d.EntityType,
				URL:        "https://ex.com/new",
				Data:       map[string]any{},
			}))
			return runner.Stats{"pages_crawled": 1}, nil
		},
	})

	f.itemRepo.On("GetByDatasetURL", mock.Anything, "ds-1", "https://ex.com/new").Return(nil, item.ErrItemNotFound)
	f.itemRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	// After MarkSucceeded the service re-reads the job to decide on a
	// follow-up; hand back the succeeded snapshot with the flag set.
	succeeded := runningJob(job.ModeQuickCheck)
	succeeded.Status = job.StatusSucceeded
	succeeded.Stats[job.StatsNewItemsKey] = true

	f.jobRepo.On("MarkSucceeded", mock.Anything, "job-1", mock.MatchedBy(func(stats map[string]any) bool {
		return stats[job.StatsNewItemsKey] == true
	})).Return(nil)
	f.jobRepo.On("GetByID", mock.Anything, "job-1").Return(succeeded, nil)
	f.jobRepo.On("Create", mock.Anything, mock.MatchedBy(func(follow *job.Job) bool {
		return follow.DatasetID == "ds-1" &&
			follow.Status == job.StatusQueued &&
			follow.Mode() == job.ModeFull
	})).Return(nil)

	f.poller.Execute(context.Background(), j)

	f.jobRepo.AssertExpectations(t)
}

// TestPurpose: a runner error lands the job in FAILED with the error
// message, never in SUCCEEDED.
//
// Scope: Poller.Execute failure path.
//
// Expected: MarkFailed is called with the runner's message; MarkSucceeded is
// not called.
//
// Test Case ID: WORK-03
func TestPoller_Execute_RunnerErrorFailsJob(t *testing.T) {
	f := newPollerFixture(t)
	j := runningJob(job.ModeFull)

	f.datasetRepo.On("GetByID", mock.Anything, "ds-1").Return(enabledDataset(), nil)

	f.registry.Register("stub", &stubRunner{
		run: func(ctx context.Context, d *dataset.Dataset, opts runner.Options, emit func(item.RawRecord) error) (runner.Stats, error) {
			return nil, errors.New("upstream returned status 502")
		},
	})

	f.jobRepo.On("GetByID", mock.Anything, "job-1").Return(j, nil)
	f.jobRepo.On("MarkFailed", mock.Anything, "job-1", "upstream returned status 502").Return(nil)

	f.poller.Execute(context.Background(), j)

	f.jobRepo.AssertExpectations(t)
	f.jobRepo.AssertNotCalled(t, "MarkSucceeded", mock.Anything, mock.Anything, mock.Anything)
}

// TestPurpose: a job whose extractor is not registered fails cleanly instead
// of crashing the poller.
//
// Scope: Poller.Execute, registry miss.
//
// Expected: MarkFailed with a message naming the extractor.
//
// Test Case ID: WORK-04
func TestPoller_Execute_UnknownExtractor(t *testing.T) {
	f := newPollerFixture(t)
	j := runningJob(job.ModeFull)

	d := enabledDataset()
	d.Extractor = "never_registered"
	f.datasetRepo.On("GetByID", mock.Anything, "ds-1").Return(d, nil)

	f.jobRepo.On("MarkFailed", mock.Anything, "job-1", mock.MatchedBy(func(msg string) bool {
		return strings.Contains(msg, "never_registered")
	})).Return(nil)

	f.poller.Execute(context.Background(), j)

	f.jobRepo.AssertExpectations(t)
}

// TestPurpose: a cancel observed at the runner's checkpoint stops the run
// without moving the job out of CANCELED.
//
// Scope: Poller.Execute, cooperative cancellation; items emitted before the
// checkpoint are kept.
//
// Expected: the pre-checkpoint record is ingested, the runner stops when
// Canceled reports true, and neither MarkSucceeded nor MarkFailed is called.
//
// Test Case ID: WORK-05
func TestPoller_Execute_CooperativeCancel(t *testing.T) {
	f := newPollerFixture(t)
	j := runningJob(job.ModeFull)

	f.datasetRepo.On("GetByID", mock.Anything, "ds-1").Return(enabledDataset(), nil)

	canceled := runningJob(job.ModeFull)
	canceled.Status = job.StatusCanceled
	f.jobRepo.On("GetByID", mock.Anything, "job-1").Return(canceled, nil)

	f.itemRepo.On("GetByDatasetURL", mock.Anything, "ds-1", "https://ex.com/a").Return(nil, item.ErrItemNotFound)
	f.itemRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	f.registry.Register("stub", &stubRunner{
		run: func(ctx context.Context, d *dataset.Dataset, opts runner.Options, emit func(item.RawRecord) error) (runner.Stats, error) {
			require.NoError(t, emit(item.RawRecord{
				EntityType: d.EntityType,
				URL:        "https://ex.com/a",
				Data:       map[string]any{},
			}))
			require.True(t, opts.Canceled(ctx), "checkpoint should observe the cancel")
			return runner.Stats{"pages_crawled": 1}, nil
		},
	})

	f.poller.Execute(context.Background(), j)

	f.itemRepo.AssertNumberOfCalls(t, "Insert", 1)
	f.jobRepo.AssertNotCalled(t, "MarkSucceeded", mock.Anything, mock.Anything, mock.Anything)
	f.jobRepo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
}

// TestPurpose: the progress hook reaches storage with the runner's percent
// and interim stats.
//
// Scope: Poller.Execute wiring of Options.Progress to the job service.
//
// Expected: UpdateProgress receives the reported values.
//
// Test Case ID: WORK-06
func TestPoller_Execute_ProgressReporting(t *testing.T) {
	f := newPollerFixture(t)
	j := runningJob(job.ModeFull)

	f.datasetRepo.On("GetByID", mock.Anything, "ds-1").Return(enabledDataset(), nil)

	f.registry.Register("stub", &stubRunner{
		run: func(ctx context.Context, d *dataset.Dataset, opts runner.Options, emit func(item.RawRecord) error) (runner.Stats, error) {
			opts.Progress(ctx, 40, runner.Stats{"pages_crawled": 2})
			return runner.Stats{"pages_crawled": 5}, nil
		},
	})

	f.jobRepo.On("UpdateProgress", mock.Anything, "job-1", 40, mock.MatchedBy(func(stats map[string]any) bool {
		return stats["pages_crawled"] == 2
	})).Return(nil)
	f.jobRepo.On("GetByID", mock.Anything, "job-1").Return(j, nil)
	f.jobRepo.On("MarkSucceeded", mock.Anything, "job-1", mock.Anything).Return(nil)

	f.poller.Execute(context.Background(), j)

	f.jobRepo.AssertExpectations(t)
}

// TestPurpose: drain claims until the backlog is empty and executes each
// claimed job exactly once.
//
// Scope: Poller.drain loop over Claim.
//
// Expected: two claims succeed and run, the third sees ErrNoWork and stops.
//
// Test Case ID: WORK-07
func TestPoller_Drain(t *testing.T) {
	f := newPollerFixture(t)

	j1 := runningJob(job.ModeFull)
	j2 := runningJob(job.ModeFull)
	j2.ID = "job-2"

	f.jobRepo.On("ClaimOldestQueued", mock.Anything).Return(j1, nil).Once()
	f.jobRepo.On("ClaimOldestQueued", mock.Anything).Return(j2, nil).Once()
	f.jobRepo.On("ClaimOldestQueued", mock.Anything).Return(nil, job.ErrNoWork).Once()

	f.datasetRepo.On("GetByID", mock.Anything, "ds-1").Return(enabledDataset(), nil)
	f.registry.Register("stub", &stubRunner{
		run: func(ctx context.Context, d *dataset.Dataset, opts runner.Options, emit func(item.RawRecord) error) (runner.Stats, error) {
			return runner.Stats{}, nil
		},
	})

	f.jobRepo.On("GetByID", mock.Anything, mock.Anything).Return(j1, nil)
	f.jobRepo.On("MarkSucceeded", mock.Anything, "job-1", mock.Anything).Return(nil)
	f.jobRepo.On("MarkSucceeded", mock.Anything, "job-2", mock.Anything).Return(nil)

	f.poller.drain(context.Background())

	f.jobRepo.AssertExpectations(t)
	f.jobRepo.AssertNumberOfCalls(t, "ClaimOldestQueued", 3)
}
