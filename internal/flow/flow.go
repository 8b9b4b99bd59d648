package flow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"relevancy/internal/cache"
	"relevancy/internal/filestore"
	"relevancy/internal/models"
	"relevancy/internal/predictor"
	"relevancy/internal/service/workspace"
	"relevancy/internal/spreadsheet"
	"relevancy/internal/worker"
)

const (
	DefaultPreviewRows = 10
	endWaitTimeout     = 5 * time.Second
)

// Recorder persists uploads and prediction outcomes.
type Recorder interface {
	RecordUpload(ctx context.Context, sessionID, fileName, storedPath string, size int64) (*models.Upload, error)
	LatestUpload(ctx context.Context, sessionID string) (*models.Upload, error)
	RecordPrediction(ctx context.Context, p *models.Prediction) error
}

// Invalidator is implemented by caches shared between instances.
type Invalidator interface {
	Invalidate(ctx context.Context, sessionID string) error
}

// Policy tunes presentation behavior.
type Policy struct {
	// ClearOnFailure drops the previous result when a prediction fails.
	ClearOnFailure bool
	PreviewRows    int
}

type Deps struct {
	Store     *filestore.Store
	Predictor predictor.Predictor
	Cache     cache.Cache
	Jobs      *worker.Manager
	Records   Recorder
}

type memo struct {
	notice string
	query  string
}

// Flow drives the upload, predict and render cycle of every session.
type Flow struct {
	store     *filestore.Store
	predictor predictor.Predictor
	cache     cache.Cache
	jobs      *worker.Manager
	records   Recorder
	policy    Policy
	endWait   time.Duration

	mu    sync.Mutex
	memos map[string]*memo
}

func New(deps Deps, policy Policy) *Flow {
	if policy.PreviewRows <= 0 {
		policy.PreviewRows = DefaultPreviewRows
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewMemory()
	}
	if deps.Jobs == nil {
		deps.Jobs = worker.NewManager()
	}
	return &Flow{
		store:     deps.Store,
		predictor: deps.Predictor,
		cache:     deps.Cache,
		jobs:      deps.Jobs,
		records:   deps.Records,
		policy:    policy,
		endWait:   endWaitTimeout,
		memos:     make(map[string]*memo),
	}
}

// Upload stores a spreadsheet for the session. Any cached result stays visible.
func (f *Flow) Upload(ctx context.Context, sessionID, name string, data []byte) (*View, error) {
	path, err := f.store.Save(data, name)
	if err != nil {
		log.Error().Err(err).Str("session", sessionID).Str("file", name).Msg("save upload failed")
		f.setNotice(sessionID, NoticeSaveFailed)
		return f.Render(ctx, sessionID)
	}
	if _, err := f.records.RecordUpload(ctx, sessionID, name, path, int64(len(data))); err != nil {
		return nil, err
	}
	log.Info().Str("session", sessionID).Str("path", path).Int("bytes", len(data)).Msg("spreadsheet uploaded")
	f.setNotice(sessionID, "")
	return f.Render(ctx, sessionID)
}

// Trigger validates the query and starts a prediction in the background.
func (f *Flow) Trigger(ctx context.Context, sessionID, query string) (*View, error) {
	if strings.TrimSpace(query) == "" {
		f.setNotice(sessionID, NoticeEmptyQuery)
		return f.Render(ctx, sessionID)
	}
	upload, err := f.records.LatestUpload(ctx, sessionID)
	if err != nil {
		if errors.Is(err, workspace.ErrNoUpload) {
			f.setNotice(sessionID, NoticeNoFile)
			return f.Render(ctx, sessionID)
		}
		return nil, err
	}

	// the job reports through m; holding mu until m is installed keeps an
	// early finish from missing it
	m := &memo{query: query}
	f.mu.Lock()
	err = f.jobs.Start(sessionID, func(jobCtx context.Context) {
		f.runPrediction(jobCtx, sessionID, m, upload.StoredPath)
	})
	if err == nil {
		f.memos[sessionID] = m
	}
	f.mu.Unlock()
	if err != nil {
		if errors.Is(err, worker.ErrBusy) {
			f.setNotice(sessionID, NoticeBusy)
			return f.Render(ctx, sessionID)
		}
		return nil, fmt.Errorf("start prediction: %w", err)
	}
	return f.Render(ctx, sessionID)
}

func (f *Flow) runPrediction(ctx context.Context, sessionID string, m *memo, filePath string) {
	query := m.query
	rec := &models.Prediction{
		SessionID: sessionID,
		Query:     query,
		FilePath:  filePath,
	}
	logger := log.With().Str("session", sessionID).Str("file", filePath).Logger()

	result, err := f.predictor.Predict(ctx, query, filePath)
	var table *models.ResultTable
	if err == nil {
		rec.Path, rec.FilteredPath = result.Path, result.FilteredPath
		table, err = loadResult(result.Path)
		if err != nil {
			rec.ErrorKind = "unreadable_result"
		}
	}
	if err == nil && ctx.Err() != nil {
		err = &predictor.Error{Kind: predictor.KindCanceled, Err: ctx.Err()}
	}

	switch {
	case err == nil:
		cached := &models.CachedResult{
			Table:        table,
			Path:         result.Path,
			FilteredPath: result.FilteredPath,
			Query:        query,
			UpdatedAt:    time.Now().UTC(),
		}
		if cerr := f.cache.Set(ctx, sessionID, cached); cerr != nil {
			logger.Error().Err(cerr).Msg("store prediction result failed")
			rec.Status, rec.ErrorKind = models.PredictionFailed, "cache"
			f.report(sessionID, m, NoticeFailed)
			break
		}
		rec.Status = models.PredictionSucceeded
		f.report(sessionID, m, NoticeCompleted)
		logger.Info().Int("rows", len(table.Rows)).Msg("relevancy prediction completed")
	case isCanceled(err):
		rec.Status, rec.ErrorKind = models.PredictionCanceled, predictor.KindCanceled.String()
		logger.Info().Msg("prediction canceled")
	default:
		rec.Status = models.PredictionFailed
		if kind, ok := predictor.KindOf(err); ok {
			rec.ErrorKind = kind.String()
		}
		logger.Warn().Err(err).Str("kind", rec.ErrorKind).Msg("prediction failed")
		if f.policy.ClearOnFailure {
			if derr := f.cache.Delete(ctx, sessionID); derr != nil {
				logger.Error().Err(derr).Msg("clear previous result failed")
			}
		}
		f.report(sessionID, m, NoticeFailed)
	}

	// the session may already be gone; history is best effort
	if err := f.records.RecordPrediction(context.Background(), rec); err != nil {
		logger.Debug().Err(err).Msg("record prediction failed")
	}
}

func loadResult(path string) (*models.ResultTable, error) {
	table, err := spreadsheet.LoadTable(path)
	if err != nil {
		return nil, err
	}
	if _, err := spreadsheet.Project(table, spreadsheet.PreviewColumns, 1); err != nil {
		return nil, err
	}
	return table, nil
}

func isCanceled(err error) bool {
	kind, ok := predictor.KindOf(err)
	return ok && kind == predictor.KindCanceled
}

// Await blocks until the session has no prediction in flight, then renders.
func (f *Flow) Await(ctx context.Context, sessionID string) (*View, error) {
	if err := f.jobs.Wait(ctx, sessionID); err != nil {
		return nil, err
	}
	return f.Render(ctx, sessionID)
}

// Render builds the session's view. Output files are checked on every call.
func (f *Flow) Render(ctx context.Context, sessionID string) (*View, error) {
	notice, query := f.memo(sessionID)
	view := &View{
		SessionID: sessionID,
		State:     models.StateNoFile,
		Notice:    notice,
		Query:     query,
	}

	upload, err := f.records.LatestUpload(ctx, sessionID)
	switch {
	case err == nil:
		view.FileName = upload.FileName
		view.State = models.StateFileReady
	case !errors.Is(err, workspace.ErrNoUpload):
		return nil, err
	}

	cached, ok, err := f.cache.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ok && cached.Table != nil {
		view.State = models.StateHasResults
		table, err := spreadsheet.Project(cached.Table, spreadsheet.PreviewColumns, f.policy.PreviewRows)
		if err != nil {
			return nil, err
		}
		view.Table = table
		for _, kind := range downloadOrder {
			view.Downloads = append(view.Downloads, describeDownload(kind, cached))
		}
	}
	if f.jobs.InFlight(sessionID) {
		view.State = models.StatePredicting
	}
	return view, nil
}

func describeDownload(kind DownloadKind, cached *models.CachedResult) Download {
	target := downloads[kind]
	d := Download{
		Kind:     kind,
		Label:    target.label,
		FileName: target.fileName,
		MIMEType: MIMETypeXLSX,
	}
	info, err := os.Stat(target.path(cached))
	if err != nil || info.IsDir() {
		d.Notice = noticeUnavailablePrefix + target.fileName
		return d
	}
	d.Available = true
	d.Size = info.Size()
	return d
}

// Download reads the requested output file of the session's latest result.
func (f *Flow) Download(ctx context.Context, sessionID string, kind DownloadKind) (*Attachment, error) {
	target, ok := downloads[kind]
	if !ok {
		return nil, ErrUnknownDownload
	}
	cached, ok, err := f.cache.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoResult
	}
	data, err := os.ReadFile(target.path(cached))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target.fileName, err)
	}
	return &Attachment{FileName: target.fileName, MIMEType: MIMETypeXLSX, Data: data}, nil
}

// End cancels any prediction of the session and discards its result.
func (f *Flow) End(ctx context.Context, sessionID string) error {
	if f.jobs.Cancel(sessionID) {
		waitCtx, cancel := context.WithTimeout(ctx, f.endWait)
		err := f.jobs.Wait(waitCtx, sessionID)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("session", sessionID).Msg("prediction did not stop in time")
		}
	}
	f.mu.Lock()
	delete(f.memos, sessionID)
	f.mu.Unlock()

	if inv, ok := f.cache.(Invalidator); ok {
		return inv.Invalidate(ctx, sessionID)
	}
	return f.cache.Delete(ctx, sessionID)
}

// CancelPrediction stops an in-flight prediction without touching the result.
func (f *Flow) CancelPrediction(sessionID string) bool {
	return f.jobs.Cancel(sessionID)
}

// Shutdown cancels every running prediction and waits for them to return.
func (f *Flow) Shutdown() {
	f.jobs.Stop()
}

func (f *Flow) memo(sessionID string) (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.memos[sessionID]; ok {
		return m.notice, m.query
	}
	return "", ""
}

func (f *Flow) setNotice(sessionID, notice string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memos[sessionID]
	if !ok {
		m = &memo{}
		f.memos[sessionID] = m
	}
	m.notice = notice
}

// report sets the outcome notice of the prediction that owns m. It is dropped
// once the session has ended or moved on to a newer memo.
func (f *Flow) report(sessionID string, m *memo, notice string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.memos[sessionID] != m {
		return
	}
	m.notice = notice
}
