package v1

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/diffsum"
	"github.com/helixml/diffsum/domain/change"
	"github.com/helixml/diffsum/domain/pipeline"
	"github.com/helixml/diffsum/infrastructure/api/middleware"
	"github.com/helixml/diffsum/infrastructure/api/v1/dto"
	"github.com/helixml/diffsum/infrastructure/git"
	"github.com/helixml/diffsum/infrastructure/tracking"
)

// streamBuffer is how many progress events may wait for a slow stream
// reader.
const streamBuffer = 256

// SummarizeRouter generates commit messages.
type SummarizeRouter struct {
	client           *diffsum.Client
	logger           *slog.Logger
	localRepos       bool
	progressInterval time.Duration
}

// SummarizeOption configures a SummarizeRouter.
type SummarizeOption func(*SummarizeRouter)

// WithLocalRepos lets requests name a repository on the server's disk.
func WithLocalRepos(enabled bool) SummarizeOption {
	return func(r *SummarizeRouter) { r.localRepos = enabled }
}

// WithProgressInterval limits streamed progress events to one per interval.
// Zero streams every event.
func WithProgressInterval(d time.Duration) SummarizeOption {
	return func(r *SummarizeRouter) { r.progressInterval = d }
}

// NewSummarizeRouter creates a new SummarizeRouter.
func NewSummarizeRouter(client *diffsum.Client, opts ...SummarizeOption) *SummarizeRouter {
	r := &SummarizeRouter{
		client: client,
		logger: client.Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Routes returns the chi router for summarize endpoints.
func (r *SummarizeRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", r.Summarize)

	return router
}

// Summarize handles POST /api/v1/summarize. Clients sending
// "Accept: text/event-stream" or "?stream=true" receive progress events
// followed by a result or error event.
func (r *SummarizeRouter) Summarize(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var body dto.SummarizeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		middleware.WriteError(w, req, middleware.BadRequest("invalid request body", err), r.logger)
		return
	}

	units, branch, err := r.units(ctx, body)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	branchHint := body.BranchHint
	if branchHint == "" {
		branchHint = branch
	}
	sreq := diffsum.SummarizeRequest{
		Units:        units,
		BranchHint:   branchHint,
		RepoPath:     body.RepoPath,
		TemplateID:   body.TemplateID,
		Language:     body.Language,
		Model:        body.Model,
		ForceLayered: body.ForceLayered,
	}

	if wantsStream(req) {
		r.stream(w, req, sreq)
		return
	}

	out, err := r.client.Summarize(ctx, sreq, nil)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, dto.NewSummarizeResponse(out))
}

func (r *SummarizeRouter) stream(w http.ResponseWriter, req *http.Request, sreq diffsum.SummarizeRequest) {
	events, ok := newEventStream(w)
	if !ok {
		middleware.WriteError(w, req, errors.New("streaming unsupported"), r.logger)
		return
	}
	defer events.close()

	// The pipeline never waits on the client: events queue on a buffered
	// channel drained by a writer goroutine, and overflow is dropped.
	queue := tracking.NewChannelObserver(streamBuffer)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for e := range queue.Events() {
			events.OnProgress(req.Context(), e)
		}
	}()

	var observer pipeline.Observer = tracking.NewDispatcher(queue, tracking.NewLoggingObserver(r.logger))
	var throttle *tracking.Throttle
	if r.progressInterval > 0 {
		throttle = tracking.NewThrottle(observer, r.progressInterval)
		observer = throttle
	}

	out, err := r.client.Summarize(req.Context(), sreq, observer)
	if throttle != nil {
		_ = throttle.Close()
	}
	_ = queue.Close()
	<-drained
	if n := queue.Dropped(); n > 0 {
		r.logger.WarnContext(req.Context(), "progress events dropped", slog.Int64("count", n))
	}

	if err != nil {
		r.logger.WarnContext(req.Context(), "streamed summary failed", slog.Any("error", err))
		streamErr := dto.StreamError{
			Error:    err.Error(),
			Fallback: diffsum.Fallback(sreq.Units),
		}
		var perr *pipeline.Error
		if errors.As(err, &perr) {
			streamErr.SessionID = perr.SessionID
		}
		events.send(eventError, streamErr)
		return
	}
	events.send(eventResult, dto.NewSummarizeResponse(out))
}

// units reads the change named by body and returns it with the branch it
// was committed on, when known.
func (r *SummarizeRouter) units(ctx context.Context, body dto.SummarizeRequest) ([]change.Unit, string, error) {
	hasPatch := strings.TrimSpace(body.Patch) != ""
	hasRepo := body.RepoPath != ""

	var src git.Source
	var branch string
	switch {
	case hasPatch && hasRepo:
		return nil, "", middleware.BadRequest("patch and repo_path are mutually exclusive", nil)
	case hasPatch:
		src = git.ParsePatch(body.Patch)
	case hasRepo:
		if !r.localRepos {
			return nil, "", middleware.NewAPIError(http.StatusForbidden, "local repository access is disabled", nil)
		}
		commit, err := git.OpenCommit(ctx, body.RepoPath, body.Rev, r.logger)
		if err != nil {
			return nil, "", middleware.BadRequest("cannot read repository", err)
		}
		src, branch = commit, commit.Branch()
	default:
		return nil, "", middleware.BadRequest("patch or repo_path is required", nil)
	}

	units, err := git.Units(ctx, src)
	if err != nil {
		return nil, "", err
	}
	if len(units) == 0 {
		return nil, "", middleware.BadRequest("no changes to summarize", nil)
	}
	return units, branch, nil
}

func wantsStream(req *http.Request) bool {
	if req.URL.Query().Get("stream") == "true" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/event-stream")
}
