package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/jury/internal/logging"
	"github.com/google/uuid"
)

// DefaultImportTimeout is the maximum duration of a single import.
const DefaultImportTimeout = 2 * time.Minute

// ServiceConfig tunes a Service. Zero values fall back to the defaults.
type ServiceConfig struct {
	MaxConcurrentImports int
	ImportWaitTime       time.Duration
	ImportTimeout        time.Duration
	Metrics              *Metrics
	Now                  func() time.Time
}

// Service runs imports against a Store. It is safe for concurrent use.
type Service struct {
	store   Store
	limiter *ImportLimiter
	metrics *Metrics
	timeout time.Duration
	now     func() time.Time
}

// ImportResult summarizes a persisted import.
type ImportResult struct {
	ImportID  string     `json:"import_id"`
	Kind      ImportKind `json:"kind"`
	Added     int        `json:"added"`
	Rejected  []string   `json:"rejected"`
	FirstSlot int64      `json:"first_slot,omitempty"`
}

// NewService creates a Service backed by store.
func NewService(store Store, cfg ServiceConfig) *Service {
	if cfg.ImportTimeout <= 0 {
		cfg.ImportTimeout = DefaultImportTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:   store,
		limiter: NewImportLimiter(cfg.MaxConcurrentImports, cfg.ImportWaitTime),
		metrics: cfg.Metrics,
		timeout: cfg.ImportTimeout,
		now:     cfg.Now,
	}
}

// ImportDevpost imports a Devpost export and stores the accepted projects.
// Rejected rows are logged and returned; they do not fail the import.
func (s *Service) ImportDevpost(ctx context.Context, r io.Reader) (*ImportResult, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	logger := s.importLogger(ctx, KindDevpost)
	begin := time.Now()

	report, err := ImportDevpost(ctx, r, s.store, s.now())
	if err == nil && len(report.Accepted) > 0 {
		if err = s.store.InsertProjects(ctx, report.Accepted); err != nil {
			err = fmt.Errorf("insert projects: %w", err)
		}
	}
	if err != nil {
		s.metrics.observe(KindDevpost, 0, 0, 0, err, time.Since(begin))
		logger.Error("import failed", "error", err)
		return nil, err
	}

	logRejected(logger, report.Errors)

	result := &ImportResult{
		ImportID: logger.id,
		Kind:     KindDevpost,
		Added:    len(report.Accepted),
		Rejected: nonNil(report.Rejected),
	}
	if len(report.Accepted) > 0 {
		result.FirstSlot = report.Accepted[0].Location
	}

	s.metrics.observe(KindDevpost, result.Added, len(result.Rejected), result.Added, nil, time.Since(begin))
	logger.Info("import completed",
		"added", result.Added,
		"rejected", len(result.Rejected),
		"first_slot", result.FirstSlot,
		"duration_ms", time.Since(begin).Milliseconds(),
	)
	return result, nil
}

// PreviewDevpost runs the Devpost import without storing anything. The
// table numbers shown are the ones a real import would use right now.
// Previews never queue: when every import slot is busy it fails at once
// with ErrTooManyImports.
func (s *Service) PreviewDevpost(ctx context.Context, r io.Reader) (*ImportReport[Project], error) {
	if !s.limiter.TryAcquire() {
		return nil, ErrTooManyImports
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	parsed, err := ParseDevpost(NewRowReader(r, true))
	if err != nil {
		return nil, err
	}
	projects, err := PlaceProjects(ctx, s.store, parsed.Accepted, s.now(), false)
	if err != nil {
		return nil, err
	}
	return &ImportReport[Project]{
		Accepted: projects,
		Rejected: nonNil(parsed.Rejected),
		Errors:   parsed.Errors,
	}, nil
}

// ImportRoster imports a judge roster. Any bad row refuses the whole file.
func (s *Service) ImportRoster(ctx context.Context, r io.Reader, hasHeader bool) (*ImportResult, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	logger := s.importLogger(ctx, KindRoster)
	begin := time.Now()

	report, err := ImportRoster(r, hasHeader)
	if err == nil && len(report.Accepted) > 0 {
		if err = s.store.InsertJudges(ctx, report.Accepted); err != nil {
			err = fmt.Errorf("insert judges: %w", err)
		}
	}
	if err != nil {
		s.metrics.observe(KindRoster, 0, 0, 0, err, time.Since(begin))
		var batch *BatchRejectedError
		if errors.As(err, &batch) {
			logRejected(logger, batch.Rows)
		}
		logger.Error("import failed", "error", err)
		return nil, err
	}

	result := &ImportResult{
		ImportID: logger.id,
		Kind:     KindRoster,
		Added:    len(report.Accepted),
		Rejected: []string{},
	}
	s.metrics.observe(KindRoster, result.Added, 0, 0, nil, time.Since(begin))
	logger.Info("import completed",
		"added", result.Added,
		"duration_ms", time.Since(begin).Milliseconds(),
	)
	return result, nil
}

// PreviewRoster parses a roster without storing it.
func (s *Service) PreviewRoster(ctx context.Context, r io.Reader, hasHeader bool) (*ImportReport[Judge], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report, err := ImportRoster(r, hasHeader)
	if err != nil {
		return nil, err
	}
	report.Rejected = nonNil(report.Rejected)
	return report, nil
}

// AddProject places a single project at the next table number.
func (s *Service) AddProject(ctx context.Context, req NewProjectRequest) (Project, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if err := validateRequest(req); err != nil {
		return Project{}, err
	}

	begin := time.Now()
	projects, err := PlaceProjects(ctx, s.store, []ProjectDraft{req.Draft()}, s.now(), true)
	if err == nil {
		if err = s.store.InsertProjects(ctx, projects); err != nil {
			err = fmt.Errorf("insert project: %w", err)
		}
	}
	if err != nil {
		s.metrics.observe(KindProject, 0, 0, 0, err, time.Since(begin))
		return Project{}, err
	}

	s.metrics.observe(KindProject, 1, 0, 1, nil, time.Since(begin))
	logging.FromContext(ctx).Info("project added", "name", projects[0].Name, "location", projects[0].Location)
	return projects[0], nil
}

// AddJudge adds a single judge with a fresh login code.
func (s *Service) AddJudge(ctx context.Context, req NewJudgeRequest) (Judge, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Role = strings.TrimSpace(req.Role)
	if err := validateRequest(req); err != nil {
		return Judge{}, err
	}

	begin := time.Now()
	judges := []Judge{NewJudge(req.Name, req.Email, req.Role)}
	if err := s.store.InsertJudges(ctx, judges); err != nil {
		err = fmt.Errorf("insert judge: %w", err)
		s.metrics.observe(KindJudge, 0, 0, 0, err, time.Since(begin))
		return Judge{}, err
	}

	s.metrics.observe(KindJudge, 1, 0, 0, nil, time.Since(begin))
	logging.FromContext(ctx).Info("judge added", "name", judges[0].Name)
	return judges[0], nil
}

// ListProjects returns every stored project ordered by table number.
func (s *Service) ListProjects(ctx context.Context) ([]Project, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// ListJudges returns every stored judge.
func (s *Service) ListJudges(ctx context.Context) ([]Judge, error) {
	judges, err := s.store.ListJudges(ctx)
	if err != nil {
		return nil, fmt.Errorf("list judges: %w", err)
	}
	return judges, nil
}

// Options returns the current allocator state.
func (s *Service) Options(ctx context.Context) (Options, error) {
	opts, err := s.store.Options(ctx)
	if err != nil {
		return Options{}, fmt.Errorf("%w: %w", ErrAllocatorUnavailable, err)
	}
	return opts, nil
}

// LimiterStatus reports import concurrency for health checks.
func (s *Service) LimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// Ping checks the store connection. Stores without one are always healthy.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// WaitForImports blocks until running imports finish or ctx is done.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// importLogger tags every entry of one import with a fresh import id and the
// client that started it.
func (s *Service) importLogger(ctx context.Context, kind ImportKind) *importLog {
	id := uuid.New().String()
	ip, ua := ClientFromContext(ctx)
	args := []any{"import_id", id, "kind", kind}
	if ip != "" {
		args = append(args, "ip", ip)
	}
	if ua != "" {
		args = append(args, "user_agent", ua)
	}
	logger := logging.WithFields(ctx, args...)
	logger.Info("import started")
	return &importLog{Logger: logger, id: id}
}

type importLog struct {
	*slog.Logger
	id string
}

func logRejected(logger *importLog, rejected []*RowError) {
	for _, rowErr := range rejected {
		logger.Warn("row skipped",
			"line", rowErr.Line,
			"fields", len(rowErr.Row),
			"want", rowErr.Want,
			"row", joinRow(rowErr.Row),
		)
	}
}

func nonNil(rows []string) []string {
	if rows == nil {
		return []string{}
	}
	return rows
}

// Reset deletes every project and judge and restarts table numbers at
// startSlot. It waits for a running import to finish with the counter.
func (s *Service) Reset(ctx context.Context, startSlot int64) error {
	if startSlot < 0 {
		return fmt.Errorf("%w: start slot must not be negative", ErrInvalidRequest)
	}
	if err := s.store.Reset(ctx, startSlot); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	logging.FromContext(ctx).Warn("all projects and judges deleted", "start_slot", startSlot)
	return nil
}
