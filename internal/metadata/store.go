package metadata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nainovate/Evaluation-UI-sub000/internal/metrics"
	"github.com/nainovate/Evaluation-UI-sub000/pkg/logger"
)

// ErrNotFound is returned by a Backend that has no record stored.
var ErrNotFound = errors.New("evaluation metadata not found")

// ErrUnavailable is returned when a backend is not configured.
var ErrUnavailable = errors.New("metadata backend unavailable")

// Backend persists the whole metadata record.
type Backend interface {
	Load(ctx context.Context) (*EvaluationMetadata, error)
	Save(ctx context.Context, md *EvaluationMetadata) error
}

// Source names where a record was read from or written to.
type Source string

const (
	SourceRemote  Source = "remote"
	SourceLocal   Source = "local"
	SourceDefault Source = "default"
	SourceNone    Source = "none"
)

type LoadResult struct {
	Metadata *EvaluationMetadata `json:"metadata"`
	Source   Source              `json:"source"`
}

// UpdateResult always carries the merged record. PersistedTo is SourceNone
// and Err is set when both backends failed.
type UpdateResult struct {
	Metadata    *EvaluationMetadata `json:"metadata"`
	PersistedTo Source              `json:"persistedTo"`
	Err         error               `json:"-"`
}

// Store owns the wizard record. Reads are served from memory; every update
// is written to the remote backend first and to the local backend if that
// fails. Writes are not retried and the last write wins.
type Store struct {
	remote Backend
	local  Backend
	now    func() time.Time
	newID  func() string

	mu      sync.Mutex
	current *EvaluationMetadata
	source  Source
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// NewStore creates a store. Either backend may be nil.
func NewStore(remote, local Backend, opts ...Option) *Store {
	s := &Store{
		remote: remote,
		local:  local,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init reads remote, then local, then falls back to the default record,
// and makes the result the in-memory record. It is the only read from the
// backends; afterwards the in-memory record is authoritative.
func (s *Store) Init(ctx context.Context) LoadResult {
	md, source := s.read(ctx)
	md.normalizeDeployments()

	s.mu.Lock()
	s.current = md.Clone()
	s.source = source
	s.mu.Unlock()

	metrics.MetadataLoads.WithLabelValues(string(source)).Inc()
	logger.Debug("Evaluation metadata loaded",
		zap.String("source", string(source)),
		zap.String("session_id", md.EvaluationSession.ID),
	)

	return LoadResult{Metadata: md, Source: source}
}

// Snapshot returns the in-memory record and where it was last read from or
// written to. SourceNone means the latest changes exist in memory only.
func (s *Store) Snapshot() LoadResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		s.current = Default(s.now())
		s.source = SourceDefault
	}
	return LoadResult{Metadata: s.current.Clone(), Source: s.source}
}

func (s *Store) read(ctx context.Context) (*EvaluationMetadata, Source) {
	if md, err := loadFrom(ctx, s.remote); err == nil {
		return md, SourceRemote
	} else if !errors.Is(err, ErrNotFound) {
		logger.Warn("Remote metadata load failed, trying local copy", zap.Error(err))
	}

	if md, err := loadFrom(ctx, s.local); err == nil {
		return md, SourceLocal
	} else if !errors.Is(err, ErrNotFound) {
		logger.Warn("Local metadata load failed, using defaults", zap.Error(err))
	}

	return Default(s.now()), SourceDefault
}

func loadFrom(ctx context.Context, b Backend) (*EvaluationMetadata, error) {
	if b == nil {
		return nil, ErrUnavailable
	}
	md, err := b.Load(ctx)
	if err != nil {
		return nil, err
	}
	if md == nil {
		return nil, ErrNotFound
	}
	return md, nil
}

// Current returns a copy of the in-memory record.
func (s *Store) Current() *EvaluationMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		s.current = Default(s.now())
	}
	return s.current.Clone()
}

// Preview returns what Update would produce without storing it.
func (s *Store) Preview(patch Patch) *EvaluationMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Merge(s.current, patch, s.now(), s.newID)
}

// Update merges patch into the in-memory record and persists the result.
// The merged record is returned even when persistence fails.
func (s *Store) Update(ctx context.Context, patch Patch) UpdateResult {
	res, _ := s.update(ctx, "", patch)
	return res
}

// UpdateIf applies patch only while sessionID is still the current session.
// The id check and the merge happen under one lock, so a concurrent Reset
// either runs first and the patch is dropped, or runs after it.
func (s *Store) UpdateIf(ctx context.Context, sessionID string, patch Patch) (UpdateResult, bool) {
	return s.update(ctx, sessionID, patch)
}

func (s *Store) update(ctx context.Context, sessionID string, patch Patch) (UpdateResult, bool) {
	s.mu.Lock()
	if sessionID != "" && (s.current == nil || s.current.EvaluationSession.ID != sessionID) {
		s.mu.Unlock()
		return UpdateResult{}, false
	}
	merged := Merge(s.current, patch, s.now(), s.newID)
	s.current = merged
	snapshot := merged.Clone()
	s.mu.Unlock()

	target, err := s.persist(ctx, snapshot)
	s.markPersisted(snapshot, target)
	return UpdateResult{Metadata: snapshot.Clone(), PersistedTo: target, Err: err}, true
}

// Reset discards the current record and starts a new session with a fresh id.
func (s *Store) Reset(ctx context.Context) UpdateResult {
	now := s.now()
	fresh := Default(now)
	fresh.EvaluationSession.ID = s.newID()
	fresh.EvaluationSession.CreatedAt = &now
	fresh.EvaluationSession.Status = fresh.DeriveStatus()

	s.mu.Lock()
	s.current = fresh
	snapshot := fresh.Clone()
	s.mu.Unlock()

	logger.Info("Evaluation session reset", zap.String("session_id", fresh.EvaluationSession.ID))

	target, err := s.persist(ctx, snapshot)
	s.markPersisted(snapshot, target)
	return UpdateResult{Metadata: fresh.Clone(), PersistedTo: target, Err: err}
}

// markPersisted records target as the source of the in-memory record unless
// a later write already replaced it.
func (s *Store) markPersisted(written *EvaluationMetadata, target Source) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.EvaluationSession.LastModified.Equal(written.EvaluationSession.LastModified) &&
		s.current.EvaluationSession.ID == written.EvaluationSession.ID {
		s.source = target
	}
}

func (s *Store) persist(ctx context.Context, md *EvaluationMetadata) (Source, error) {
	remoteErr := saveTo(ctx, s.remote, md)
	if remoteErr == nil {
		metrics.MetadataWrites.WithLabelValues(string(SourceRemote), "ok").Inc()
		return SourceRemote, nil
	}
	metrics.MetadataWrites.WithLabelValues(string(SourceRemote), "error").Inc()
	logger.Warn("Remote metadata save failed, writing local copy",
		zap.String("session_id", md.EvaluationSession.ID),
		zap.Error(remoteErr),
	)

	localErr := saveTo(ctx, s.local, md)
	if localErr == nil {
		metrics.MetadataWrites.WithLabelValues(string(SourceLocal), "ok").Inc()
		return SourceLocal, nil
	}
	metrics.MetadataWrites.WithLabelValues(string(SourceLocal), "error").Inc()
	logger.Error("Metadata could not be persisted, keeping in-memory copy",
		zap.String("session_id", md.EvaluationSession.ID),
		zap.Error(localErr),
	)

	return SourceNone, fmt.Errorf("persist metadata: remote: %v; local: %w", remoteErr, localErr)
}

func saveTo(ctx context.Context, b Backend, md *EvaluationMetadata) error {
	if b == nil {
		return ErrUnavailable
	}
	return b.Save(ctx, md)
}
