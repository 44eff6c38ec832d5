package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/arturkryukov/container-manager/internal/domain/model"
	"github.com/arturkryukov/container-manager/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedClock — управляемый источник времени.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// --- users ---

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]model.User
	// hideOnGet имитирует гонку: запись не видна при проверке, но есть при вставке
	hideOnGet bool
	err       error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]model.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.users[u.Username]; ok {
		return repository.ErrConflict
	}
	u.CreatedAt = time.Now().UTC()
	r.users[u.Username] = *u
	return nil
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	u, ok := r.users[username]
	if !ok || r.hideOnGet {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *fakeUserRepo) List(_ context.Context) ([]*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*model.User, 0, len(r.users))
	for _, u := range r.users {
		u := u
		result = append(result, &u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

func (r *fakeUserRepo) Delete(_ context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[username]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, username)
	return nil
}

// --- rate_limits ---

type fakeRateLimitRepo struct {
	mu      sync.Mutex
	records map[string]model.RateLimitConfig
}

func newFakeRateLimitRepo() *fakeRateLimitRepo {
	return &fakeRateLimitRepo{records: make(map[string]model.RateLimitConfig)}
}

func (r *fakeRateLimitRepo) Create(_ context.Context, rl *model.RateLimitConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rl.UserID]; ok {
		return repository.ErrConflict
	}
	r.records[rl.UserID] = *rl
	return nil
}

func (r *fakeRateLimitRepo) GetByUserID(_ context.Context, userID string) (*model.RateLimitConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rl, ok := r.records[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rl, nil
}

func (r *fakeRateLimitRepo) Update(_ context.Context, rl *model.RateLimitConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.records[rl.UserID]
	if !ok {
		return repository.ErrNotFound
	}
	rl.CreatedAt = existing.CreatedAt
	r.records[rl.UserID] = *rl
	return nil
}

// --- user_containers ---

type fakeEventRepo struct {
	mu        sync.Mutex
	events    []*model.ContainerEvent
	createErr error
}

func (r *fakeEventRepo) Create(_ context.Context, e *model.ContainerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	cp := *e
	r.events = append(r.events, &cp)
	return nil
}

func (r *fakeEventRepo) CountSince(_ context.Context, userID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.events {
		if e.UserID == userID && !e.CreatedTime.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *fakeEventRepo) List(_ context.Context) ([]*model.ContainerEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*model.ContainerEvent, len(r.events))
	copy(result, r.events)
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedTime.After(result[j].CreatedTime) })
	return result, nil
}

func (r *fakeEventRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.events[:0]
	var deleted int64
	for _, e := range r.events {
		if e.CreatedTime.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return deleted, nil
}

func (r *fakeEventRepo) add(userID, name string, at time.Time) *model.ContainerEvent {
	e := &model.ContainerEvent{ID: name, UserID: userID, ContainerName: name, CreatedTime: at}
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return e
}

func (r *fakeEventRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// --- Docker Engine ---

// fakeEngine реализует ImageEngine, ContainerEngine и VolumeEngine.
// err возвращается всеми операциями, если задан.
type fakeEngine struct {
	mu    sync.Mutex
	err   error
	calls []string

	lastBuild model.ImageBuildRequest
	lastRun   model.ContainerRunRequest
	logs      []string
}

func (e *fakeEngine) record(call string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
	return e.err
}

func (e *fakeEngine) callCount(call string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (e *fakeEngine) BuildImage(_ context.Context, req model.ImageBuildRequest) (*model.ImageBuildResult, error) {
	if err := e.record("build"); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.lastBuild = req
	e.mu.Unlock()
	return &model.ImageBuildResult{ID: "sha256:built", Tags: []string{req.Tag}}, nil
}

func (e *fakeEngine) ListImages(_ context.Context, _ model.ImageListRequest) ([]model.ImageSummary, error) {
	if err := e.record("list_images"); err != nil {
		return nil, err
	}
	return []model.ImageSummary{{ID: "sha256:1", Tags: []string{"nginx:latest"}}}, nil
}

func (e *fakeEngine) PullImage(_ context.Context, repository, localTag string) ([]string, error) {
	if err := e.record("pull"); err != nil {
		return nil, err
	}
	tags := []string{repository}
	if localTag != "" {
		tags = append(tags, localTag)
	}
	return tags, nil
}

func (e *fakeEngine) PushImage(_ context.Context, _, _ string) error {
	return e.record("push")
}

func (e *fakeEngine) RemoveImage(_ context.Context, _ string, _, _ bool) error {
	return e.record("remove_image")
}

func (e *fakeEngine) RegistryLogin(_ context.Context, _ model.RegistryCredentials) error {
	return e.record("registry_login")
}

func (e *fakeEngine) RunContainer(_ context.Context, req model.ContainerRunRequest) (*model.ContainerRunResult, error) {
	if err := e.record("run"); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.lastRun = req
	e.mu.Unlock()
	name := req.Name
	if name == "" {
		name = "generated_name"
	}
	return &model.ContainerRunResult{ID: "cid-" + name, Name: name, Status: "running"}, nil
}

func (e *fakeEngine) ListContainers(_ context.Context, _ model.ContainerListRequest) ([]model.ContainerSummary, error) {
	if err := e.record("list_containers"); err != nil {
		return nil, err
	}
	return []model.ContainerSummary{{ID: "1", Name: "web", Image: "nginx", State: "running", Status: "Up"}}, nil
}

func (e *fakeEngine) StartContainer(_ context.Context, _ string) error {
	return e.record("start")
}

func (e *fakeEngine) StopContainer(_ context.Context, _ string, _ *int) error {
	return e.record("stop")
}

func (e *fakeEngine) ContainerLogs(_ context.Context, _ string, _ model.ContainerLogsRequest) ([]string, error) {
	if err := e.record("logs"); err != nil {
		return nil, err
	}
	return e.logs, nil
}

func (e *fakeEngine) RemoveContainer(_ context.Context, _ string, _ model.ContainerRemoveRequest) error {
	return e.record("remove_container")
}

func (e *fakeEngine) CreateVolume(_ context.Context, req model.VolumeCreateRequest) (*model.Volume, error) {
	if err := e.record("create_volume"); err != nil {
		return nil, err
	}
	driver := req.Driver
	if driver == "" {
		driver = "local"
	}
	return &model.Volume{Name: req.Name, Driver: driver, Labels: req.Labels}, nil
}

func (e *fakeEngine) RemoveVolume(_ context.Context, _ string, _ bool) error {
	return e.record("remove_volume")
}
