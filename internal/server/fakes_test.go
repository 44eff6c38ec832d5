package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arturkryukov/container-manager/internal/domain/model"
	"github.com/arturkryukov/container-manager/internal/repository"
)

// --- PostgreSQL ---

type memUsers struct {
	mu    sync.Mutex
	users map[string]model.User
}

func (r *memUsers) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.Username]; ok {
		return repository.ErrConflict
	}
	u.CreatedAt = time.Now().UTC()
	r.users[u.Username] = *u
	return nil
}

func (r *memUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *memUsers) List(_ context.Context) ([]*model.User, error) {
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

func (r *memUsers) Delete(_ context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[username]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, username)
	return nil
}

type memRateLimits struct {
	mu      sync.Mutex
	records map[string]model.RateLimitConfig
}

func (r *memRateLimits) Create(_ context.Context, rl *model.RateLimitConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rl.UserID]; ok {
		return repository.ErrConflict
	}
	r.records[rl.UserID] = *rl
	return nil
}

func (r *memRateLimits) GetByUserID(_ context.Context, userID string) (*model.RateLimitConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rl, ok := r.records[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rl, nil
}

func (r *memRateLimits) Update(_ context.Context, rl *model.RateLimitConfig) error {
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

type memEvents struct {
	mu     sync.Mutex
	events []model.ContainerEvent
}

func (r *memEvents) Create(_ context.Context, e *model.ContainerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
	return nil
}

func (r *memEvents) CountSince(_ context.Context, userID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.UserID == userID && !e.CreatedTime.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memEvents) List(_ context.Context) ([]*model.ContainerEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*model.ContainerEvent, len(r.events))
	for i := range r.events {
		e := r.events[len(r.events)-1-i]
		result[i] = &e
	}
	return result, nil
}

func (r *memEvents) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
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

func (r *memEvents) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// --- Docker Engine ---

// stubEngine реализует все три интерфейса движка.
// runErr возвращается RunContainer, removedImage — последнее удалённое имя.
type stubEngine struct {
	mu           sync.Mutex
	runErr       error
	runs         int
	removedImage string
}

func (e *stubEngine) BuildImage(_ context.Context, req model.ImageBuildRequest) (*model.ImageBuildResult, error) {
	return &model.ImageBuildResult{ID: "sha256:built", Tags: []string{req.Tag}}, nil
}

func (e *stubEngine) ListImages(_ context.Context, _ model.ImageListRequest) ([]model.ImageSummary, error) {
	return []model.ImageSummary{{ID: "sha256:1", Tags: []string{"nginx:latest"}, Size: 1024}}, nil
}

func (e *stubEngine) PullImage(_ context.Context, repository, localTag string) ([]string, error) {
	return []string{repository}, nil
}

func (e *stubEngine) PushImage(_ context.Context, _, _ string) error {
	return nil
}

func (e *stubEngine) RemoveImage(_ context.Context, name string, _, _ bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removedImage = name
	return nil
}

func (e *stubEngine) RegistryLogin(_ context.Context, _ model.RegistryCredentials) error {
	return nil
}

func (e *stubEngine) RunContainer(_ context.Context, req model.ContainerRunRequest) (*model.ContainerRunResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runErr != nil {
		return nil, e.runErr
	}
	e.runs++
	name := req.Name
	if name == "" {
		name = "generated_name"
	}
	return &model.ContainerRunResult{ID: "cid-" + name, Name: name, Status: "running"}, nil
}

func (e *stubEngine) ListContainers(_ context.Context, _ model.ContainerListRequest) ([]model.ContainerSummary, error) {
	return []model.ContainerSummary{{ID: "1", Name: "web", Image: "nginx", State: "running", Status: "Up"}}, nil
}

func (e *stubEngine) StartContainer(_ context.Context, _ string) error {
	return nil
}

func (e *stubEngine) StopContainer(_ context.Context, _ string, _ *int) error {
	return nil
}

func (e *stubEngine) ContainerLogs(_ context.Context, _ string, _ model.ContainerLogsRequest) ([]string, error) {
	return []string{"line 1", "line 2"}, nil
}

func (e *stubEngine) RemoveContainer(_ context.Context, _ string, _ model.ContainerRemoveRequest) error {
	return nil
}

func (e *stubEngine) CreateVolume(_ context.Context, req model.VolumeCreateRequest) (*model.Volume, error) {
	return &model.Volume{Name: req.Name, Driver: "local"}, nil
}

func (e *stubEngine) RemoveVolume(_ context.Context, _ string, _ bool) error {
	return nil
}

func (e *stubEngine) runCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs
}

// --- readiness ---

type stubChecker struct {
	status string
}

func (c stubChecker) CheckReady(_ context.Context) (string, string) {
	return c.status, ""
}
