package swap

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"swapd/pkg/swaperr"
	"swapd/pkg/types"
)

const DefaultStorageFileName = ".swapd-swaps.json"

// UpdateExtra carries the optional fields of a status update.
type UpdateExtra struct {
	SourceTx string
	DestTx   string
	Error    string
}

// Repository is the persistence contract the orchestrator consumes. It
// never depends on the storage technology beyond this interface.
type Repository interface {
	Create(ctx context.Context, swap *types.Swap) (*types.Swap, error)
	UpdateStatus(ctx context.Context, id string, status types.SwapStatus, extra UpdateExtra) (*types.Swap, error)
	FindByID(ctx context.Context, id string) (*types.Swap, error)
	FindByUser(ctx context.Context, wallet string, limit int) ([]*types.Swap, error)
}

// FileRepository keeps durable swap records in a JSON file with atomic
// writes.
type FileRepository struct {
	filePath string
	mu       sync.RWMutex
	swaps    map[string]*types.Swap
}

type swapFile struct {
	Swaps map[string]*types.Swap `json:"swaps"`
}

// NewFileRepository creates a repository at the given path, defaulting
// to the home directory.
func NewFileRepository(filePath string) (*FileRepository, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultStorageFileName)
	}

	repo := &FileRepository{
		filePath: filePath,
		swaps:    make(map[string]*types.Swap),
	}

	if err := repo.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load swaps: %w", err)
		}
	}

	return repo, nil
}

func (r *FileRepository) load() error {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		return err
	}

	var file swapFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to unmarshal swaps: %w", err)
	}

	r.swaps = file.Swaps
	if r.swaps == nil {
		r.swaps = make(map[string]*types.Swap)
	}
	return nil
}

// save must be called with at least a read lock held.
func (r *FileRepository) save() error {
	data, err := json.MarshalIndent(swapFile{Swaps: r.swaps}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal swaps: %w", err)
	}

	dir := filepath.Dir(r.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temporary file first, then rename for atomic write
	tempFile := r.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write swaps: %w", err)
	}
	if err := os.Rename(tempFile, r.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Create implements Repository.
func (r *FileRepository) Create(ctx context.Context, swap *types.Swap) (*types.Swap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.swaps[swap.ID]; exists {
		return nil, fmt.Errorf("swap %q already exists", swap.ID)
	}

	now := time.Now()
	stored := *swap
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.swaps[swap.ID] = &stored

	if err := r.save(); err != nil {
		delete(r.swaps, swap.ID)
		return nil, err
	}

	out := stored
	return &out, nil
}

// UpdateStatus implements Repository.
func (r *FileRepository) UpdateStatus(ctx context.Context, id string, status types.SwapStatus, extra UpdateExtra) (*types.Swap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.swaps[id]
	if !exists {
		return nil, swaperr.New(swaperr.CodeNotFound, "swap %q not found", id)
	}

	stored.Status = status
	stored.UpdatedAt = time.Now()
	if extra.SourceTx != "" {
		stored.SourceTx = extra.SourceTx
	}
	if extra.DestTx != "" {
		stored.DestTx = extra.DestTx
	}
	if extra.Error != "" {
		stored.Error = extra.Error
	}

	if err := r.save(); err != nil {
		return nil, err
	}

	out := *stored
	return &out, nil
}

// FindByID implements Repository.
func (r *FileRepository) FindByID(ctx context.Context, id string) (*types.Swap, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, exists := r.swaps[id]
	if !exists {
		return nil, swaperr.New(swaperr.CodeNotFound, "swap %q not found", id)
	}
	out := *stored
	return &out, nil
}

// FindByUser implements Repository, newest first.
func (r *FileRepository) FindByUser(ctx context.Context, wallet string, limit int) ([]*types.Swap, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*types.Swap
	for _, stored := range r.swaps {
		if stored.UserWallet == wallet {
			copied := *stored
			out = append(out, &copied)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
