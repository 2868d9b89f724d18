package service

import (
	"context"
	"sync"

	"github.com/smallbiznis/scholara/internal/invoicearchive/domain"
)

type fakePartition struct {
	rows       []domain.InvoiceStatus
	compressed bool
}

// fakeCatalog is an in-memory Catalog that keeps enough physical state to
// observe idempotency across runs.
type fakeCatalog struct {
	mu         sync.Mutex
	partitions map[string]*fakePartition
	archives   map[string][]domain.InvoiceStatus
	failOn     map[string]error

	createCalls   int
	moveCalls     int
	compressCalls int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		partitions: map[string]*fakePartition{},
		archives:   map[string][]domain.InvoiceStatus{},
		failOn:     map[string]error{},
	}
}

func (f *fakeCatalog) seed(name string, rows ...domain.InvoiceStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partitions[name] = &fakePartition{rows: rows}
}

func (f *fakeCatalog) fail(method string) error {
	return f.failOn[method]
}

func (f *fakeCatalog) ListPartitions(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ListPartitions"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(f.partitions))
	for name := range f.partitions {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeCatalog) PartitionExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("PartitionExists"); err != nil {
		return false, err
	}
	_, ok := f.partitions[name]
	return ok, nil
}

func (f *fakeCatalog) CreatePartition(_ context.Context, spec domain.PartitionSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreatePartition"); err != nil {
		return err
	}
	f.createCalls++
	f.partitions[spec.Name] = &fakePartition{}
	return nil
}

func (f *fakeCatalog) CountRows(_ context.Context, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CountRows"); err != nil {
		return 0, err
	}
	if err := f.fail("CountRows:" + name); err != nil {
		return 0, err
	}
	if p, ok := f.partitions[name]; ok {
		return int64(len(p.rows)), nil
	}
	return 0, nil
}

func (f *fakeCatalog) RelationSize(context.Context, string) (string, error) {
	return "8192 bytes", nil
}

func (f *fakeCatalog) TotalSize(context.Context) (string, error) {
	if err := f.fail("TotalSize"); err != nil {
		return "", err
	}
	return "64 kB", nil
}

func (f *fakeCatalog) EnsureArchiveTable(_ context.Context, _, archive string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.archives[archive]; !ok {
		f.archives[archive] = []domain.InvoiceStatus{}
	}
	return nil
}

func (f *fakeCatalog) MoveSettledRows(_ context.Context, live, archive string, keep []domain.InvoiceStatus, batchSize int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("MoveSettledRows"); err != nil {
		return 0, err
	}
	f.moveCalls++
	p := f.partitions[live]
	kept := make([]domain.InvoiceStatus, 0, len(p.rows))
	var moved int64
	for _, status := range p.rows {
		if moved < int64(batchSize) && !contains(keep, status) {
			f.archives[archive] = append(f.archives[archive], status)
			moved++
			continue
		}
		kept = append(kept, status)
	}
	p.rows = kept
	return moved, nil
}

func (f *fakeCatalog) IsCompressed(_ context.Context, name string, _ []string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.partitions[name].compressed, nil
}

func (f *fakeCatalog) Compress(_ context.Context, name string, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("Compress"); err != nil {
		return err
	}
	f.compressCalls++
	f.partitions[name].compressed = true
	return nil
}

func (f *fakeCatalog) Drop(_ context.Context, names ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range names {
		delete(f.partitions, name)
		delete(f.archives, name)
	}
	return nil
}

func contains(statuses []domain.InvoiceStatus, status domain.InvoiceStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
