package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/nexusx/nexus/internal/domain"
)

type memBlobs struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	m.types[path] = contentType
	return nil
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

type fakeLedgers map[string]domain.LedgerState

func (f fakeLedgers) Accounts(context.Context) ([]string, error) {
	var ids []string
	for id := range f {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f fakeLedgers) State(_ context.Context, id string) (domain.LedgerState, error) {
	s, ok := f[id]
	if !ok {
		return domain.LedgerState{}, domain.ErrNotFound
	}
	return s, nil
}

func TestLedgerArchiver(t *testing.T) {
	blobs := newMemBlobs()
	ledgers := fakeLedgers{
		"demo": {Orders: []domain.Order{{ID: "o-2", Symbol: "ETH"}, {ID: "o-1", Symbol: "BTC"}}},
		"idle": {Orders: []domain.Order{}},
	}
	a := NewLedgerArchiver(blobs, blobs, ledgers, nil)
	a.now = func() time.Time { return time.Date(2026, 4, 5, 23, 0, 0, 0, time.UTC) }

	res, err := a.Archive(context.Background())
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if res.Accounts != 1 || res.Orders != 2 {
		t.Errorf("result = %+v", res)
	}

	const path = "ledgers/demo/2026-04-05.jsonl"
	body, ok := blobs.objects[path]
	if !ok {
		t.Fatalf("missing %s; have %v", path, res.Paths)
	}
	if blobs.types[path] != "application/x-ndjson" {
		t.Errorf("content type = %q", blobs.types[path])
	}
	lines := 0
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		lines++
	}
	if lines != 2 {
		t.Errorf("lines = %d, want 2", lines)
	}

	infos, err := a.List(context.Background(), "demo")
	if err != nil || len(infos) != 1 || infos[0].Path != path {
		t.Errorf("List = %v, %v", infos, err)
	}
	if infos, _ := a.List(context.Background(), "idle"); len(infos) != 0 {
		t.Errorf("idle account archived: %v", infos)
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		ssl  bool
		want string
	}{
		{"https://s3.example.com", false, "https://s3.example.com"},
		{"minio:9000", false, "http://minio:9000"},
		{"r2.example.com", true, "https://r2.example.com"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.ssl); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.ssl, got, tt.want)
		}
	}
}
