package assembler

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capsuleforge/core/internal/domain"
)

type fakeStore struct {
	put *domain.Capsule
	err error
}

func (s *fakeStore) PutCapsule(ctx context.Context, c *domain.Capsule) error {
	if s.err != nil {
		return s.err
	}
	s.put = c
	return nil
}

type fakeIndex struct {
	upserted bool
	err      error
}

func (i *fakeIndex) Upsert(ctx context.Context, capsuleID, text string, metadata map[string]string) error {
	i.upserted = true
	return i.err
}

func testRequest() *domain.Request {
	return &domain.Request{ID: "req-1", TenantID: "tenant-1", UserID: "user-1", Description: "build a tiny CLI tool"}
}

func testShared() *domain.SharedContext {
	return &domain.SharedContext{WorkflowID: "req-1", PrimaryLanguage: "go", MainFileName: "main.go"}
}

func testTasks() []domain.Task {
	return []domain.Task{
		{ID: "t1", Type: domain.TaskTypeImplementation, Description: "write main"},
		{ID: "t2", Type: domain.TaskTypeTestGeneration, Description: "write tests for main"},
		{ID: "t3", Type: domain.TaskTypeDocumentation, Description: "write readme"},
	}
}

func testResults() map[string]*domain.TaskResult {
	return map[string]*domain.TaskResult{
		"t1": {TaskID: "t1", Status: domain.TaskStatusCompleted, OutputKind: domain.OutputKindCode, Payload: []byte("```go\npackage main\nfunc main() {}\n```")},
		"t2": {TaskID: "t2", Status: domain.TaskStatusCompleted, OutputKind: domain.OutputKindTests, Payload: []byte("package main\nfunc TestMain(t *testing.T) {}\n")},
		"t3": {TaskID: "t3", Status: domain.TaskStatusCompleted, OutputKind: domain.OutputKindDocs, Payload: []byte("# Tiny CLI\n")},
	}
}

func TestAssemble_PartitionsSourceTestsAndDocs(t *testing.T) {
	store := &fakeStore{}
	index := &fakeIndex{}
	a := New(store, index, nil)

	capsule, err := a.Assemble(context.Background(), testRequest(), testShared(), testTasks(), testResults(), nil, nil)
	require.NoError(t, err)

	require.Contains(t, capsule.SourceCode, "main.go")
	assert.Equal(t, "package main\nfunc main() {}", capsule.SourceCode["main.go"])
	assert.Len(t, capsule.Tests, 1)
	assert.Contains(t, capsule.Documentation, "Tiny CLI")
	assert.NotEmpty(t, capsule.Checksum)
	assert.Same(t, capsule, store.put)
	assert.True(t, index.upserted)
}

func TestAssemble_ChecksumIsDeterministic(t *testing.T) {
	a := New(nil, nil, nil)
	c1, err := a.Assemble(context.Background(), testRequest(), testShared(), testTasks(), testResults(), nil, nil)
	require.NoError(t, err)
	c2, err := a.Assemble(context.Background(), testRequest(), testShared(), testTasks(), testResults(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, c1.Checksum, c2.Checksum)
}

func TestAssemble_ZeroCodeTasksReturnsError(t *testing.T) {
	a := New(nil, nil, nil)
	results := map[string]*domain.TaskResult{
		"t3": {TaskID: "t3", Status: domain.TaskStatusFailed, Error: "boom"},
	}
	_, err := a.Assemble(context.Background(), testRequest(), testShared(), testTasks(), results, nil, nil)
	assert.Error(t, err)
}

func TestAssemble_StoreErrorPropagates(t *testing.T) {
	a := New(&fakeStore{err: assert.AnError}, nil, nil)
	_, err := a.Assemble(context.Background(), testRequest(), testShared(), testTasks(), testResults(), nil, nil)
	assert.Error(t, err)
}

func TestAssemble_IndexErrorIsNonFatal(t *testing.T) {
	a := New(nil, &fakeIndex{err: assert.AnError}, nil)
	capsule, err := a.Assemble(context.Background(), testRequest(), testShared(), testTasks(), testResults(), nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, capsule)
}

func TestErrorCapsule_CarriesTaskStatusesAndReadme(t *testing.T) {
	a := New(nil, nil, nil)
	results := map[string]*domain.TaskResult{
		"t1": {TaskID: "t1", Status: domain.TaskStatusFailed, Error: "compile error"},
	}
	ec := a.ErrorCapsule(testRequest(), results, []string{"t1: compile error"})

	assert.Equal(t, domain.TaskStatusFailed, ec.TaskStatuses["t1"])
	assert.Contains(t, ec.README, "t1")
	assert.Contains(t, ec.Failures, "t1: compile error")
}

func buildTestCapsule(t *testing.T) *domain.Capsule {
	t.Helper()
	a := New(nil, nil, nil)
	capsule, err := a.Assemble(context.Background(), testRequest(), testShared(), testTasks(), testResults(), nil, nil)
	require.NoError(t, err)
	return capsule
}

func TestPackage_ZipIsReproducible(t *testing.T) {
	capsule := buildTestCapsule(t)

	b1, err := Package(FormatZip, capsule)
	require.NoError(t, err)
	b2, err := Package(FormatZip, capsule)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)

	zr, err := zip.NewReader(bytes.NewReader(b1), int64(len(b1)))
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names["main.go"])
	assert.True(t, names["capsule.yaml"])
	assert.True(t, names["README.md"])
}

func TestPackage_TarContainsExpectedEntries(t *testing.T) {
	capsule := buildTestCapsule(t)

	b, err := Package(FormatTar, capsule)
	require.NoError(t, err)

	tr := tar.NewReader(bytes.NewReader(b))
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	assert.Contains(t, names, "main.go")
	assert.Contains(t, names, "capsule.yaml")
	assert.Contains(t, names, "README.md")
}

func TestPackage_TarGzIsReproducibleAndDecompresses(t *testing.T) {
	capsule := buildTestCapsule(t)

	b1, err := Package(FormatTarGz, capsule)
	require.NoError(t, err)
	b2, err := Package(FormatTarGz, capsule)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)

	gz, err := gzip.NewReader(bytes.NewReader(b1))
	require.NoError(t, err)
	defer gz.Close()
	tr := tar.NewReader(gz)
	found := false
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if hdr.Name == "main.go" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestPackage_UnknownFormatReturnsError(t *testing.T) {
	capsule := buildTestCapsule(t)
	_, err := Package(Format("rar"), capsule)
	assert.Error(t, err)
}
