package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/labstack/echo/v4"
	"github.com/spf13/afero"

	"github.com/cnics/mireview/internal/platform/apperr"
)

// =========== Name validation ===========

func TestCleanName(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"orig_12_34.pdf", "orig_12_34.pdf", true},
		{"instructions/reviewer.pdf", "instructions/reviewer.pdf", true},
		{"/leading.pdf", "leading.pdf", true},
		{"", "", false},
		{"../etc/passwd", "", false},
		{"a/../../b", "", false},
		{"a//b", "", false},
		{".hidden", "", false},
		{`a\b`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CleanName(tt.in)
			if tt.ok && (err != nil || got != tt.want) {
				t.Errorf("CleanName(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidName) {
				t.Errorf("CleanName(%q) expected ErrInvalidName, got %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestSuffixFor(t *testing.T) {
	for ct, want := range map[string]string{
		"application/pdf":                ".pdf",
		"application/zip":                ".zip",
		"application/gzip":               ".gz",
		"Application/PDF; charset=binary": ".pdf",
	} {
		got, ok := SuffixFor(ct)
		if !ok || got != want {
			t.Errorf("SuffixFor(%q) = %q, %v; want %q", ct, got, ok, want)
		}
	}
	if _, ok := SuffixFor("text/plain"); ok {
		t.Error("text/plain should not be an accepted packet type")
	}
}

// =========== Directory store ===========

func newDirStore(t *testing.T) (*DirStore, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	s, err := NewDirStore(fsys, "/packets")
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	return s, fsys
}

func TestDirStore_SaveOpenExists(t *testing.T) {
	s, fsys := newDirStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "orig_1_42.pdf", strings.NewReader("%PDF-1.4")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ok, err := s.Exists(ctx, "orig_1_42.pdf")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	rc, err := s.Open(ctx, "orig_1_42.pdf")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "%PDF-1.4" {
		t.Errorf("content = %q", data)
	}

	entries, _ := afero.ReadDir(fsys, "/packets")
	if len(entries) != 1 {
		t.Errorf("expected temp file to be cleaned up, found %d entries", len(entries))
	}
}

func TestDirStore_Missing(t *testing.T) {
	s, _ := newDirStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "nope.pdf")
	if err != nil || ok {
		t.Errorf("Exists = %v, %v; want false, nil", ok, err)
	}
	if _, err := s.Open(ctx, "nope.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open err = %v, want ErrNotFound", err)
	}
}

func TestDirStore_RejectsTraversal(t *testing.T) {
	s, _ := newDirStore(t)
	err := s.Save(context.Background(), "../escape.pdf", strings.NewReader("x"))
	if !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
}

func TestDirStore_ReadOnly(t *testing.T) {
	base := afero.NewMemMapFs()
	if err := base.MkdirAll("/packets", 0o750); err != nil {
		t.Fatal(err)
	}
	s, err := NewDirStore(afero.NewReadOnlyFs(base), "/packets")
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	if err := s.CheckWritable(); err == nil {
		t.Error("expected read-only store to fail the writable check")
	}
	if err := s.Save(context.Background(), "a.pdf", strings.NewReader("x")); err == nil {
		t.Error("expected Save to fail on a read-only filesystem")
	}
}

// =========== S3 store ===========

type fakeS3 struct {
	objects map[string][]byte
	failPut error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut != nil {
		return nil, f.failPut
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[*in.Bucket+"/"+*in.Key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Store_RoundTrip(t *testing.T) {
	fake := newFakeS3()
	s := NewS3Store(fake, "charts", "packets")
	ctx := context.Background()

	if err := s.Save(ctx, "clean_7_99.zip", strings.NewReader("PK")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := fake.objects["charts/packets/clean_7_99.zip"]; !ok {
		t.Fatalf("object not stored under prefix: %v", fake.objects)
	}
	ok, err := s.Exists(ctx, "clean_7_99.zip")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	rc, err := s.Open(ctx, "clean_7_99.zip")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	if data, _ := io.ReadAll(rc); string(data) != "PK" {
		t.Errorf("content = %q", data)
	}
}

func TestS3Store_Missing(t *testing.T) {
	s := NewS3Store(newFakeS3(), "charts", "")
	ctx := context.Background()

	ok, err := s.Exists(ctx, "gone.pdf")
	if err != nil || ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	if _, err := s.Open(ctx, "gone.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open err = %v, want ErrNotFound", err)
	}
}

func TestS3Store_PutFailure(t *testing.T) {
	fake := newFakeS3()
	fake.failPut = errors.New("access denied")
	s := NewS3Store(fake, "charts", "")

	err := s.Save(context.Background(), "a.pdf", strings.NewReader("x"))
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Errorf("expected wrapped put error, got %v", err)
	}
}

// =========== File handler ===========

func serveFile(t *testing.T, store Store, name string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/files/"+name, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("*")
	c.SetParamValues(name)
	return rec, NewFileHandler(store).Get(c)
}

func TestFileHandler_Serves(t *testing.T) {
	s, _ := newDirStore(t)
	if err := s.Save(context.Background(), "instructions.pdf", strings.NewReader("%PDF")); err != nil {
		t.Fatal(err)
	}

	rec, err := serveFile(t, s, "instructions.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if rec.Body.String() != "%PDF" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestFileHandler_NotFound(t *testing.T) {
	s, _ := newDirStore(t)
	for _, name := range []string{"missing.pdf", "../secret"} {
		_, err := serveFile(t, s, name)
		if apperr.KindOf(err) != apperr.KindNotFound {
			t.Errorf("%s: expected not found, got %v", name, err)
		}
	}
}
