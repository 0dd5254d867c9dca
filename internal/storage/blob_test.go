package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tomlord1122/todo-files-backend/internal/config"
)

// -------- test fakes --------

type fakeS3 struct {
	putIn    *s3.PutObjectInput
	putBody  []byte
	putErr   error
	deleted  []string
	delErr   error
	headErr  error
	headCall int
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putIn = in
	f.putBody, _ = io.ReadAll(in.Body)
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	if f.delErr != nil {
		return nil, f.delErr
	}
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.headCall++
	return &s3.HeadBucketOutput{}, f.headErr
}

// -------- helpers --------

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.S3Endpoint = "http://127.0.0.1:9000"
	cfg.S3AccessKeyID = "minioadmin"
	cfg.S3SecretAccessKey = "minioadmin"
	cfg.S3Bucket = "todos"
	return cfg
}

func newFakeStore(t *testing.T, cfg *config.Config) (*S3Store, *fakeS3) {
	t.Helper()
	f := &fakeS3{}
	s := newS3Store(f, cfg)
	s.now = func() time.Time { return time.Unix(1700000000, 123456789) }
	return s, f
}

// -------- tests --------

func TestObjectKey(t *testing.T) {
	ts := time.Unix(1700000000, 5)
	assert.Equal(t, "uploads/1700000000000000005-report.pdf", ObjectKey(ts, "report.pdf"))
	assert.NotEqual(t, ObjectKey(ts, "a.txt"), ObjectKey(ts, "b.txt"))
	assert.Equal(t, ObjectKey(ts, "a.txt"), ObjectKey(ts, "a.txt"))
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"report.pdf":         "report.pdf",
		"my report (1).pdf":  "my_report__1_.pdf",
		"../../etc/passwd":   "passwd",
		`C:\Users\me\cv.doc`: "cv.doc",
		"résumé.txt":         "r_sum_.txt",
		"..":                 "file",
		"":                   "file",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeName(in), in)
	}
}

func TestSanitizeName_Collisions(t *testing.T) {
	// distinct client names can share a sanitized form
	assert.Equal(t, SanitizeName("a b.txt"), SanitizeName("a_b.txt"))

	ts := time.Unix(1700000000, 5)
	assert.Equal(t, ObjectKey(ts, "a b.txt"), ObjectKey(ts, "a_b.txt"))
	assert.NotEqual(t, ObjectKey(ts, "a b.txt"), ObjectKey(ts.Add(1), "a_b.txt"))
}

func TestSanitizeName_LongNamesAreCut(t *testing.T) {
	long := strings.Repeat("n", 300) + ".txt"

	got := SanitizeName(long)
	assert.Len(t, got, MaxNameLength)
	assert.True(t, strings.HasSuffix(got, ".txt"))

	noExt := SanitizeName(strings.Repeat("x", 250) + "." + strings.Repeat("y", 40))
	assert.Len(t, noExt, MaxNameLength)

	key := ObjectKey(time.Unix(1700000000, 0), long)
	assert.LessOrEqual(t, len(key), len(KeyPrefix)+20+MaxNameLength)

	s, _ := newFakeStore(t, testConfig())
	assert.LessOrEqual(t, len(s.URL(key)), 1024)

	assert.Equal(t, "short.txt", SanitizeName("short.txt"))
}

func TestPublicBaseURL(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, "http://127.0.0.1:9000/todos", publicBaseURL(cfg))

	cfg.S3Endpoint = "http://127.0.0.1:9000/"
	assert.Equal(t, "http://127.0.0.1:9000/todos", publicBaseURL(cfg))

	cfg.S3PublicURL = "https://cdn.example.com/files/"
	assert.Equal(t, "https://cdn.example.com/files", publicBaseURL(cfg))

	cfg = testConfig()
	cfg.S3Endpoint = ""
	cfg.S3Region = "eu-west-1"
	assert.Equal(t, "https://todos.s3.eu-west-1.amazonaws.com", publicBaseURL(cfg))
}

func TestUpload_Success(t *testing.T) {
	s, f := newFakeStore(t, testConfig())

	res, err := s.Upload(context.Background(), []byte("hello"), "notes.txt", "text/plain")
	require.NoError(t, err)

	assert.Equal(t, "uploads/1700000000123456789-notes.txt", res.Key)
	assert.Equal(t, "http://127.0.0.1:9000/todos/uploads/1700000000123456789-notes.txt", res.URL)
	assert.Equal(t, "notes.txt", res.DisplayName)

	require.NotNil(t, f.putIn)
	assert.Equal(t, "todos", aws.ToString(f.putIn.Bucket))
	assert.Equal(t, res.Key, aws.ToString(f.putIn.Key))
	assert.Equal(t, "text/plain", aws.ToString(f.putIn.ContentType))
	assert.Equal(t, types.ObjectCannedACLPublicRead, f.putIn.ACL)
	assert.Equal(t, int64(5), aws.ToInt64(f.putIn.ContentLength))
	assert.Equal(t, []byte("hello"), f.putBody)
}

func TestUpload_PrivateBucketSkipsACL(t *testing.T) {
	cfg := testConfig()
	cfg.S3PublicRead = false
	s, f := newFakeStore(t, cfg)

	_, err := s.Upload(context.Background(), []byte("x"), "x.txt", "")
	require.NoError(t, err)
	assert.Empty(t, f.putIn.ACL)
	assert.Nil(t, f.putIn.ContentType)
}

func TestUpload_ErrorWrapped(t *testing.T) {
	s, f := newFakeStore(t, testConfig())
	f.putErr = errors.New("connection refused")

	res, err := s.Upload(context.Background(), []byte("x"), "x.txt", "text/plain")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrUpload)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestDelete_ByKeyAndURL(t *testing.T) {
	s, f := newFakeStore(t, testConfig())

	require.NoError(t, s.Delete(context.Background(), "uploads/1-a.txt"))
	require.NoError(t, s.Delete(context.Background(), "http://127.0.0.1:9000/todos/uploads/2-b.txt"))

	assert.Equal(t, []string{"uploads/1-a.txt", "uploads/2-b.txt"}, f.deleted)
}

func TestDelete_MissingObjectIsSuccess(t *testing.T) {
	s, f := newFakeStore(t, testConfig())
	f.delErr = &smithy.GenericAPIError{Code: "NoSuchKey", Message: "gone"}

	assert.NoError(t, s.Delete(context.Background(), "uploads/1-a.txt"))
}

func TestDelete_FailureWrapped(t *testing.T) {
	s, f := newFakeStore(t, testConfig())
	f.delErr = &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}

	err := s.Delete(context.Background(), "uploads/1-a.txt")
	assert.ErrorIs(t, err, ErrDelete)

	err = s.Delete(context.Background(), "")
	assert.ErrorIs(t, err, ErrDelete)
}

func TestKeyFromRef(t *testing.T) {
	cfg := testConfig()
	cfg.S3PublicURL = "https://cdn.example.com"
	s, _ := newFakeStore(t, cfg)

	tests := map[string]string{
		"uploads/1-a.txt":                              "uploads/1-a.txt",
		"/uploads/1-a.txt":                             "uploads/1-a.txt",
		"https://cdn.example.com/uploads/1-a.txt":      "uploads/1-a.txt",
		"http://127.0.0.1:9000/todos/uploads/1-a.txt":  "uploads/1-a.txt",
		"https://todos.s3.amazonaws.com/uploads/x/y.z": "uploads/x/y.z",
	}
	for ref, want := range tests {
		assert.Equal(t, want, s.KeyFromRef(ref), ref)
	}
}

func TestPing(t *testing.T) {
	s, f := newFakeStore(t, testConfig())
	require.NoError(t, s.Ping(context.Background()))

	f.headErr = errors.New("forbidden")
	assert.Error(t, s.Ping(context.Background()))
	assert.Equal(t, 2, f.headCall)
}

func TestNewS3Store_NotConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.S3Bucket = ""

	s, err := NewS3Store(context.Background(), cfg)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNewS3Store_LoadConfigError(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "us-east-1", lo.Region)
		return aws.Config{}, errors.New("load-fail")
	}

	_, err := NewS3Store(context.Background(), testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load-fail")
}

// TestS3Store_AgainstHTTPServer drives the real SDK client against a minimal
// path-style S3 endpoint.
func TestS3Store_AgainstHTTPServer(t *testing.T) {
	var (
		mu      sync.Mutex
		objects = map[string][]byte{}
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		path := strings.TrimPrefix(r.URL.Path, "/todos")
		switch {
		case r.Method == http.MethodHead && path == "":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			objects[strings.TrimPrefix(path, "/")] = body
			w.Header().Set("ETag", `"etag"`)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodDelete:
			key := strings.TrimPrefix(path, "/")
			if _, ok := objects[key]; !ok {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
				return
			}
			delete(objects, key)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.S3Endpoint = srv.URL

	store, err := NewS3Store(context.Background(), cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))

	res, err := store.Upload(ctx, []byte("attachment body"), "todo.txt", "text/plain")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.URL, srv.URL+"/todos/uploads/"))

	mu.Lock()
	assert.Contains(t, string(objects[res.Key]), "attachment body")
	mu.Unlock()

	require.NoError(t, store.Delete(ctx, res.URL))
	require.NoError(t, store.Delete(ctx, res.Key))

	mu.Lock()
	assert.Empty(t, objects)
	mu.Unlock()
}
