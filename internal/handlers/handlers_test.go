package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"lyrix/internal/queue"
	"lyrix/internal/staging"
	"lyrix/internal/types"
)

func newTestApp(t *testing.T) (*fiber.App, *queue.MemoryStore) {
	app, store, _ := newTestAppRemote(t)
	return app, store
}

func newTestAppRemote(t *testing.T) (*fiber.App, *queue.MemoryStore, *RemoteHandler) {
	t.Helper()
	store := queue.NewMemoryStore(10, time.Minute)
	t.Cleanup(func() { store.Close() })

	stager, err := staging.NewStager(t.TempDir(), 1, zerolog.Nop())
	if err != nil {
		t.Fatalf("stager: %v", err)
	}

	remote := NewRemoteHandler(store, stager, 1, zerolog.Nop())
	app := fiber.New(fiber.Config{BodyLimit: 4 * 1024 * 1024})
	app.Post("/v1/extract", NewSubmitHandler(store, stager, zerolog.Nop()).Handle)
	app.Post("/v1/extract/url", remote.Handle)
	app.Get("/v1/extract/:id", NewStatusHandler(store, zerolog.Nop()).Handle)
	return app, store, remote
}

func multipartUpload(t *testing.T, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/extract", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// TestSubmitAccepted: a valid upload returns 202 with a queued job id.
func TestSubmitAccepted(t *testing.T) {
	app, store := newTestApp(t)

	resp, err := app.Test(multipartUpload(t, "song.mp3", []byte("audio"), nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		JobID string `json:"job_id"`
		State string `json:"state"`
	}
	decodeBody(t, resp, &body)
	if body.JobID == "" || body.State != types.StateQueued {
		t.Fatalf("body = %+v", body)
	}

	job, err := store.Get(context.Background(), body.JobID)
	if err != nil {
		t.Fatalf("job not in store: %v", err)
	}
	if job.Options.LanguageHint != "auto" || job.Options.Timestamps != types.TimestampsNone {
		t.Fatalf("default options = %+v", job.Options)
	}
}

// TestSubmitRejections covers the synchronous validation failures.
func TestSubmitRejections(t *testing.T) {
	app, _ := newTestApp(t)

	cases := []struct {
		name       string
		filename   string
		data       []byte
		fields     map[string]string
		wantStatus int
		wantCode   string
	}{
		{"unsupported format", "notes.txt", []byte("x"), nil,
			fiber.StatusBadRequest, types.CodeInvalidInput},
		{"empty file", "song.mp3", nil, nil,
			fiber.StatusBadRequest, types.CodeInvalidInput},
		{"oversized", "song.mp3", bytes.Repeat([]byte("a"), 2*1024*1024), nil,
			fiber.StatusRequestEntityTooLarge, types.CodeFileTooLarge},
		{"bad timestamps", "song.mp3", []byte("x"), map[string]string{"timestamps": "segment"},
			fiber.StatusBadRequest, types.CodeInvalidInput},
		{"bad language hint", "song.mp3", []byte("x"), map[string]string{"language_hint": "english"},
			fiber.StatusBadRequest, types.CodeInvalidInput},
		{"bad diarize", "song.mp3", []byte("x"), map[string]string{"diarize": "maybe"},
			fiber.StatusBadRequest, types.CodeInvalidInput},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := app.Test(multipartUpload(t, tc.filename, tc.data, tc.fields))
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
			var body errorBody
			decodeBody(t, resp, &body)
			if body.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", body.Code, tc.wantCode)
			}
		})
	}
}

// TestSubmitWithoutFile: a multipart body with no file part is rejected.
func TestSubmitWithoutFile(t *testing.T) {
	app, _ := newTestApp(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("language_hint", "en")
	w.Close()
	req := httptest.NewRequest(http.MethodPost, "/v1/extract", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

// TestStatusLifecycle checks the snapshot shape before and after completion.
func TestStatusLifecycle(t *testing.T) {
	app, store := newTestApp(t)

	resp, err := app.Test(multipartUpload(t, "song.mp3", []byte("audio"), nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	var sub struct {
		JobID string `json:"job_id"`
	}
	decodeBody(t, resp, &sub)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/v1/extract/"+sub.JobID, nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var snap JobStatus
	decodeBody(t, resp, &snap)
	if snap.State != types.StateQueued {
		t.Fatalf("state = %s", snap.State)
	}
	if snap.Result != nil || snap.Error != nil || snap.Meta != nil {
		t.Fatal("terminal fields present on a queued snapshot")
	}

	// drive the job terminal through the store and fetch again
	job, _ := store.Get(context.Background(), sub.JobID)
	job.State = types.StateDone
	job.Stage = types.StageDone
	job.Progress = 100
	job.Result = &types.Result{Lyrics: "hello world", RawTranscript: "hello world"}
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("update: %v", err)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/v1/extract/"+sub.JobID, nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	decodeBody(t, resp, &snap)
	if snap.State != types.StateDone || snap.Progress != 100 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Result == nil || snap.Result.Lyrics != "hello world" {
		t.Fatalf("result = %+v", snap.Result)
	}
	if snap.Meta == nil {
		t.Fatal("meta absent on terminal snapshot")
	}
}

// TestStatusNotFound: unknown ids are HTTP 200 with state not_found.
func TestStatusNotFound(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/extract/ghost", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var snap JobStatus
	decodeBody(t, resp, &snap)
	if snap.State != types.StateNotFound || snap.JobID != "ghost" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func remoteJSON(t *testing.T, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/extract/url", strings.NewReader(body))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	return req
}

// TestRemoteIntake: a downloadable URL goes through the same queue path.
func TestRemoteIntake(t *testing.T) {
	app, store := newTestApp(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote audio bytes"))
	}))
	defer upstream.Close()

	body := fmt.Sprintf(`{"url": %q, "language_hint": "vi"}`, upstream.URL+"/track.mp3")
	resp, err := app.Test(remoteJSON(t, body), 5000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var sub struct {
		JobID string `json:"job_id"`
	}
	decodeBody(t, resp, &sub)
	job, err := store.Get(context.Background(), sub.JobID)
	if err != nil {
		t.Fatalf("job not in store: %v", err)
	}
	if job.Filename != "track.mp3" || job.Options.LanguageHint != "vi" {
		t.Fatalf("job = %+v", job)
	}
}

// TestRemoteIntakeRejections covers URL validation before any download.
func TestRemoteIntakeRejections(t *testing.T) {
	app, _ := newTestApp(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing url", `{}`},
		{"bad scheme", `{"url": "ftp://host/track.mp3"}`},
		{"unsupported name", `{"url": "http://host/track.pdf"}`},
		{"not json", `url=x`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := app.Test(remoteJSON(t, tc.body))
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Fatalf("status = %d", resp.StatusCode)
			}
		})
	}
}

// TestRemoteIntakeStalledUpstream: a hanging upstream trips the download
// client's timeout instead of pinning the handler.
func TestRemoteIntakeStalledUpstream(t *testing.T) {
	app, _, remote := newTestAppRemote(t)
	remote.client = &http.Client{Timeout: 100 * time.Millisecond}

	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer upstream.Close()
	defer close(release)

	body := fmt.Sprintf(`{"url": %q}`, upstream.URL+"/track.mp3")
	resp, err := app.Test(remoteJSON(t, body), 5000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
}

// TestRemoteIntakeOversized: downloads past the ceiling are cut off and
// rejected with the size code.
func TestRemoteIntakeOversized(t *testing.T) {
	app, _ := newTestApp(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("a"), 2*1024*1024))
	}))
	defer upstream.Close()

	body := fmt.Sprintf(`{"url": %q}`, upstream.URL+"/track.mp3")
	resp, err := app.Test(remoteJSON(t, body), 5000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var eb errorBody
	decodeBody(t, resp, &eb)
	if eb.Code != types.CodeFileTooLarge {
		t.Fatalf("code = %q", eb.Code)
	}
}
