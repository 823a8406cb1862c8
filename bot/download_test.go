package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFinalizerClicksTwiceAfterCentering(t *testing.T) {
	sleeper := &sleepRecorder{}
	dir := t.TempDir()
	f := &Finalizer{dir: dir, timeout: 0, sleep: sleeper.sleep, logger: discardLogger()}
	sess := newFakeSession()
	sess.downloadName = newestExport
	link := sess.links([]string{newestExport})[0]

	path, err := f.Download(context.Background(), sess, link, newestExport)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if path != filepath.Join(dir, newestExport) {
		t.Fatalf("path = %q", path)
	}
	want := []string{
		"scroll link:" + newestExport,
		"center link:" + newestExport,
		"click link:" + newestExport,
		"click link:" + newestExport,
	}
	if len(sess.actions) != len(want) {
		t.Fatalf("actions = %v", sess.actions)
	}
	for i := range want {
		if sess.actions[i] != want[i] {
			t.Fatalf("actions = %v, want %v", sess.actions, want)
		}
	}
	if len(sleeper.calls) != 1 || sleeper.calls[0] != clickSettle {
		t.Fatalf("sleeps = %v", sleeper.calls)
	}
}

func TestFinalizerWrapsTriggerFailure(t *testing.T) {
	f := &Finalizer{dir: t.TempDir(), sleep: (&sleepRecorder{}).sleep, logger: discardLogger()}
	sess := newFakeSession()
	link := &fakeElement{sess: sess, name: "link", failOn: map[string]error{"click": errors.New("detached")}}

	_, err := f.Download(context.Background(), sess, link, newestExport)

	var dl ErrDownload
	if !errors.As(err, &dl) || dl.Name != newestExport {
		t.Fatalf("err = %v, want ErrDownload", err)
	}
}

func TestVerifyDownload(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "export.csv")
	if err := os.WriteFile(file, []byte("Venue\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := verifyDownload(file); err != nil {
		t.Fatalf("existing file: %v", err)
	}
	for _, path := range []string{"", filepath.Join(dir, "missing.csv"), dir} {
		if err := verifyDownload(path); errorTypeLabel(err) != "download" {
			t.Fatalf("verifyDownload(%q) = %v, want download error", path, err)
		}
	}
}

func TestDiagnosticsNeverFail(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "debug")
	diag := NewDiagnostics(dir, discardLogger())
	sess := newFakeSession()

	diag.Snapshot(context.Background(), sess, artifact{Shot: "01_login_page", Dump: "debug_login_source.html"})
	if !hasArtifact(t, dir, "01_login_page.png") || !hasArtifact(t, dir, "debug_login_source.html") {
		t.Fatalf("snapshot not written under %s", dir)
	}

	var nilDiag *Diagnostics
	nilDiag.Capture(context.Background(), sess, "ignored")
	diag.Capture(context.Background(), nil, "ignored")

	blocked := NewDiagnostics(filepath.Join(dir, "01_login_page.png", "sub"), discardLogger())
	blocked.Capture(context.Background(), sess, "cannot_write")
}
