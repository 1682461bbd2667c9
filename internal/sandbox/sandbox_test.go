package sandbox

import (
	"context"
	"testing"
	"time"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir(), 30*time.Second)
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	return l
}

func TestLocalUploadDownloadRoundTrip(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	if err := l.CreateFolder(ctx, "src/pages"); err != nil {
		t.Fatalf("create folder: %v", err)
	}
	// Re-creating an existing folder is success, not an error.
	if err := l.CreateFolder(ctx, "src/pages"); err != nil {
		t.Fatalf("create folder twice: %v", err)
	}
	if err := l.UploadFile(ctx, "src/pages/Home.tsx", []byte("export default 1")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	got, err := l.DownloadFile(ctx, "src/pages/Home.tsx")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(got) != "export default 1" {
		t.Fatalf("content=%q", got)
	}

	ok, err := l.FileExists(ctx, "src/pages/Home.tsx")
	if err != nil || !ok {
		t.Fatalf("exists=%v err=%v", ok, err)
	}
	ok, err = l.FileExists(ctx, "src/missing.tsx")
	if err != nil || ok {
		t.Fatalf("missing exists=%v err=%v", ok, err)
	}
}

func TestLocalListFilesRecursive(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	for _, p := range []string{"dist/index.html", "dist/assets/app.js", "src/App.tsx"} {
		if err := l.UploadFile(ctx, p, []byte("x")); err != nil {
			t.Fatalf("upload %s: %v", p, err)
		}
	}
	got, err := l.ListFiles(ctx, "dist")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := map[string]bool{"dist/index.html": true, "dist/assets/app.js": true}
	if len(got) != len(want) {
		t.Fatalf("got=%v", got)
	}
	for _, p := range got {
		if !want[p] {
			t.Fatalf("unexpected path %s in %v", p, got)
		}
	}
}

func TestLocalRunCommandExitCode(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	res, err := l.RunCommand(ctx, "echo built ok")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Exit.Code != 0 || res.Stdout != "built ok\n" {
		t.Fatalf("res=%+v", res)
	}

	// Non-zero exit is a result, not an error.
	res, err = l.RunCommand(ctx, "exit 3")
	if err != nil {
		t.Fatalf("run exit 3: %v", err)
	}
	if res.Exit.Code != 3 {
		t.Fatalf("code=%d", res.Exit.Code)
	}
}

func TestLocalRejectsEscapingPaths(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	if err := l.UploadFile(ctx, "../outside.txt", []byte("x")); err == nil {
		t.Fatal("expected traversal rejection")
	}
	if _, err := l.DownloadFile(ctx, "/etc/hostname"); err == nil {
		t.Fatal("expected absolute-path rejection")
	}
}

func TestFakeScriptAndHooks(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	f.Script["npm run build"] = RunResult{Stdout: "built"}
	f.OnCommand = func(fk *Fake, cmd string) {
		fk.WriteRaw("dist/index.html", []byte("<html></html>"))
	}

	res, err := f.RunCommand(ctx, "npm run build --silent")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Stdout != "built" {
		t.Fatalf("stdout=%q", res.Stdout)
	}
	ok, _ := f.FileExists(ctx, "dist/index.html")
	if !ok {
		t.Fatal("hook did not write the output")
	}
}
