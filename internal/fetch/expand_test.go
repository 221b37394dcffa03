package fetch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ZebulonRouseFrantzich/mscbundle/internal/artifact"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/fetch"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/testutil"
)

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "steamworks.zip")
	testutil.WriteZip(t, archive,
		testutil.Dir("OSX-Linux-x64"),
		testutil.File("OSX-Linux-x64/CSteamworks.bundle/Contents/Info.plist", "<plist/>"),
		testutil.Executable("OSX-Linux-x64/CSteamworks.bundle/Contents/MacOS/CSteamworks", "binary"),
		testutil.Symlink("OSX-Linux-x64/current", "CSteamworks.bundle"),
	)

	dest := filepath.Join(dir, "out")
	if err := fetch.ExtractZip(archive, dest); err != nil {
		t.Fatalf("ExtractZip() error = %v", err)
	}

	want := map[string]string{
		"OSX-Linux-x64/CSteamworks.bundle/Contents/Info.plist":        "<plist/>",
		"OSX-Linux-x64/CSteamworks.bundle/Contents/MacOS/CSteamworks": "binary",
		"OSX-Linux-x64/current":                                       "-> CSteamworks.bundle",
	}
	if diff := cmp.Diff(want, testutil.ReadTree(t, dest)); diff != "" {
		t.Errorf("extracted tree mismatch (-want +got):\n%s", diff)
	}

	info, err := os.Stat(filepath.Join(dest, "OSX-Linux-x64/CSteamworks.bundle/Contents/MacOS/CSteamworks"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", info.Mode().Perm())
	}
}

func TestExtractTarGz(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "tool.tar.gz")
	testutil.WriteTarGz(t, archive,
		testutil.Dir("tool"),
		testutil.Executable("tool/run", "#!/bin/sh\n"),
		testutil.File("tool/README", "readme"),
		testutil.Symlink("tool/latest", "run"),
	)

	dest := filepath.Join(dir, "out")
	if err := fetch.ExtractTarGz(archive, dest); err != nil {
		t.Fatalf("ExtractTarGz() error = %v", err)
	}

	want := map[string]string{
		"tool/run":    "#!/bin/sh\n",
		"tool/README": "readme",
		"tool/latest": "-> run",
	}
	if diff := cmp.Diff(want, testutil.ReadTree(t, dest)); diff != "" {
		t.Errorf("extracted tree mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_RejectsEscapes(t *testing.T) {
	tests := []struct {
		name  string
		entry testutil.Entry
	}{
		{"parent path", testutil.File("../evil", "x")},
		{"absolute symlink", testutil.Symlink("link", "/etc/passwd")},
		{"escaping symlink", testutil.Symlink("a/link", "../../outside")},
	}

	for _, tt := range tests {
		t.Run(tt.name+" zip", func(t *testing.T) {
			dir := t.TempDir()
			archive := filepath.Join(dir, "bad.zip")
			testutil.WriteZip(t, archive, tt.entry)
			if err := fetch.ExtractZip(archive, filepath.Join(dir, "out")); err == nil {
				t.Error("ExtractZip() expected error")
			}
			assertNothingOutside(t, dir)
		})
		t.Run(tt.name+" tar.gz", func(t *testing.T) {
			dir := t.TempDir()
			archive := filepath.Join(dir, "bad.tar.gz")
			testutil.WriteTarGz(t, archive, tt.entry)
			if err := fetch.ExtractTarGz(archive, filepath.Join(dir, "out")); err == nil || !strings.Contains(err.Error(), "illegal") {
				t.Errorf("ExtractTarGz() error = %v, want illegal path error", err)
			}
			assertNothingOutside(t, dir)
		})
	}
}

func assertNothingOutside(t *testing.T, dir string) {
	t.Helper()
	for _, name := range []string{"evil", "outside"} {
		if _, err := os.Lstat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s was written outside the destination", name)
		}
	}
}

func TestExpand_ZipWithPostSteps(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "depotdownloader.zip")
	testutil.WriteZip(t, archive, testutil.File("DepotDownloader", "#!/bin/sh\n"))

	desc := artifact.Descriptor{
		ID:           "depot-downloader",
		Kind:         artifact.KindLocalArchive,
		StagingPath:  filepath.Join(dir, "depotdownloader"),
		Unpack:       artifact.UnpackZip,
		Executable:   "DepotDownloader",
		RemoveSource: true,
	}

	var commands []fetch.Command
	runner := fetch.RunnerFunc(func(ctx context.Context, cmd fetch.Command) error {
		commands = append(commands, cmd)
		return nil
	})

	if err := fetch.NewExpander(runner, "darwin", nil).Expand(context.Background(), desc, archive); err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	exe := filepath.Join(desc.StagingPath, "DepotDownloader")
	info, err := os.Stat(exe)
	if err != nil {
		t.Fatalf("executable not staged: %v", err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", info.Mode().Perm())
	}
	if _, err := os.Stat(archive); !os.IsNotExist(err) {
		t.Error("archive should be removed")
	}
	if _, err := os.Stat(desc.StagingPath + ".partial"); !os.IsNotExist(err) {
		t.Error("partial directory left behind")
	}

	want := []fetch.Command{{Path: "xattr", Args: []string{"-c", exe}, Artifact: "depot-downloader"}}
	if diff := cmp.Diff(want, commands); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestExpand_NoQuarantineOffDarwin(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "tool.zip")
	testutil.WriteZip(t, archive, testutil.File("Tool", "x"))

	desc := artifact.Descriptor{
		ID: "tool", StagingPath: filepath.Join(dir, "tool"),
		Unpack: artifact.UnpackZip, Executable: "Tool",
	}
	runner := fetch.RunnerFunc(func(ctx context.Context, cmd fetch.Command) error {
		t.Errorf("unexpected command %v", cmd)
		return nil
	})

	if err := fetch.NewExpander(runner, "linux", nil).Expand(context.Background(), desc, archive); err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if _, err := os.Stat(archive); err != nil {
		t.Error("archive should be kept without RemoveSource")
	}
}

func TestExpand_QuarantineFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "tool.zip")
	testutil.WriteZip(t, archive, testutil.File("Tool", "x"))

	desc := artifact.Descriptor{
		ID: "tool", StagingPath: filepath.Join(dir, "tool"),
		Unpack: artifact.UnpackZip, Executable: "Tool",
	}
	runner := fetch.RunnerFunc(func(ctx context.Context, cmd fetch.Command) error {
		return &fetch.ToolError{Tool: "xattr", Artifact: "tool", ExitCode: 1}
	})

	var log testutil.Logger
	if err := fetch.NewExpander(runner, "darwin", &log).Expand(context.Background(), desc, archive); err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if !log.Has("warn", "extended attributes") {
		t.Error("expected a warning about xattr")
	}
}

func TestExpand_Pkg(t *testing.T) {
	dir := t.TempDir()
	pkg := filepath.Join(dir, "Unity-5.0.0f4.pkg")
	testutil.WriteTree(t, dir, testutil.File("Unity-5.0.0f4.pkg", "xar"))

	desc := artifact.Descriptor{
		ID:          "unity-player",
		StagingPath: filepath.Join(dir, "Unity-5.0.0f4"),
		Unpack:      artifact.UnpackPkg,
	}

	runner := fetch.RunnerFunc(func(ctx context.Context, cmd fetch.Command) error {
		if cmd.Path != "pkgutil" || len(cmd.Args) != 3 || cmd.Args[0] != "--expand-full" || cmd.Args[1] != pkg {
			t.Errorf("unexpected command %+v", cmd)
		}
		testutil.WriteTree(t, cmd.Args[2], testutil.File("Unity.pkg.tmp/Payload/marker", "ok"))
		return nil
	})

	if err := fetch.NewExpander(runner, "darwin", nil).Expand(context.Background(), desc, pkg); err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	got := testutil.ReadTree(t, desc.StagingPath)
	if diff := cmp.Diff(map[string]string{"Unity.pkg.tmp/Payload/marker": "ok"}, got); diff != "" {
		t.Errorf("expanded tree mismatch (-want +got):\n%s", diff)
	}
}

func TestExpand_FailureLeavesNothingStaged(t *testing.T) {
	dir := t.TempDir()
	pkg := filepath.Join(dir, "broken.pkg")
	testutil.WriteTree(t, dir, testutil.File("broken.pkg", "not a pkg"))

	desc := artifact.Descriptor{ID: "unity-player", StagingPath: filepath.Join(dir, "Unity"), Unpack: artifact.UnpackPkg}
	toolErr := &fetch.ToolError{Tool: "pkgutil", Artifact: "unity-player", ExitCode: 1}
	runner := fetch.RunnerFunc(func(ctx context.Context, cmd fetch.Command) error {
		testutil.WriteTree(t, cmd.Args[2], testutil.File("half", "written"))
		return toolErr
	})

	err := fetch.NewExpander(runner, "darwin", nil).Expand(context.Background(), desc, pkg)
	if !errors.Is(err, toolErr) {
		t.Fatalf("Expand() error = %v, want the tool error", err)
	}
	for _, p := range []string{desc.StagingPath, desc.StagingPath + ".partial"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should not exist after a failed expansion", p)
		}
	}
}

func TestExpand_CorruptZip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "corrupt.zip")
	testutil.WriteTree(t, dir, testutil.File("corrupt.zip", "definitely not a zip"))

	desc := artifact.Descriptor{ID: "steamworks", StagingPath: filepath.Join(dir, "steamworks"), Unpack: artifact.UnpackZip}
	err := fetch.NewExpander(nil, "linux", nil).Expand(context.Background(), desc, archive)
	if err == nil || !strings.Contains(err.Error(), "steamworks") {
		t.Errorf("Expand() error = %v, want error naming the artifact", err)
	}
}
