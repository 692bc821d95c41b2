package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOSFileSystem_TempDirLifecycle(t *testing.T) {
	fs := OSFileSystem{}
	root := t.TempDir()

	dir, err := fs.MkdirTemp(root, "wfdb-*")
	if err != nil {
		t.Fatalf("MkdirTemp failed: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(dir), "wfdb-") {
		t.Errorf("unexpected temp dir name %q", dir)
	}

	for _, name := range []string{"b.hea", "a.dat", "a.hea"} {
		if err := fs.WriteFile(filepath.Join(dir, name), []byte(name), 0600); err != nil {
			t.Fatalf("WriteFile(%s) failed: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0700); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	names, err := fs.ReadDirNames(dir)
	if err != nil {
		t.Fatalf("ReadDirNames failed: %v", err)
	}
	want := []string{"a.dat", "a.hea", "b.hea"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("ReadDirNames = %v, want %v", names, want)
	}

	if err := fs.RemoveAll(dir); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("temp dir still exists after RemoveAll: %v", err)
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	testData := []byte("hello, world")
	err := mfs.WriteFile("/test.txt", testData, 0644)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := mfs.ReadFile("/test.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if string(data) != string(testData) {
		t.Errorf("expected %q, got %q", testData, data)
	}

	data[0] = 'H'
	again, _ := mfs.ReadFile("/test.txt")
	if string(again) != string(testData) {
		t.Errorf("ReadFile returned shared storage: got %q", again)
	}
}

func TestMemoryFileSystem_ReadMissing(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if _, err := mfs.ReadFile("/missing"); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestMemoryFileSystem_TempDirs(t *testing.T) {
	mfs := NewMemoryFileSystem()

	a, err := mfs.MkdirTemp("", "wfdb-*")
	if err != nil {
		t.Fatalf("MkdirTemp failed: %v", err)
	}
	b, _ := mfs.MkdirTemp("", "wfdb-*")
	if a == b {
		t.Fatalf("MkdirTemp returned the same directory twice: %s", a)
	}
	if names, err := mfs.ReadDirNames(a); err != nil || len(names) != 0 {
		t.Errorf("new temp dir should be empty and listable: %v %v", names, err)
	}

	_ = mfs.WriteFile(filepath.Join(a, "z.hea"), []byte("z"), 0600)
	_ = mfs.WriteFile(filepath.Join(a, "m.dat"), []byte("m"), 0600)
	_ = mfs.WriteFile(filepath.Join(b, "other.hea"), []byte("o"), 0600)

	names, err := mfs.ReadDirNames(a)
	if err != nil {
		t.Fatalf("ReadDirNames failed: %v", err)
	}
	if len(names) != 2 || names[0] != "m.dat" || names[1] != "z.hea" {
		t.Errorf("ReadDirNames = %v, want [m.dat z.hea]", names)
	}

	if err := mfs.RemoveAll(a); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}
	if _, err := mfs.ReadFile(filepath.Join(a, "z.hea")); err == nil {
		t.Error("RemoveAll left entries behind")
	}
	if _, err := mfs.ReadFile(filepath.Join(b, "other.hea")); err != nil {
		t.Errorf("RemoveAll removed a sibling directory's file: %v", err)
	}
	if _, err := mfs.ReadDirNames(a); err == nil {
		t.Error("expected error listing removed directory")
	}
}
