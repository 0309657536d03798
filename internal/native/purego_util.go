//go:build (darwin || linux) && (!cgo || aom_purego)

package native

import (
	"os"
	"path/filepath"
	"runtime"
	"unsafe"
)

// goStringFromPtr converts a C string pointer to a Go string.
func goStringFromPtr(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	p := unsafe.Pointer(ptr)
	var length int
	for *(*byte)(unsafe.Add(p, length)) != 0 {
		length++
		if length > 4096 {
			break
		}
	}
	if length == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), length))
}

func libraryNames() []string {
	if runtime.GOOS == "darwin" {
		return []string{"libaom.3.dylib", "libaom.dylib"}
	}
	return []string{"libaom.so.3", "libaom.so"}
}

// libraryPaths lists candidate locations for libaom, highest priority first.
func libraryPaths() []string {
	var paths []string
	names := libraryNames()
	under := func(dirs ...string) {
		for _, dir := range dirs {
			for _, name := range names {
				paths = append(paths, filepath.Join(dir, name))
			}
		}
	}

	// Environment variable overrides (highest priority)
	if envPath := os.Getenv("AOM_LIB_PATH"); envPath != "" {
		paths = append(paths, envPath)
	}
	if envPath := os.Getenv("AOM_SDK_LIB_PATH"); envPath != "" {
		under(envPath)
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		under(exeDir, filepath.Join(exeDir, "..", "lib"))
	}

	if wd, err := os.Getwd(); err == nil {
		under(filepath.Join(wd, "build"), filepath.Join(wd, "..", "build"))
	}

	if moduleRoot := findModuleRoot(); moduleRoot != "" {
		under(filepath.Join(moduleRoot, "build"))
	}

	// Bare names go through the dynamic loader's own search path.
	paths = append(paths, names...)

	switch runtime.GOOS {
	case "darwin":
		under("/opt/homebrew/lib", "/usr/local/lib")
	case "linux":
		under("/usr/local/lib", "/usr/lib/x86_64-linux-gnu", "/usr/lib/aarch64-linux-gnu", "/usr/lib64", "/usr/lib")
	}

	return paths
}

// findModuleRoot walks up the directory tree from the current working directory
// to find the module root (directory containing go.mod).
func findModuleRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}
