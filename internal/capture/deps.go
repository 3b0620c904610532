// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package capture

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// Clock abstracts time for the polling loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Entry is one file in the watch directory.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
	Dir     bool
}

// Lister reads the watch directory.
type Lister interface {
	List(dir string) ([]Entry, error)
}

// DirLister lists a real directory.
type DirLister struct{}

func (DirLister) List(dir string) ([]Entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(des))
	for _, de := range des {
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		out = append(out, Entry{Name: de.Name(), Size: info.Size(), ModTime: info.ModTime(), Dir: de.IsDir()})
	}
	return out, nil
}

// Opener shows a page to the operator.
type Opener interface {
	Open(url string) error
}

// SystemOpener opens URLs in the operator's default browser.
type SystemOpener struct{}

func (SystemOpener) Open(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "linux", "freebsd", "openbsd", "netbsd":
		cmd = exec.Command("xdg-open", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
