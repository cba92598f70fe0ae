package main

import (
	"fmt"
	"sync"

	"github.com/fatih/color"
)

// palette is the fixed, ordered set of colours jobs are leased from.
var palette = []string{"yellow", "blue", "red", "green", "magenta", "cyan"}

func colorAttr(name string) color.Attribute {
	switch name {
	case "yellow":
		return color.FgYellow
	case "blue":
		return color.FgBlue
	case "red":
		return color.FgRed
	case "green":
		return color.FgGreen
	case "magenta", "purple":
		return color.FgMagenta
	case "cyan":
		return color.FgCyan
	case "white":
		return color.FgWhite
	default:
		return color.FgWhite
	}
}

// sprintColor renders a in the named colour, bold when requested.
func sprintColor(name string, bold bool, a ...any) string {
	attrs := []color.Attribute{colorAttr(name)}
	if bold {
		attrs = append(attrs, color.Bold)
	}
	return color.New(attrs...).Sprint(fmt.Sprint(a...))
}

func yellow(a ...any) string  { return sprintColor("yellow", false, a...) }
func cyan(a ...any) string    { return sprintColor("cyan", false, a...) }
func purple(a ...any) string  { return sprintColor("purple", false, a...) }
func white(a ...any) string   { return sprintColor("white", false, a...) }
func green(a ...any) string   { return sprintColor("green", false, a...) }
func red(a ...any) string     { return sprintColor("red", false, a...) }
func redBold(a ...any) string { return sprintColor("red", true, a...) }

// ColorPool leases the fixed palette fairly across concurrent jobs: colours
// with no current holder are preferred, least-recently-leased first.
type ColorPool struct {
	mu    sync.Mutex
	order []string
	inUse map[string]int
}

func NewColorPool() *ColorPool {
	cp := &ColorPool{inUse: make(map[string]int, len(palette))}
	cp.order = append(cp.order, palette...)
	for _, c := range palette {
		cp.inUse[c] = 0
	}
	return cp
}

// Lease returns the leased colour name and a release func. Calling release
// more than once is a no-op.
func (cp *ColorPool) Lease() (string, func()) {
	cp.mu.Lock()
	chosen := cp.order[0]
	for _, c := range cp.order {
		if cp.inUse[c] == 0 {
			chosen = c
			break
		}
	}
	cp.inUse[chosen]++
	cp.moveToEndLocked(chosen)
	cp.mu.Unlock()

	var released bool
	return chosen, func() {
		cp.mu.Lock()
		defer cp.mu.Unlock()
		if released {
			return
		}
		released = true
		cp.inUse[chosen]--
	}
}

func (cp *ColorPool) moveToEndLocked(c string) {
	for i, v := range cp.order {
		if v == c {
			cp.order = append(cp.order[:i], cp.order[i+1:]...)
			break
		}
	}
	cp.order = append(cp.order, c)
}
