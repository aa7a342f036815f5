package report

import (
	"context"
	"image/color"
	"strings"
	"sync"
	"testing"
	"time"

	"warden/hal"
	"warden/wardenos/kernel"
)

type memFB struct {
	w, h     int
	buf      []byte
	presents int
}

func newMemFB(w, h int) *memFB {
	return &memFB{w: w, h: h, buf: make([]byte, w*h*2)}
}

func (f *memFB) Width() int              { return f.w }
func (f *memFB) Height() int             { return f.h }
func (f *memFB) Format() hal.PixelFormat { return hal.PixelFormatRGB565 }
func (f *memFB) StrideBytes() int        { return f.w * 2 }
func (f *memFB) Buffer() []byte          { return f.buf }
func (f *memFB) Present() error          { f.presents++; return nil }

func (f *memFB) ClearRGB(r, g, b uint8) {
	p := rgb565From888(r, g, b)
	for i := 0; i+1 < len(f.buf); i += 2 {
		f.buf[i] = byte(p)
		f.buf[i+1] = byte(p >> 8)
	}
}

func (f *memFB) pixel(x, y int) uint16 {
	off := y*f.w*2 + x*2
	return uint16(f.buf[off]) | uint16(f.buf[off+1])<<8
}

type memDisplay struct{ fb *memFB }

func (d memDisplay) Framebuffer() hal.Framebuffer { return d.fb }

type lineLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineLog) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, s)
}

func (l *lineLog) WriteLineBytes(b []byte) { l.WriteLineString(string(b)) }

func (l *lineLog) with(prefix string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, s := range l.lines {
		if strings.HasPrefix(s, prefix) {
			out = append(out, s)
		}
	}
	return out
}

func TestDisplayScrollRotatesFrame(t *testing.T) {
	fb := newMemFB(4, 4)
	d := newFBDisplay(fb)
	red := color.RGBA{R: 255, A: 255}

	// Mark frame line 1.
	d.FillRectangle(0, 1, 4, 1, red)
	d.SetScroll(1)
	if err := d.Display(); err != nil {
		t.Fatalf("Display() err = %v", err)
	}
	want := rgb565From888(255, 0, 0)
	if got := fb.pixel(2, 0); got != want {
		t.Fatalf("screen line 0 = %#04x, want frame line 1 %#04x", got, want)
	}
	if got := fb.pixel(2, 1); got != 0 {
		t.Fatalf("screen line 1 = %#04x, want 0", got)
	}

	d.SetScroll(-3)
	d.Display()
	if got := fb.pixel(0, 0); got != want {
		t.Fatalf("negative scroll: screen line 0 = %#04x, want %#04x", got, want)
	}
	if fb.presents != 2 {
		t.Fatalf("presents = %d, want 2", fb.presents)
	}
}

func TestDisplayClipsDrawing(t *testing.T) {
	fb := newMemFB(4, 2)
	d := newFBDisplay(fb)
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}

	d.SetPixel(-1, 0, white)
	d.SetPixel(4, 1, white)
	d.FillRectangle(2, -5, 10, 6, white)
	d.Display()

	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			lit := fb.pixel(x, y) != 0
			if want := x >= 2 && y == 0; lit != want {
				t.Fatalf("pixel(%d,%d) lit = %v, want %v", x, y, lit, want)
			}
		}
	}
}

func TestReporterLines(t *testing.T) {
	log := &lineLog{}
	b := kernel.NewBuilder(kernel.Config{Logger: log})
	for pid := kernel.PID(1); pid <= 2; pid++ {
		if err := b.ConfigureProcess(pid, kernel.ProcessConfig{StackSize: 512}); err != nil {
			t.Fatalf("ConfigureProcess() err = %v", err)
		}
	}
	ev, err := b.CreateEvent(kernel.EventConfig{Priority: 2})
	if err != nil {
		t.Fatalf("CreateEvent() err = %v", err)
	}
	if err := b.RegisterUserTask(ev, func(c *kernel.TaskContext, _ uintptr) int32 {
		c.Raise(kernel.CauseAlignment)
		return 0
	}, 2, 0); err != nil {
		t.Fatalf("RegisterUserTask() err = %v", err)
	}
	k, err := b.Start()
	if err != nil {
		t.Fatalf("Start() err = %v", err)
	}

	k.TriggerEvent(ev, 0)
	k.TriggerEvent(ev, 0)
	k.Step()

	fb := newMemFB(128, 64)
	r := New(k, log, memDisplay{fb: fb})
	r.Print()

	got := log.with("report: ")
	want := []string{
		"report: t=0 pid 0: 0 failures, stack reserve 4096/4096",
		"report: t=0 pid 1: 0 failures, stack reserve 512/512",
		"report: t=0 pid 2: 1 failures (alignment 1), stack reserve 448/512",
		"report: t=0 event 0 (prio 2): 1 activations lost",
	}
	if len(got) != len(want) {
		t.Fatalf("report lines = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
	if fb.presents == 0 {
		t.Fatalf("report terminal never presented")
	}
	if r.Runs() != 1 {
		t.Fatalf("Runs() = %d, want 1", r.Runs())
	}
}

func TestReporterAsOSTask(t *testing.T) {
	log := &lineLog{}
	b := kernel.NewBuilder(kernel.Config{Logger: log})
	ev, err := b.CreateEvent(kernel.EventConfig{Priority: 1})
	if err != nil {
		t.Fatalf("CreateEvent() err = %v", err)
	}
	var r *Reporter
	if err := b.RegisterOSTask(ev, func(c *kernel.OSContext, p uintptr) { r.Task(c, p) }); err != nil {
		t.Fatalf("RegisterOSTask() err = %v", err)
	}
	k, err := b.Start()
	if err != nil {
		t.Fatalf("Start() err = %v", err)
	}
	r = New(k, log, nil)

	k.TriggerEvent(ev, 0)
	k.Step()

	if r.Runs() != 1 {
		t.Fatalf("Runs() = %d, want 1", r.Runs())
	}
	lines := log.with("report: ")
	if len(lines) != 1 || !strings.Contains(lines[0], "pid 0:") {
		t.Fatalf("report lines = %q", lines)
	}
	// The reporter ran as an OS task: its frame shows in the kernel stack watermark.
	if !strings.Contains(lines[0], "stack reserve 4032/4096") {
		t.Fatalf("report line = %q, want kernel stack charged", lines[0])
	}
}

func TestLoadLine(t *testing.T) {
	tests := []struct {
		permille uint16
		want     string
	}{
		{0, "t=7 cpu load 0.0%"},
		{375, "t=7 cpu load 37.5%"},
		{1000, "t=7 cpu load 100.0%"},
	}
	for _, tt := range tests {
		if got := loadLine(7, tt.permille); got != tt.want {
			t.Fatalf("loadLine(7, %d) = %q, want %q", tt.permille, got, tt.want)
		}
	}
}

func TestReporterShowsLoad(t *testing.T) {
	var mu sync.Mutex
	now := time.Unix(0, 0)
	reads := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		reads++
		v := now
		now = now.Add(250 * time.Millisecond)
		return v
	}
	b := kernel.NewBuilder(kernel.Config{Clock: clock, LoadWindow: 500 * time.Millisecond})
	ev, err := b.CreateEvent(kernel.EventConfig{Priority: 1})
	if err != nil {
		t.Fatalf("CreateEvent() err = %v", err)
	}
	if err := b.RegisterOSTask(ev, func(*kernel.OSContext, uintptr) {}); err != nil {
		t.Fatalf("RegisterOSTask() err = %v", err)
	}
	k, err := b.Start()
	if err != nil {
		t.Fatalf("Start() err = %v", err)
	}
	r := New(k, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- k.Run(ctx) }()
	defer func() {
		cancel()
		<-errc
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := reads
		mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Run never reached the idle wait")
		}
		time.Sleep(time.Millisecond)
	}
	k.TriggerEvent(ev, 0)
	for {
		if _, ok := k.SystemLoad(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("SystemLoad() never became valid")
		}
		time.Sleep(time.Millisecond)
	}

	lines := r.Lines()
	if len(lines) == 0 || !strings.HasSuffix(lines[0], "cpu load 50.0%") {
		t.Fatalf("Lines() = %q, want the load first", lines)
	}
}
