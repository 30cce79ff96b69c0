package fd

import (
	"testing"

	"nucleuscore/defs"
	"nucleuscore/mem"
	"nucleuscore/vm"
)

// Round-trip law from spec.md §8: "pipe(); write(w, buf, n); read(r,
// out, n) gives out == buf."
func TestPipeRoundTrip(t *testing.T) {
	phys := mem.Mkphysmem(16)
	phys.InitZeropg()
	rfd, wfd := MkPipeFds(phys)

	buf := []byte{1, 2, 3, 4}
	var wsrc vm.Fakeubuf_t
	wsrc.Fake_init(append([]byte(nil), buf...))
	n, err := wfd.Fops.Write(&wsrc)
	if err != 0 {
		t.Fatalf("write failed: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("wrote %d bytes, want %d", n, len(buf))
	}

	out := make([]byte, len(buf))
	var rdst vm.Fakeubuf_t
	rdst.Fake_init(out)
	n, err = rfd.Fops.Read(&rdst)
	if err != 0 {
		t.Fatalf("read failed: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("read %d bytes, want %d", n, len(buf))
	}
	for i := range buf {
		if out[i] != buf[i] {
			t.Fatalf("out[%d] = %d, want %d", i, out[i], buf[i])
		}
	}
}

// End-to-end scenario 3 from spec.md §8: pipe FIFO. Writer writes
// [1,2,3,4] then closes; reader reads 4 bytes observing [1,2,3,4],
// then reads again and observes 0 (EOF).
func TestPipeFifoThenEOF(t *testing.T) {
	phys := mem.Mkphysmem(16)
	phys.InitZeropg()
	rfd, wfd := MkPipeFds(phys)

	data := []byte{1, 2, 3, 4}
	var wsrc vm.Fakeubuf_t
	wsrc.Fake_init(append([]byte(nil), data...))
	if _, err := wfd.Fops.Write(&wsrc); err != 0 {
		t.Fatalf("write failed: %v", err)
	}
	if err := wfd.Fops.Close(); err != 0 {
		t.Fatalf("close failed: %v", err)
	}

	out := make([]byte, len(data))
	var rdst vm.Fakeubuf_t
	rdst.Fake_init(out)
	n, err := rfd.Fops.Read(&rdst)
	if err != 0 {
		t.Fatalf("read failed: %v", err)
	}
	if n != len(data) {
		t.Fatalf("read %d bytes, want %d", n, len(data))
	}

	var eofdst vm.Fakeubuf_t
	eofdst.Fake_init(make([]byte, 1))
	n, err = rfd.Fops.Read(&eofdst)
	if err != 0 {
		t.Fatalf("second read failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected EOF (0 bytes), got %d", n)
	}
}

// Boundary behavior from spec.md §8: write to a pipe with no readers
// fails with BrokenPipe.
func TestPipeWriteNoReadersFails(t *testing.T) {
	phys := mem.Mkphysmem(16)
	phys.InitZeropg()
	rfd, wfd := MkPipeFds(phys)
	if err := rfd.Fops.Close(); err != 0 {
		t.Fatalf("closing reader failed: %v", err)
	}

	var wsrc vm.Fakeubuf_t
	wsrc.Fake_init([]byte{1})
	_, err := wfd.Fops.Write(&wsrc)
	if err != -defs.EPIPE {
		t.Fatalf("write after readers closed = %v, want EPIPE", err)
	}
}
