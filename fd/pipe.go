package fd

import (
	"sync"

	"nucleuscore/circbuf"
	"nucleuscore/defs"
	"nucleuscore/fdops"
	"nucleuscore/limits"
	"nucleuscore/mem"
)

// Pipe_t is the shared state of one pipe: a circbuf.Circbuf_t plus
// open-end refcounts and a condition variable for blocking
// readers/writers (spec.md §3, pipe fd backing object). Read and
// Write block using their own condition variable rather than routing
// through the scheduler's Block/Unblock, since fd must not import
// sched (sched already imports fd for a task's descriptor table);
// the blocking itself is still real — the calling goroutine parks on
// Cond.Wait — only the kernel-level "which task is BLOCKED" bookkeeping
// is not updated from here.
type Pipe_t struct {
	mu      sync.Mutex
	cond    *sync.Cond
	cb      circbuf.Circbuf_t
	readers int
	writers int
	closed  bool
}

// MkPipe allocates a new pipe with one reader and one writer end.
func MkPipe(m mem.Page_i) *Pipe_t {
	if !limits.Syslimit.Pipes.Take() {
		return nil
	}
	p := &Pipe_t{readers: 1, writers: 1}
	p.cond = sync.NewCond(&p.mu)
	if err := p.cb.Cb_init(limits.PIPE_BUFSZ, m); err != 0 {
		limits.Syslimit.Pipes.Give()
		return nil
	}
	return p
}

// PipeReader_t and PipeWriter_t are the two Fdops_i ends of a pipe.
type PipeReader_t struct{ p *Pipe_t }
type PipeWriter_t struct{ p *Pipe_t }

// MkPipeFds returns the Fd_t pair for a freshly created pipe, as
// pipe(2) does.
func MkPipeFds(m mem.Page_i) (*Fd_t, *Fd_t) {
	p := MkPipe(m)
	if p == nil {
		return nil, nil
	}
	rfd := &Fd_t{Fops: &PipeReader_t{p: p}, Perms: FD_READ}
	wfd := &Fd_t{Fops: &PipeWriter_t{p: p}, Perms: FD_WRITE}
	return rfd, wfd
}

func (r *PipeReader_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	p := r.p
	p.mu.Lock()
	for p.cb.Empty() && p.writers > 0 && !p.closed {
		p.cond.Wait()
	}
	defer p.mu.Unlock()
	if p.cb.Empty() {
		return 0, 0 // EOF: no writers left
	}
	n, err := p.cb.Copyout(dst)
	p.cond.Broadcast()
	return n, err
}

func (r *PipeReader_t) Close() defs.Err_t {
	p := r.p
	p.mu.Lock()
	p.readers--
	p.cond.Broadcast()
	last := p.readers == 0 && p.writers == 0
	if last {
		p.cb.Cb_release()
	}
	p.mu.Unlock()
	if last {
		limits.Syslimit.Pipes.Give()
	}
	return 0
}

func (r *PipeReader_t) Reopen() defs.Err_t {
	r.p.mu.Lock()
	r.p.readers++
	r.p.mu.Unlock()
	return 0
}

func (r *PipeReader_t) Write(fdops.Userio_i) (int, defs.Err_t)       { return 0, -defs.EINVAL }
func (r *PipeReader_t) Pwrite(fdops.Userio_i, int) (int, defs.Err_t) { return 0, -defs.EINVAL }
func (r *PipeReader_t) Pread(dst fdops.Userio_i, off int) (int, defs.Err_t) {
	return r.Read(dst)
}
func (r *PipeReader_t) Lseek(int, int) (int, defs.Err_t)  { return 0, -defs.EINVAL }
func (r *PipeReader_t) Truncate(uint) defs.Err_t          { return -defs.EINVAL }
func (r *PipeReader_t) Fstat(st fdops.Stat_i) defs.Err_t {
	st.Wmode(0)
	return 0
}
func (r *PipeReader_t) Pathi() fdops.Inum_i { return nil }

func (w *PipeWriter_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readers == 0 {
		return 0, -defs.EPIPE
	}
	total := 0
	for src.Remain() > 0 {
		for p.cb.Full() && p.readers > 0 {
			p.cond.Wait()
		}
		if p.readers == 0 {
			return total, -defs.EPIPE
		}
		n, err := p.cb.Copyin(src)
		total += n
		p.cond.Broadcast()
		if err != 0 {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, 0
}

func (w *PipeWriter_t) Close() defs.Err_t {
	p := w.p
	p.mu.Lock()
	p.writers--
	p.cond.Broadcast()
	last := p.readers == 0 && p.writers == 0
	if last {
		p.cb.Cb_release()
	}
	p.mu.Unlock()
	if last {
		limits.Syslimit.Pipes.Give()
	}
	return 0
}

func (w *PipeWriter_t) Reopen() defs.Err_t {
	w.p.mu.Lock()
	w.p.writers++
	w.p.mu.Unlock()
	return 0
}

func (w *PipeWriter_t) Read(fdops.Userio_i) (int, defs.Err_t)       { return 0, -defs.EINVAL }
func (w *PipeWriter_t) Pread(fdops.Userio_i, int) (int, defs.Err_t) { return 0, -defs.EINVAL }
func (w *PipeWriter_t) Pwrite(src fdops.Userio_i, off int) (int, defs.Err_t) {
	return w.Write(src)
}
func (w *PipeWriter_t) Lseek(int, int) (int, defs.Err_t) { return 0, -defs.EINVAL }
func (w *PipeWriter_t) Truncate(uint) defs.Err_t         { return -defs.EINVAL }
func (w *PipeWriter_t) Fstat(st fdops.Stat_i) defs.Err_t {
	st.Wmode(0)
	return 0
}
func (w *PipeWriter_t) Pathi() fdops.Inum_i { return nil }
