package fd

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"golang.org/x/text/encoding/unicode"

	"nucleuscore/defs"
	"nucleuscore/fdops"
)

// Console_t is the console device: writes go to stdout after passing
// through a UTF-8 decoder (SPEC_FULL.md §3 wires golang.org/x/text/encoding/unicode
// here), reads come from stdin line-buffered. Grounded on the
// teacher's defs.D_CONSOLE device identifier.
type Console_t struct {
	mu  sync.Mutex
	in  *bufio.Reader
	dec *unicode.Decoder
}

// MkConsole constructs the single console device backed by the host
// process's stdin/stdout.
func MkConsole() *Console_t {
	return &Console_t{
		in:  bufio.NewReader(os.Stdin),
		dec: unicode.UTF8.NewDecoder(),
	}
}

func (c *Console_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	buf := make([]uint8, src.Remain())
	n, err := src.Uioread(buf)
	if err != 0 {
		return 0, err
	}
	buf = buf[:n]
	out, derr := c.dec.Bytes(buf)
	if derr != nil {
		return 0, -defs.EINVAL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Print(string(out))
	return n, 0
}

func (c *Console_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	c.mu.Lock()
	line, rerr := c.in.ReadString('\n')
	c.mu.Unlock()
	if rerr != nil && line == "" {
		return 0, 0 // EOF
	}
	n, err := dst.Uiowrite([]byte(line))
	return n, err
}

func (c *Console_t) Close() defs.Err_t   { return 0 }
func (c *Console_t) Reopen() defs.Err_t  { return 0 }
func (c *Console_t) Pathi() fdops.Inum_i { return nil }
func (c *Console_t) Lseek(int, int) (int, defs.Err_t)              { return 0, -defs.EINVAL }
func (c *Console_t) Truncate(uint) defs.Err_t                      { return -defs.EINVAL }
func (c *Console_t) Pread(dst fdops.Userio_i, off int) (int, defs.Err_t) { return c.Read(dst) }
func (c *Console_t) Pwrite(src fdops.Userio_i, off int) (int, defs.Err_t) {
	return c.Write(src)
}
func (c *Console_t) Fstat(st fdops.Stat_i) defs.Err_t {
	st.Wmode(uint(defs.D_CONSOLE))
	return 0
}

// Devnull_t is /dev/null: writes are discarded, reads return EOF.
type Devnull_t struct{}

func (Devnull_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	return src.Remain(), 0
}
func (Devnull_t) Read(fdops.Userio_i) (int, defs.Err_t) { return 0, 0 }
func (Devnull_t) Close() defs.Err_t                     { return 0 }
func (Devnull_t) Reopen() defs.Err_t                    { return 0 }
func (Devnull_t) Pathi() fdops.Inum_i                   { return nil }
func (Devnull_t) Lseek(int, int) (int, defs.Err_t)      { return 0, -defs.EINVAL }
func (Devnull_t) Truncate(uint) defs.Err_t              { return -defs.EINVAL }
func (Devnull_t) Pread(fdops.Userio_i, int) (int, defs.Err_t)  { return 0, 0 }
func (Devnull_t) Pwrite(src fdops.Userio_i, off int) (int, defs.Err_t) {
	return src.Remain(), 0
}
func (Devnull_t) Fstat(st fdops.Stat_i) defs.Err_t {
	st.Wmode(uint(defs.D_DEVNULL))
	return 0
}
