package defs

// Err_t is a negated small-integer error code. Zero or positive values
// from a syscall handler mean success; the syscall ABI in §7 of the
// specification requires that every failure surface as -Err_t in the
// return register, never a Go error value.
type Err_t int

// Error kinds, per spec.md §7. Values are arbitrary but stable within
// this module; they are not required to match any particular libc errno
// numbering (unlike the signal numbers in defs/signal.go, which must).
const (
	EBADF    Err_t = 1 + iota /// BadDescriptor: fd not open or wrong type
	EFAULT                    /// BadAddress: user pointer fails validation
	ENOENT                    /// NoSuchFile: lookup failed
	ESRCH                     /// NoSuchProcess: lookup failed
	ENOPORT                   /// NoSuchPort: lookup failed
	EPERM                     /// PermissionDenied: capability/ownership check failed
	ENOMEM                    /// OutOfMemory: frame allocator or bounded table exhausted
	ENOHEAP                   /// OutOfMemory variant: kernel-side copy ran out of frames mid-operation
	EQFULL                    /// QueueFull: IPC ring is full
	ENOMSG                    /// NoMessage: non-blocking recv found nothing
	EINVAL                    /// InvalidArgument: out-of-range enum, bad alignment, zero size
	EINTR                     /// Interrupted: blocking call aborted by a signal
	ETIMEDOUT                 /// Timeout: timed wait elapsed
	ENOSYS                    /// NotImplemented: reserved syscall number
	ENAMETOOLONG              /// path or string exceeded the permitted length
	EEXIST                    /// target of a creating call already exists
	ENOTDIR                   /// expected a directory, found something else
	EISDIR                    /// expected a non-directory, found a directory
	ENOTEMPTY                 /// rmdir/rename on a non-empty directory
	EPIPE                     /// BrokenPipe: write to a pipe with no readers
	EAGAIN                    /// operation would block and non-blocking was requested
	EMFILE                    /// per-task descriptor table exhausted
	ECHILD                    /// wait/waitpid with no children
)

// String renders an Err_t for log lines and test failure messages.
func (e Err_t) String() string {
	switch e {
	case EBADF:
		return "EBADF"
	case EFAULT:
		return "EFAULT"
	case ENOENT:
		return "ENOENT"
	case ESRCH:
		return "ESRCH"
	case ENOPORT:
		return "ENOPORT"
	case EPERM:
		return "EPERM"
	case ENOMEM:
		return "ENOMEM"
	case ENOHEAP:
		return "ENOHEAP"
	case EQFULL:
		return "EQFULL"
	case ENOMSG:
		return "ENOMSG"
	case EINVAL:
		return "EINVAL"
	case EINTR:
		return "EINTR"
	case ETIMEDOUT:
		return "ETIMEDOUT"
	case ENOSYS:
		return "ENOSYS"
	case ENAMETOOLONG:
		return "ENAMETOOLONG"
	case EEXIST:
		return "EEXIST"
	case ENOTDIR:
		return "ENOTDIR"
	case EISDIR:
		return "EISDIR"
	case ENOTEMPTY:
		return "ENOTEMPTY"
	case EPIPE:
		return "EPIPE"
	case EAGAIN:
		return "EAGAIN"
	case EMFILE:
		return "EMFILE"
	case ECHILD:
		return "ECHILD"
	case 0:
		return "OK"
	default:
		return "Err_t(?)"
	}
}
