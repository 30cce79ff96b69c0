package defs

// Open-mode and creation flags for SYS_OPEN (spec.md §4.6).
const (
	O_RDONLY int = 0
	O_WRONLY int = 1
	O_RDWR   int = 2
	O_ACCMODE int = 3

	O_CREAT  int = 0x040
	O_EXCL   int = 0x080
	O_TRUNC  int = 0x200
	O_APPEND int = 0x400
	O_DIRECTORY int = 0x10000
)

// mmap prot/flags for SYS_MMAP (spec.md §4.6).
const (
	PROT_NONE  int = 0x0
	PROT_READ  int = 0x1
	PROT_WRITE int = 0x2

	MAP_SHARED    int = 0x01
	MAP_PRIVATE   int = 0x02
	MAP_ANONYMOUS int = 0x20
)
